package subscriptions

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	benefits map[Tier]*TierBenefit
	subs     map[string]*UserSubscription
	tokens   map[string]int
	byEmail  map[string]string

	upsertErr error
	tokensErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		benefits: map[Tier]*TierBenefit{
			TierFreemium: {Tier: TierFreemium, MonthlyTokens: 50},
			TierBasic:    {Tier: TierBasic, MonthlyTokens: 500},
			TierAdvanced: {Tier: TierAdvanced, MonthlyTokens: 2000},
		},
		subs:    map[string]*UserSubscription{},
		tokens:  map[string]int{},
		byEmail: map[string]string{},
	}
}

func (s *fakeStore) GetBenefits(tier Tier) (*TierBenefit, error) {
	return s.benefits[tier], nil
}

func (s *fakeStore) GetSubscription(userID string) (*UserSubscription, error) {
	sub, ok := s.subs[userID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *fakeStore) UpsertSubscription(sub *UserSubscription) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	cp := *sub
	s.subs[sub.UserID] = &cp
	return nil
}

func (s *fakeStore) SetUserTokens(userID string, tokens int) error {
	if s.tokensErr != nil {
		return s.tokensErr
	}
	s.tokens[userID] = tokens
	return nil
}

func (s *fakeStore) FindUserIDByEmail(email string) (string, error) {
	return s.byEmail[email], nil
}

type fakeProvider struct {
	subs      map[string]*ProviderSubscription
	customers map[string]string // email -> customer id
	active    map[string][]string

	cancelled []string
	cancelErr error
	getErr    error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		subs:      map[string]*ProviderSubscription{},
		customers: map[string]string{},
		active:    map[string][]string{},
	}
}

func (p *fakeProvider) GetSubscription(ctx context.Context, id string) (*ProviderSubscription, error) {
	if p.getErr != nil {
		return nil, p.getErr
	}
	sub, ok := p.subs[id]
	if !ok {
		return nil, ErrResourceMissing
	}
	return sub, nil
}

func (p *fakeProvider) CancelSubscription(ctx context.Context, id string, prorate bool) error {
	if p.cancelErr != nil {
		return p.cancelErr
	}
	if _, ok := p.subs[id]; !ok {
		return ErrResourceMissing
	}
	p.cancelled = append(p.cancelled, id)
	p.subs[id].Status = "canceled"
	return nil
}

func (p *fakeProvider) SetSubscriptionMetadata(ctx context.Context, id string, metadata map[string]string) error {
	sub, ok := p.subs[id]
	if !ok {
		return ErrResourceMissing
	}
	if sub.Metadata == nil {
		sub.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		sub.Metadata[k] = v
	}
	return nil
}

func (p *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	return p.customers[email], nil
}

func (p *fakeProvider) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	for email, id := range p.customers {
		if id == customerID {
			return email, nil
		}
	}
	return "", ErrResourceMissing
}

func (p *fakeProvider) ListActiveSubscriptionIDs(ctx context.Context, customerID string) ([]string, error) {
	return p.active[customerID], nil
}

func (p *fakeProvider) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	id := "cus_" + email
	p.customers[email] = id
	return id, nil
}

func TestApplyTierChangeResetsTokensAbsolutely(t *testing.T) {
	store := newFakeStore()
	store.tokens["u1"] = 7 // leftover balance must not be added to
	engine := NewEngine(store, newFakeProvider())

	sub, tokens, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_B")
	require.NoError(t, err)
	assert.Equal(t, TierBasic, sub.Tier)
	assert.Equal(t, "sub_B", sub.StripeSubscriptionID)
	assert.True(t, sub.IsActive)
	assert.Equal(t, 500, tokens)
	assert.Equal(t, 500, store.tokens["u1"])
}

func TestApplyTierChangeIsConvergentOnReplay(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	provider.subs["sub_B"] = &ProviderSubscription{ID: "sub_B", Status: "active"}
	engine := NewEngine(store, provider)

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_B")
	require.NoError(t, err)
	first := *store.subs["u1"]

	// Same event delivered again.
	_, _, err = engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_B")
	require.NoError(t, err)

	assert.Equal(t, first.Tier, store.subs["u1"].Tier)
	assert.Equal(t, first.StripeSubscriptionID, store.subs["u1"].StripeSubscriptionID)
	assert.Equal(t, 500, store.tokens["u1"])
	assert.Empty(t, provider.cancelled, "matching subscription id must not be cancelled")
}

func TestApplyTierChangeFreemiumClearsStripeID(t *testing.T) {
	store := newFakeStore()
	engine := NewEngine(store, newFakeProvider())

	// Even if a caller passes an id, freemium must not keep it.
	sub, tokens, err := engine.ApplyTierChange(context.Background(), "u1", TierFreemium, "sub_X")
	require.NoError(t, err)
	assert.Empty(t, sub.StripeSubscriptionID)
	assert.Equal(t, 50, tokens)
}

func TestApplyTierChangeCancelsDifferingPreviousSubscription(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	provider.subs["sub_A"] = &ProviderSubscription{ID: "sub_A", Status: "active"}
	engine := NewEngine(store, provider)

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_A")
	require.NoError(t, err)

	_, _, err = engine.ApplyTierChange(context.Background(), "u1", TierAdvanced, "sub_B")
	require.NoError(t, err)

	assert.Equal(t, []string{"sub_A"}, provider.cancelled)
	assert.Equal(t, "sub_B", store.subs["u1"].StripeSubscriptionID)
	assert.Equal(t, 2000, store.tokens["u1"])
}

func TestApplyTierChangeSkipsCancelOfInactivePrevious(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	provider.subs["sub_A"] = &ProviderSubscription{ID: "sub_A", Status: "past_due"}
	engine := NewEngine(store, provider)

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_A")
	require.NoError(t, err)
	_, _, err = engine.ApplyTierChange(context.Background(), "u1", TierAdvanced, "sub_B")
	require.NoError(t, err)

	assert.Empty(t, provider.cancelled)
}

func TestApplyTierChangeSurvivesCancelFailure(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	provider.subs["sub_A"] = &ProviderSubscription{ID: "sub_A", Status: "active"}
	engine := NewEngine(store, provider)

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_A")
	require.NoError(t, err)

	provider.cancelErr = errors.New("stripe is down")
	_, _, err = engine.ApplyTierChange(context.Background(), "u1", TierAdvanced, "sub_B")
	require.NoError(t, err, "provider cancel failure must not block reconciliation")
	assert.Equal(t, TierAdvanced, store.subs["u1"].Tier)
	assert.Equal(t, 2000, store.tokens["u1"])
}

func TestApplyTierChangeTreatsMissingPreviousAsGone(t *testing.T) {
	store := newFakeStore()
	provider := newFakeProvider()
	engine := NewEngine(store, provider)

	// Stored sub references a provider subscription that no longer exists.
	store.subs["u1"] = &UserSubscription{UserID: "u1", Tier: TierBasic, StripeSubscriptionID: "sub_gone"}

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierAdvanced, "sub_B")
	require.NoError(t, err)
	assert.Equal(t, "sub_B", store.subs["u1"].StripeSubscriptionID)
}

func TestApplyTierChangeMissingBenefitsIsFatal(t *testing.T) {
	store := newFakeStore()
	delete(store.benefits, TierAdvanced)
	engine := NewEngine(store, newFakeProvider())

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierAdvanced, "sub_B")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, TierAdvanced, ce.Tier)
	assert.Empty(t, store.subs, "no partial write on configuration error")
}

func TestApplyTierChangeStoreErrorPropagates(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = errors.New("deadlock")
	engine := NewEngine(store, newFakeProvider())

	_, _, err := engine.ApplyTierChange(context.Background(), "u1", TierBasic, "sub_B")
	require.Error(t, err)
}

func TestCancelAllWithoutProvider(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil)
	_, err := engine.CancelAllSubscriptions(context.Background(), "a@b.c")
	require.ErrorIs(t, err, ErrStripeNotConfigured)
}

func TestCancelAllNoCustomerIsSuccess(t *testing.T) {
	engine := NewEngine(newFakeStore(), newFakeProvider())
	count, err := engine.CancelAllSubscriptions(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelAllCancelsEveryActiveSubscription(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["a@b.c"] = "cus_1"
	provider.active["cus_1"] = []string{"sub_1", "sub_2"}
	provider.subs["sub_1"] = &ProviderSubscription{ID: "sub_1", Status: "active"}
	provider.subs["sub_2"] = &ProviderSubscription{ID: "sub_2", Status: "active"}
	engine := NewEngine(newFakeStore(), provider)

	count, err := engine.CancelAllSubscriptions(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.ElementsMatch(t, []string{"sub_1", "sub_2"}, provider.cancelled)
}

func TestCancelAllSkipsAlreadyGoneSubscriptions(t *testing.T) {
	provider := newFakeProvider()
	provider.customers["a@b.c"] = "cus_1"
	provider.active["cus_1"] = []string{"sub_gone", "sub_live"}
	provider.subs["sub_live"] = &ProviderSubscription{ID: "sub_live", Status: "active"}
	engine := NewEngine(newFakeStore(), provider)

	count, err := engine.CancelAllSubscriptions(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
