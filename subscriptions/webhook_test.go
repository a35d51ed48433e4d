package subscriptions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripe "github.com/stripe/stripe-go/v78"
)

const testWebhookSecret = "whsec_test_secret"

type tierChange struct {
	userID string
	tier   Tier
	subID  string
}

type fakeReconciler struct {
	calls []tierChange
	err   error
}

func (f *fakeReconciler) ApplyTierChange(ctx context.Context, userID string, targetTier Tier, stripeSubscriptionID string) (*UserSubscription, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	f.calls = append(f.calls, tierChange{userID: userID, tier: targetTier, subID: stripeSubscriptionID})
	return &UserSubscription{UserID: userID, Tier: targetTier, StripeSubscriptionID: stripeSubscriptionID}, 0, nil
}

// signPayload builds a Stripe-Signature header the verifier accepts.
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func postEvent(t *testing.T, router *WebhookRouter, payload string, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/stripe/webhook", router.Handle)

	req := httptest.NewRequest(http.MethodPost, "/stripe/webhook", strings.NewReader(payload))
	if sign {
		req.Header.Set("Stripe-Signature", signPayload([]byte(payload), testWebhookSecret))
	} else {
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func eventJSON(eventType, object string) string {
	// The verifier rejects events whose api_version differs from the SDK's.
	return fmt.Sprintf(`{"id":"evt_test_1","api_version":"%s","type":"%s","data":{"object":%s}}`,
		stripe.APIVersion, eventType, object)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("checkout.session.completed", `{"id":"cs_1","metadata":{"userId":"u1","tier":"basic"}}`)
	w := postEvent(t, router, payload, false)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.calls, "unverified event must not mutate anything")
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("checkout.session.completed",
		`{"id":"cs_1","subscription":"sub_new","metadata":{"userId":"u1","tier":"advanced"}}`)
	w := postEvent(t, router, payload, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, tierChange{userID: "u1", tier: TierAdvanced, subID: "sub_new"}, rec.calls[0])
	assert.Contains(t, w.Body.String(), `"received":true`)
}

func TestWebhookCheckoutMissingMetadata(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("checkout.session.completed", `{"id":"cs_1","metadata":{}}`)
	w := postEvent(t, router, payload, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookRecurringInvoiceResolvesUserByEmail(t *testing.T) {
	rec := &fakeReconciler{}
	store := newFakeStore()
	store.byEmail["payer@example.com"] = "u42"
	provider := newFakeProvider()
	provider.subs["sub_1"] = &ProviderSubscription{ID: "sub_1", Status: "active", Metadata: map[string]string{}}
	router := NewWebhookRouter(rec, provider, store, testWebhookSecret)

	payload := eventJSON("invoice.payment_succeeded",
		`{"id":"in_1","amount_paid":2999,"subscription":"sub_1","customer_email":"payer@example.com"}`)
	w := postEvent(t, router, payload, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, tierChange{userID: "u42", tier: TierAdvanced, subID: "sub_1"}, rec.calls[0])
	// Resolution is written back so the next event skips the email lookup.
	assert.Equal(t, "u42", provider.subs["sub_1"].Metadata["userId"])
}

func TestWebhookOneTimeInvoice(t *testing.T) {
	rec := &fakeReconciler{}
	store := newFakeStore()
	store.byEmail["payer@example.com"] = "u42"
	router := NewWebhookRouter(rec, newFakeProvider(), store, testWebhookSecret)

	payload := eventJSON("invoice.payment_succeeded",
		`{"id":"in_1","amount_paid":999,"customer_email":"payer@example.com"}`)
	w := postEvent(t, router, payload, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, tierChange{userID: "u42", tier: TierBasic, subID: ""}, rec.calls[0])
}

func TestWebhookInvoiceUnknownUser(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("invoice.payment_succeeded",
		`{"id":"in_1","amount_paid":999,"customer_email":"stranger@example.com"}`)
	w := postEvent(t, router, payload, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookSubscriptionCreated(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("customer.subscription.created",
		`{"id":"sub_1","status":"active","metadata":{"userId":"u7"},"items":{"data":[{"price":{"unit_amount":999}}]}}`)
	w := postEvent(t, router, payload, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, tierChange{userID: "u7", tier: TierBasic, subID: "sub_1"}, rec.calls[0])
}

func TestWebhookSubscriptionDeleted(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("customer.subscription.deleted",
		`{"id":"sub_1","metadata":{"userId":"u7"}}`)
	w := postEvent(t, router, payload, true)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, tierChange{userID: "u7", tier: TierFreemium, subID: ""}, rec.calls[0])
}

func TestWebhookSubscriptionDeletedWithoutUserID(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("customer.subscription.deleted", `{"id":"sub_1","metadata":{}}`)
	w := postEvent(t, router, payload, true)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookIgnoresUnknownEventTypes(t *testing.T) {
	rec := &fakeReconciler{}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("customer.updated", `{"id":"cus_1"}`)
	w := postEvent(t, router, payload, true)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, rec.calls)
}

func TestWebhookInternalErrorIsRetryable(t *testing.T) {
	rec := &fakeReconciler{err: fmt.Errorf("db gone")}
	router := NewWebhookRouter(rec, newFakeProvider(), newFakeStore(), testWebhookSecret)

	payload := eventJSON("checkout.session.completed",
		`{"id":"cs_1","metadata":{"userId":"u1","tier":"basic"}}`)
	w := postEvent(t, router, payload, true)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
