package support

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db), mock
}

func TestHasPendingTicket(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT COUNT\\(1\\) FROM support_tickets").WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	pending, err := repo.HasPendingTicket("u1")
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestCreateTicket(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT INTO support_tickets").
		WithArgs("u1", "Billing question", "Why was I charged twice?", "priority", StatusPending).
		WillReturnResult(sqlmock.NewResult(7, 1))

	ticket, err := repo.Create("u1", "Billing question", "Why was I charged twice?", "priority")
	require.NoError(t, err)
	assert.Equal(t, 7, ticket.ID)
	assert.Equal(t, StatusPending, ticket.Status)
	assert.Equal(t, "priority", ticket.Priority)
}
