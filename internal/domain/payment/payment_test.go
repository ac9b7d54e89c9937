package payment

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPaymentRepo struct {
	byID       map[string]*Payment
	listCalls  [][2]int // limit, offset
	lastUpdate struct {
		id     string
		status Status
		extra  string
	}
}

func (m *mockPaymentRepo) GetForUser(_ context.Context, id, userID string) (*Payment, error) {
	p, ok := m.byID[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPaymentRepo) ListByUser(_ context.Context, _ string, limit, offset int) ([]Payment, error) {
	m.listCalls = append(m.listCalls, [2]int{limit, offset})
	return nil, nil
}

func (m *mockPaymentRepo) UpdateStatus(_ context.Context, id string, status Status, extra string) error {
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status != StatusUnpaid {
		return ErrInvalidTransition
	}
	m.lastUpdate.id = id
	m.lastUpdate.status = status
	m.lastUpdate.extra = extra
	p.Status = status
	return nil
}

func newRepo(payments ...*Payment) *mockPaymentRepo {
	byID := make(map[string]*Payment, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
	}
	return &mockPaymentRepo{byID: byID}
}

func TestMarkStatus_FromUnpaid(t *testing.T) {
	repo := newRepo(&Payment{ID: "pay1", UserID: "u1", Status: StatusUnpaid})
	svc := NewService(repo)

	err := svc.MarkStatus(context.Background(), "pay1", StatusPaidMobile, "mobilepay txn 42")
	require.NoError(t, err)
	assert.Equal(t, StatusPaidMobile, repo.lastUpdate.status)
	assert.Equal(t, "mobilepay txn 42", repo.lastUpdate.extra)
}

func TestMarkStatus_RejectsTransitionToUnpaid(t *testing.T) {
	svc := NewService(newRepo())

	err := svc.MarkStatus(context.Background(), "pay1", StatusUnpaid, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkStatus_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(newRepo())

	err := svc.MarkStatus(context.Background(), "pay1", Status("refunded"), "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkStatus_RejectsAlreadyPaid(t *testing.T) {
	repo := newRepo(&Payment{ID: "pay1", UserID: "u1", Status: StatusPaidCash})
	svc := NewService(repo)

	err := svc.MarkStatus(context.Background(), "pay1", StatusCanceled, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkStatus_ExtraTooLong(t *testing.T) {
	repo := newRepo(&Payment{ID: "pay1", UserID: "u1", Status: StatusUnpaid})
	svc := NewService(repo)

	err := svc.MarkStatus(context.Background(), "pay1", StatusPaidCash, strings.Repeat("x", MaxExtraLen+1))
	require.ErrorIs(t, err, ErrExtraTooLong)
}

func TestListPage_Pagination(t *testing.T) {
	repo := newRepo()
	svc := NewService(repo)

	ctx := context.Background()
	_, err := svc.ListPage(ctx, "u1", 1)
	require.NoError(t, err)
	_, err = svc.ListPage(ctx, "u1", 3)
	require.NoError(t, err)
	// Pages below 1 clamp to the first page.
	_, err = svc.ListPage(ctx, "u1", 0)
	require.NoError(t, err)

	require.Len(t, repo.listCalls, 3)
	assert.Equal(t, [2]int{PageSize, 0}, repo.listCalls[0])
	assert.Equal(t, [2]int{PageSize, 2 * PageSize}, repo.listCalls[1])
	assert.Equal(t, [2]int{PageSize, 0}, repo.listCalls[2])
}

func TestGet_ScopedToOwner(t *testing.T) {
	repo := newRepo(&Payment{ID: "pay1", UserID: "u1", Status: StatusUnpaid})
	svc := NewService(repo)

	ctx := context.Background()
	p, err := svc.Get(ctx, "pay1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "pay1", p.ID)

	_, err = svc.Get(ctx, "pay1", "u2")
	require.ErrorIs(t, err, ErrNotFound)
}
