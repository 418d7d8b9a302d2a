package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/taxflow/internal/model"
)

var (
	testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	intake  = model.Actor{ID: "u-intake", Role: model.RoleIntake}
	cashier = model.Actor{ID: "u-cashier", Role: model.RoleCashier}
)

func newTestRepo(t *testing.T) *BoltRepository {
	t.Helper()
	repo, err := NewBoltRepository(filepath.Join(t.TempDir(), "data", "taxflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func seedDossier(t *testing.T, repo *BoltRepository, status model.DossierStatus) *model.Dossier {
	t.Helper()
	amount := 1500.0
	d := &model.Dossier{
		ID:           newID(),
		TaxpayerName: "ACME",
		TaxPeriod:    "T1 2024",
		Status:       status,
		TaxDetails:   []model.TaxDetail{{Name: "TVA", Amount: &amount}},
		TotalAmount:  amount,
		CreatedBy:    intake.ID,
		CreatedAt:    testNow,
	}
	require.NoError(t, repo.CreateDossier(context.Background(), d,
		model.NewAuditEntry(intake, "Dossier "+d.ID+" created", testNow)))
	return d
}

func TestBoltDossierRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := seedDossier(t, repo, model.DossierAwaitingCalculation)

	got, err := repo.GetDossier(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = repo.GetDossier(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrDossierNotFound)
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestBoltListDossiersNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var ids []string
	for range 5 {
		ids = append(ids, seedDossier(t, repo, model.DossierAwaitingCalculation).ID)
	}

	items, total, err := repo.ListDossiers(ctx, model.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, items, 2)
	assert.Equal(t, ids[3], items[0].ID)
	assert.Equal(t, ids[2], items[1].ID)

	items, _, err = repo.ListDossiers(ctx, model.Page{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBoltUpdateDossierWritesAuditAtomically(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := seedDossier(t, repo, model.DossierAwaitingPayment)

	failure := model.NewError(model.KindInvalidTransition, "nope")
	_, err := repo.UpdateDossier(ctx, d.ID, func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		return nil, nil, failure
	})
	assert.ErrorIs(t, err, failure)

	_, total, err := repo.ListAuditEntries(ctx, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total, "failed mutation must not leave an audit entry")

	updated, err := repo.UpdateDossier(ctx, d.ID, func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		next := cur.Clone()
		next.Status = model.DossierPaid
		return next, model.NewAuditEntry(cashier, "Dossier "+cur.ID+" paid", testNow), nil
	})
	require.NoError(t, err)
	assert.Equal(t, model.DossierPaid, updated.Status)

	stored, err := repo.GetDossier(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DossierPaid, stored.Status)

	entries, total, err := repo.ListAuditEntries(ctx, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, cashier.ID, entries[0].ActorID)
}

func TestBoltConcurrentUpdatesAreSerialized(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := seedDossier(t, repo, model.DossierAwaitingPayment)

	pay := func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		if cur.Status != model.DossierAwaitingPayment {
			return nil, nil, model.NewError(model.KindInvalidTransition, "already paid")
		}
		next := cur.Clone()
		next.Status = model.DossierPaid
		return next, model.NewAuditEntry(cashier, "paid", testNow), nil
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpdateDossier(ctx, d.ID, pay)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case model.IsKind(err, model.KindInvalidTransition):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	_, total, err := repo.ListAuditEntries(ctx, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestBoltDeleteDossierKeepsAudit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	d := seedDossier(t, repo, model.DossierPaid)

	err := repo.DeleteDossier(ctx, d.ID, func(cur *model.Dossier) (*model.AuditEntry, error) {
		return model.NewAuditEntry(intake, "Dossier "+cur.ID+" deleted", testNow), nil
	})
	require.NoError(t, err)

	_, err = repo.GetDossier(ctx, d.ID)
	assert.ErrorIs(t, err, model.ErrDossierNotFound)

	entries, _, err := repo.ListAuditEntries(ctx, model.Page{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].Action, d.ID)
	assert.Contains(t, entries[1].Action, d.ID)

	err = repo.DeleteDossier(ctx, d.ID, func(*model.Dossier) (*model.AuditEntry, error) { return nil, nil })
	assert.True(t, model.IsKind(err, model.KindNotFound))
}

func TestBoltUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := &model.User{ID: newID(), Username: "user_caisse", PasswordHash: []byte("hash"), Role: model.RoleCashier, CreatedAt: testNow}
	require.NoError(t, repo.CreateUser(ctx, u, nil))

	dup := &model.User{ID: newID(), Username: "user_caisse", PasswordHash: []byte("x"), Role: model.RoleIntake, CreatedAt: testNow}
	err := repo.CreateUser(ctx, dup, nil)
	assert.ErrorIs(t, err, model.ErrUserExists)
	assert.True(t, model.IsKind(err, model.KindConflict))

	got, err := repo.GetUserByUsername(ctx, "user_caisse")
	require.NoError(t, err)
	assert.Equal(t, []byte("hash"), got.PasswordHash)
	assert.Equal(t, model.RoleCashier, got.Role)

	_, err = repo.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, model.ErrUserNotFound)

	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, total, err := repo.ListAuditEntries(ctx, model.Page{})
	require.NoError(t, err)
	assert.Zero(t, total, "nil audit entry is not stored")
}

func TestBoltResourceOrdersFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, target := range []model.Role{model.RoleCashier, model.RoleManagement, model.RoleCashier} {
		o := &model.ResourceOrder{
			ID: newID(), ResourceType: "Papier", Quantity: 1, Unit: "rame",
			RequestedBy: intake.ID, RequestedByRole: intake.Role, TargetDivision: target,
			Status: model.ResourceOrderPending, CreatedAt: testNow,
		}
		require.NoError(t, repo.CreateResourceOrder(ctx, o, nil))
	}

	items, total, err := repo.ListResourceOrders(ctx, model.ResourceOrderFilter{TargetDivision: model.RoleCashier}, model.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	_, total, err = repo.ListResourceOrders(ctx, model.ResourceOrderFilter{RequestedBy: "someone-else"}, model.Page{})
	require.NoError(t, err)
	assert.Zero(t, total)

	_, err = repo.UpdateResourceOrder(ctx, "missing", nil)
	assert.ErrorIs(t, err, model.ErrResourceOrderNotFound)
}

func TestBoltMessagesAndPersonnel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	msgs := []model.Message{
		{ID: newID(), FromUserID: intake.ID, FromRole: intake.Role, ToRole: model.RoleCashier, Content: "hi", CreatedAt: testNow},
		{ID: newID(), FromUserID: intake.ID, FromRole: intake.Role, ToRole: model.RoleManagement, Content: "hi", CreatedAt: testNow},
	}
	require.NoError(t, repo.CreateMessages(ctx, msgs, model.NewAuditEntry(intake, "broadcast", testNow)))

	inbox, err := repo.ListMessages(ctx, model.MessageFilter{ToRole: model.RoleCashier})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, msgs[0].ID, inbox[0].ID)

	sent, err := repo.ListMessages(ctx, model.MessageFilter{FromUserID: intake.ID})
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	for _, name := range []string{"Zo", "Andry"} {
		require.NoError(t, repo.CreatePersonnel(ctx, &model.Personnel{ID: newID(), Name: name, Division: model.RoleCashier, Affectation: "Caissier"}, nil))
	}
	people, err := repo.ListPersonnel(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Andry", people[0].Name)
}

func TestBoltCancelledContext(t *testing.T) {
	repo := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := repo.ListDossiers(ctx, model.Page{})
	assert.True(t, model.IsKind(err, model.KindStorageUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, context.Canceled))
}
