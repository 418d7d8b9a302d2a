package workflow

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/taxflow/internal/model"
)

var (
	testNow    = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	intake     = model.Actor{ID: "user_accueil", Role: model.RoleIntake}
	management = model.Actor{ID: "user_gestion", Role: model.RoleManagement}
	cashier    = model.Actor{ID: "user_caisse", Role: model.RoleCashier}
	head       = model.Actor{ID: "user_chef_division", Role: model.RoleDivisionHead}
	allActors  = []model.Actor{intake, management, cashier, head}
)

func amount(v float64) *float64 {
	return &v
}

func newTestDossier(t *testing.T) *model.Dossier {
	t.Helper()
	d, entry, err := CreateDossier(intake, model.NewDossier{
		TaxpayerName: "ACME Corp",
		TaxPeriod:    "Janvier 2024",
		TaxDetails:   []model.TaxDetail{{Name: "TVA", Amount: amount(0)}},
	}, "dos-1", testNow)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return d
}

func dossierIn(t *testing.T, status model.DossierStatus) *model.Dossier {
	t.Helper()
	d := newTestDossier(t)
	var err error
	if status == model.DossierAwaitingCalculation {
		return d
	}
	if status == model.DossierCancelled {
		d, _, err = CancelDossier(d, head, "doublon", testNow)
		require.NoError(t, err)
		return d
	}
	d, _, err = CalculateDossier(d, management, []model.TaxDetail{{Name: "TVA", Amount: amount(15000)}}, testNow)
	require.NoError(t, err)
	if status == model.DossierPaid {
		d, _, err = PayDossier(d, cashier, model.Payment{Method: model.PaymentCash}, testNow)
		require.NoError(t, err)
	}
	require.Equal(t, status, d.Status)
	return d
}

func TestDossierLifecycle(t *testing.T) {
	d := newTestDossier(t)
	assert.Equal(t, model.DossierAwaitingCalculation, d.Status)
	assert.Equal(t, 0.0, d.TotalAmount)
	assert.Equal(t, intake.ID, d.CreatedBy)
	assert.Empty(t, d.ManagedBy)

	d, entry, err := CalculateDossier(d, management, []model.TaxDetail{{Name: "TVA", Amount: amount(15000)}}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.DossierAwaitingPayment, d.Status)
	assert.Equal(t, 15000.0, d.TotalAmount)
	assert.Equal(t, management.ID, d.ManagedBy)
	assert.Equal(t, "Dossier dos-1 calculated, total 15000", entry.Action)

	d, entry, err = PayDossier(d, cashier, model.Payment{Method: model.PaymentCash}, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.DossierPaid, d.Status)
	assert.Equal(t, model.PaymentCash, d.PaymentMethod)
	require.NotNil(t, d.PaymentDetails)
	assert.Equal(t, cashier.ID, d.PaymentDetails.ProcessedBy)
	assert.Equal(t, testNow, d.PaymentDetails.ProcessedAt)
	assert.Equal(t, cashier.ID, entry.ActorID)
	assert.Equal(t, model.RoleCashier, entry.ActorRole)

	_, _, err = CancelDossier(d, head, "erreur", testNow)
	assert.True(t, model.IsKind(err, model.KindInvalidTransition), "got %v", err)
}

// Перебирает все пары (статус, роль) для каждой операции и сверяет
// результат с таблицей DossierRules.
func TestDossierTransitionTableIsExhaustive(t *testing.T) {
	ops := map[Operation]func(d *model.Dossier, a model.Actor) error{
		OpCalculateDossier: func(d *model.Dossier, a model.Actor) error {
			_, _, err := CalculateDossier(d, a, []model.TaxDetail{{Name: "TVA", Amount: amount(100)}}, testNow)
			return err
		},
		OpPayDossier: func(d *model.Dossier, a model.Actor) error {
			_, _, err := PayDossier(d, a, model.Payment{Method: model.PaymentCheque}, testNow)
			return err
		},
		OpCancelDossier: func(d *model.Dossier, a model.Actor) error {
			_, _, err := CancelDossier(d, a, "raison", testNow)
			return err
		},
		OpDeleteDossier: func(d *model.Dossier, a model.Actor) error {
			_, err := DeleteDossier(d, a, testNow)
			return err
		},
	}

	for op, apply := range ops {
		rule := mustDossierRule(op)
		for _, status := range model.DossierStatuses {
			for _, actor := range allActors {
				t.Run(string(op)+"/"+string(status)+"/"+string(actor.Role), func(t *testing.T) {
					d := dossierIn(t, status)
					before := d.Clone()

					err := apply(d, actor)

					switch {
					case !slices.Contains(rule.Roles, actor.Role):
						assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)
					case !slices.Contains(rule.From, status):
						assert.True(t, model.IsKind(err, model.KindInvalidTransition), "got %v", err)
					default:
						assert.NoError(t, err)
					}
					assert.Equal(t, before, d, "input record must never be mutated")
				})
			}
		}
	}
}

func TestCreateDossierValidation(t *testing.T) {
	tests := []struct {
		name string
		in   model.NewDossier
	}{
		{name: "no taxpayer", in: model.NewDossier{TaxPeriod: "2024", TaxDetails: []model.TaxDetail{{Name: "TVA"}}}},
		{name: "no period", in: model.NewDossier{TaxpayerName: "ACME", TaxDetails: []model.TaxDetail{{Name: "TVA"}}}},
		{name: "no lines", in: model.NewDossier{TaxpayerName: "ACME", TaxPeriod: "2024"}},
		{name: "unnamed line", in: model.NewDossier{TaxpayerName: "ACME", TaxPeriod: "2024", TaxDetails: []model.TaxDetail{{Name: " "}}}},
		{name: "NaN amount", in: model.NewDossier{TaxpayerName: "ACME", TaxPeriod: "2024", TaxDetails: []model.TaxDetail{{Name: "TVA", Amount: amount(math.NaN())}}}},
		{name: "overflowing total", in: model.NewDossier{TaxpayerName: "ACME", TaxPeriod: "2024", TaxDetails: []model.TaxDetail{{Name: "TVA", Amount: amount(1e308)}, {Name: "IR", Amount: amount(1e308)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CreateDossier(intake, tt.in, "dos-x", testNow)
			assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)
		})
	}
}

func TestCreateDossierForbiddenBeforeValidation(t *testing.T) {
	_, _, err := CreateDossier(cashier, model.NewDossier{}, "dos-x", testNow)
	assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)
}

func TestCreateDossierSumsSuppliedAmounts(t *testing.T) {
	d, _, err := CreateDossier(intake, model.NewDossier{
		TaxpayerName: "ACME",
		TaxPeriod:    "2024",
		TaxDetails:   []model.TaxDetail{{Name: "TVA", Amount: amount(10)}, {Name: "IR"}},
	}, "dos-x", testNow)
	require.NoError(t, err)
	assert.Equal(t, 10.0, d.TotalAmount)
}

func TestCalculateDossierValidation(t *testing.T) {
	tests := []struct {
		name    string
		details []model.TaxDetail
	}{
		{name: "empty", details: nil},
		{name: "missing amount", details: []model.TaxDetail{{Name: "TVA", Amount: amount(10)}, {Name: "IR"}}},
		{name: "negative amount", details: []model.TaxDetail{{Name: "TVA", Amount: amount(-1)}}},
		{name: "zero total", details: []model.TaxDetail{{Name: "TVA", Amount: amount(0)}}},
		{name: "NaN amount", details: []model.TaxDetail{{Name: "TVA", Amount: amount(math.NaN())}}},
		{name: "infinite amount", details: []model.TaxDetail{{Name: "TVA", Amount: amount(math.Inf(1))}}},
		{name: "overflowing total", details: []model.TaxDetail{{Name: "TVA", Amount: amount(1e308)}, {Name: "IR", Amount: amount(1e308)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDossier(t)
			before := d.Clone()
			_, _, err := CalculateDossier(d, management, tt.details, testNow)
			assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)
			assert.Equal(t, before, d)
		})
	}
}

func TestCalculateDossierTotalMatchesLines(t *testing.T) {
	d := newTestDossier(t)
	details := []model.TaxDetail{
		{Name: "TVA", Amount: amount(1000)},
		{Name: "IRSA", Amount: amount(250.5)},
		{Name: "IR", Amount: amount(0)},
	}
	next, _, err := CalculateDossier(d, management, details, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.SumTaxDetails(next.TaxDetails), next.TotalAmount)
	assert.Equal(t, 1250.5, next.TotalAmount)

	*details[0].Amount = 1
	assert.Equal(t, 1000.0, *next.TaxDetails[0].Amount, "stored lines must not alias caller input")
}

func TestPayDossierRequiresBankForTransfer(t *testing.T) {
	d := dossierIn(t, model.DossierAwaitingPayment)

	_, _, err := PayDossier(d, cashier, model.Payment{Method: model.PaymentBankTransfer}, testNow)
	assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)

	paid, entry, err := PayDossier(d, cashier, model.Payment{Method: model.PaymentBankTransfer, BankName: "BNI"}, testNow)
	require.NoError(t, err)
	assert.Equal(t, "BNI", paid.PaymentDetails.BankName)
	assert.Contains(t, entry.Action, "Banque: BNI")
}

func TestCancelDossierRequiresReason(t *testing.T) {
	d := dossierIn(t, model.DossierAwaitingPayment)
	before := d.Clone()

	_, _, err := CancelDossier(d, head, "   ", testNow)
	assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)
	assert.Equal(t, before, d)

	cancelled, entry, err := CancelDossier(d, head, " doublon ", testNow)
	require.NoError(t, err)
	assert.Equal(t, model.DossierCancelled, cancelled.Status)
	assert.Equal(t, "doublon", cancelled.Reason)
	assert.Equal(t, head.ID, cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.PaymentDetails, "a dossier is paid or cancelled, never both")
	assert.Equal(t, management.ID, cancelled.ManagedBy)
	assert.Equal(t, "Dossier dos-1 cancelled: doublon", entry.Action)
}

func TestDeleteDossierAnyStatus(t *testing.T) {
	for _, status := range model.DossierStatuses {
		entry, err := DeleteDossier(dossierIn(t, status), head, testNow)
		require.NoError(t, err)
		assert.Equal(t, "Dossier dos-1 deleted", entry.Action)
	}
}

func TestAuthorizeRejectsUnknownRole(t *testing.T) {
	err := Authorize(OpSendMessage, model.Actor{ID: "x", Role: "Stagiaire"})
	assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)
}
