package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/taxflow/internal/model"
)

func newTestOrder(t *testing.T, target model.Role) *model.ResourceOrder {
	t.Helper()
	o, entry, err := CreateResourceOrder(intake, model.NewResourceOrder{
		ResourceType:   "Papier A4",
		Quantity:       10,
		Unit:           "rames",
		TargetDivision: target,
	}, "ro-1", testNow)
	require.NoError(t, err)
	require.Equal(t, "Resource order ro-1 created for "+string(target), entry.Action)
	return o
}

func TestResourceOrderLifecycle(t *testing.T) {
	o := newTestOrder(t, model.RoleCashier)
	assert.Equal(t, model.ResourceOrderPending, o.Status)
	assert.Equal(t, intake.ID, o.RequestedBy)
	assert.Equal(t, model.RoleIntake, o.RequestedByRole)

	o, _, err := DeliverResourceOrder(o, intake, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ResourceOrderDelivered, o.Status)
	assert.Equal(t, intake.ID, o.DeliveredBy)
	require.NotNil(t, o.DeliveredAt)

	o, entry, err := ReceiveResourceOrder(o, cashier, testNow)
	require.NoError(t, err)
	assert.Equal(t, model.ResourceOrderReceived, o.Status)
	assert.Equal(t, cashier.ID, o.ReceivedBy)
	assert.Equal(t, "Resource order ro-1 received", entry.Action)

	_, _, err = ReceiveResourceOrder(o, cashier, testNow)
	assert.True(t, model.IsKind(err, model.KindInvalidTransition), "got %v", err)
}

func TestReceiveBeforeDeliveryIsInvalid(t *testing.T) {
	o := newTestOrder(t, model.RoleManagement)
	_, _, err := ReceiveResourceOrder(o, management, testNow)
	assert.True(t, model.IsKind(err, model.KindInvalidTransition), "got %v", err)
}

func TestResourceOrderPartyChecks(t *testing.T) {
	o := newTestOrder(t, model.RoleManagement)
	otherIntake := model.Actor{ID: "user_accueil_2", Role: model.RoleIntake}

	tests := []struct {
		name  string
		apply func() error
	}{
		{name: "target division cannot deliver", apply: func() error {
			_, _, err := DeliverResourceOrder(o, management, testNow)
			return err
		}},
		{name: "other intake cannot deliver", apply: func() error {
			_, _, err := DeliverResourceOrder(o, otherIntake, testNow)
			return err
		}},
		{name: "unrelated division cannot receive", apply: func() error {
			delivered, _, err := DeliverResourceOrder(o, intake, testNow)
			require.NoError(t, err)
			_, _, err = ReceiveResourceOrder(delivered, cashier, testNow)
			return err
		}},
		{name: "requester cannot receive", apply: func() error {
			delivered, _, err := DeliverResourceOrder(o, intake, testNow)
			require.NoError(t, err)
			_, _, err = ReceiveResourceOrder(delivered, intake, testNow)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.apply()
			assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)
		})
	}
	assert.Equal(t, model.ResourceOrderPending, o.Status)
}

func TestCreateResourceOrderValidation(t *testing.T) {
	tests := []struct {
		name string
		in   model.NewResourceOrder
	}{
		{name: "zero quantity", in: model.NewResourceOrder{ResourceType: "Encre", Unit: "pcs", TargetDivision: model.RoleCashier}},
		{name: "no unit", in: model.NewResourceOrder{ResourceType: "Encre", Quantity: 1, TargetDivision: model.RoleCashier}},
		{name: "intake target", in: model.NewResourceOrder{ResourceType: "Encre", Quantity: 1, Unit: "pcs", TargetDivision: model.RoleIntake}},
		{name: "unknown target", in: model.NewResourceOrder{ResourceType: "Encre", Quantity: 1, Unit: "pcs", TargetDivision: "Archives"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := CreateResourceOrder(intake, tt.in, "ro-x", testNow)
			assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)
		})
	}

	_, _, err := CreateResourceOrder(management, tests[0].in, "ro-x", testNow)
	assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)
}

func TestResourceOrderFilterFor(t *testing.T) {
	assert.Equal(t, model.ResourceOrderFilter{RequestedBy: intake.ID}, ResourceOrderFilterFor(intake))
	assert.Equal(t, model.ResourceOrderFilter{TargetDivision: model.RoleCashier}, ResourceOrderFilterFor(cashier))
}
