package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/taxflow/internal/model"
)

func TestBroadcastMessageFansOut(t *testing.T) {
	msgs, entry, err := BroadcastMessage(intake, " Réunion à 14h ", []string{"m1", "m2", "m3"}, testNow)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	got := make([]model.Role, 0, len(msgs))
	for _, m := range msgs {
		got = append(got, m.ToRole)
		assert.Equal(t, "Réunion à 14h", m.Content)
		assert.Equal(t, intake.ID, m.FromUserID)
		assert.False(t, m.Confirmed)
	}
	assert.Equal(t, []model.Role{model.RoleManagement, model.RoleCashier, model.RoleDivisionHead}, got)
	assert.Equal(t, "Broadcast message created to divisions (Gestion, Caisse, Chef de Division)", entry.Action)
}

func TestBroadcastMessageValidation(t *testing.T) {
	_, _, err := BroadcastMessage(cashier, "  ", []string{"m1", "m2", "m3"}, testNow)
	assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)

	_, _, err = BroadcastMessage(cashier, "ok", []string{"m1"}, testNow)
	assert.Error(t, err)
}

func TestConfirmMessage(t *testing.T) {
	msgs, _, err := BroadcastMessage(intake, "hello", []string{"m1", "m2", "m3"}, testNow)
	require.NoError(t, err)
	toCashier := &msgs[1]
	require.Equal(t, model.RoleCashier, toCashier.ToRole)

	_, _, err = ConfirmMessage(toCashier, management, testNow)
	assert.True(t, model.IsKind(err, model.KindForbidden), "got %v", err)

	confirmed, entry, err := ConfirmMessage(toCashier, cashier, testNow)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, confirmed.Confirmed)
	assert.Equal(t, cashier.ID, confirmed.ConfirmedBy)
	assert.False(t, toCashier.Confirmed)

	again, entry, err := ConfirmMessage(confirmed, cashier, testNow.Add(1))
	require.NoError(t, err)
	assert.Nil(t, entry, "repeated confirmation must not be audited")
	assert.Equal(t, confirmed, again)
}

func TestMessageFilterFor(t *testing.T) {
	f, err := MessageFilterFor(intake, "")
	require.NoError(t, err)
	assert.Equal(t, model.MessageFilter{FromUserID: intake.ID}, f)

	f, err = MessageFilterFor(cashier, "")
	require.NoError(t, err)
	assert.Equal(t, model.MessageFilter{ToRole: model.RoleCashier}, f)

	f, err = MessageFilterFor(cashier, model.MailboxSent)
	require.NoError(t, err)
	assert.Equal(t, model.MessageFilter{FromUserID: cashier.ID}, f)

	_, err = MessageFilterFor(cashier, "trash")
	assert.True(t, model.IsKind(err, model.KindValidation), "got %v", err)
}
