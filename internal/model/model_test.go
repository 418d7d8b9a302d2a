package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxDetailUnmarshalAmount(t *testing.T) {
	tests := []struct {
		name string
		json string
		want *float64
	}{
		{name: "number", json: `{"name":"TVA","amount":15000}`, want: ptr(15000)},
		{name: "numeric string", json: `{"name":"TVA","amount":" 12.5 "}`, want: ptr(12.5)},
		{name: "non numeric string", json: `{"name":"TVA","amount":"abc"}`, want: nil},
		{name: "null", json: `{"name":"TVA","amount":null}`, want: nil},
		{name: "absent", json: `{"name":"TVA"}`, want: nil},
		{name: "object", json: `{"name":"TVA","amount":{"v":1}}`, want: nil},
		{name: "NaN string", json: `{"name":"TVA","amount":"NaN"}`, want: nil},
		{name: "infinity string", json: `{"name":"TVA","amount":"Infinity"}`, want: nil},
		{name: "negative infinity string", json: `{"name":"TVA","amount":"-Inf"}`, want: nil},
		{name: "overflowing number", json: `{"name":"TVA","amount":1e400}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d TaxDetail
			require.NoError(t, json.Unmarshal([]byte(tt.json), &d))
			assert.Equal(t, "TVA", d.Name)
			assert.Equal(t, tt.want, d.Amount)
		})
	}
}

func TestIsFiniteAmount(t *testing.T) {
	assert.True(t, IsFiniteAmount(0))
	assert.True(t, IsFiniteAmount(-12.5))
	assert.False(t, IsFiniteAmount(math.NaN()))
	assert.False(t, IsFiniteAmount(math.Inf(1)))
	assert.False(t, IsFiniteAmount(math.Inf(-1)))
}

func TestSumTaxDetailsIgnoresMissingAmounts(t *testing.T) {
	details := []TaxDetail{
		{Name: "TVA", Amount: ptr(100)},
		{Name: "IRSA"},
		{Name: "IR", Amount: ptr(50.5)},
	}
	assert.Equal(t, 150.5, SumTaxDetails(details))
	assert.Equal(t, 0.0, SumTaxDetails(nil))
}

func TestDossierCloneIsDeep(t *testing.T) {
	d := &Dossier{
		ID:             "d1",
		TaxDetails:     []TaxDetail{{Name: "TVA", Amount: ptr(1)}},
		PaymentDetails: &PaymentDetails{ProcessedBy: "u"},
	}
	c := d.Clone()
	*c.TaxDetails[0].Amount = 99
	c.PaymentDetails.ProcessedBy = "other"

	assert.Equal(t, 1.0, *d.TaxDetails[0].Amount)
	assert.Equal(t, "u", d.PaymentDetails.ProcessedBy)
}

func TestErrorKinds(t *testing.T) {
	wrapped := fmt.Errorf("load: %w", ErrDossierNotFound)
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.True(t, errors.Is(wrapped, ErrDossierNotFound))
	assert.False(t, IsKind(errors.New("plain"), KindNotFound))
	assert.False(t, IsKind(nil, KindNotFound))

	storage := WrapError(KindStorageUnavailable, "write dossier", errors.New("connection reset"))
	assert.Equal(t, "write dossier: connection reset", storage.Error())
	assert.Equal(t, KindStorageUnavailable, KindOf(storage))
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageLimit}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageLimit, Offset: 0}, Page{Limit: 5000, Offset: -3}.Normalize())
	assert.Equal(t, Page{Limit: 10, Offset: 20}, Page{Limit: 10, Offset: 20}.Normalize())
}

func TestRoleValid(t *testing.T) {
	for _, r := range Roles {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("Admin").Valid())
}

func ptr(v float64) *float64 {
	return &v
}
