package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DossierStatus описывает этап жизненного цикла досье.
type DossierStatus string

const (
	DossierAwaitingCalculation DossierStatus = "En attente de calcul"
	DossierAwaitingPayment     DossierStatus = "En attente de paiement"
	DossierPaid                DossierStatus = "Payé"
	DossierCancelled           DossierStatus = "Annulé"
)

// DossierStatuses перечисляет все статусы досье.
var DossierStatuses = []DossierStatus{
	DossierAwaitingCalculation,
	DossierAwaitingPayment,
	DossierPaid,
	DossierCancelled,
}

// PaymentMethod задаёт способ оплаты досье в кассе.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "Espèce"
	PaymentCheque       PaymentMethod = "Chèque"
	PaymentBankTransfer PaymentMethod = "Virement bancaire"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCheque, PaymentBankTransfer:
		return true
	}
	return false
}

// RequiresBankReference сообщает, нужно ли указывать банк для этого способа оплаты.
func (m PaymentMethod) RequiresBankReference() bool {
	return m == PaymentBankTransfer
}

// TaxDetail описывает одну строку налога в досье. Amount равен nil, пока сумма не задана.
type TaxDetail struct {
	Name   string   `json:"name"`
	Amount *float64 `json:"amount"`
}

// UnmarshalJSON принимает сумму в виде числа или числовой строки.
// Нечисловое или бесконечное значение считается отсутствующей суммой.
func (d *TaxDetail) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name   string          `json:"name"`
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Name = raw.Name
	d.Amount = parseAmount(raw.Amount)
	return nil
}

func parseAmount(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && IsFiniteAmount(v) {
			return &v
		}
	}
	return nil
}

// IsFiniteAmount сообщает, что сумма не NaN и не бесконечность.
func IsFiniteAmount(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AmountOrZero возвращает сумму строки или ноль, если она не задана.
func (d TaxDetail) AmountOrZero() float64 {
	if d.Amount == nil {
		return 0
	}
	return *d.Amount
}

// SumTaxDetails считает итог по строкам, пропуская незаданные суммы.
func SumTaxDetails(details []TaxDetail) float64 {
	var total float64
	for _, d := range details {
		total += d.AmountOrZero()
	}
	return total
}

// PaymentDetails фиксирует факт оплаты.
type PaymentDetails struct {
	ProcessedBy     string    `json:"processedBy"`
	ProcessedAt     time.Time `json:"processedAt"`
	BankName        string    `json:"bankName,omitempty"`
	ChequeNumber    string    `json:"chequeNumber,omitempty"`
	BankTransferRef string    `json:"bankTransferRef,omitempty"`
}

// Dossier представляет налоговое досье налогоплательщика.
type Dossier struct {
	ID             string          `json:"id"`
	TaxpayerName   string          `json:"taxpayerName"`
	TaxPeriod      string          `json:"taxPeriod"`
	Status         DossierStatus   `json:"status"`
	TaxDetails     []TaxDetail     `json:"taxDetails"`
	TotalAmount    float64         `json:"totalAmount"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	ManagedBy      string          `json:"managedBy,omitempty"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod,omitempty"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`
	CancelledBy    string          `json:"cancelledBy,omitempty"`
	CancelledAt    *time.Time      `json:"cancelledAt,omitempty"`
	Reason         string          `json:"reason,omitempty"`
}

// Clone возвращает глубокую копию досье.
func (d *Dossier) Clone() *Dossier {
	if d == nil {
		return nil
	}
	c := *d
	c.TaxDetails = CloneTaxDetails(d.TaxDetails)
	if d.PaymentDetails != nil {
		pd := *d.PaymentDetails
		c.PaymentDetails = &pd
	}
	if d.CancelledAt != nil {
		at := *d.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// CloneTaxDetails копирует строки налогов вместе с суммами.
func CloneTaxDetails(details []TaxDetail) []TaxDetail {
	if details == nil {
		return nil
	}
	out := make([]TaxDetail, len(details))
	for i, d := range details {
		out[i] = TaxDetail{Name: d.Name}
		if d.Amount != nil {
			v := *d.Amount
			out[i].Amount = &v
		}
	}
	return out
}

// NewDossier содержит входные данные для регистрации досье.
type NewDossier struct {
	TaxpayerName string      `json:"taxpayerName"`
	TaxPeriod    string      `json:"taxPeriod"`
	TaxDetails   []TaxDetail `json:"taxDetails"`
}

// Payment содержит входные данные для подтверждения оплаты.
type Payment struct {
	Method          PaymentMethod `json:"method"`
	BankName        string        `json:"bankName,omitempty"`
	ChequeNumber    string        `json:"chequeNumber,omitempty"`
	BankTransferRef string        `json:"bankTransferRef,omitempty"`
}

// DossierPage содержит страницу досье и общее число записей.
type DossierPage struct {
	Items []Dossier `json:"items"`
	Total int       `json:"total"`
}
