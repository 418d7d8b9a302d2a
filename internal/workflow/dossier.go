package workflow

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/validation"
)

// CreateDossier регистрирует новое досье в статусе ожидания расчёта.
func CreateDossier(actor model.Actor, in model.NewDossier, id string, now time.Time) (*model.Dossier, *model.AuditEntry, error) {
	rule := mustDossierRule(OpCreateDossier)
	if err := Authorize(rule.Op, actor); err != nil {
		return nil, nil, err
	}

	var problems validation.Problems
	problems.Require("taxpayerName", in.TaxpayerName)
	problems.Require("taxPeriod", in.TaxPeriod)
	problems.Check(len(in.TaxDetails) > 0, "at least one tax detail line is required")
	checkLineNames(&problems, in.TaxDetails)
	checkFiniteAmounts(&problems, in.TaxDetails)
	if err := problems.Err(); err != nil {
		return nil, nil, err
	}

	details := model.CloneTaxDetails(in.TaxDetails)
	d := &model.Dossier{
		ID:           id,
		TaxpayerName: strings.TrimSpace(in.TaxpayerName),
		TaxPeriod:    strings.TrimSpace(in.TaxPeriod),
		Status:       rule.To,
		TaxDetails:   details,
		TotalAmount:  model.SumTaxDetails(details),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
	}
	return d, model.NewAuditEntry(actor, fmt.Sprintf("Dossier %s created", id), now), nil
}

// CalculateDossier фиксирует рассчитанные суммы и передаёт досье в кассу.
func CalculateDossier(current *model.Dossier, actor model.Actor, details []model.TaxDetail, now time.Time) (*model.Dossier, *model.AuditEntry, error) {
	rule := mustDossierRule(OpCalculateDossier)
	if err := rule.check(actor, current); err != nil {
		return nil, nil, err
	}

	var problems validation.Problems
	problems.Check(len(details) > 0, "at least one tax detail line is required")
	checkLineNames(&problems, details)
	for i, d := range details {
		switch {
		case d.Amount == nil:
			problems.Check(false, fmt.Sprintf("taxDetails[%d].amount must be a number", i))
		case *d.Amount < 0:
			problems.Check(false, fmt.Sprintf("taxDetails[%d].amount must not be negative", i))
		}
	}
	checkFiniteAmounts(&problems, details)
	total := model.SumTaxDetails(details)
	if problems.Empty() {
		problems.Check(total > 0, "total amount must be positive")
	}
	if err := problems.Err(); err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	next.TaxDetails = model.CloneTaxDetails(details)
	next.TotalAmount = total
	next.Status = rule.To
	if next.ManagedBy == "" {
		next.ManagedBy = actor.ID
	}

	action := fmt.Sprintf("Dossier %s calculated, total %s", current.ID, FormatAmount(total))
	return next, model.NewAuditEntry(actor, action, now), nil
}

// PayDossier подтверждает оплату досье кассиром.
func PayDossier(current *model.Dossier, actor model.Actor, payment model.Payment, now time.Time) (*model.Dossier, *model.AuditEntry, error) {
	rule := mustDossierRule(OpPayDossier)
	if err := rule.check(actor, current); err != nil {
		return nil, nil, err
	}
	if err := validation.PaymentReference(payment); err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	next.Status = rule.To
	next.PaymentMethod = payment.Method
	next.PaymentDetails = &model.PaymentDetails{
		ProcessedBy:     actor.ID,
		ProcessedAt:     now,
		BankName:        strings.TrimSpace(payment.BankName),
		ChequeNumber:    strings.TrimSpace(payment.ChequeNumber),
		BankTransferRef: strings.TrimSpace(payment.BankTransferRef),
	}

	action := fmt.Sprintf("Dossier %s paid (%s)", current.ID, payment.Method)
	if next.PaymentDetails.BankName != "" {
		action += fmt.Sprintf(" (Banque: %s)", next.PaymentDetails.BankName)
	}
	return next, model.NewAuditEntry(actor, action, now), nil
}

// CancelDossier аннулирует досье, которое ещё не оплачено.
func CancelDossier(current *model.Dossier, actor model.Actor, reason string, now time.Time) (*model.Dossier, *model.AuditEntry, error) {
	rule := mustDossierRule(OpCancelDossier)
	if err := rule.check(actor, current); err != nil {
		return nil, nil, err
	}

	var problems validation.Problems
	problems.Require("reason", reason)
	if err := problems.Err(); err != nil {
		return nil, nil, err
	}

	reason = strings.TrimSpace(reason)
	cancelledAt := now
	next := current.Clone()
	next.Status = rule.To
	next.CancelledBy = actor.ID
	next.CancelledAt = &cancelledAt
	next.Reason = reason

	action := fmt.Sprintf("Dossier %s cancelled: %s", current.ID, reason)
	return next, model.NewAuditEntry(actor, action, now), nil
}

// DeleteDossier проверяет право удаления досье. Запись аудита сохраняет
// идентификатор удалённого досье.
func DeleteDossier(current *model.Dossier, actor model.Actor, now time.Time) (*model.AuditEntry, error) {
	rule := mustDossierRule(OpDeleteDossier)
	if err := rule.check(actor, current); err != nil {
		return nil, err
	}
	return model.NewAuditEntry(actor, fmt.Sprintf("Dossier %s deleted", current.ID), now), nil
}

// FormatAmount форматирует сумму без лишних нулей.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// checkFiniteAmounts отклоняет NaN и бесконечность в строках и в итоге:
// такие значения не сериализуются в JSON.
func checkFiniteAmounts(problems *validation.Problems, details []model.TaxDetail) {
	lines := true
	for i, d := range details {
		if d.Amount != nil && !model.IsFiniteAmount(*d.Amount) {
			problems.Check(false, fmt.Sprintf("taxDetails[%d].amount must be a finite number", i))
			lines = false
		}
	}
	if lines {
		problems.Check(!math.IsInf(model.SumTaxDetails(details), 0), "total amount is out of range")
	}
}

func checkLineNames(problems *validation.Problems, details []model.TaxDetail) {
	for i, d := range details {
		problems.Check(!validation.IsBlank(d.Name), fmt.Sprintf("taxDetails[%d].name is required", i))
	}
}
