// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"

	"github.com/mmeshcher/taxflow/internal/model"
)

// IsBlank сообщает, что строка пуста или состоит из пробелов.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Problems накапливает ошибки валидации, чтобы вернуть их одним сообщением.
type Problems struct {
	missing []string
	invalid []string
}

// Require отмечает обязательное поле, если оно не заполнено.
func (p *Problems) Require(field, value string) {
	if IsBlank(value) {
		p.missing = append(p.missing, field)
	}
}

// Check добавляет сообщение, если условие не выполнено.
func (p *Problems) Check(ok bool, message string) {
	if !ok {
		p.invalid = append(p.invalid, message)
	}
}

// Empty сообщает, что ошибок не найдено.
func (p *Problems) Empty() bool {
	return len(p.missing) == 0 && len(p.invalid) == 0
}

// Err возвращает ошибку валидации или nil.
func (p *Problems) Err() error {
	if p.Empty() {
		return nil
	}
	parts := make([]string, 0, len(p.invalid)+1)
	if len(p.missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(p.missing, ", "))
	}
	parts = append(parts, p.invalid...)
	return model.NewError(model.KindValidation, strings.Join(parts, "; "))
}

// PaymentReference проверяет реквизиты, которых требует способ оплаты.
func PaymentReference(p model.Payment) error {
	var problems Problems
	if !p.Method.Valid() {
		problems.Check(false, "unsupported payment method "+quote(string(p.Method)))
		return problems.Err()
	}
	if p.Method.RequiresBankReference() {
		problems.Require("bankName", p.BankName)
	}
	return problems.Err()
}

func quote(s string) string {
	return "\"" + s + "\""
}
