package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/validation"
)

// CreatePersonnel заводит карточку сотрудника с первым назначением.
func CreatePersonnel(actor model.Actor, in model.PersonnelInput, id string, now time.Time) (*model.Personnel, *model.AuditEntry, error) {
	if err := Authorize(OpManagePersonnel, actor); err != nil {
		return nil, nil, err
	}
	if err := validatePersonnel(in); err != nil {
		return nil, nil, err
	}

	p := &model.Personnel{
		ID:          id,
		Name:        strings.TrimSpace(in.Name),
		Division:    in.Division,
		Affectation: strings.TrimSpace(in.Affectation),
	}
	p.History = []model.Assignment{{
		Division:    p.Division,
		Affectation: p.Affectation,
		StartDate:   now,
	}}
	return p, model.NewAuditEntry(actor, fmt.Sprintf("Personnel %s created", id), now), nil
}

// UpdatePersonnel меняет карточку. При смене отдела или должности текущее
// назначение закрывается и открывается новое.
func UpdatePersonnel(current *model.Personnel, actor model.Actor, in model.PersonnelInput, now time.Time) (*model.Personnel, *model.AuditEntry, error) {
	if err := Authorize(OpManagePersonnel, actor); err != nil {
		return nil, nil, err
	}
	if err := validatePersonnel(in); err != nil {
		return nil, nil, err
	}

	next := current.Clone()
	next.Name = strings.TrimSpace(in.Name)
	next.Division = in.Division
	next.Affectation = strings.TrimSpace(in.Affectation)

	var latest *model.Assignment
	if n := len(next.History); n > 0 {
		latest = &next.History[n-1]
	}
	if latest == nil || latest.Division != next.Division || latest.Affectation != next.Affectation {
		if latest != nil && latest.EndDate == nil {
			end := now
			latest.EndDate = &end
		}
		next.History = append(next.History, model.Assignment{
			Division:    next.Division,
			Affectation: next.Affectation,
			StartDate:   now,
		})
	}
	return next, model.NewAuditEntry(actor, fmt.Sprintf("Personnel %s updated", current.ID), now), nil
}

// DeletePersonnel проверяет право удаления карточки.
func DeletePersonnel(current *model.Personnel, actor model.Actor, now time.Time) (*model.AuditEntry, error) {
	if err := Authorize(OpManagePersonnel, actor); err != nil {
		return nil, err
	}
	return model.NewAuditEntry(actor, fmt.Sprintf("Personnel %s deleted", current.ID), now), nil
}

func validatePersonnel(in model.PersonnelInput) error {
	var problems validation.Problems
	problems.Require("name", in.Name)
	problems.Require("division", string(in.Division))
	problems.Require("affectation", in.Affectation)
	if in.Division != "" {
		problems.Check(in.Division.Valid(), fmt.Sprintf("unknown division %q", in.Division))
	}
	return problems.Err()
}
