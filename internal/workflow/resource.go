package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/validation"
)

// ResourceTargets — отделы, которым можно адресовать заявку.
var ResourceTargets = []model.Role{model.RoleManagement, model.RoleCashier, model.RoleDivisionHead}

// CreateResourceOrder создаёт заявку на ресурсы от имени сотрудника приёмной.
// Роль заявителя берётся из исполнителя.
func CreateResourceOrder(actor model.Actor, in model.NewResourceOrder, id string, now time.Time) (*model.ResourceOrder, *model.AuditEntry, error) {
	rule := resourceOrderRule(OpCreateResourceOrder)
	if err := Authorize(rule.Op, actor); err != nil {
		return nil, nil, err
	}

	var problems validation.Problems
	problems.Require("resourceType", in.ResourceType)
	problems.Require("unit", in.Unit)
	problems.Require("targetDivision", string(in.TargetDivision))
	problems.Check(in.Quantity > 0, "quantity must be positive")
	if in.TargetDivision != "" {
		problems.Check(slices.Contains(ResourceTargets, in.TargetDivision),
			fmt.Sprintf("target division %q is not a receiving division", in.TargetDivision))
	}
	if err := problems.Err(); err != nil {
		return nil, nil, err
	}

	o := &model.ResourceOrder{
		ID:              id,
		ResourceType:    strings.TrimSpace(in.ResourceType),
		Quantity:        in.Quantity,
		Unit:            strings.TrimSpace(in.Unit),
		Description:     strings.TrimSpace(in.Description),
		Notes:           strings.TrimSpace(in.Notes),
		RequestedBy:     actor.ID,
		RequestedByRole: actor.Role,
		TargetDivision:  in.TargetDivision,
		CreatedAt:       now,
		Status:          rule.To,
	}
	action := fmt.Sprintf("Resource order %s created for %s", id, in.TargetDivision)
	return o, model.NewAuditEntry(actor, action, now), nil
}

// DeliverResourceOrder отмечает заявку доставленной. Доступно только заявителю.
func DeliverResourceOrder(current *model.ResourceOrder, actor model.Actor, now time.Time) (*model.ResourceOrder, *model.AuditEntry, error) {
	rule := resourceOrderRule(OpDeliverResourceOrder)
	if err := checkResourceOrder(rule, current, actor); err != nil {
		return nil, nil, err
	}

	at := now
	next := current.Clone()
	next.Status = rule.To
	next.DeliveredBy = actor.ID
	next.DeliveredAt = &at
	return next, model.NewAuditEntry(actor, fmt.Sprintf("Resource order %s delivered", current.ID), now), nil
}

// ReceiveResourceOrder подтверждает получение заявки отделом-получателем.
func ReceiveResourceOrder(current *model.ResourceOrder, actor model.Actor, now time.Time) (*model.ResourceOrder, *model.AuditEntry, error) {
	rule := resourceOrderRule(OpReceiveResourceOrder)
	if err := checkResourceOrder(rule, current, actor); err != nil {
		return nil, nil, err
	}

	at := now
	next := current.Clone()
	next.Status = rule.To
	next.ReceivedBy = actor.ID
	next.ReceivedAt = &at
	return next, model.NewAuditEntry(actor, fmt.Sprintf("Resource order %s received", current.ID), now), nil
}

// AuthorizeResourceOrderAccess проверяет право исполнителя работать с заявкой:
// приёмная видит только свои заявки, остальные роли — только адресованные им.
func AuthorizeResourceOrderAccess(o *model.ResourceOrder, actor model.Actor) error {
	if actor.Role == model.RoleIntake {
		if o.RequestedBy != actor.ID {
			return model.Errorf(model.KindForbidden, "resource order %s belongs to another requester", o.ID)
		}
		return nil
	}
	if o.TargetDivision != actor.Role {
		return model.Errorf(model.KindForbidden, "resource order %s is addressed to %q", o.ID, o.TargetDivision)
	}
	return nil
}

// ResourceOrderFilterFor возвращает фильтр списка заявок для исполнителя.
func ResourceOrderFilterFor(actor model.Actor) model.ResourceOrderFilter {
	if actor.Role == model.RoleIntake {
		return model.ResourceOrderFilter{RequestedBy: actor.ID}
	}
	return model.ResourceOrderFilter{TargetDivision: actor.Role}
}

func checkResourceOrder(rule ResourceOrderRule, o *model.ResourceOrder, actor model.Actor) error {
	if err := Authorize(rule.Op, actor); err != nil {
		return err
	}
	if err := AuthorizeResourceOrderAccess(o, actor); err != nil {
		return err
	}

	switch rule.Party {
	case PartyRequester:
		if o.RequestedBy != actor.ID {
			return model.Errorf(model.KindForbidden, "only the requester may perform %s", rule.Op)
		}
	case PartyTargetDivision:
		if actor.Role != o.TargetDivision || actor.Role == o.RequestedByRole {
			return model.Errorf(model.KindForbidden, "only the target division may perform %s", rule.Op)
		}
	}

	if !slices.Contains(rule.From, o.Status) {
		return model.Errorf(model.KindInvalidTransition,
			"cannot apply %s to resource order %s in status %q", rule.Op, o.ID, o.Status)
	}
	return nil
}
