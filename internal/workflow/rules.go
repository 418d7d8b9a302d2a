// Package workflow реализует правила переходов между статусами досье,
// заявок на ресурсы и сообщений. Все функции пакета чистые: они получают
// текущее состояние записи, исполнителя и входные данные и возвращают новое
// состояние вместе с записью аудита либо доменную ошибку.
package workflow

import (
	"slices"

	"github.com/mmeshcher/taxflow/internal/model"
)

// Operation задаёт имя операции, изменяющей состояние.
type Operation string

const (
	OpCreateDossier    Operation = "dossier.create"
	OpCalculateDossier Operation = "dossier.calculate"
	OpPayDossier       Operation = "dossier.pay"
	OpCancelDossier    Operation = "dossier.cancel"
	OpDeleteDossier    Operation = "dossier.delete"

	OpCreateResourceOrder  Operation = "resource_order.create"
	OpDeliverResourceOrder Operation = "resource_order.deliver"
	OpReceiveResourceOrder Operation = "resource_order.receive"

	OpSendMessage    Operation = "message.send"
	OpConfirmMessage Operation = "message.confirm"

	OpListAuditLogs   Operation = "audit.list"
	OpManagePersonnel Operation = "personnel.manage"
	OpRegisterUser    Operation = "user.register"
)

// DossierRule описывает одну разрешённую дугу автомата досье.
// Пустой From означает создание записи, пустой To означает удаление.
type DossierRule struct {
	Op    Operation
	From  []model.DossierStatus
	To    model.DossierStatus
	Roles []model.Role
}

// DossierRules содержит полную таблицу переходов досье.
var DossierRules = []DossierRule{
	{
		Op:    OpCreateDossier,
		To:    model.DossierAwaitingCalculation,
		Roles: []model.Role{model.RoleIntake},
	},
	{
		Op:    OpCalculateDossier,
		From:  []model.DossierStatus{model.DossierAwaitingCalculation},
		To:    model.DossierAwaitingPayment,
		Roles: []model.Role{model.RoleManagement},
	},
	{
		Op:    OpPayDossier,
		From:  []model.DossierStatus{model.DossierAwaitingPayment},
		To:    model.DossierPaid,
		Roles: []model.Role{model.RoleCashier},
	},
	{
		Op:    OpCancelDossier,
		From:  []model.DossierStatus{model.DossierAwaitingCalculation, model.DossierAwaitingPayment},
		To:    model.DossierCancelled,
		Roles: []model.Role{model.RoleDivisionHead},
	},
	{
		Op:    OpDeleteDossier,
		From:  model.DossierStatuses,
		Roles: []model.Role{model.RoleDivisionHead},
	},
}

// Party определяет, кто из участников заявки может выполнить переход.
type Party int

const (
	// PartyIntakeRole — любой сотрудник приёмной (только создание).
	PartyIntakeRole Party = iota
	// PartyRequester — сотрудник, создавший заявку.
	PartyRequester
	// PartyTargetDivision — отдел-получатель, отличный от роли заявителя.
	PartyTargetDivision
)

// ResourceOrderRule описывает одну разрешённую дугу автомата заявки.
type ResourceOrderRule struct {
	Op    Operation
	From  []model.ResourceOrderStatus
	To    model.ResourceOrderStatus
	Party Party
}

// ResourceOrderRules содержит полную таблицу переходов заявки на ресурсы.
var ResourceOrderRules = []ResourceOrderRule{
	{
		Op:    OpCreateResourceOrder,
		To:    model.ResourceOrderPending,
		Party: PartyIntakeRole,
	},
	{
		Op:    OpDeliverResourceOrder,
		From:  []model.ResourceOrderStatus{model.ResourceOrderPending},
		To:    model.ResourceOrderDelivered,
		Party: PartyRequester,
	},
	{
		Op:    OpReceiveResourceOrder,
		From:  []model.ResourceOrderStatus{model.ResourceOrderDelivered},
		To:    model.ResourceOrderReceived,
		Party: PartyTargetDivision,
	},
}

// accessRules перечисляет операции, ограниченные только ролью.
var accessRules = map[Operation][]model.Role{
	OpSendMessage:          model.Roles,
	OpConfirmMessage:       model.Roles,
	OpListAuditLogs:        {model.RoleDivisionHead},
	OpManagePersonnel:      {model.RoleDivisionHead},
	OpRegisterUser:         {model.RoleDivisionHead},
	OpCreateResourceOrder:  {model.RoleIntake},
	OpDeliverResourceOrder: model.Roles,
	OpReceiveResourceOrder: model.Roles,
}

// AllowedRoles возвращает роли, которым разрешена операция.
func AllowedRoles(op Operation) []model.Role {
	if rule, ok := dossierRule(op); ok {
		return rule.Roles
	}
	return accessRules[op]
}

// Authorize проверяет, что роль исполнителя допускает операцию.
// Проверка выполняется раньше проверок состояния и входных данных.
func Authorize(op Operation, actor model.Actor) error {
	if !actor.Role.Valid() || !slices.Contains(AllowedRoles(op), actor.Role) {
		return model.Errorf(model.KindForbidden, "role %q is not allowed to perform %s", actor.Role, op)
	}
	return nil
}

func dossierRule(op Operation) (DossierRule, bool) {
	for _, r := range DossierRules {
		if r.Op == op {
			return r, true
		}
	}
	return DossierRule{}, false
}

func mustDossierRule(op Operation) DossierRule {
	rule, ok := dossierRule(op)
	if !ok {
		panic("workflow: no dossier rule for " + string(op))
	}
	return rule
}

func (r DossierRule) check(actor model.Actor, current *model.Dossier) error {
	if err := Authorize(r.Op, actor); err != nil {
		return err
	}
	if !slices.Contains(r.From, current.Status) {
		return model.Errorf(model.KindInvalidTransition,
			"cannot apply %s to dossier %s in status %q", r.Op, current.ID, current.Status)
	}
	return nil
}

func resourceOrderRule(op Operation) ResourceOrderRule {
	for _, r := range ResourceOrderRules {
		if r.Op == op {
			return r
		}
	}
	panic("workflow: no resource order rule for " + string(op))
}
