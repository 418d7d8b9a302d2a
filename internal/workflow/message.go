package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/validation"
)

// Recipients возвращает роли, которым рассылается сообщение отправителя.
func Recipients(sender model.Role) []model.Role {
	out := make([]model.Role, 0, len(model.Roles)-1)
	for _, r := range model.Roles {
		if r != sender {
			out = append(out, r)
		}
	}
	return out
}

// BroadcastMessage создаёт по одной копии сообщения на каждую роль-получателя.
// ids должны соответствовать Recipients(actor.Role) по порядку.
func BroadcastMessage(actor model.Actor, content string, ids []string, now time.Time) ([]model.Message, *model.AuditEntry, error) {
	if err := Authorize(OpSendMessage, actor); err != nil {
		return nil, nil, err
	}

	var problems validation.Problems
	problems.Require("content", content)
	if err := problems.Err(); err != nil {
		return nil, nil, err
	}

	targets := Recipients(actor.Role)
	if len(ids) != len(targets) {
		return nil, nil, fmt.Errorf("broadcast needs %d ids, got %d", len(targets), len(ids))
	}

	content = strings.TrimSpace(content)
	msgs := make([]model.Message, len(targets))
	names := make([]string, len(targets))
	for i, to := range targets {
		msgs[i] = model.Message{
			ID:         ids[i],
			FromUserID: actor.ID,
			FromRole:   actor.Role,
			ToRole:     to,
			Content:    content,
			CreatedAt:  now,
		}
		names[i] = string(to)
	}

	action := fmt.Sprintf("Broadcast message created to divisions (%s)", strings.Join(names, ", "))
	return msgs, model.NewAuditEntry(actor, action, now), nil
}

// ConfirmMessage отмечает сообщение прочитанным. Повторное подтверждение
// возвращает сообщение без изменений и без записи аудита.
func ConfirmMessage(current *model.Message, actor model.Actor, now time.Time) (*model.Message, *model.AuditEntry, error) {
	if err := Authorize(OpConfirmMessage, actor); err != nil {
		return nil, nil, err
	}
	if current.ToRole != actor.Role {
		return nil, nil, model.Errorf(model.KindForbidden, "message %s is addressed to %q", current.ID, current.ToRole)
	}
	if current.Confirmed {
		return current.Clone(), nil, nil
	}

	at := now
	next := current.Clone()
	next.Confirmed = true
	next.ConfirmedBy = actor.ID
	next.ConfirmedAt = &at
	return next, model.NewAuditEntry(actor, fmt.Sprintf("Message %s confirmed", current.ID), now), nil
}

// DefaultMailbox выбирает представление по умолчанию: приёмная видит отправленные,
// остальные роли видят входящие.
func DefaultMailbox(role model.Role) model.Mailbox {
	if role == model.RoleIntake {
		return model.MailboxSent
	}
	return model.MailboxInbox
}

// MessageFilterFor строит фильтр сообщений для исполнителя.
func MessageFilterFor(actor model.Actor, box model.Mailbox) (model.MessageFilter, error) {
	if box == "" {
		box = DefaultMailbox(actor.Role)
	}
	switch box {
	case model.MailboxInbox:
		return model.MessageFilter{ToRole: actor.Role}, nil
	case model.MailboxSent:
		return model.MessageFilter{FromUserID: actor.ID}, nil
	}
	return model.MessageFilter{}, model.Errorf(model.KindValidation, "unknown mailbox %q", box)
}
