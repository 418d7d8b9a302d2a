package model

import "time"

// Message хранит копию широковещательного сообщения, адресованную одной роли.
type Message struct {
	ID          string     `json:"id"`
	FromUserID  string     `json:"fromUserId"`
	FromRole    Role       `json:"fromRole"`
	ToRole      Role       `json:"toRole"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"createdAt"`
	Confirmed   bool       `json:"confirmed"`
	ConfirmedBy string     `json:"confirmedBy,omitempty"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// Clone возвращает копию сообщения.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.ConfirmedAt = cloneTime(m.ConfirmedAt)
	return &c
}

// Mailbox выбирает представление списка сообщений.
type Mailbox string

const (
	MailboxInbox Mailbox = "inbox"
	MailboxSent  Mailbox = "sent"
)

// MessageFilter ограничивает выборку сообщений.
type MessageFilter struct {
	ToRole     Role
	FromUserID string
}

// Match сообщает, подходит ли сообщение под фильтр.
func (f MessageFilter) Match(m Message) bool {
	if f.ToRole != "" && m.ToRole != f.ToRole {
		return false
	}
	if f.FromUserID != "" && m.FromUserID != f.FromUserID {
		return false
	}
	return true
}
