// Package model содержит доменные сущности сервиса учёта налоговых досье.
package model

import "time"

// Role описывает организационную роль сотрудника.
type Role string

const (
	RoleIntake       Role = "Accueil"
	RoleManagement   Role = "Gestion"
	RoleCashier      Role = "Caisse"
	RoleDivisionHead Role = "Chef de Division"
)

// Roles перечисляет все роли в порядке прохождения досье.
var Roles = []Role{RoleIntake, RoleManagement, RoleCashier, RoleDivisionHead}

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Actor описывает аутентифицированного пользователя, выполняющего операцию.
type Actor struct {
	ID   string
	Role Role
}

// User представляет учётную запись сотрудника.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Actor возвращает представление пользователя в виде исполнителя операций.
func (u User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

// AuditEntry представляет неизменяемую запись журнала аудита.
type AuditEntry struct {
	ID        int64     `json:"id"`
	ActorID   string    `json:"actorId"`
	ActorRole Role      `json:"actorRole"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAuditEntry создаёт запись аудита от имени исполнителя.
func NewAuditEntry(actor Actor, action string, at time.Time) *AuditEntry {
	return &AuditEntry{
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Action:    action,
		Timestamp: at,
	}
}

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

// Page задаёт параметры постраничной выборки.
type Page struct {
	Limit  int
	Offset int
}

// Normalize приводит параметры страницы к допустимым значениям.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Mutation вычисляет новое состояние записи по текущему.
// Возвращённая запись аудита сохраняется в той же транзакции; nil означает,
// что аудит не требуется.
type Mutation[T any] func(current *T) (*T, *AuditEntry, error)

// Removal проверяет возможность удаления записи и возвращает запись аудита.
type Removal[T any] func(current *T) (*AuditEntry, error)

// AuditLogPage содержит страницу журнала аудита и общее число записей.
type AuditLogPage struct {
	Items []AuditEntry `json:"items"`
	Total int          `json:"total"`
}
