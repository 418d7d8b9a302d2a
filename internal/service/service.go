// Package service реализует бизнес-логику учёта налоговых досье.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/taxflow/internal/logger"
	"github.com/mmeshcher/taxflow/internal/metrics"
	"github.com/mmeshcher/taxflow/internal/model"
	"github.com/mmeshcher/taxflow/internal/validation"
	"github.com/mmeshcher/taxflow/internal/workflow"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
// Методы Update*/Delete* выполняют функцию изменения под блокировкой записи
// и сохраняют её результат вместе с записью аудита в одной транзакции.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User, entry *model.AuditEntry) error
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsers(ctx context.Context) (int, error)

	CreateDossier(ctx context.Context, d *model.Dossier, entry *model.AuditEntry) error
	GetDossier(ctx context.Context, id string) (*model.Dossier, error)
	ListDossiers(ctx context.Context, page model.Page) ([]model.Dossier, int, error)
	UpdateDossier(ctx context.Context, id string, fn model.Mutation[model.Dossier]) (*model.Dossier, error)
	DeleteDossier(ctx context.Context, id string, fn model.Removal[model.Dossier]) error

	CreateResourceOrder(ctx context.Context, o *model.ResourceOrder, entry *model.AuditEntry) error
	ListResourceOrders(ctx context.Context, filter model.ResourceOrderFilter, page model.Page) ([]model.ResourceOrder, int, error)
	UpdateResourceOrder(ctx context.Context, id string, fn model.Mutation[model.ResourceOrder]) (*model.ResourceOrder, error)

	CreateMessages(ctx context.Context, msgs []model.Message, entry *model.AuditEntry) error
	ListMessages(ctx context.Context, filter model.MessageFilter) ([]model.Message, error)
	UpdateMessage(ctx context.Context, id string, fn model.Mutation[model.Message]) (*model.Message, error)

	CreatePersonnel(ctx context.Context, p *model.Personnel, entry *model.AuditEntry) error
	ListPersonnel(ctx context.Context) ([]model.Personnel, error)
	UpdatePersonnel(ctx context.Context, id string, fn model.Mutation[model.Personnel]) (*model.Personnel, error)
	DeletePersonnel(ctx context.Context, id string, fn model.Removal[model.Personnel]) error

	ListAuditEntries(ctx context.Context, page model.Page) ([]model.AuditEntry, int, error)
}

// DefaultUsers перечисляет учётные записи, создаваемые в пустом хранилище.
var DefaultUsers = []struct {
	Username string
	Role     model.Role
}{
	{Username: "user_accueil", Role: model.RoleIntake},
	{Username: "user_gestion", Role: model.RoleManagement},
	{Username: "user_caisse", Role: model.RoleCashier},
	{Username: "user_chef_division", Role: model.RoleDivisionHead},
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo     Repository
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() (string, error)
	hashCost int
}

// Option настраивает сервис.
type Option func(*Service)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.newID = fn }
}

// WithHashCost задаёт стоимость bcrypt.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService создаёт сервис поверх репозитория. logger и m могут быть nil.
func NewService(repo Repository, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		repo:     repo,
		logger:   log,
		metrics:  m,
		now:      time.Now,
		newID:    newUUIDv7,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// timestamp возвращает текущее время с точностью, которую сохраняют оба хранилища.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) id() (string, error) {
	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// observe учитывает результат операции в метриках и логах.
func (s *Service) observe(ctx context.Context, op workflow.Operation, err error) error {
	s.metrics.ObserveTransition(string(op), err)
	if err == nil {
		return nil
	}

	l := logger.FromContext(ctx, s.logger)
	kind := model.KindOf(err)
	if kind == "" || kind == model.KindStorageUnavailable {
		l.Error("operation failed", zap.String("operation", string(op)), zap.Error(err))
	} else {
		l.Debug("operation rejected",
			zap.String("operation", string(op)),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return err
}

// AuthenticateUser проверяет логин и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	if validation.IsBlank(username) || password == "" {
		return nil, model.ErrInvalidCredentials
	}

	u, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return u, nil
}

// RegisterUser создаёт учётную запись сотрудника. Доступно начальнику отдела.
func (s *Service) RegisterUser(ctx context.Context, actor model.Actor, username, password string, role model.Role) (*model.User, error) {
	u, err := s.registerUser(ctx, actor, username, password, role)
	return u, s.observe(ctx, workflow.OpRegisterUser, err)
}

func (s *Service) registerUser(ctx context.Context, actor model.Actor, username, password string, role model.Role) (*model.User, error) {
	if err := workflow.Authorize(workflow.OpRegisterUser, actor); err != nil {
		return nil, err
	}

	var problems validation.Problems
	problems.Require("username", username)
	problems.Require("password", password)
	problems.Require("role", string(role))
	if role != "" {
		problems.Check(role.Valid(), fmt.Sprintf("unknown role %q", role))
	}
	if err := problems.Err(); err != nil {
		return nil, err
	}

	u, err := s.newUser(username, password, role)
	if err != nil {
		return nil, err
	}
	entry := model.NewAuditEntry(actor, fmt.Sprintf("User %s registered as %s", u.Username, u.Role), u.CreatedAt)
	if err := s.repo.CreateUser(ctx, u, entry); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) newUser(username, password string, role model.Role) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, model.WrapError(model.KindValidation, "cannot hash password", err)
	}
	id, err := s.id()
	if err != nil {
		return nil, err
	}
	return &model.User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.timestamp(),
	}, nil
}

// ListUsers возвращает все учётные записи.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// SeedUsers создаёт учётные записи по умолчанию, если пользователей ещё нет.
func (s *Service) SeedUsers(ctx context.Context, password string) error {
	n, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if password == "" {
		return model.NewError(model.KindValidation, "seed password is empty")
	}

	for _, d := range DefaultUsers {
		u, err := s.newUser(d.Username, password, d.Role)
		if err != nil {
			return err
		}
		if err := s.repo.CreateUser(ctx, u, nil); err != nil && !errors.Is(err, model.ErrUserExists) {
			return err
		}
		s.logger.Info("default user created", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	}
	return nil
}

// CreateDossier регистрирует новое досье.
func (s *Service) CreateDossier(ctx context.Context, actor model.Actor, in model.NewDossier) (*model.Dossier, error) {
	d, err := s.createDossier(ctx, actor, in)
	return d, s.observe(ctx, workflow.OpCreateDossier, err)
}

func (s *Service) createDossier(ctx context.Context, actor model.Actor, in model.NewDossier) (*model.Dossier, error) {
	if err := workflow.Authorize(workflow.OpCreateDossier, actor); err != nil {
		return nil, err
	}
	id, err := s.id()
	if err != nil {
		return nil, err
	}
	d, entry, err := workflow.CreateDossier(actor, in, id, s.timestamp())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateDossier(ctx, d, entry); err != nil {
		return nil, err
	}
	return d, nil
}

// GetDossier возвращает досье по идентификатору.
func (s *Service) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	return s.repo.GetDossier(ctx, id)
}

// ListDossiers возвращает страницу досье, новые первыми.
func (s *Service) ListDossiers(ctx context.Context, page model.Page) (*model.DossierPage, error) {
	items, total, err := s.repo.ListDossiers(ctx, page.Normalize())
	if err != nil {
		return nil, err
	}
	return &model.DossierPage{Items: items, Total: total}, nil
}

// CalculateDossier фиксирует рассчитанные суммы налогов.
func (s *Service) CalculateDossier(ctx context.Context, actor model.Actor, id string, details []model.TaxDetail) (*model.Dossier, error) {
	return s.updateDossier(ctx, workflow.OpCalculateDossier, actor, id, func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		return workflow.CalculateDossier(cur, actor, details, s.timestamp())
	})
}

// PayDossier подтверждает оплату досье.
func (s *Service) PayDossier(ctx context.Context, actor model.Actor, id string, payment model.Payment) (*model.Dossier, error) {
	return s.updateDossier(ctx, workflow.OpPayDossier, actor, id, func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		return workflow.PayDossier(cur, actor, payment, s.timestamp())
	})
}

// CancelDossier аннулирует досье.
func (s *Service) CancelDossier(ctx context.Context, actor model.Actor, id, reason string) (*model.Dossier, error) {
	return s.updateDossier(ctx, workflow.OpCancelDossier, actor, id, func(cur *model.Dossier) (*model.Dossier, *model.AuditEntry, error) {
		return workflow.CancelDossier(cur, actor, reason, s.timestamp())
	})
}

// DeleteDossier удаляет досье.
func (s *Service) DeleteDossier(ctx context.Context, actor model.Actor, id string) error {
	op := workflow.OpDeleteDossier
	if err := workflow.Authorize(op, actor); err != nil {
		return s.observe(ctx, op, err)
	}
	err := s.repo.DeleteDossier(ctx, id, func(cur *model.Dossier) (*model.AuditEntry, error) {
		return workflow.DeleteDossier(cur, actor, s.timestamp())
	})
	return s.observe(ctx, op, err)
}

// updateDossier проверяет роль до обращения к хранилищу, поэтому
// Forbidden возвращается раньше NotFound.
func (s *Service) updateDossier(ctx context.Context, op workflow.Operation, actor model.Actor, id string, fn model.Mutation[model.Dossier]) (*model.Dossier, error) {
	if err := workflow.Authorize(op, actor); err != nil {
		return nil, s.observe(ctx, op, err)
	}
	d, err := s.repo.UpdateDossier(ctx, id, fn)
	return d, s.observe(ctx, op, err)
}

// CreateResourceOrder создаёт заявку на ресурсы.
func (s *Service) CreateResourceOrder(ctx context.Context, actor model.Actor, in model.NewResourceOrder) (*model.ResourceOrder, error) {
	o, err := s.createResourceOrder(ctx, actor, in)
	return o, s.observe(ctx, workflow.OpCreateResourceOrder, err)
}

func (s *Service) createResourceOrder(ctx context.Context, actor model.Actor, in model.NewResourceOrder) (*model.ResourceOrder, error) {
	if err := workflow.Authorize(workflow.OpCreateResourceOrder, actor); err != nil {
		return nil, err
	}
	id, err := s.id()
	if err != nil {
		return nil, err
	}
	o, entry, err := workflow.CreateResourceOrder(actor, in, id, s.timestamp())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateResourceOrder(ctx, o, entry); err != nil {
		return nil, err
	}
	return o, nil
}

// ListResourceOrders возвращает заявки, видимые исполнителю.
func (s *Service) ListResourceOrders(ctx context.Context, actor model.Actor, page model.Page) (*model.ResourceOrderPage, error) {
	if !actor.Role.Valid() {
		return nil, model.Errorf(model.KindForbidden, "role %q may not list resource orders", actor.Role)
	}
	items, total, err := s.repo.ListResourceOrders(ctx, workflow.ResourceOrderFilterFor(actor), page.Normalize())
	if err != nil {
		return nil, err
	}
	return &model.ResourceOrderPage{Items: items, Total: total}, nil
}

// DeliverResourceOrder отмечает заявку доставленной.
func (s *Service) DeliverResourceOrder(ctx context.Context, actor model.Actor, id string) (*model.ResourceOrder, error) {
	return s.updateResourceOrder(ctx, workflow.OpDeliverResourceOrder, actor, id, func(cur *model.ResourceOrder) (*model.ResourceOrder, *model.AuditEntry, error) {
		return workflow.DeliverResourceOrder(cur, actor, s.timestamp())
	})
}

// ReceiveResourceOrder подтверждает получение заявки.
func (s *Service) ReceiveResourceOrder(ctx context.Context, actor model.Actor, id string) (*model.ResourceOrder, error) {
	return s.updateResourceOrder(ctx, workflow.OpReceiveResourceOrder, actor, id, func(cur *model.ResourceOrder) (*model.ResourceOrder, *model.AuditEntry, error) {
		return workflow.ReceiveResourceOrder(cur, actor, s.timestamp())
	})
}

func (s *Service) updateResourceOrder(ctx context.Context, op workflow.Operation, actor model.Actor, id string, fn model.Mutation[model.ResourceOrder]) (*model.ResourceOrder, error) {
	if err := workflow.Authorize(op, actor); err != nil {
		return nil, s.observe(ctx, op, err)
	}
	o, err := s.repo.UpdateResourceOrder(ctx, id, fn)
	return o, s.observe(ctx, op, err)
}

// SendMessage рассылает сообщение всем ролям, кроме роли отправителя.
func (s *Service) SendMessage(ctx context.Context, actor model.Actor, content string) ([]model.Message, error) {
	msgs, err := s.sendMessage(ctx, actor, content)
	return msgs, s.observe(ctx, workflow.OpSendMessage, err)
}

func (s *Service) sendMessage(ctx context.Context, actor model.Actor, content string) ([]model.Message, error) {
	if err := workflow.Authorize(workflow.OpSendMessage, actor); err != nil {
		return nil, err
	}
	targets := workflow.Recipients(actor.Role)
	ids := make([]string, len(targets))
	for i := range ids {
		id, err := s.id()
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	msgs, entry, err := workflow.BroadcastMessage(actor, content, ids, s.timestamp())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateMessages(ctx, msgs, entry); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListMessages возвращает сообщения выбранного ящика исполнителя.
func (s *Service) ListMessages(ctx context.Context, actor model.Actor, box model.Mailbox) ([]model.Message, error) {
	if !actor.Role.Valid() {
		return nil, model.Errorf(model.KindForbidden, "role %q may not read messages", actor.Role)
	}
	filter, err := workflow.MessageFilterFor(actor, box)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, filter)
}

// ConfirmMessage отмечает сообщение прочитанным. Повторный вызов безопасен.
func (s *Service) ConfirmMessage(ctx context.Context, actor model.Actor, id string) (*model.Message, error) {
	op := workflow.OpConfirmMessage
	if err := workflow.Authorize(op, actor); err != nil {
		return nil, s.observe(ctx, op, err)
	}
	m, err := s.repo.UpdateMessage(ctx, id, func(cur *model.Message) (*model.Message, *model.AuditEntry, error) {
		return workflow.ConfirmMessage(cur, actor, s.timestamp())
	})
	return m, s.observe(ctx, op, err)
}

// ListAuditLogs возвращает журнал аудита. Доступно начальнику отдела.
func (s *Service) ListAuditLogs(ctx context.Context, actor model.Actor, page model.Page) (*model.AuditLogPage, error) {
	if err := workflow.Authorize(workflow.OpListAuditLogs, actor); err != nil {
		return nil, err
	}
	items, total, err := s.repo.ListAuditEntries(ctx, page.Normalize())
	if err != nil {
		return nil, err
	}
	return &model.AuditLogPage{Items: items, Total: total}, nil
}

// ListPersonnel возвращает карточки сотрудников.
func (s *Service) ListPersonnel(ctx context.Context, actor model.Actor) ([]model.Personnel, error) {
	if err := workflow.Authorize(workflow.OpManagePersonnel, actor); err != nil {
		return nil, err
	}
	return s.repo.ListPersonnel(ctx)
}

// CreatePersonnel заводит карточку сотрудника.
func (s *Service) CreatePersonnel(ctx context.Context, actor model.Actor, in model.PersonnelInput) (*model.Personnel, error) {
	p, err := s.createPersonnel(ctx, actor, in)
	return p, s.observe(ctx, workflow.OpManagePersonnel, err)
}

func (s *Service) createPersonnel(ctx context.Context, actor model.Actor, in model.PersonnelInput) (*model.Personnel, error) {
	if err := workflow.Authorize(workflow.OpManagePersonnel, actor); err != nil {
		return nil, err
	}
	id, err := s.id()
	if err != nil {
		return nil, err
	}
	p, entry, err := workflow.CreatePersonnel(actor, in, id, s.timestamp())
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreatePersonnel(ctx, p, entry); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePersonnel изменяет карточку сотрудника.
func (s *Service) UpdatePersonnel(ctx context.Context, actor model.Actor, id string, in model.PersonnelInput) (*model.Personnel, error) {
	op := workflow.OpManagePersonnel
	if err := workflow.Authorize(op, actor); err != nil {
		return nil, s.observe(ctx, op, err)
	}
	p, err := s.repo.UpdatePersonnel(ctx, id, func(cur *model.Personnel) (*model.Personnel, *model.AuditEntry, error) {
		return workflow.UpdatePersonnel(cur, actor, in, s.timestamp())
	})
	return p, s.observe(ctx, op, err)
}

// DeletePersonnel удаляет карточку сотрудника.
func (s *Service) DeletePersonnel(ctx context.Context, actor model.Actor, id string) error {
	op := workflow.OpManagePersonnel
	if err := workflow.Authorize(op, actor); err != nil {
		return s.observe(ctx, op, err)
	}
	err := s.repo.DeletePersonnel(ctx, id, func(cur *model.Personnel) (*model.AuditEntry, error) {
		return workflow.DeletePersonnel(cur, actor, s.timestamp())
	})
	return s.observe(ctx, op, err)
}
