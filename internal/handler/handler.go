// Package handler содержит HTTP-обработчики API сервиса.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/taxflow/internal/logger"
	"github.com/mmeshcher/taxflow/internal/metrics"
	"github.com/mmeshcher/taxflow/internal/middleware"
	"github.com/mmeshcher/taxflow/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	RegisterUser(ctx context.Context, actor model.Actor, username, password string, role model.Role) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	CreateDossier(ctx context.Context, actor model.Actor, in model.NewDossier) (*model.Dossier, error)
	GetDossier(ctx context.Context, id string) (*model.Dossier, error)
	ListDossiers(ctx context.Context, page model.Page) (*model.DossierPage, error)
	CalculateDossier(ctx context.Context, actor model.Actor, id string, details []model.TaxDetail) (*model.Dossier, error)
	PayDossier(ctx context.Context, actor model.Actor, id string, payment model.Payment) (*model.Dossier, error)
	CancelDossier(ctx context.Context, actor model.Actor, id, reason string) (*model.Dossier, error)
	DeleteDossier(ctx context.Context, actor model.Actor, id string) error

	CreateResourceOrder(ctx context.Context, actor model.Actor, in model.NewResourceOrder) (*model.ResourceOrder, error)
	ListResourceOrders(ctx context.Context, actor model.Actor, page model.Page) (*model.ResourceOrderPage, error)
	DeliverResourceOrder(ctx context.Context, actor model.Actor, id string) (*model.ResourceOrder, error)
	ReceiveResourceOrder(ctx context.Context, actor model.Actor, id string) (*model.ResourceOrder, error)

	SendMessage(ctx context.Context, actor model.Actor, content string) ([]model.Message, error)
	ListMessages(ctx context.Context, actor model.Actor, box model.Mailbox) ([]model.Message, error)
	ConfirmMessage(ctx context.Context, actor model.Actor, id string) (*model.Message, error)

	ListAuditLogs(ctx context.Context, actor model.Actor, page model.Page) (*model.AuditLogPage, error)

	ListPersonnel(ctx context.Context, actor model.Actor) ([]model.Personnel, error)
	CreatePersonnel(ctx context.Context, actor model.Actor, in model.PersonnelInput) (*model.Personnel, error)
	UpdatePersonnel(ctx context.Context, actor model.Actor, id string, in model.PersonnelInput) (*model.Personnel, error)
	DeletePersonnel(ctx context.Context, actor model.Actor, id string) error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, log *zap.Logger, auth *middleware.AuthMiddleware, m *metrics.Metrics) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         log,
		authMiddleware: auth,
		metrics:        m,
	}
}

type errorResponse struct {
	Error   model.ErrorKind `json:"error"`
	Message string          `json:"message"`
}

// statusFor сопоставляет виду ошибки HTTP-статус.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindInvalidTransition, model.KindConflict:
		return http.StatusConflict
	case model.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	var dErr *model.Error
	if errors.As(err, &dErr) {
		msg = dErr.Message
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.logger).Error("request error", zap.Error(err))
		if kind == "" {
			kind = "INTERNAL"
			msg = http.StatusText(status)
		}
	}

	writeJSON(w, status, errorResponse{Error: kind, Message: msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.WrapError(model.KindValidation, "invalid JSON body", err)
	}
	return nil
}

func pageFromQuery(r *http.Request) (model.Page, error) {
	var page model.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &page.Limit, "offset": &page.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return model.Page{}, model.Errorf(model.KindValidation, "%s must be a non-negative integer", name)
		}
		*dst = v
	}
	return page.Normalize(), nil
}

// actorOrFail достаёт исполнителя из контекста; при его отсутствии отвечает 401.
func (h *Handler) actorOrFail(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, model.NewError(model.KindUnauthorized, "authentication required"))
	}
	return actor, ok
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// Login выполняет аутентификацию, выдаёт токен и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, expires, err := h.authMiddleware.IssueToken(u)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, token, expires)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: u})
}

type registerRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// RegisterUser создаёт учётную запись сотрудника.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	u, err := h.service.RegisterUser(r.Context(), actor, req.Username, req.Password, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// ListUsers возвращает список учётных записей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// CreateDossier регистрирует новое досье.
func (h *Handler) CreateDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req model.NewDossier
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.service.CreateDossier(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDossiers возвращает страницу досье.
func (h *Handler) ListDossiers(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.service.ListDossiers(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetDossier возвращает одно досье.
func (h *Handler) GetDossier(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.GetDossier(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type calculationRequest struct {
	TaxDetails []model.TaxDetail `json:"taxDetails"`
}

// CalculateDossier сохраняет рассчитанные суммы.
func (h *Handler) CalculateDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req calculationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.service.CalculateDossier(r.Context(), actor, chi.URLParam(r, "id"), req.TaxDetails)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PayDossier подтверждает оплату.
func (h *Handler) PayDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req model.Payment
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.service.PayDossier(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type cancellationRequest struct {
	Reason string `json:"reason"`
}

// CancelDossier аннулирует досье.
func (h *Handler) CancelDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req cancellationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.service.CancelDossier(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDossier удаляет досье.
func (h *Handler) DeleteDossier(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDossier(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateResourceOrder создаёт заявку на ресурсы.
func (h *Handler) CreateResourceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req model.NewResourceOrder
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.service.CreateResourceOrder(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// ListResourceOrders возвращает заявки, видимые исполнителю.
func (h *Handler) ListResourceOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.ListResourceOrders(r.Context(), actor, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeliverResourceOrder отмечает заявку доставленной.
func (h *Handler) DeliverResourceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	o, err := h.service.DeliverResourceOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ReceiveResourceOrder подтверждает получение заявки.
func (h *Handler) ReceiveResourceOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	o, err := h.service.ReceiveResourceOrder(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type messageRequest struct {
	Content string `json:"content"`
}

// SendMessage рассылает сообщение другим отделам.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	msgs, err := h.service.SendMessage(r.Context(), actor, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msgs)
}

// ListMessages возвращает входящие или отправленные сообщения.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	msgs, err := h.service.ListMessages(r.Context(), actor, model.Mailbox(r.URL.Query().Get("box")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// ConfirmMessage отмечает сообщение прочитанным.
func (h *Handler) ConfirmMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	m, err := h.service.ConfirmMessage(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListAuditLogs возвращает журнал аудита.
func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.ListAuditLogs(r.Context(), actor, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPersonnel возвращает карточки сотрудников.
func (h *Handler) ListPersonnel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListPersonnel(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CreatePersonnel заводит карточку сотрудника.
func (h *Handler) CreatePersonnel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req model.PersonnelInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.service.CreatePersonnel(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdatePersonnel изменяет карточку сотрудника.
func (h *Handler) UpdatePersonnel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	var req model.PersonnelInput
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.service.UpdatePersonnel(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePersonnel удаляет карточку сотрудника.
func (h *Handler) DeletePersonnel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorOrFail(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePersonnel(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
