// Package apiclient предоставляет HTTP-клиент к API сервиса taxflow.
//
// Запросы повторяются только при сетевых ошибках и ответах 429/503,
// поэтому неидемпотентные переходы не выполняются повторно после ответа сервера.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/taxflow/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с API сервиса.
type Client struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

// Option настраивает Client.
type Option func(*Client)

// WithToken задаёт токен доступа, полученный ранее.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithRetry задаёт число повторов и границы паузы между ними.
func WithRetry(maxRetries int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = maxRetries
		c.httpClient.RetryWaitMin = waitMin
		c.httpClient.RetryWaitMax = waitMax
	}
}

// APIError описывает ответ сервиса с кодом ошибки.
type APIError struct {
	StatusCode int
	Kind       model.ErrorKind `json:"error"`
	Message    string          `json:"message"`
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("unexpected status: %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
}

// NewClient создаёт клиент для сервиса по указанному адресу.
func NewClient(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{baseURL: base, httpClient: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token возвращает текущий токен доступа.
func (c *Client) Token() string {
	return c.token
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return true, nil
	}
	return false, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*retryablehttp.Request, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("api client not configured")
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call выполняет запрос и декодирует тело ответа в out (при nil тело игнорируется).
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && len(raw) > 0 {
		_ = json.NewDecoder(bytes.NewReader(raw)).Decode(apiErr)
	}
	return apiErr
}

func pageQuery(page model.Page) url.Values {
	q := url.Values{}
	if page.Limit > 0 {
		q.Set("limit", strconv.Itoa(page.Limit))
	}
	if page.Offset > 0 {
		q.Set("offset", strconv.Itoa(page.Offset))
	}
	return q
}

// LoginResult содержит ответ на вход в систему.
type LoginResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Login аутентифицирует пользователя и запоминает токен в клиенте.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", nil, body, &res); err != nil {
		return nil, err
	}
	c.token = res.Token
	return &res, nil
}

// ListUsers возвращает учётные записи.
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var res []model.User
	err := c.call(ctx, http.MethodGet, "/api/users", nil, nil, &res)
	return res, err
}

// RegisterUser создаёт учётную запись.
func (c *Client) RegisterUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	var res model.User
	body := map[string]string{"username": username, "password": password, "role": string(role)}
	if err := c.call(ctx, http.MethodPost, "/api/users", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListDossiers возвращает страницу досье.
func (c *Client) ListDossiers(ctx context.Context, page model.Page) (*model.DossierPage, error) {
	var res model.DossierPage
	if err := c.call(ctx, http.MethodGet, "/api/dossiers", pageQuery(page), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetDossier возвращает досье по идентификатору.
func (c *Client) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	return c.dossierCall(ctx, http.MethodGet, "/api/dossiers/"+url.PathEscape(id), nil)
}

// CreateDossier регистрирует досье.
func (c *Client) CreateDossier(ctx context.Context, in model.NewDossier) (*model.Dossier, error) {
	return c.dossierCall(ctx, http.MethodPost, "/api/dossiers", in)
}

// CalculateDossier передаёт рассчитанные суммы.
func (c *Client) CalculateDossier(ctx context.Context, id string, details []model.TaxDetail) (*model.Dossier, error) {
	body := map[string]any{"taxDetails": details}
	return c.dossierCall(ctx, http.MethodPost, "/api/dossiers/"+url.PathEscape(id)+"/calculation", body)
}

// PayDossier подтверждает оплату досье.
func (c *Client) PayDossier(ctx context.Context, id string, payment model.Payment) (*model.Dossier, error) {
	return c.dossierCall(ctx, http.MethodPost, "/api/dossiers/"+url.PathEscape(id)+"/payment", payment)
}

// CancelDossier аннулирует досье.
func (c *Client) CancelDossier(ctx context.Context, id, reason string) (*model.Dossier, error) {
	body := map[string]string{"reason": reason}
	return c.dossierCall(ctx, http.MethodPost, "/api/dossiers/"+url.PathEscape(id)+"/cancellation", body)
}

// DeleteDossier удаляет досье.
func (c *Client) DeleteDossier(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/dossiers/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) dossierCall(ctx context.Context, method, path string, body any) (*model.Dossier, error) {
	var res model.Dossier
	if err := c.call(ctx, method, path, nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListResourceOrders возвращает заявки, видимые текущему пользователю.
func (c *Client) ListResourceOrders(ctx context.Context, page model.Page) (*model.ResourceOrderPage, error) {
	var res model.ResourceOrderPage
	if err := c.call(ctx, http.MethodGet, "/api/resource-orders", pageQuery(page), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateResourceOrder создаёт заявку.
func (c *Client) CreateResourceOrder(ctx context.Context, in model.NewResourceOrder) (*model.ResourceOrder, error) {
	return c.orderCall(ctx, "/api/resource-orders", in)
}

// DeliverResourceOrder отмечает заявку доставленной.
func (c *Client) DeliverResourceOrder(ctx context.Context, id string) (*model.ResourceOrder, error) {
	return c.orderCall(ctx, "/api/resource-orders/"+url.PathEscape(id)+"/delivery", nil)
}

// ReceiveResourceOrder подтверждает получение заявки.
func (c *Client) ReceiveResourceOrder(ctx context.Context, id string) (*model.ResourceOrder, error) {
	return c.orderCall(ctx, "/api/resource-orders/"+url.PathEscape(id)+"/receipt", nil)
}

func (c *Client) orderCall(ctx context.Context, path string, body any) (*model.ResourceOrder, error) {
	var res model.ResourceOrder
	if err := c.call(ctx, http.MethodPost, path, nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListMessages возвращает сообщения выбранного ящика (пустой ящик выбирается по роли).
func (c *Client) ListMessages(ctx context.Context, box model.Mailbox) ([]model.Message, error) {
	var q url.Values
	if box != "" {
		q = url.Values{"box": {string(box)}}
	}
	var res []model.Message
	err := c.call(ctx, http.MethodGet, "/api/messages", q, nil, &res)
	return res, err
}

// SendMessage рассылает сообщение.
func (c *Client) SendMessage(ctx context.Context, content string) ([]model.Message, error) {
	var res []model.Message
	err := c.call(ctx, http.MethodPost, "/api/messages", nil, map[string]string{"content": content}, &res)
	return res, err
}

// ConfirmMessage отмечает сообщение прочитанным.
func (c *Client) ConfirmMessage(ctx context.Context, id string) (*model.Message, error) {
	var res model.Message
	if err := c.call(ctx, http.MethodPut, "/api/messages/"+url.PathEscape(id)+"/confirm", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListAuditLogs возвращает страницу журнала аудита.
func (c *Client) ListAuditLogs(ctx context.Context, page model.Page) (*model.AuditLogPage, error) {
	var res model.AuditLogPage
	if err := c.call(ctx, http.MethodGet, "/api/auditlogs", pageQuery(page), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListPersonnel возвращает карточки сотрудников.
func (c *Client) ListPersonnel(ctx context.Context) ([]model.Personnel, error) {
	var res []model.Personnel
	err := c.call(ctx, http.MethodGet, "/api/personnel", nil, nil, &res)
	return res, err
}

// CreatePersonnel заводит карточку сотрудника.
func (c *Client) CreatePersonnel(ctx context.Context, in model.PersonnelInput) (*model.Personnel, error) {
	var res model.Personnel
	if err := c.call(ctx, http.MethodPost, "/api/personnel", nil, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdatePersonnel изменяет карточку сотрудника.
func (c *Client) UpdatePersonnel(ctx context.Context, id string, in model.PersonnelInput) (*model.Personnel, error) {
	var res model.Personnel
	if err := c.call(ctx, http.MethodPut, "/api/personnel/"+url.PathEscape(id), nil, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DeletePersonnel удаляет карточку сотрудника.
func (c *Client) DeletePersonnel(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/personnel/"+url.PathEscape(id), nil, nil, nil)
}
