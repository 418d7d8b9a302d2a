package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/taxflow/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	userColumns      = `id, username, password_hash, role, created_at`
	dossierColumns   = `id, taxpayer_name, tax_period, status, tax_details, total_amount, payment_method, payment_details, created_by, managed_by, cancelled_by, cancelled_at, reason, created_at`
	orderColumns     = `id, resource_type, quantity, unit, description, notes, requested_by, requested_by_role, target_division, status, delivered_by, delivered_at, received_by, received_at, created_at`
	messageColumns   = `id, from_user_id, from_role, to_role, content, confirmed, confirmed_by, confirmed_at, created_at`
	personnelColumns = `id, name, division, affectation, history`
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// inTx выполняет fn в транзакции с повтором временных ошибок.
func (r *PostgresRepository) inTx(ctx context.Context, op string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	err := withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	return storageError(op, err)
}

func insertAudit(ctx context.Context, tx pgx.Tx, e *model.AuditEntry) error {
	if e == nil {
		return nil
	}
	err := tx.QueryRow(ctx,
		`INSERT INTO audit_logs (actor_id, actor_role, action, timestamp) VALUES ($1, $2, $3, $4) RETURNING id`,
		e.ActorID, string(e.ActorRole), e.Action, e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// mutateRow блокирует строку через SELECT ... FOR UPDATE, применяет fn и
// сохраняет результат вместе с записью аудита.
func mutateRow[T any](
	ctx context.Context,
	r *PostgresRepository,
	op, lockQuery, id string,
	notFound error,
	scan func(rowScanner) (*T, error),
	save func(ctx context.Context, tx pgx.Tx, next *T) error,
	fn model.Mutation[T],
) (*T, error) {
	var result *T
	err := r.inTx(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scan(tx.QueryRow(ctx, lockQuery, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound
		}
		if err != nil {
			return fmt.Errorf("lock row: %w", err)
		}

		next, entry, err := fn(current)
		if err != nil {
			return err
		}
		if err := save(ctx, tx, next); err != nil {
			return err
		}
		if err := insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func removeRow[T any](
	ctx context.Context,
	r *PostgresRepository,
	op, lockQuery, deleteQuery, id string,
	notFound error,
	scan func(rowScanner) (*T, error),
	fn model.Removal[T],
) error {
	return r.inTx(ctx, op, func(ctx context.Context, tx pgx.Tx) error {
		current, err := scan(tx.QueryRow(ctx, lockQuery, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return notFound
		}
		if err != nil {
			return fmt.Errorf("lock row: %w", err)
		}

		entry, err := fn(current)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deleteQuery, id); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
		return insertAudit(ctx, tx, entry)
	})
}

// CreateUser сохраняет пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User, entry *model.AuditEntry) error {
	return r.inTx(ctx, "create user", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
			u.ID, u.Username, u.PasswordHash, string(u.Role), u.CreatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%w: %s", model.ErrUserExists, u.Username)
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return insertAudit(ctx, tx, entry)
	})
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// GetUserByUsername возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, storageError("get user", err)
	}
	return u, nil
}

// ListUsers возвращает всех пользователей по алфавиту.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, storageError("select users", err)
	}
	users, err := collect(rows, scanUser)
	return users, storageError("select users", err)
}

// CountUsers возвращает число пользователей.
func (r *PostgresRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&n); err != nil {
		return 0, storageError("count users", err)
	}
	return n, nil
}

// CreateDossier сохраняет новое досье.
func (r *PostgresRepository) CreateDossier(ctx context.Context, d *model.Dossier, entry *model.AuditEntry) error {
	return r.inTx(ctx, "create dossier", func(ctx context.Context, tx pgx.Tx) error {
		args, err := dossierArgs(d)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO dossiers (`+dossierColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			args...,
		)
		if err != nil {
			return fmt.Errorf("insert dossier: %w", err)
		}
		return insertAudit(ctx, tx, entry)
	})
}

func dossierArgs(d *model.Dossier) ([]any, error) {
	details, err := jsonParam(d.TaxDetails)
	if err != nil {
		return nil, err
	}
	if details == nil {
		details = []byte("[]")
	}
	payment, err := jsonParam(d.PaymentDetails)
	if err != nil {
		return nil, err
	}
	return []any{
		d.ID, d.TaxpayerName, d.TaxPeriod, string(d.Status), details, d.TotalAmount,
		string(d.PaymentMethod), payment, d.CreatedBy, d.ManagedBy, d.CancelledBy,
		d.CancelledAt, d.Reason, d.CreatedAt,
	}, nil
}

func scanDossier(row rowScanner) (*model.Dossier, error) {
	var (
		d               model.Dossier
		status, method  string
		details, paying []byte
	)
	err := row.Scan(&d.ID, &d.TaxpayerName, &d.TaxPeriod, &status, &details, &d.TotalAmount,
		&method, &paying, &d.CreatedBy, &d.ManagedBy, &d.CancelledBy, &d.CancelledAt, &d.Reason, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = model.DossierStatus(status)
	d.PaymentMethod = model.PaymentMethod(method)
	if err := json.Unmarshal(details, &d.TaxDetails); err != nil {
		return nil, fmt.Errorf("decode tax details: %w", err)
	}
	if len(paying) > 0 {
		d.PaymentDetails = &model.PaymentDetails{}
		if err := json.Unmarshal(paying, d.PaymentDetails); err != nil {
			return nil, fmt.Errorf("decode payment details: %w", err)
		}
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.CancelledAt = utcPtr(d.CancelledAt)
	return &d, nil
}

// GetDossier возвращает досье по идентификатору.
func (r *PostgresRepository) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	d, err := scanDossier(r.pool.QueryRow(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrDossierNotFound
	}
	if err != nil {
		return nil, storageError("get dossier", err)
	}
	return d, nil
}

// ListDossiers возвращает страницу досье, новые первыми, и общее их число.
func (r *PostgresRepository) ListDossiers(ctx context.Context, page model.Page) ([]model.Dossier, int, error) {
	page = page.Normalize()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM dossiers`).Scan(&total); err != nil {
		return nil, 0, storageError("count dossiers", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+dossierColumns+` FROM dossiers
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, storageError("select dossiers", err)
	}
	items, err := collect(rows, scanDossier)
	if err != nil {
		return nil, 0, storageError("select dossiers", err)
	}
	return items, total, nil
}

// UpdateDossier применяет fn к досье под блокировкой строки.
func (r *PostgresRepository) UpdateDossier(ctx context.Context, id string, fn model.Mutation[model.Dossier]) (*model.Dossier, error) {
	return mutateRow(ctx, r, "update dossier",
		`SELECT `+dossierColumns+` FROM dossiers WHERE id = $1 FOR UPDATE`, id,
		model.ErrDossierNotFound, scanDossier,
		func(ctx context.Context, tx pgx.Tx, d *model.Dossier) error {
			args, err := dossierArgs(d)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx,
				`UPDATE dossiers SET taxpayer_name = $2, tax_period = $3, status = $4, tax_details = $5,
				 total_amount = $6, payment_method = $7, payment_details = $8, created_by = $9,
				 managed_by = $10, cancelled_by = $11, cancelled_at = $12, reason = $13, created_at = $14
				 WHERE id = $1`,
				args...,
			)
			if err != nil {
				return fmt.Errorf("update dossier: %w", err)
			}
			return nil
		}, fn)
}

// DeleteDossier удаляет досье. Записи аудита о нём сохраняются.
func (r *PostgresRepository) DeleteDossier(ctx context.Context, id string, fn model.Removal[model.Dossier]) error {
	return removeRow(ctx, r, "delete dossier",
		`SELECT `+dossierColumns+` FROM dossiers WHERE id = $1 FOR UPDATE`,
		`DELETE FROM dossiers WHERE id = $1`, id,
		model.ErrDossierNotFound, scanDossier, fn)
}

// CreateResourceOrder сохраняет новую заявку на ресурсы.
func (r *PostgresRepository) CreateResourceOrder(ctx context.Context, o *model.ResourceOrder, entry *model.AuditEntry) error {
	return r.inTx(ctx, "create resource order", func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO resource_orders (`+orderColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			orderArgs(o)...,
		)
		if err != nil {
			return fmt.Errorf("insert resource order: %w", err)
		}
		return insertAudit(ctx, tx, entry)
	})
}

func orderArgs(o *model.ResourceOrder) []any {
	return []any{
		o.ID, o.ResourceType, o.Quantity, o.Unit, o.Description, o.Notes, o.RequestedBy,
		string(o.RequestedByRole), string(o.TargetDivision), string(o.Status),
		o.DeliveredBy, o.DeliveredAt, o.ReceivedBy, o.ReceivedAt, o.CreatedAt,
	}
}

func scanOrder(row rowScanner) (*model.ResourceOrder, error) {
	var (
		o                     model.ResourceOrder
		reqRole, target, stat string
	)
	err := row.Scan(&o.ID, &o.ResourceType, &o.Quantity, &o.Unit, &o.Description, &o.Notes,
		&o.RequestedBy, &reqRole, &target, &stat, &o.DeliveredBy, &o.DeliveredAt,
		&o.ReceivedBy, &o.ReceivedAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.RequestedByRole = model.Role(reqRole)
	o.TargetDivision = model.Role(target)
	o.Status = model.ResourceOrderStatus(stat)
	o.CreatedAt = o.CreatedAt.UTC()
	o.DeliveredAt = utcPtr(o.DeliveredAt)
	o.ReceivedAt = utcPtr(o.ReceivedAt)
	return &o, nil
}

// ListResourceOrders возвращает страницу заявок, подходящих под фильтр.
func (r *PostgresRepository) ListResourceOrders(ctx context.Context, filter model.ResourceOrderFilter, page model.Page) ([]model.ResourceOrder, int, error) {
	page = page.Normalize()
	const where = `WHERE ($1 = '' OR requested_by = $1) AND ($2 = '' OR target_division = $2)`

	var total int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM resource_orders `+where,
		filter.RequestedBy, string(filter.TargetDivision)).Scan(&total)
	if err != nil {
		return nil, 0, storageError("count resource orders", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM resource_orders `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		filter.RequestedBy, string(filter.TargetDivision), page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, storageError("select resource orders", err)
	}
	items, err := collect(rows, scanOrder)
	if err != nil {
		return nil, 0, storageError("select resource orders", err)
	}
	return items, total, nil
}

// UpdateResourceOrder применяет fn к заявке под блокировкой строки.
func (r *PostgresRepository) UpdateResourceOrder(ctx context.Context, id string, fn model.Mutation[model.ResourceOrder]) (*model.ResourceOrder, error) {
	return mutateRow(ctx, r, "update resource order",
		`SELECT `+orderColumns+` FROM resource_orders WHERE id = $1 FOR UPDATE`, id,
		model.ErrResourceOrderNotFound, scanOrder,
		func(ctx context.Context, tx pgx.Tx, o *model.ResourceOrder) error {
			_, err := tx.Exec(ctx,
				`UPDATE resource_orders SET status = $2, delivered_by = $3, delivered_at = $4,
				 received_by = $5, received_at = $6
				 WHERE id = $1`,
				o.ID, string(o.Status), o.DeliveredBy, o.DeliveredAt, o.ReceivedBy, o.ReceivedAt,
			)
			if err != nil {
				return fmt.Errorf("update resource order: %w", err)
			}
			return nil
		}, fn)
}

// CreateMessages сохраняет копии широковещательного сообщения одной транзакцией.
func (r *PostgresRepository) CreateMessages(ctx context.Context, msgs []model.Message, entry *model.AuditEntry) error {
	return r.inTx(ctx, "create messages", func(ctx context.Context, tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range msgs {
			batch.Queue(
				`INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				m.ID, m.FromUserID, string(m.FromRole), string(m.ToRole), m.Content,
				m.Confirmed, m.ConfirmedBy, m.ConfirmedAt, m.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return insertAudit(ctx, tx, entry)
	})
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m        model.Message
		from, to string
	)
	err := row.Scan(&m.ID, &m.FromUserID, &from, &to, &m.Content,
		&m.Confirmed, &m.ConfirmedBy, &m.ConfirmedAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.FromRole = model.Role(from)
	m.ToRole = model.Role(to)
	m.CreatedAt = m.CreatedAt.UTC()
	m.ConfirmedAt = utcPtr(m.ConfirmedAt)
	return &m, nil
}

// ListMessages возвращает сообщения под фильтр, новые первыми.
func (r *PostgresRepository) ListMessages(ctx context.Context, filter model.MessageFilter) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE ($1 = '' OR to_role = $1) AND ($2 = '' OR from_user_id = $2)
		 ORDER BY created_at DESC, id DESC`,
		string(filter.ToRole), filter.FromUserID,
	)
	if err != nil {
		return nil, storageError("select messages", err)
	}
	msgs, err := collect(rows, scanMessage)
	return msgs, storageError("select messages", err)
}

// UpdateMessage применяет fn к сообщению под блокировкой строки.
func (r *PostgresRepository) UpdateMessage(ctx context.Context, id string, fn model.Mutation[model.Message]) (*model.Message, error) {
	return mutateRow(ctx, r, "update message",
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id,
		model.ErrMessageNotFound, scanMessage,
		func(ctx context.Context, tx pgx.Tx, m *model.Message) error {
			_, err := tx.Exec(ctx,
				`UPDATE messages SET confirmed = $2, confirmed_by = $3, confirmed_at = $4 WHERE id = $1`,
				m.ID, m.Confirmed, m.ConfirmedBy, m.ConfirmedAt,
			)
			if err != nil {
				return fmt.Errorf("update message: %w", err)
			}
			return nil
		}, fn)
}

// CreatePersonnel сохраняет карточку сотрудника.
func (r *PostgresRepository) CreatePersonnel(ctx context.Context, p *model.Personnel, entry *model.AuditEntry) error {
	return r.inTx(ctx, "create personnel", func(ctx context.Context, tx pgx.Tx) error {
		if err := savePersonnel(ctx, tx, p,
			`INSERT INTO personnel (`+personnelColumns+`) VALUES ($1, $2, $3, $4, $5)`); err != nil {
			return err
		}
		return insertAudit(ctx, tx, entry)
	})
}

func savePersonnel(ctx context.Context, tx pgx.Tx, p *model.Personnel, query string) error {
	history, err := jsonParam(p.History)
	if err != nil {
		return err
	}
	if history == nil {
		history = []byte("[]")
	}
	if _, err := tx.Exec(ctx, query, p.ID, p.Name, string(p.Division), p.Affectation, history); err != nil {
		return fmt.Errorf("save personnel: %w", err)
	}
	return nil
}

func scanPersonnel(row rowScanner) (*model.Personnel, error) {
	var (
		p        model.Personnel
		division string
		history  []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &division, &p.Affectation, &history); err != nil {
		return nil, err
	}
	p.Division = model.Role(division)
	if err := json.Unmarshal(history, &p.History); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return &p, nil
}

// ListPersonnel возвращает карточки сотрудников по имени.
func (r *PostgresRepository) ListPersonnel(ctx context.Context) ([]model.Personnel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+personnelColumns+` FROM personnel ORDER BY name, id`)
	if err != nil {
		return nil, storageError("select personnel", err)
	}
	items, err := collect(rows, scanPersonnel)
	return items, storageError("select personnel", err)
}

// UpdatePersonnel применяет fn к карточке под блокировкой строки.
func (r *PostgresRepository) UpdatePersonnel(ctx context.Context, id string, fn model.Mutation[model.Personnel]) (*model.Personnel, error) {
	return mutateRow(ctx, r, "update personnel",
		`SELECT `+personnelColumns+` FROM personnel WHERE id = $1 FOR UPDATE`, id,
		model.ErrPersonnelNotFound, scanPersonnel,
		func(ctx context.Context, tx pgx.Tx, p *model.Personnel) error {
			return savePersonnel(ctx, tx, p,
				`UPDATE personnel SET name = $2, division = $3, affectation = $4, history = $5 WHERE id = $1`)
		}, fn)
}

// DeletePersonnel удаляет карточку сотрудника.
func (r *PostgresRepository) DeletePersonnel(ctx context.Context, id string, fn model.Removal[model.Personnel]) error {
	return removeRow(ctx, r, "delete personnel",
		`SELECT `+personnelColumns+` FROM personnel WHERE id = $1 FOR UPDATE`,
		`DELETE FROM personnel WHERE id = $1`, id,
		model.ErrPersonnelNotFound, scanPersonnel, fn)
}

func scanAudit(row rowScanner) (*model.AuditEntry, error) {
	var (
		e    model.AuditEntry
		role string
	)
	if err := row.Scan(&e.ID, &e.ActorID, &role, &e.Action, &e.Timestamp); err != nil {
		return nil, err
	}
	e.ActorRole = model.Role(role)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}

// ListAuditEntries возвращает страницу журнала аудита, новые записи первыми.
func (r *PostgresRepository) ListAuditEntries(ctx context.Context, page model.Page) ([]model.AuditEntry, int, error) {
	page = page.Normalize()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM audit_logs`).Scan(&total); err != nil {
		return nil, 0, storageError("count audit entries", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, actor_role, action, timestamp FROM audit_logs
		 ORDER BY id DESC
		 LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset,
	)
	if err != nil {
		return nil, 0, storageError("select audit entries", err)
	}
	items, err := collect(rows, scanAudit)
	if err != nil {
		return nil, 0, storageError("select audit entries", err)
	}
	return items, total, nil
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
