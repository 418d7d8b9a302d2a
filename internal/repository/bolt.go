package repository

import (
	"cmp"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmeshcher/taxflow/internal/model"
)

var (
	bucketUsers          = []byte("users")
	bucketUsersByName    = []byte("users_by_name")
	bucketDossiers       = []byte("dossiers")
	bucketResourceOrders = []byte("resource_orders")
	bucketMessages       = []byte("messages")
	bucketPersonnel      = []byte("personnel")
	bucketAuditLogs      = []byte("audit_logs")

	allBuckets = [][]byte{
		bucketUsers, bucketUsersByName, bucketDossiers, bucketResourceOrders,
		bucketMessages, bucketPersonnel, bucketAuditLogs,
	}
)

// BoltRepository хранит данные во встроенном файле bbolt. Ключи досье, заявок
// и сообщений — UUIDv7, поэтому обратный обход курсора даёт порядок
// «новые первыми». Пишущие транзакции bbolt выполняются строго по одной.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository открывает файл хранилища и создаёт недостающие бакеты.
func NewBoltRepository(path string) (*BoltRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltRepository{db: db}, nil
}

// Close закрывает файл хранилища.
func (r *BoltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *BoltRepository) update(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return storageError(op, err)
	}
	return storageError(op, r.db.Update(fn))
}

func (r *BoltRepository) view(ctx context.Context, op string, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return storageError(op, err)
	}
	return storageError(op, r.db.View(fn))
}

func putAudit(tx *bolt.Tx, e *model.AuditEntry) error {
	if e == nil {
		return nil
	}
	b := tx.Bucket(bucketAuditLogs)
	seq, err := b.NextSequence()
	if err != nil {
		return fmt.Errorf("next audit id: %w", err)
	}
	e.ID = int64(seq)
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return putJSON(b, key, e)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.Put(key, data)
}

func getJSON[T any](b *bolt.Bucket, key []byte) (*T, error) {
	data := b.Get(key)
	if data == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &v, nil
}

// scanAll обходит бакет от новых записей к старым и отбирает подходящие.
func scanAll[T any](b *bolt.Bucket, match func(*T) bool) ([]T, error) {
	out := []T{}
	c := b.Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", k, err)
		}
		if match == nil || match(&item) {
			out = append(out, item)
		}
	}
	return out, nil
}

func insertRecord(r *BoltRepository, ctx context.Context, op string, bucket []byte, id string, v any, entry *model.AuditEntry) error {
	return r.update(ctx, op, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(id)) != nil {
			return model.Errorf(model.KindConflict, "%s: id %s already exists", op, id)
		}
		if err := putJSON(b, []byte(id), v); err != nil {
			return err
		}
		return putAudit(tx, entry)
	})
}

func mutateRecord[T any](r *BoltRepository, ctx context.Context, op string, bucket []byte, id string, notFound error, fn model.Mutation[T]) (*T, error) {
	var result *T
	err := r.update(ctx, op, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		current, err := getJSON[T](b, []byte(id))
		if err != nil {
			return err
		}
		if current == nil {
			return notFound
		}

		next, entry, err := fn(current)
		if err != nil {
			return err
		}
		if err := putJSON(b, []byte(id), next); err != nil {
			return err
		}
		if err := putAudit(tx, entry); err != nil {
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

func removeRecord[T any](r *BoltRepository, ctx context.Context, op string, bucket []byte, id string, notFound error, fn model.Removal[T]) error {
	return r.update(ctx, op, func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		current, err := getJSON[T](b, []byte(id))
		if err != nil {
			return err
		}
		if current == nil {
			return notFound
		}

		entry, err := fn(current)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
		return putAudit(tx, entry)
	})
}

// storedUser хранит пользователя в файле; хэш пароля в JSON модели скрыт.
type storedUser struct {
	model.User
	PasswordHash []byte `json:"passwordHash"`
}

// CreateUser сохраняет пользователя, логин должен быть уникален.
func (r *BoltRepository) CreateUser(ctx context.Context, u *model.User, entry *model.AuditEntry) error {
	return r.update(ctx, "create user", func(tx *bolt.Tx) error {
		byName := tx.Bucket(bucketUsersByName)
		if byName.Get([]byte(u.Username)) != nil {
			return fmt.Errorf("%w: %s", model.ErrUserExists, u.Username)
		}
		if err := byName.Put([]byte(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		if err := putJSON(tx.Bucket(bucketUsers), []byte(u.ID), storedUser{User: *u, PasswordHash: u.PasswordHash}); err != nil {
			return err
		}
		return putAudit(tx, entry)
	})
}

// GetUserByUsername возвращает пользователя по логину.
func (r *BoltRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u *model.User
	err := r.view(ctx, "get user", func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUsersByName).Get([]byte(username))
		if id == nil {
			return model.ErrUserNotFound
		}
		stored, err := getJSON[storedUser](tx.Bucket(bucketUsers), id)
		if err != nil {
			return err
		}
		if stored == nil {
			return model.ErrUserNotFound
		}
		u = stored.toUser()
		return nil
	})
	return u, err
}

func (s storedUser) toUser() *model.User {
	u := s.User
	u.PasswordHash = s.PasswordHash
	return &u
}

// ListUsers возвращает всех пользователей по алфавиту.
func (r *BoltRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.view(ctx, "list users", func(tx *bolt.Tx) error {
		stored, err := scanAll[storedUser](tx.Bucket(bucketUsers), nil)
		if err != nil {
			return err
		}
		users = make([]model.User, 0, len(stored))
		for _, s := range stored {
			users = append(users, *s.toUser())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, func(a, b model.User) int { return cmp.Compare(a.Username, b.Username) })
	return users, nil
}

// CountUsers возвращает число пользователей.
func (r *BoltRepository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.view(ctx, "count users", func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketUsers).Stats().KeyN
		return nil
	})
	return n, err
}

// CreateDossier сохраняет новое досье.
func (r *BoltRepository) CreateDossier(ctx context.Context, d *model.Dossier, entry *model.AuditEntry) error {
	return insertRecord(r, ctx, "create dossier", bucketDossiers, d.ID, d, entry)
}

// GetDossier возвращает досье по идентификатору.
func (r *BoltRepository) GetDossier(ctx context.Context, id string) (*model.Dossier, error) {
	var d *model.Dossier
	err := r.view(ctx, "get dossier", func(tx *bolt.Tx) error {
		var err error
		d, err = getJSON[model.Dossier](tx.Bucket(bucketDossiers), []byte(id))
		if err == nil && d == nil {
			return model.ErrDossierNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDossiers возвращает страницу досье, новые первыми, и общее их число.
func (r *BoltRepository) ListDossiers(ctx context.Context, page model.Page) ([]model.Dossier, int, error) {
	page = page.Normalize()
	var all []model.Dossier
	err := r.view(ctx, "list dossiers", func(tx *bolt.Tx) error {
		var err error
		all, err = scanAll[model.Dossier](tx.Bucket(bucketDossiers), nil)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, page), len(all), nil
}

// UpdateDossier применяет fn к досье внутри пишущей транзакции.
func (r *BoltRepository) UpdateDossier(ctx context.Context, id string, fn model.Mutation[model.Dossier]) (*model.Dossier, error) {
	return mutateRecord(r, ctx, "update dossier", bucketDossiers, id, model.ErrDossierNotFound, fn)
}

// DeleteDossier удаляет досье. Записи аудита о нём сохраняются.
func (r *BoltRepository) DeleteDossier(ctx context.Context, id string, fn model.Removal[model.Dossier]) error {
	return removeRecord(r, ctx, "delete dossier", bucketDossiers, id, model.ErrDossierNotFound, fn)
}

// CreateResourceOrder сохраняет новую заявку.
func (r *BoltRepository) CreateResourceOrder(ctx context.Context, o *model.ResourceOrder, entry *model.AuditEntry) error {
	return insertRecord(r, ctx, "create resource order", bucketResourceOrders, o.ID, o, entry)
}

// ListResourceOrders возвращает страницу заявок под фильтр.
func (r *BoltRepository) ListResourceOrders(ctx context.Context, filter model.ResourceOrderFilter, page model.Page) ([]model.ResourceOrder, int, error) {
	page = page.Normalize()
	var all []model.ResourceOrder
	err := r.view(ctx, "list resource orders", func(tx *bolt.Tx) error {
		var err error
		all, err = scanAll(tx.Bucket(bucketResourceOrders), func(o *model.ResourceOrder) bool {
			return filter.Match(*o)
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return paginate(all, page), len(all), nil
}

// UpdateResourceOrder применяет fn к заявке внутри пишущей транзакции.
func (r *BoltRepository) UpdateResourceOrder(ctx context.Context, id string, fn model.Mutation[model.ResourceOrder]) (*model.ResourceOrder, error) {
	return mutateRecord(r, ctx, "update resource order", bucketResourceOrders, id, model.ErrResourceOrderNotFound, fn)
}

// CreateMessages сохраняет копии сообщения и запись аудита одной транзакцией.
func (r *BoltRepository) CreateMessages(ctx context.Context, msgs []model.Message, entry *model.AuditEntry) error {
	return r.update(ctx, "create messages", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMessages)
		for i := range msgs {
			if err := putJSON(b, []byte(msgs[i].ID), &msgs[i]); err != nil {
				return err
			}
		}
		return putAudit(tx, entry)
	})
}

// ListMessages возвращает сообщения под фильтр, новые первыми.
func (r *BoltRepository) ListMessages(ctx context.Context, filter model.MessageFilter) ([]model.Message, error) {
	var msgs []model.Message
	err := r.view(ctx, "list messages", func(tx *bolt.Tx) error {
		var err error
		msgs, err = scanAll(tx.Bucket(bucketMessages), func(m *model.Message) bool {
			return filter.Match(*m)
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// UpdateMessage применяет fn к сообщению внутри пишущей транзакции.
func (r *BoltRepository) UpdateMessage(ctx context.Context, id string, fn model.Mutation[model.Message]) (*model.Message, error) {
	return mutateRecord(r, ctx, "update message", bucketMessages, id, model.ErrMessageNotFound, fn)
}

// CreatePersonnel сохраняет карточку сотрудника.
func (r *BoltRepository) CreatePersonnel(ctx context.Context, p *model.Personnel, entry *model.AuditEntry) error {
	return insertRecord(r, ctx, "create personnel", bucketPersonnel, p.ID, p, entry)
}

// ListPersonnel возвращает карточки сотрудников по имени.
func (r *BoltRepository) ListPersonnel(ctx context.Context) ([]model.Personnel, error) {
	var items []model.Personnel
	err := r.view(ctx, "list personnel", func(tx *bolt.Tx) error {
		var err error
		items, err = scanAll[model.Personnel](tx.Bucket(bucketPersonnel), nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b model.Personnel) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return items, nil
}

// UpdatePersonnel применяет fn к карточке внутри пишущей транзакции.
func (r *BoltRepository) UpdatePersonnel(ctx context.Context, id string, fn model.Mutation[model.Personnel]) (*model.Personnel, error) {
	return mutateRecord(r, ctx, "update personnel", bucketPersonnel, id, model.ErrPersonnelNotFound, fn)
}

// DeletePersonnel удаляет карточку сотрудника.
func (r *BoltRepository) DeletePersonnel(ctx context.Context, id string, fn model.Removal[model.Personnel]) error {
	return removeRecord(r, ctx, "delete personnel", bucketPersonnel, id, model.ErrPersonnelNotFound, fn)
}

// ListAuditEntries возвращает страницу журнала аудита, новые записи первыми.
func (r *BoltRepository) ListAuditEntries(ctx context.Context, page model.Page) ([]model.AuditEntry, int, error) {
	page = page.Normalize()
	var (
		items []model.AuditEntry
		total int
	)
	err := r.view(ctx, "list audit entries", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAuditLogs)
		total = b.Stats().KeyN
		items = []model.AuditEntry{}

		c := b.Cursor()
		skipped := 0
		for k, v := c.Last(); k != nil && len(items) < page.Limit; k, v = c.Prev() {
			if skipped < page.Offset {
				skipped++
				continue
			}
			var e model.AuditEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode audit entry: %w", err)
			}
			items = append(items, e)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
