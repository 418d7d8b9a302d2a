package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/taxflow/internal/model"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: fmt.Errorf("update: %w", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}), want: true},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "domain error", err: model.ErrDossierNotFound, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		return model.ErrDossierNotFound
	})
	assert.ErrorIs(t, err, model.ErrDossierNotFound)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRecoversFromSerializationFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: pgerrcode.SerializationFailure}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStorageErrorKeepsDomainErrors(t *testing.T) {
	assert.Nil(t, storageError("op", nil))
	assert.Same(t, model.ErrUserNotFound, storageError("op", model.ErrUserNotFound))

	err := storageError("select", errors.New("disk on fire"))
	assert.True(t, model.IsKind(err, model.KindStorageUnavailable))
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{2, 3}, paginate(items, model.Page{Limit: 2, Offset: 1}))
	assert.Equal(t, []int{5}, paginate(items, model.Page{Limit: 10, Offset: 4}))
	assert.Empty(t, paginate(items, model.Page{Limit: 10, Offset: 5}))
}

func TestUTCPtr(t *testing.T) {
	assert.Nil(t, utcPtr(nil))

	local := time.Date(2024, 1, 15, 12, 0, 0, 0, time.FixedZone("EAT", 3*60*60))
	got := utcPtr(&local)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(local))
	assert.Equal(t, "EAT", local.Location().String(), "input must not be modified")
}
