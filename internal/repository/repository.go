// Package repository содержит реализации хранилища: PostgreSQL и встроенный
// файл bbolt. Обе реализации выполняют изменение записи и запись аудита
// в одной транзакции под блокировкой записи.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/taxflow/internal/model"
)

// storageError превращает ошибку хранилища в доменную StorageUnavailable.
// Доменные ошибки, в том числе ошибки из функций изменения, не трогаются.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dErr *model.Error
	if errors.As(err, &dErr) {
		return err
	}
	return model.WrapError(model.KindStorageUnavailable, op, err)
}

// paginate вырезает страницу из уже упорядоченного набора.
func paginate[T any](items []T, page model.Page) []T {
	if page.Offset >= len(items) {
		return []T{}
	}
	end := min(page.Offset+page.Limit, len(items))
	return items[page.Offset:end]
}

// jsonParam кодирует значение для колонки JSONB; nil-указатель даёт SQL NULL.
func jsonParam(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

// utcPtr приводит необязательную отметку времени к UTC.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := t.UTC()
	return &at
}
