// Пакет repository — хранилище заявок, подключений, каталога сервисов и webhook.
// PostgreSQL через pgx (чистый SQL) и in-memory вариант для локального запуска и тестов.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound — идентификатор или ключ отсутствует в наборе.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким ключом уже есть.
	ErrConflict = errors.New("запись уже существует")
)

// DBTX — общее для *pgxpool.Pool и pgx.Tx, чтобы репозитории работали в транзакции и вне её.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет переход состояния (take + insert) одной транзакцией.
type TxRunner struct {
	pool *pgxpool.Pool
	opts pgx.TxOptions
}

// NewTxRunner создаёт TxRunner с уровнем изоляции READ COMMITTED:
// атомарность take обеспечивает DELETE ... RETURNING.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// RunInTx коммитит, если fn вернула nil, иначе откатывает.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.pool, r.opts, fn)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.SerializationFailure {
		return fmt.Errorf("транзакция прервана: %w", err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// marshalStringMap сериализует map в JSONB; nil map даёт SQL NULL.
func marshalStringMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// unmarshalStringMap разбирает JSONB в map; NULL даёт nil.
func unmarshalStringMap(data []byte) (map[string]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
