// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM. Операции записи,
// затрагивающие несколько таблиц, выполняются одним SQL-выражением
// (data-modifying CTE) и потому атомарны без явной транзакции.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	ErrNotFound = errors.New("запись не найдена")
	ErrConflict = errors.New("запись с таким ключом уже существует")
	// ErrTerminal — изменение записи в терминальном статусе отклонено.
	ErrTerminal = errors.New("запись в терминальном статусе")
)

// DBTX — общее подмножество *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// sqlState возвращает SQLSTATE ошибки PostgreSQL или пустую строку.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == pgerrcode.UniqueViolation
}
