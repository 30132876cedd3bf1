package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX объединяет *pgxpool.Pool и pgx.Tx, чтобы репозитории могли работать
// как в транзакции, так и напрямую с пулом.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner выполняет функцию в рамках одной транзакции БД.
// Production-реализация живет в internal/repository (обертка над pgxpool).
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx DBTX) error) error
}
