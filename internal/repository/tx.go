package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

// WithTx выполняет fn в рамках транзакции, коммитит при успехе или откатывает при ошибке.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	// Откат при панике
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(context.Background())
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.TxRunner = (*PoolTxRunner)(nil)

// PoolTxRunner - реализация interfaces.TxRunner поверх pgxpool.
type PoolTxRunner struct {
	Pool *pgxpool.Pool
}

// WithTx реализует interfaces.TxRunner.
func (r *PoolTxRunner) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	return WithTx(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(tx)
	})
}

// WrapNotFound преобразует ошибку pgx.ErrNoRows в models.ErrNotFound.
func WrapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}
