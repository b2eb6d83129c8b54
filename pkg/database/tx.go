package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// TxFunc is the unit of work executed by WithTx.
type TxFunc func(tx *sqlx.Tx) error

// WithTx runs fn inside a transaction with no bound on pool checkout.
func WithTx(ctx context.Context, db *sqlx.DB, fn TxFunc) error {
	return WithTxTimeout(ctx, db, 0, fn)
}

// WithTxTimeout checks out one pooled connection, waiting at most acquire when it is
// positive, and runs fn inside a transaction on it: commit on success, rollback on error
// or panic. Once the connection is held the transaction is not bound to ctx's
// cancellation, so a started unit of work always commits or rolls back on its own terms.
func WithTxTimeout(ctx context.Context, db *sqlx.DB, acquire time.Duration, fn TxFunc) (err error) {
	checkoutCtx := ctx
	if acquire > 0 {
		var cancel context.CancelFunc
		checkoutCtx, cancel = context.WithTimeout(ctx, acquire)
		defer cancel()
	}

	conn, err := db.Connx(checkoutCtx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
