package payments

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/foodstore-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type Repo struct{ DB *pgxpool.Pool }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (r *Repo) Exists(ctx context.Context, txnID int64) (bool, error) {
	var ok bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE provider_txn_id = $1)`, txnID).Scan(&ok)
	return ok, err
}

const insertPayment = `
	INSERT INTO payments(provider_txn_id, order_id, gateway, transaction_date, account_number, code, content,
	                     transfer_type, transfer_amount, reference_code, description, status, error_message)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (provider_txn_id) DO NOTHING
	RETURNING id, created_at`

func insertArgs(rec *Record) []any {
	return []any{
		rec.ProviderTxnID, nullableID(rec.OrderID), nullable(rec.Gateway), rec.TransactionDate,
		nullable(rec.AccountNumber), nullable(rec.Code), nullable(rec.Content), nullable(rec.TransferType),
		rec.TransferAmount, nullable(rec.ReferenceCode), nullable(rec.Description), string(rec.Status),
		nullable(rec.ErrorMessage),
	}
}

// Insert appends rec. False means a record for the same provider transaction
// already exists and nothing was written.
func (r *Repo) Insert(ctx context.Context, rec *Record) (bool, error) {
	err := r.DB.QueryRow(ctx, insertPayment, insertArgs(rec)...).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return true, nil
}

// Settle writes a SUCCESS record and moves the order SERVED -> PAID in one
// transaction. It fails with ErrDuplicateWebhook when the transaction is
// already recorded and with orders.ErrInvalidOrderState when the order left
// SERVED in the meantime; neither case writes anything.
func (r *Repo) Settle(ctx context.Context, rec *Record) (time.Time, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return time.Time{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec.Status = StatusSuccess
	err = tx.QueryRow(ctx, insertPayment, insertArgs(rec)...).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrDuplicateWebhook
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("insert payment: %w", err)
	}

	var paidAt time.Time
	err = tx.QueryRow(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING updated_at`, rec.OrderID, string(orders.StatusPaid), string(orders.StatusServed)).Scan(&paidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("order %d is no longer served: %w", rec.OrderID, orders.ErrInvalidOrderState)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("mark order paid: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, err
	}
	return paidAt, nil
}

func (r *Repo) ListByOrder(ctx context.Context, orderID int64) ([]Record, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, provider_txn_id, COALESCE(order_id, 0), COALESCE(gateway, ''), transaction_date,
		       COALESCE(account_number, ''), COALESCE(code, ''), COALESCE(content, ''), COALESCE(transfer_type, ''),
		       transfer_amount, COALESCE(reference_code, ''), COALESCE(description, ''), status,
		       COALESCE(error_message, ''), created_at
		FROM payments WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.ProviderTxnID, &rec.OrderID, &rec.Gateway, &rec.TransactionDate,
			&rec.AccountNumber, &rec.Code, &rec.Content, &rec.TransferType,
			&rec.TransferAmount, &rec.ReferenceCode, &rec.Description, &status,
			&rec.ErrorMessage, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
