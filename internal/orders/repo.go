package orders

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"strings"
	"time"
)

type Repo struct{ DB *pgxpool.Pool }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create inserts the order and its items in one transaction and fills in
// the generated ids and timestamps.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(table_number, session_id, user_id, phone, customer_name, order_time, status,
		                   total_amount, promotion_code, discount_amount, final_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, updated_at`,
		o.TableNumber, nullable(o.SessionID), nullable(o.UserID), nullable(o.Phone), nullable(o.CustomerName),
		o.OrderTime, string(o.Status), o.TotalAmount, nullable(o.PromotionCode), o.DiscountAmount, o.FinalAmount,
	).Scan(&o.ID, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, price_at_purchase, quantity, note)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			o.ID, it.ProductID, it.ProductName, it.PriceAtPurchase, it.Quantity, nullable(it.Note),
		).Scan(&it.ID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return tx.Commit(ctx)
}

const orderColumns = `
	id, table_number, COALESCE(session_id::text, ''), COALESCE(user_id, ''), COALESCE(phone, ''),
	COALESCE(customer_name, ''), order_time, status, total_amount, COALESCE(promotion_code, ''),
	discount_amount, final_amount, is_rated, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.TableNumber, &o.SessionID, &o.UserID, &o.Phone,
		&o.CustomerName, &o.OrderTime, &status, &o.TotalAmount, &o.PromotionCode,
		&o.DiscountAmount, &o.FinalAmount, &o.IsRated, &o.UpdatedAt)
	o.Status = Status(status)
	return o, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	items, err := r.items(ctx, []int64{id})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[id]
	return o, nil
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Order, error) {
	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.TableNumber != nil {
		args = append(args, *f.TableNumber)
		where = append(where, fmt.Sprintf("table_number = $%d", len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	q := `SELECT ` + orderColumns + ` FROM orders`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY order_time DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *Repo) items(ctx context.Context, orderIDs []int64) (map[int64][]Item, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, price_at_purchase, quantity, COALESCE(note, '')
		FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]Item, len(orderIDs))
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.PriceAtPurchase, &it.Quantity, &it.Note); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

// UpdateStatus moves one order from -> to in a single guarded statement.
// False means the order is missing or no longer in from.
func (r *Repo) UpdateStatus(ctx context.Context, id int64, from, to Status) (time.Time, bool, error) {
	var updated time.Time
	err := r.DB.QueryRow(ctx, `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING updated_at`, id, string(from), string(to)).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return updated, true, nil
}

// MarkRated flags a paid, unrated order as rated. False means the order is
// missing, unpaid or already rated.
func (r *Repo) MarkRated(ctx context.Context, id int64) (bool, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE orders SET is_rated = TRUE
		WHERE id = $1 AND status = $2 AND NOT is_rated`, id, string(StatusPaid))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repo) GetOrderStatus(ctx context.Context, id int64) (StatusView, error) {
	v := StatusView{OrderID: id}
	var s string
	err := r.DB.QueryRow(ctx, `SELECT status, updated_at FROM orders WHERE id = $1`, id).Scan(&s, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusView{}, ErrOrderNotFound
	}
	v.Status = Status(s)
	return v, err
}
