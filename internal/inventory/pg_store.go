package inventory

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

type PostgresStore struct{ DB *pgxpool.Pool }

const recordColumns = `
	i.product_id, p.name, i.date, i.price_at_date, i.cost_at_date,
	i.daily_limit, i.number_remain, i.version, i.created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var r Record
	err := row.Scan(&r.ProductID, &r.ProductName, &r.Date, &r.PriceAtDate, &r.CostAtDate,
		&r.DailyLimit, &r.NumberRemain, &r.Version, &r.CreatedAt)
	return r, err
}

func (s *PostgresStore) Get(ctx context.Context, productID int64, date time.Time) (Record, error) {
	r, err := scanRecord(s.DB.QueryRow(ctx, `SELECT `+recordColumns+`
		FROM daily_product_inventory i JOIN products p ON p.id = i.product_id
		WHERE i.product_id = $1 AND i.date = $2`, productID, Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrInventoryNotFound
	}
	return r, err
}

// CompareAndSwap writes only if nobody bumped the version since cur was read.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, cur Record, remain, limit int) (Record, bool, error) {
	var version int64
	err := s.DB.QueryRow(ctx, `
		UPDATE daily_product_inventory
		SET number_remain = $3, daily_limit = $4, version = version + 1
		WHERE product_id = $1 AND date = $2 AND version = $5
		RETURNING version`,
		cur.ProductID, Day(cur.Date), remain, limit, cur.Version,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	next := cur
	next.NumberRemain = remain
	next.DailyLimit = limit
	next.Version = version
	return next, true, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec Record) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO daily_product_inventory(product_id, date, price_at_date, cost_at_date, daily_limit, number_remain)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, date) DO NOTHING`,
		rec.ProductID, Day(rec.Date), rec.PriceAtDate, rec.CostAtDate, rec.DailyLimit, rec.NumberRemain)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListByDate(ctx context.Context, date time.Time) ([]Record, error) {
	return s.ListRange(ctx, date, date, 0)
}

func (s *PostgresStore) ListRange(ctx context.Context, from, to time.Time, productID int64) ([]Record, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+recordColumns+`
		FROM daily_product_inventory i JOIN products p ON p.id = i.product_id
		WHERE i.date BETWEEN $1 AND $2 AND ($3 = 0 OR i.product_id = $3)
		ORDER BY i.date, i.product_id`, Day(from), Day(to), productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
