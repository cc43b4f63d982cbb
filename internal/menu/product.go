// Package menu is the read side of the product catalogue that orders and the
// daily inventory job need. Editing the menu happens elsewhere.
package menu

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID                int64
	Name              string
	Price             decimal.Decimal
	Cost              decimal.NullDecimal
	CategoryID        int64 // 0 when uncategorised
	DefaultDailyLimit *int
	Active            bool
}

type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, name, price, cost, COALESCE(category_id, 0), default_daily_limit, is_active`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.CategoryID, &p.DefaultDailyLimit, &p.Active)
	return p, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *Repo) ListActive(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
