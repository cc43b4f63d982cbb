package promotion

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"time"
)

// Service is the Postgres-backed Applier.
type Service struct {
	DB  *pgxpool.Pool
	Log logrus.FieldLogger
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Service) Get(ctx context.Context, code string) (Promotion, error) {
	var p Promotion
	err := s.DB.QueryRow(ctx, `
		SELECT id, code, promotion_type, discount_percentage, start_date, end_date,
		       COALESCE(product_id, 0), COALESCE(category_id, 0), total_quantity, used_count,
		       min_order_amount, status
		FROM promotions WHERE code = $1`, Normalize(code)).Scan(
		&p.ID, &p.Code, &p.Type, &p.DiscountPercentage, &p.StartDate, &p.EndDate,
		&p.ProductID, &p.CategoryID, &p.TotalQuantity, &p.UsedCount,
		&p.MinOrderAmount, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Promotion{}, invalid(Normalize(code), ReasonNotFound, "promotion code not found")
	}
	return p, err
}

// Apply evaluates the code and claims one use. The claim is a conditional
// increment, so two orders racing for the last use cannot both win.
func (s *Service) Apply(ctx context.Context, code string, total decimal.Decimal, lines []Line) (decimal.Decimal, error) {
	p, err := s.Get(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	discount, err := Evaluate(p, s.now(), total, lines)
	if err != nil {
		return decimal.Zero, err
	}
	ct, err := s.DB.Exec(ctx, `
		UPDATE promotions SET used_count = used_count + 1
		WHERE id = $1 AND used_count < total_quantity`, p.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if ct.RowsAffected() == 0 {
		return decimal.Zero, invalid(p.Code, ReasonUsageLimit, "promotion has been fully used")
	}
	s.log().WithFields(logrus.Fields{"code": p.Code, "discount": discount.String()}).Info("promotion applied")
	return discount, nil
}

func (s *Service) Revert(ctx context.Context, code string) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE promotions SET used_count = used_count - 1
		WHERE code = $1 AND used_count > 0`, Normalize(code))
	return err
}
