package inventory

import (
	"context"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/sirupsen/logrus"
	"time"
)

type ProductSource interface {
	ListActive(ctx context.Context) ([]menu.Product, error)
}

type CreateResult struct {
	Date     string `json:"date"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Skipped  int    `json:"skipped"`
}

// Scheduler opens each day's records at local midnight, snapshotting price,
// cost and default limit from the menu.
type Scheduler struct {
	Ledger   *Ledger
	Products ProductSource
	Location *time.Location
	Log      logrus.FieldLogger
	Now      func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().In(s.loc())
	}
	return time.Now().In(s.loc())
}

func (s *Scheduler) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Today is the current calendar day in the restaurant's timezone.
func (s *Scheduler) Today() time.Time { return Day(s.now()) }

// CreateForDate creates missing records for every active product. Products
// without a cost or a default limit are skipped.
func (s *Scheduler) CreateForDate(ctx context.Context, date time.Time) (CreateResult, error) {
	date = Day(date)
	res := CreateResult{Date: date.Format("2006-01-02")}
	products, err := s.Products.ListActive(ctx)
	if err != nil {
		return res, err
	}
	for _, p := range products {
		if !p.Cost.Valid || p.DefaultDailyLimit == nil {
			s.Log.WithField("product_id", p.ID).Warn("product has no cost or default daily limit, skipping")
			res.Skipped++
			continue
		}
		created, err := s.Ledger.Create(ctx, Record{
			ProductID:   p.ID,
			ProductName: p.Name,
			Date:        date,
			PriceAtDate: p.Price,
			CostAtDate:  p.Cost.Decimal,
			DailyLimit:  *p.DefaultDailyLimit,
		})
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Existing++
		}
	}
	s.Log.WithFields(logrus.Fields{
		"date":     res.Date,
		"created":  res.Created,
		"existing": res.Existing,
		"skipped":  res.Skipped,
	}).Info("daily inventory prepared")
	return res, nil
}

// NextMidnight returns the next local midnight strictly after now.
func NextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// Run catches up today's records, then repeats at every local midnight.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if _, err := s.CreateForDate(ctx, s.Today()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.Log.WithError(err).Error("daily inventory job failed")
		}
		wait := time.Until(NextMidnight(s.now()))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
