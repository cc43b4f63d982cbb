package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/foodstore-orders/internal/events"
	"github.com/ariefcatur/foodstore-orders/internal/inventory"
	"github.com/ariefcatur/foodstore-orders/internal/logx"
	"github.com/ariefcatur/foodstore-orders/internal/menu"
	"github.com/ariefcatur/foodstore-orders/internal/promotion"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var (
	orderTime = time.Date(2025, 12, 22, 10, 0, 0, 0, time.UTC)
	today     = inventory.Day(orderTime)
)

const (
	pho     int64 = 1
	banhMi  int64 = 2
	retired int64 = 3
)

type fixture struct {
	pipeline *Pipeline
	stock    *inventory.MemoryStore
	orders   *memOrders
	events   *recorder
	promos   *fakePromotions
}

func stockRec(id int64, name string, limit, remain int) inventory.Record {
	return inventory.Record{
		ProductID:    id,
		ProductName:  name,
		Date:         today,
		PriceAtDate:  decimal.NewFromInt(50000),
		CostAtDate:   decimal.NewFromInt(30000),
		DailyLimit:   limit,
		NumberRemain: remain,
	}
}

func newFixture(t *testing.T, recs ...inventory.Record) *fixture {
	t.Helper()
	stock := inventory.NewMemoryStore()
	for _, r := range recs {
		ok, err := stock.Create(context.Background(), r)
		require.NoError(t, err)
		require.True(t, ok)
	}
	f := &fixture{
		stock:  stock,
		orders: newMemOrders(),
		events: &recorder{},
		promos: &fakePromotions{},
	}
	f.pipeline = &Pipeline{
		Ledger: &inventory.Ledger{Store: stock, MaxRetries: 5, Log: logx.Discard()},
		Products: fakeProducts{
			pho:     {ID: pho, Name: "Pho bo", Price: decimal.NewFromInt(50000), CategoryID: 10, Active: true},
			banhMi:  {ID: banhMi, Name: "Banh mi", Price: decimal.NewFromInt(30000), CategoryID: 20, Active: true},
			retired: {ID: retired, Name: "Bun cha", Price: decimal.NewFromInt(40000), Active: false},
		},
		Sessions: fakeSessions{
			"2b1f6a52-8f0e-4c3e-9a57-2a4f3c1d9e10": {ID: "2b1f6a52-8f0e-4c3e-9a57-2a4f3c1d9e10", TableNumber: 7, Active: true},
			"c7d1e2f3-0000-4000-8000-000000000001": {ID: "c7d1e2f3-0000-4000-8000-000000000001", TableNumber: 4, Active: false},
		},
		Promotions: f.promos,
		Orders:     f.orders,
		Events:     f.events,
		Log:        logx.Discard(),
		Clock:      func() time.Time { return orderTime },
	}
	return f
}

func (f *fixture) remain(t *testing.T, id int64) int {
	t.Helper()
	r, err := f.stock.Get(context.Background(), id, today)
	require.NoError(t, err)
	return r.NumberRemain
}

func table(n int) *int { return &n }

func TestCreateOrder_ReservesPersistsAndAnnounces(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5), stockRec(banhMi, "Banh mi", 10, 10))

	o, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name:        "Lan",
		TableNumber: table(3),
		Items: []ItemRequest{
			{ProductID: pho, Quantity: 2, Note: " less chili "},
			{ProductID: banhMi, Quantity: 1},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, 3, o.TableNumber)
	assert.Equal(t, "130000", o.TotalAmount.String())
	assert.Equal(t, "0", o.DiscountAmount.String())
	assert.Equal(t, "130000", o.FinalAmount.String())
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Pho bo", o.Items[0].ProductName)
	assert.Equal(t, "less chili", o.Items[0].Note)

	assert.Equal(t, 3, f.remain(t, pho))
	assert.Equal(t, 9, f.remain(t, banhMi))

	created := f.events.named(events.NameOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, events.StreamOrders, created[0].Stream)
	assert.Empty(t, created[0].Key)
	assert.Equal(t, "130000", created[0].Payload.(View).Amount.String())

	updates := f.events.named(events.NameInventoryUpdate)
	require.Len(t, updates, 2)
	first := updates[0].Payload.(inventory.Update)
	assert.Equal(t, pho, first.ProductID)
	assert.Equal(t, 3, first.NumberRemain)
	assert.Equal(t, int64(1), first.Version)
}

func TestCreateOrder_InsufficientStockRollsBackEarlierItems(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 1), stockRec(banhMi, "Banh mi", 10, 10))

	_, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name: "Lan",
		Items: []ItemRequest{
			{ProductID: banhMi, Quantity: 1},
			{ProductID: pho, Quantity: 2},
		},
	})

	require.ErrorIs(t, err, inventory.ErrInsufficientInventory)
	var ie *inventory.InsufficientError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 1, ie.Remaining)

	assert.Equal(t, 1, f.remain(t, pho))
	assert.Equal(t, 10, f.remain(t, banhMi))
	assert.Zero(t, f.orders.count())
	assert.Empty(t, f.events.named(events.NameOrderCreated))

	// the compensation is announced so viewers converge on the restored count
	updates := f.events.named(events.NameInventoryUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, 10, updates[0].Payload.(inventory.Update).NumberRemain)
}

func TestCreateOrder_SameProductOnTwoLinesReservesOnce(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 3))

	o, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		UserID: "u-1",
		Items: []ItemRequest{
			{ProductID: pho, Quantity: 1, Note: "no onion"},
			{ProductID: pho, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 0, f.remain(t, pho))
	assert.Len(t, f.events.named(events.NameInventoryUpdate), 1)
}

func TestCreateOrder_MissingInventoryRecord(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))

	_, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name:  "Lan",
		Items: []ItemRequest{{ProductID: pho, Quantity: 1}, {ProductID: banhMi, Quantity: 1}},
	})
	assert.ErrorIs(t, err, inventory.ErrInventoryNotFound)
	assert.Equal(t, 5, f.remain(t, pho))
}

func TestCreateOrder_PromotionFailureRollsBack(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
	f.promos.err = &promotion.Error{Reason: promotion.ReasonMinAmount, Code: "SALE10", Message: "order total is below the minimum"}

	_, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name:          "Lan",
		PromotionCode: "sale10",
		Items:         []ItemRequest{{ProductID: pho, Quantity: 1}},
	})

	require.ErrorIs(t, err, promotion.ErrPromotionInvalid)
	var pe *promotion.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, promotion.ReasonMinAmount, pe.Reason)
	assert.Equal(t, 5, f.remain(t, pho))
	assert.Zero(t, f.orders.count())
}

func TestCreateOrder_AppliesDiscount(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
	f.promos.discount = decimal.NewFromInt(15000)

	o, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Phone:         "0901234567",
		PromotionCode: " sale10 ",
		Items:         []ItemRequest{{ProductID: pho, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "SALE10", o.PromotionCode)
	assert.Equal(t, "150000", o.TotalAmount.String())
	assert.Equal(t, "15000", o.DiscountAmount.String())
	assert.Equal(t, "135000", o.FinalAmount.String())
	assert.Equal(t, "135000", o.AmountDue().String())
	assert.Equal(t, []string{"SALE10"}, f.promos.applied)
}

func TestCreateOrder_PersistFailureReleasesAndRevertsPromotion(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
	f.promos.discount = decimal.NewFromInt(5000)
	f.orders.createErr = errors.New("connection reset")

	_, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name:          "Lan",
		PromotionCode: "SALE10",
		Items:         []ItemRequest{{ProductID: pho, Quantity: 2}},
	})
	require.Error(t, err)
	assert.Equal(t, 5, f.remain(t, pho))
	assert.Equal(t, []string{"SALE10"}, f.promos.reverted)
	assert.Empty(t, f.events.named(events.NameOrderCreated))
}

func TestCreateOrder_Sessions(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
	ctx := context.Background()

	o, err := f.pipeline.CreateOrder(ctx, CreateRequest{
		SessionID:   "2b1f6a52-8f0e-4c3e-9a57-2a4f3c1d9e10",
		TableNumber: table(99),
		Items:       []ItemRequest{{ProductID: pho, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, o.TableNumber, "session table wins over the requested one")

	_, err = f.pipeline.CreateOrder(ctx, CreateRequest{
		SessionID: "c7d1e2f3-0000-4000-8000-000000000001",
		Items:     []ItemRequest{{ProductID: pho, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = f.pipeline.CreateOrder(ctx, CreateRequest{
		SessionID: "unknown",
		Items:     []ItemRequest{{ProductID: pho, Quantity: 1}},
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, 4, f.remain(t, pho))
}

func TestCreateOrder_TakeawayDefaultsToTableZero(t *testing.T) {
	f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
	o, err := f.pipeline.CreateOrder(context.Background(), CreateRequest{
		Name:  "Lan",
		Items: []ItemRequest{{ProductID: pho, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, o.TableNumber)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{name: "no items", req: CreateRequest{Name: "Lan"}, want: ErrEmptyOrder},
		{name: "no identity", req: CreateRequest{Items: []ItemRequest{{ProductID: pho, Quantity: 1}}}, want: ErrMissingIdentity},
		{name: "zero quantity", req: CreateRequest{Name: "Lan", Items: []ItemRequest{{ProductID: pho, Quantity: 0}}}, want: inventory.ErrInvalidQuantity},
		{name: "negative quantity", req: CreateRequest{Name: "Lan", Items: []ItemRequest{{ProductID: pho, Quantity: -2}}}, want: inventory.ErrInvalidQuantity},
		{name: "negative table", req: CreateRequest{Name: "Lan", TableNumber: table(-1), Items: []ItemRequest{{ProductID: pho, Quantity: 1}}}, want: ErrInvalidTable},
		{name: "retired product", req: CreateRequest{Name: "Lan", Items: []ItemRequest{{ProductID: pho, Quantity: 1}, {ProductID: retired, Quantity: 1}}}, want: ErrProductUnavailable},
		{name: "unknown product", req: CreateRequest{Name: "Lan", Items: []ItemRequest{{ProductID: 404, Quantity: 1}}}, want: menu.ErrProductNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, stockRec(pho, "Pho bo", 5, 5))
			_, err := f.pipeline.CreateOrder(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 5, f.remain(t, pho), "nothing may stay reserved")
			assert.Empty(t, f.events.events)
		})
	}
}

func TestParseOrderID(t *testing.T) {
	id, err := ParseOrderID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, s := range []string{"", "abc", "0", "-3"} {
		_, err := ParseOrderID(s)
		assert.ErrorIs(t, err, ErrOrderNotFound, s)
	}
}
