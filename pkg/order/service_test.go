package order_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/audit"
	"github.com/example/bookshop/pkg/catalog"
	"github.com/example/bookshop/pkg/events"
	"github.com/example/bookshop/pkg/models"
	"github.com/example/bookshop/pkg/order"
	"github.com/example/bookshop/pkg/token"
	"github.com/example/bookshop/pkg/voucher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRepo keeps orders, tokens, vouchers and outbox rows in memory. Transact
// restores the previous state when the callback fails.
type memRepo struct {
	nextID     uint64
	orders     map[uint64]models.Order
	tokens     []models.OrderAccessToken
	outbox     []models.Outbox
	vouchers   map[string]*models.Voucher
	failOutbox bool
	inTx       bool
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[uint64]models.Order{}, vouchers: map[string]*models.Voucher{}}
}

func (r *memRepo) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	nextID := r.nextID
	orders := make(map[uint64]models.Order, len(r.orders))
	for k, v := range r.orders {
		orders[k] = v
	}
	tokens := append([]models.OrderAccessToken(nil), r.tokens...)
	outbox := append([]models.Outbox(nil), r.outbox...)

	r.inTx = true
	err := fn(ctx)
	r.inTx = false
	if err != nil {
		r.nextID, r.orders, r.tokens, r.outbox = nextID, orders, tokens, outbox
		return err
	}
	return nil
}

func (r *memRepo) CreateOrder(_ context.Context, o *models.Order) error {
	if o.IdempotencyKey != nil {
		for _, existing := range r.orders {
			if existing.IdempotencyKey != nil && *existing.IdempotencyKey == *o.IdempotencyKey {
				return errors.New("duplicate idempotency key")
			}
		}
	}
	r.nextID++
	o.ID = r.nextID
	for i := range o.Details {
		o.Details[i].OrderID = o.ID
	}
	r.orders[o.ID] = *o
	return nil
}

func (r *memRepo) GetOrder(_ context.Context, id uint64) (*models.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, apperr.ErrOrderNotFound
	}
	return &o, nil
}

// LockOrder returns the row without its lines, like the SQL lock.
func (r *memRepo) LockOrder(ctx context.Context, id uint64) (*models.Order, error) {
	o, err := r.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Details = nil
	return o, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uint64, status models.OrderStatus, at time.Time) error {
	o := r.orders[id]
	o.Status = status
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}

func (r *memRepo) ListOrdersByUser(_ context.Context, userID uint64, limit, offset int) ([]models.Order, int64, error) {
	var all []models.Order
	for _, o := range r.orders {
		if o.UserID != nil && *o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *memRepo) FindOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	for _, o := range r.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, apperr.ErrOrderNotFound
}

func (r *memRepo) FindTokenByOrder(_ context.Context, orderID uint64) (*models.OrderAccessToken, error) {
	for _, t := range r.tokens {
		if t.OrderID == orderID {
			return &t, nil
		}
	}
	return nil, apperr.ErrInvalidToken
}

func (r *memRepo) CreateOutbox(_ context.Context, o *models.Outbox) error {
	if r.failOutbox {
		return errors.New("outbox insert failed")
	}
	r.outbox = append(r.outbox, *o)
	return nil
}

func (r *memRepo) CreateToken(_ context.Context, t *models.OrderAccessToken) error {
	t.ID = uint64(len(r.tokens) + 1)
	r.tokens = append(r.tokens, *t)
	return nil
}

func (r *memRepo) FindToken(_ context.Context, value string) (*models.OrderAccessToken, error) {
	for _, t := range r.tokens {
		if t.Token == value {
			return &t, nil
		}
	}
	return nil, apperr.ErrInvalidToken
}

func (r *memRepo) HasToken(_ context.Context, orderID uint64) (bool, error) {
	_, err := r.FindTokenByOrder(context.Background(), orderID)
	return err == nil, nil
}

func (r *memRepo) MarkTokenUsed(_ context.Context, id uint64) error {
	for i := range r.tokens {
		if r.tokens[i].ID == id {
			r.tokens[i].Used = true
		}
	}
	return nil
}

func (r *memRepo) FindVoucherByCode(_ context.Context, code string) (*models.Voucher, error) {
	v, ok := r.vouchers[strings.ToLower(code)]
	if !ok {
		return nil, apperr.ErrVoucherNotFound
	}
	return v, nil
}

func (r *memRepo) setStatus(id uint64, s models.OrderStatus) {
	o := r.orders[id]
	o.Status = s
	r.orders[id] = o
}

type memCatalog struct {
	products map[uint64]catalog.Product
	err      error
	calls    int
}

func (c *memCatalog) GetProduct(_ context.Context, id uint64) (*catalog.Product, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return nil, apperr.ErrProductNotFound
	}
	return &p, nil
}

type memAudit struct {
	events []audit.Event
}

func (a *memAudit) Record(e audit.Event) { a.events = append(a.events, e) }

type memCache struct {
	repo        *memRepo
	invalidated []uint64
	// duringTx records, per invalidation, whether a transaction was open.
	duringTx []bool
}

func (c *memCache) InvalidateOrder(_ context.Context, id uint64) error {
	c.invalidated = append(c.invalidated, id)
	c.duringTx = append(c.duringTx, c.repo.inTx)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fixture struct {
	svc     *order.Service
	repo    *memRepo
	catalog *memCatalog
	audit   *memAudit
	cache   *memCache
	clock   *clock
}

const (
	productA uint64 = 1 // 100,000 at 10% off
	productB uint64 = 2 // 500,000, no discount
	productC uint64 = 3 // 25,000, no discount
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	c := &clock{t: time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)}
	repo := newMemRepo()
	repo.vouchers["save10"] = &models.Voucher{
		Code:          "SAVE10",
		Type:          models.DiscountPercentage,
		Percent:       ptr(10),
		MaxDiscount:   ptr(int64(50_000)),
		MinOrderValue: 100_000,
		StartDate:     c.t.AddDate(0, 0, -10),
		EndDate:       c.t.AddDate(0, 0, 10),
		Quantity:      100,
	}
	repo.vouchers["bigfixed"] = &models.Voucher{
		Code:        "BIGFIXED",
		Type:        models.DiscountFixed,
		FixedAmount: ptr(int64(10_000_000)),
		StartDate:   c.t.AddDate(0, 0, -1),
		EndDate:     c.t.AddDate(0, 0, 1),
	}
	cat := &memCatalog{products: map[uint64]catalog.Product{
		productA: {ID: productA, Title: "Go in Action", Author: "Kennedy", ListPrice: 100_000, DiscountPercent: 10, Stock: 5},
		productB: {ID: productB, Title: "The Go Programming Language", Author: "Donovan", ListPrice: 500_000, Stock: 5},
		productC: {ID: productC, Title: "Pamphlet", ListPrice: 25_000},
	}}
	a := &memAudit{}
	cache := &memCache{repo: repo}

	svc := order.NewService(order.Deps{
		Repo:     repo,
		Reader:   repo,
		Catalog:  cat,
		Vouchers: voucher.NewCalculator(repo, c.now),
		Tokens:   token.NewIssuer(repo, repo, token.DefaultTTL, c.now, zap.NewNop()),
		Audit:    a,
		Cache:    cache,
		Now:      c.now,
		Logger:   zap.NewNop(),
	})
	return &fixture{svc: svc, repo: repo, catalog: cat, audit: a, cache: cache, clock: c}
}

func ptr[T any](v T) *T { return &v }

func request(userID *uint64, items ...order.CartItem) order.PlaceOrderRequest {
	return order.PlaceOrderRequest{
		Items:         items,
		Address:       "12 Nguyen Hue, District 1",
		Phone:         "0901234567",
		PaymentMethod: models.PaymentCOD,
		UserID:        userID,
	}
}

func TestPlaceOrderAuthenticated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := f.svc.PlaceOrder(context.Background(), request(ptr(uint64(7)), order.CartItem{ProductID: productA, Quantity: 2}))
	require.NoError(t, err)

	o := p.Order
	assert.Empty(t, p.GuestToken)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, int64(180_000), o.Subtotal)
	assert.Equal(t, int64(180_000), o.Total)
	require.Len(t, o.Details, 1)
	assert.Equal(t, int64(90_000), o.Details[0].UnitPrice)
	assert.Equal(t, 10, o.Details[0].DiscountPercent)
	assert.Equal(t, "Go in Action", o.Details[0].ProductTitle)

	assert.Empty(t, f.repo.tokens)
	require.Len(t, f.repo.outbox, 1)
	assert.Equal(t, events.TopicOrderPlaced, f.repo.outbox[0].Topic)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionOrderPlaced, f.audit.events[0].Action)
}

func TestPlaceOrderGuestWithVoucher(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	req := request(nil, order.CartItem{ProductID: productB, Quantity: 2})
	req.VoucherCode = "  save10 "
	p, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	o := p.Order
	assert.Equal(t, int64(1_000_000), o.Subtotal)
	assert.Equal(t, int64(50_000), o.DiscountAmount)
	assert.Equal(t, int64(950_000), o.Total)
	require.NotNil(t, o.VoucherCode)
	assert.Equal(t, "SAVE10", *o.VoucherCode)
	assert.Equal(t, 100, f.repo.vouchers["save10"].Quantity, "voucher quantity is not consumed")

	require.Len(t, p.GuestToken, 32)
	require.Len(t, f.repo.tokens, 1)
	assert.Equal(t, o.ID, f.repo.tokens[0].OrderID)

	got, err := f.svc.GetOrderByToken(ctx, p.GuestToken)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Len(t, got.Details, 1)
}

func TestGuestTokenExpiresAfterThirtyDays(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.PlaceOrder(ctx, request(nil, order.CartItem{ProductID: productA, Quantity: 1}))
	require.NoError(t, err)

	f.clock.t = f.clock.t.AddDate(0, 0, 31)
	_, err = f.svc.GetOrderByToken(ctx, p.GuestToken)
	assert.True(t, errors.Is(err, apperr.ErrTokenExpired))

	_, err = f.svc.GetOrderByToken(ctx, "not-a-token")
	assert.True(t, errors.Is(err, apperr.ErrInvalidToken))
}

func TestPlaceOrderMinimumNotMet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := request(nil, order.CartItem{ProductID: productC, Quantity: 2})
	req.VoucherCode = "SAVE10"
	_, err := f.svc.PlaceOrder(context.Background(), req)

	var minErr *voucher.MinimumOrderNotMetError
	require.True(t, errors.As(err, &minErr))
	assert.Equal(t, int64(50_000), minErr.Shortfall)
	assert.True(t, errors.Is(err, apperr.ErrMinimumOrderNotMet))
	assert.Empty(t, f.repo.orders)
	assert.Empty(t, f.repo.tokens)
}

func TestPlaceOrderFixedVoucherNeverNegative(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := request(ptr(uint64(1)), order.CartItem{ProductID: productC, Quantity: 1})
	req.VoucherCode = "BIGFIXED"
	p, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(25_000), p.Order.DiscountAmount)
	assert.Zero(t, p.Order.Total)
}

func TestPlaceOrderAllOrNothing(t *testing.T) {
	t.Parallel()

	t.Run("missing product", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.PlaceOrder(context.Background(), request(nil,
			order.CartItem{ProductID: productA, Quantity: 1},
			order.CartItem{ProductID: 99, Quantity: 1}))
		assert.True(t, errors.Is(err, apperr.ErrProductNotFound))
		assert.Empty(t, f.repo.orders)
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.catalog.err = apperr.ErrUpstreamFailure
		_, err := f.svc.PlaceOrder(context.Background(), request(nil, order.CartItem{ProductID: productA, Quantity: 1}))
		assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
		assert.Empty(t, f.repo.orders)
	})

	t.Run("write failure rolls back order and token", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.repo.failOutbox = true
		_, err := f.svc.PlaceOrder(context.Background(), request(nil, order.CartItem{ProductID: productA, Quantity: 1}))
		require.Error(t, err)
		assert.Empty(t, f.repo.orders)
		assert.Empty(t, f.repo.tokens)
		assert.Empty(t, f.audit.events)
	})
}

func TestPlaceOrderRejectsMalformedRequests(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*order.PlaceOrderRequest){
		"empty cart":      func(r *order.PlaceOrderRequest) { r.Items = nil },
		"zero quantity":   func(r *order.PlaceOrderRequest) { r.Items[0].Quantity = 0 },
		"negative qty":    func(r *order.PlaceOrderRequest) { r.Items[0].Quantity = -3 },
		"missing product": func(r *order.PlaceOrderRequest) { r.Items[0].ProductID = 0 },
		"blank address":   func(r *order.PlaceOrderRequest) { r.Address = "   " },
		"blank phone":     func(r *order.PlaceOrderRequest) { r.Phone = "" },
		"unknown payment": func(r *order.PlaceOrderRequest) { r.PaymentMethod = "BITCOIN" },
		"long idem key":   func(r *order.PlaceOrderRequest) { r.IdempotencyKey = strings.Repeat("k", 65) },
		"huge quantity":   func(r *order.PlaceOrderRequest) { r.Items[0].Quantity = 1 << 45 },
		"merged overflow": func(r *order.PlaceOrderRequest) { r.Items = append(r.Items, order.CartItem{ProductID: productA, Quantity: 10_000}) },
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			req := request(nil, order.CartItem{ProductID: productA, Quantity: 1})
			mutate(&req)

			_, err := f.svc.PlaceOrder(context.Background(), req)
			assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(err))
			assert.Zero(t, f.catalog.calls)
			assert.Empty(t, f.repo.orders)
		})
	}
}

func TestPlaceOrderMergesRepeatedProducts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := f.svc.PlaceOrder(context.Background(), request(ptr(uint64(1)),
		order.CartItem{ProductID: productA, Quantity: 1},
		order.CartItem{ProductID: productC, Quantity: 1},
		order.CartItem{ProductID: productA, Quantity: 2}))
	require.NoError(t, err)

	require.Len(t, p.Order.Details, 2)
	assert.Equal(t, productA, p.Order.Details[0].ProductID)
	assert.Equal(t, 3, p.Order.Details[0].Quantity)

	var sum int64
	for _, d := range p.Order.Details {
		sum += d.LineTotal
	}
	assert.Equal(t, sum-p.Order.DiscountAmount, p.Order.Total)
}

func TestPlaceOrderIdempotencyKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	req := request(nil, order.CartItem{ProductID: productA, Quantity: 1})
	req.IdempotencyKey = "checkout-42"

	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.GuestToken, second.GuestToken)
	assert.Len(t, f.repo.orders, 1)
	assert.Len(t, f.repo.outbox, 1)
}

func TestIdempotencyKeyIsScopedToCaller(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	guest := request(nil, order.CartItem{ProductID: productA, Quantity: 1})
	guest.IdempotencyKey = "checkout-1"
	first, err := f.svc.PlaceOrder(ctx, guest)
	require.NoError(t, err)
	require.NotEmpty(t, first.GuestToken)

	customer := request(ptr(uint64(99)), order.CartItem{ProductID: productC, Quantity: 3})
	customer.IdempotencyKey = "checkout-1"
	p, err := f.svc.PlaceOrder(ctx, customer)
	require.NoError(t, err)
	assert.False(t, p.Replayed)
	assert.NotEqual(t, first.Order.ID, p.Order.ID)
	assert.Empty(t, p.GuestToken)
	require.NotNil(t, p.Order.UserID)
	assert.Equal(t, uint64(99), *p.Order.UserID)

	otherGuest := request(nil, order.CartItem{ProductID: productC, Quantity: 3})
	otherGuest.IdempotencyKey = "checkout-1"
	p, err = f.svc.PlaceOrder(ctx, otherGuest)
	assert.True(t, errors.Is(err, apperr.ErrIdempotencyConflict))
	assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
	assert.Nil(t, p)

	customer.Items = []order.CartItem{{ProductID: productB, Quantity: 1}}
	_, err = f.svc.PlaceOrder(ctx, customer)
	assert.True(t, errors.Is(err, apperr.ErrIdempotencyConflict))

	assert.Len(t, f.repo.orders, 2)
	assert.Len(t, f.repo.tokens, 1)
}

func TestIdempotentReplayIgnoresLineOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	req := request(nil, order.CartItem{ProductID: productA, Quantity: 1}, order.CartItem{ProductID: productC, Quantity: 2})
	req.IdempotencyKey = "retry-7"
	first, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)

	req.Items = []order.CartItem{{ProductID: productC, Quantity: 2}, {ProductID: productA, Quantity: 1}}
	second, err := f.svc.PlaceOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.GuestToken, second.GuestToken)
}

func placed(t *testing.T, f *fixture, method models.PaymentMethod) uint64 {
	t.Helper()
	req := request(ptr(uint64(7)), order.CartItem{ProductID: productA, Quantity: 1})
	req.PaymentMethod = method
	p, err := f.svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	return p.Order.ID
}

func TestCancelFromEachStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from    models.OrderStatus
		allowed bool
	}{
		{models.StatusPending, true},
		{models.StatusConfirmed, true},
		{models.StatusShipping, true},
		{models.StatusDelivered, false},
		{models.StatusCancelled, false},
	}
	for _, c := range cases {
		c := c
		t.Run(string(c.from), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			id := placed(t, f, models.PaymentCOD)
			f.repo.setStatus(id, c.from)

			o, err := f.svc.Cancel(context.Background(), id)
			if !c.allowed {
				assert.True(t, errors.Is(err, apperr.ErrIllegalCancellation))
				assert.Equal(t, c.from, f.repo.orders[id].Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StatusCancelled, o.Status)
			assert.Len(t, o.Details, 1)
			assert.Equal(t, models.StatusCancelled, f.repo.orders[id].Status)
			assert.Equal(t, []uint64{id, id}, f.cache.invalidated)
			assert.Equal(t, []bool{true, false}, f.cache.duringTx)
		})
	}
}

func TestCancelMissingOrder(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.Cancel(context.Background(), 404)
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))
}

func TestAdvanceThroughLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := placed(t, f, models.PaymentCOD)

	for _, next := range []models.OrderStatus{models.StatusConfirmed, models.StatusShipping, models.StatusDelivered} {
		o, err := f.svc.Advance(ctx, id, next)
		require.NoError(t, err)
		assert.Equal(t, next, o.Status)
	}
	assert.Len(t, f.repo.outbox, 4)
	assert.Equal(t, events.TopicOrderStatusChanged, f.repo.outbox[3].Topic)
	assert.Len(t, f.cache.invalidated, 6)

	_, err := f.svc.Advance(ctx, id, models.StatusShipping)
	assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))

	_, err = f.svc.Advance(ctx, id, models.StatusCancelled)
	assert.True(t, errors.Is(err, apperr.ErrIllegalCancellation))
}

func TestAdvanceErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := placed(t, f, models.PaymentCOD)

	_, err := f.svc.Advance(ctx, 404, models.StatusConfirmed)
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))

	_, err = f.svc.Advance(ctx, id, "LOST")
	assert.True(t, errors.Is(err, apperr.ErrInvalidStatus))

	o, err := f.svc.Advance(ctx, id, models.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Len(t, o.Details, 1)
	assert.Len(t, f.repo.outbox, 1, "no event for an unchanged status")
	assert.Empty(t, f.cache.invalidated)

	o, err = f.svc.Advance(ctx, id, models.StatusShipping)
	require.NoError(t, err, "non-terminal states move freely")
	assert.Equal(t, models.StatusShipping, o.Status)
}

func TestConfirmPayment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success confirms once", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := placed(t, f, models.PaymentOnline)

		o, err := f.svc.ConfirmPayment(ctx, id, true)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, o.Status)
		assert.NotEmpty(t, o.Details)

		_, err = f.svc.ConfirmPayment(ctx, id, true)
		require.NoError(t, err)
		assert.Len(t, f.repo.outbox, 2)

		_, err = f.svc.ConfirmPayment(ctx, id, false)
		assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))
	})

	t.Run("failure cancels", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := placed(t, f, models.PaymentOnline)

		o, err := f.svc.ConfirmPayment(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, o.Status)
		assert.Equal(t, audit.ActionPaymentFailed, f.audit.events[len(f.audit.events)-1].Action)
	})

	t.Run("cash on delivery has no callback", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		id := placed(t, f, models.PaymentCOD)

		_, err := f.svc.ConfirmPayment(ctx, id, true)
		assert.True(t, errors.Is(err, apperr.ErrIllegalTransition))
	})
}

func TestGetOrderChecksOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	id := placed(t, f, models.PaymentCOD)

	o, err := f.svc.GetOrder(ctx, id, 7)
	require.NoError(t, err)
	assert.Equal(t, id, o.ID)

	_, err = f.svc.GetOrder(ctx, id, 8)
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))

	guest, err := f.svc.PlaceOrder(ctx, request(nil, order.CartItem{ProductID: productA, Quantity: 1}))
	require.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, guest.Order.ID, 0)
	assert.True(t, errors.Is(err, apperr.ErrOrderNotFound))
}

func TestListOrdersPaginates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		placed(t, f, models.PaymentCOD)
	}

	page, err := f.svc.ListOrders(context.Background(), 7, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, uint64(3), page.Orders[0].ID)

	page, err = f.svc.ListOrders(context.Background(), 7, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
	assert.Len(t, page.Orders, 5)
}

func TestQuoteVoucher(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.QuoteVoucher(ctx, "save10", 1_000_000, nil)
	require.NoError(t, err)
	assert.Equal(t, voucher.Result{Code: "SAVE10", Discount: 50_000}, res)

	_, err = f.svc.QuoteVoucher(ctx, "save10", -1, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))

	_, err = f.svc.QuoteVoucher(ctx, "nope", 1_000_000, nil)
	assert.True(t, errors.Is(err, apperr.ErrVoucherNotFound))
}
