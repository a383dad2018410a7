// Package order owns the order lifecycle: checkout, status transitions,
// cancellation and guest lookups.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/audit"
	"github.com/example/bookshop/pkg/catalog"
	"github.com/example/bookshop/pkg/events"
	"github.com/example/bookshop/pkg/models"
	"github.com/example/bookshop/pkg/pricing"
	"github.com/example/bookshop/pkg/voucher"
	"go.uber.org/zap"
)

// Repository is the persistence the service needs. Methods called inside the
// Transact callback must use the context they receive.
type Repository interface {
	Transact(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, o *models.Order) error
	// LockOrder reads an order for update, or returns apperr.ErrOrderNotFound.
	LockOrder(ctx context.Context, id uint64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uint64, status models.OrderStatus, at time.Time) error
	ListOrdersByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Order, int64, error)
	// FindOrderByIdempotencyKey returns apperr.ErrOrderNotFound when unused.
	FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	FindTokenByOrder(ctx context.Context, orderID uint64) (*models.OrderAccessToken, error)
	CreateOutbox(ctx context.Context, o *models.Outbox) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
}

type TokenIssuer interface {
	Issue(ctx context.Context, orderID uint64) (*models.OrderAccessToken, error)
	Resolve(ctx context.Context, token string) (*models.Order, error)
}

type Discounter interface {
	Discount(ctx context.Context, code string, subtotal int64, userID *uint64) (voucher.Result, error)
}

type Auditor interface {
	Record(e audit.Event)
}

type CacheInvalidator interface {
	InvalidateOrder(ctx context.Context, id uint64) error
}

type Deps struct {
	Repo     Repository
	Reader   OrderReader
	Catalog  catalog.Lookup
	Vouchers Discounter
	Tokens   TokenIssuer
	Audit    Auditor
	Cache    CacheInvalidator
	Now      func() time.Time
	Logger   *zap.Logger
}

type Service struct {
	repo     Repository
	reader   OrderReader
	catalog  catalog.Lookup
	vouchers Discounter
	tokens   TokenIssuer
	audit    Auditor
	cache    CacheInvalidator
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		reader:   d.Reader,
		catalog:  d.Catalog,
		vouchers: d.Vouchers,
		tokens:   d.Tokens,
		audit:    d.Audit,
		cache:    d.Cache,
		now:      d.Now,
		logger:   d.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// PlaceOrder prices the cart, applies the voucher and persists the order, its
// lines, the guest token and the placement event in one transaction.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Placement, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var key, hash string
	if req.IdempotencyKey != "" {
		key, hash = scopedKey(req.UserID, req.IdempotencyKey), req.fingerprint()
		if p, err := s.replay(ctx, key, hash); err == nil {
			return p, nil
		} else if !errors.Is(err, apperr.ErrOrderNotFound) {
			return nil, err
		}
	}

	details := make([]models.OrderDetail, 0, len(req.Items))
	lines := make([]pricing.Line, 0, len(req.Items))
	for _, it := range req.Items {
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		line, err := pricing.NewLine(p.ListPrice, p.DiscountPercent, it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("price product %d: %w", p.ID, err)
		}
		lines = append(lines, line)
		details = append(details, models.OrderDetail{
			ProductID:       it.ProductID,
			ProductTitle:    p.Title,
			ProductAuthor:   p.Author,
			Quantity:        it.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: p.DiscountPercent,
			LineTotal:       line.Total,
		})
	}

	subtotal, err := pricing.Subtotal(lines)
	if err != nil {
		return nil, err
	}
	o := &models.Order{
		UserID:        req.UserID,
		Address:       req.Address,
		Phone:         req.Phone,
		Status:        models.StatusPending,
		PaymentMethod: req.PaymentMethod,
		Subtotal:      subtotal,
		Total:         subtotal,
		Note:          req.Note,
		Details:       details,
	}
	if req.VoucherCode != "" {
		res, err := s.vouchers.Discount(ctx, req.VoucherCode, subtotal, req.UserID)
		if err != nil {
			return nil, err
		}
		code := res.Code
		o.VoucherCode = &code
		o.DiscountAmount = res.Discount
		o.Total = subtotal - res.Discount
	}
	if key != "" {
		o.IdempotencyKey = &key
		o.RequestHash = hash
	}
	now := s.now()
	o.PlacedAt = now
	o.UpdatedAt = now

	placement := &Placement{Order: o}
	err = s.repo.Transact(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateOrder(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if o.Guest() {
			t, err := s.tokens.Issue(ctx, o.ID)
			if err != nil {
				return fmt.Errorf("issue guest token: %w", err)
			}
			placement.GuestToken = t.Token
		}
		row, err := events.NewOutbox(events.TopicOrderPlaced, o.ID, events.NewOrderPlaced(o))
		if err != nil {
			return err
		}
		return s.repo.CreateOutbox(ctx, row)
	})
	if err != nil {
		// A concurrent request with the same key may have won the unique index.
		if key != "" {
			p, rerr := s.replay(ctx, key, hash)
			if rerr == nil {
				return p, nil
			}
			if errors.Is(rerr, apperr.ErrIdempotencyConflict) {
				return nil, rerr
			}
		}
		s.logger.Error("Failed to place order", zap.Error(err))
		return nil, err
	}

	s.record(audit.ActionOrderPlaced, o, map[string]any{
		"total":          o.Total,
		"discount":       o.DiscountAmount,
		"payment_method": string(o.PaymentMethod),
		"lines":          len(o.Details),
	})
	s.logger.Info("Order placed",
		zap.Uint64("order_id", o.ID),
		zap.Bool("guest", o.Guest()),
		zap.Int64("subtotal", o.Subtotal),
		zap.Int64("discount", o.DiscountAmount),
		zap.Int64("total", o.Total))
	return placement, nil
}

// replay returns the order stored under key. The guest token is only handed
// back when the stored order was placed from an identical request.
func (s *Service) replay(ctx context.Context, key, hash string) (*Placement, error) {
	o, err := s.repo.FindOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if o.RequestHash != hash {
		s.logger.Warn("Idempotency key reused for a different order", zap.Uint64("order_id", o.ID))
		return nil, apperr.ErrIdempotencyConflict
	}
	p := &Placement{Order: o, Replayed: true}
	if o.Guest() {
		t, err := s.repo.FindTokenByOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("load token for replayed order %d: %w", o.ID, err)
		}
		p.GuestToken = t.Token
	}
	s.logger.Info("Order placement replayed", zap.Uint64("order_id", o.ID))
	return p, nil
}

// Advance moves an order to status. Terminal orders do not move; a target of
// CANCELLED follows the cancellation rules.
func (s *Service) Advance(ctx context.Context, id uint64, status models.OrderStatus) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidStatus, status)
	}
	if status == models.StatusCancelled {
		return s.Cancel(ctx, id)
	}
	return s.transition(ctx, id, status, audit.ActionStatusChanged, func(o *models.Order) error {
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %d is %s", apperr.ErrIllegalTransition, id, o.Status)
		}
		return nil
	})
}

// Cancel is allowed from any non-terminal status. Stock is not restored.
func (s *Service) Cancel(ctx context.Context, id uint64) (*models.Order, error) {
	return s.transition(ctx, id, models.StatusCancelled, audit.ActionOrderCancelled, func(o *models.Order) error {
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %d is %s", apperr.ErrIllegalCancellation, id, o.Status)
		}
		return nil
	})
}

// ConfirmPayment applies the payment gateway outcome to a pending online
// order. A repeated success for an already confirmed order is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, id uint64, success bool) (*models.Order, error) {
	target, action := models.StatusConfirmed, audit.ActionPaymentReceived
	if !success {
		target, action = models.StatusCancelled, audit.ActionPaymentFailed
	}
	return s.transition(ctx, id, target, action, func(o *models.Order) error {
		if o.PaymentMethod != models.PaymentOnline {
			return fmt.Errorf("%w: order %d is not paid online", apperr.ErrIllegalTransition, id)
		}
		if o.Status != models.StatusPending && o.Status != target {
			return fmt.Errorf("%w: payment result for order in %s", apperr.ErrIllegalTransition, o.Status)
		}
		return nil
	})
}

// transition locks the order row, checks allow and writes the new status with
// its outbox event. Moving to the current status changes nothing. The cached
// view is dropped before and after the commit and the order is reloaded with
// its lines.
func (s *Service) transition(ctx context.Context, id uint64, target models.OrderStatus, action string, allow func(*models.Order) error) (*models.Order, error) {
	var (
		updated *models.Order
		from    models.OrderStatus
	)
	err := s.repo.Transact(ctx, func(ctx context.Context) error {
		o, err := s.repo.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := allow(o); err != nil {
			return err
		}
		from = o.Status
		updated = o
		if o.Status == target {
			return nil
		}

		now := s.now()
		if err := s.repo.UpdateStatus(ctx, id, target, now); err != nil {
			return fmt.Errorf("update status of order %d: %w", id, err)
		}
		o.Status = target
		o.UpdatedAt = now

		row, err := events.NewOutbox(events.TopicOrderStatusChanged, id, events.NewOrderStatusChanged(id, from, target, now))
		if err != nil {
			return err
		}
		if err := s.repo.CreateOutbox(ctx, row); err != nil {
			return err
		}
		s.invalidate(ctx, id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != target {
		s.invalidate(ctx, id)
	}
	updated = s.reload(ctx, updated)
	if from == target {
		return updated, nil
	}

	s.record(action, updated, map[string]any{"from": string(from), "to": string(target)})
	s.logger.Info("Order status changed",
		zap.Uint64("order_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)))
	return updated, nil
}

func (s *Service) invalidate(ctx context.Context, id uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOrder(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate cached order", zap.Uint64("order_id", id), zap.Error(err))
	}
}

// reload reads the committed order back with its lines. The locked row is
// returned when the read fails since the status change already committed.
func (s *Service) reload(ctx context.Context, locked *models.Order) *models.Order {
	o, err := s.reader.GetOrder(ctx, locked.ID)
	if err != nil {
		s.logger.Warn("Failed to reload order", zap.Uint64("order_id", locked.ID), zap.Error(err))
		return locked
	}
	return o
}

// GetOrder returns an order owned by userID. Orders of other customers and
// guest orders are reported as not found.
func (s *Service) GetOrder(ctx context.Context, id, userID uint64) (*models.Order, error) {
	o, err := s.reader.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, fmt.Errorf("%w: id %d", apperr.ErrOrderNotFound, id)
	}
	return o, nil
}

type Page struct {
	Orders   []models.Order `json:"orders"`
	Total    int64          `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Service) ListOrders(ctx context.Context, userID uint64, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	orders, total, err := s.repo.ListOrdersByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list orders of user %d: %w", userID, err)
	}
	return &Page{Orders: orders, Total: total, Page: page, PageSize: pageSize}, nil
}

// GetOrderByToken resolves a guest access token to its order.
func (s *Service) GetOrderByToken(ctx context.Context, token string) (*models.Order, error) {
	o, err := s.tokens.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	s.record(audit.ActionGuestAccess, o, nil)
	return o, nil
}

// QuoteVoucher previews the discount a voucher grants for subtotal without
// placing an order.
func (s *Service) QuoteVoucher(ctx context.Context, code string, subtotal int64, userID *uint64) (voucher.Result, error) {
	if subtotal < 0 {
		return voucher.Result{}, fmt.Errorf("%w: negative subtotal", apperr.ErrInvalidInput)
	}
	return s.vouchers.Discount(ctx, code, subtotal, userID)
}

func (s *Service) record(action string, o *models.Order, data map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(audit.Event{
		Action:  action,
		OrderID: o.ID,
		UserID:  o.UserID,
		Data:    data,
		At:      s.now(),
	})
}
