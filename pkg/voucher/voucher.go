// Package voucher validates voucher codes against an order subtotal and
// computes the discount to grant. It never mutates voucher state.
package voucher

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/models"
)

// Store looks vouchers up by code, ignoring case. A missing code yields
// apperr.ErrVoucherNotFound.
type Store interface {
	FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error)
}

// MinimumOrderNotMetError reports how far the subtotal is below the voucher
// minimum. It matches apperr.ErrMinimumOrderNotMet under errors.Is.
type MinimumOrderNotMetError struct {
	Minimum   int64
	Subtotal  int64
	Shortfall int64
}

func (e *MinimumOrderNotMetError) Error() string {
	return fmt.Sprintf("order subtotal %d is %d below voucher minimum %d", e.Subtotal, e.Shortfall, e.Minimum)
}

func (e *MinimumOrderNotMetError) Unwrap() error {
	return apperr.ErrMinimumOrderNotMet
}

type Result struct {
	Code     string `json:"code"`
	Discount int64  `json:"discount"`
}

type Calculator struct {
	store Store
	now   func() time.Time
}

func NewCalculator(store Store, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{store: store, now: now}
}

// Discount runs lookup, validity window, minimum order and amount computation
// in that order; the first failing step is returned.
func (c *Calculator) Discount(ctx context.Context, code string, subtotal int64, userID *uint64) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, fmt.Errorf("%w: empty voucher code", apperr.ErrVoucherNotFound)
	}
	if subtotal < 0 {
		return Result{}, fmt.Errorf("%w: negative subtotal %d", apperr.ErrInvalidInput, subtotal)
	}

	v, err := c.store.FindVoucherByCode(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if v.UserID != nil && (userID == nil || *userID != *v.UserID) {
		return Result{}, fmt.Errorf("%w: %s", apperr.ErrVoucherNotOwned, v.Code)
	}

	discount, err := Compute(v, subtotal, c.now())
	if err != nil {
		return Result{}, err
	}
	return Result{Code: v.Code, Discount: discount}, nil
}

// Compute applies steps two to four of voucher evaluation to an already
// loaded voucher.
func Compute(v *models.Voucher, subtotal int64, now time.Time) (int64, error) {
	if err := Validate(v); err != nil {
		return 0, err
	}

	today := dateOf(now, now.Location())
	if today.Before(dateOf(v.StartDate, now.Location())) {
		return 0, fmt.Errorf("%w: %s starts %s", apperr.ErrVoucherNotYetActive, v.Code, v.StartDate.Format(time.DateOnly))
	}
	if today.After(dateOf(v.EndDate, now.Location())) {
		return 0, fmt.Errorf("%w: %s ended %s", apperr.ErrVoucherExpired, v.Code, v.EndDate.Format(time.DateOnly))
	}

	if subtotal < v.MinOrderValue {
		return 0, &MinimumOrderNotMetError{
			Minimum:   v.MinOrderValue,
			Subtotal:  subtotal,
			Shortfall: v.MinOrderValue - subtotal,
		}
	}

	var discount int64
	switch v.Type {
	case models.DiscountPercentage:
		if *v.Percent > 0 && subtotal > math.MaxInt64/int64(*v.Percent) {
			return 0, fmt.Errorf("%w: subtotal %d too large", apperr.ErrInvalidPricingInput, subtotal)
		}
		discount = subtotal * int64(*v.Percent) / 100
		if v.MaxDiscount != nil && discount > *v.MaxDiscount {
			discount = *v.MaxDiscount
		}
	case models.DiscountFixed:
		discount = *v.FixedAmount
	}
	return min(discount, subtotal), nil
}

// Validate checks the voucher's own invariants.
func Validate(v *models.Voucher) error {
	if v.StartDate.After(v.EndDate) {
		return fmt.Errorf("%w: voucher %s starts after it ends", apperr.ErrInvalidInput, v.Code)
	}
	if v.Quantity < 0 || v.MinOrderValue < 0 {
		return fmt.Errorf("%w: voucher %s has negative quantity or minimum", apperr.ErrInvalidInput, v.Code)
	}

	switch v.Type {
	case models.DiscountPercentage:
		if v.Percent == nil || *v.Percent < 0 || *v.Percent > 100 || v.FixedAmount != nil {
			return fmt.Errorf("%w: voucher %s has malformed percentage fields", apperr.ErrInvalidInput, v.Code)
		}
		if v.MaxDiscount != nil && *v.MaxDiscount < 0 {
			return fmt.Errorf("%w: voucher %s has negative cap", apperr.ErrInvalidInput, v.Code)
		}
	case models.DiscountFixed:
		if v.FixedAmount == nil || *v.FixedAmount <= 0 || v.Percent != nil || v.MaxDiscount != nil {
			return fmt.Errorf("%w: voucher %s has malformed fixed amount fields", apperr.ErrInvalidInput, v.Code)
		}
	default:
		return fmt.Errorf("%w: voucher %s has unknown type %q", apperr.ErrInvalidInput, v.Code, v.Type)
	}
	return nil
}

func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
