// Package catalog resolves products for checkout. Catalog maintenance lives
// in another service; this package only reads.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Product struct {
	ID              uint64
	Title           string
	Author          string
	ListPrice       int64
	DiscountPercent int
	Stock           int
}

// Lookup returns a product or apperr.ErrProductNotFound.
type Lookup interface {
	GetProduct(ctx context.Context, id uint64) (*Product, error)
}

// GormCatalog reads products from the books table.
type GormCatalog struct {
	db *gorm.DB
}

func NewGormCatalog(db *gorm.DB) *GormCatalog {
	return &GormCatalog{db: db}
}

func (c *GormCatalog) GetProduct(ctx context.Context, id uint64) (*Product, error) {
	var book models.Book
	if err := c.db.WithContext(ctx).First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", apperr.ErrProductNotFound, id)
		}
		return nil, err
	}

	p := &Product{
		ID:        book.ID,
		Title:     book.Title,
		Author:    book.Author,
		ListPrice: book.Price,
		Stock:     book.Stock,
	}
	if book.DiscountPercent != nil {
		p.DiscountPercent = *book.DiscountPercent
	}
	return p, nil
}

// Bounded caps every lookup at a fixed timeout. Timeouts and store errors
// surface as apperr.ErrUpstreamFailure; not-found passes through unchanged.
type Bounded struct {
	next    Lookup
	timeout time.Duration
	logger  *zap.Logger
}

func NewBounded(next Lookup, timeout time.Duration, logger *zap.Logger) *Bounded {
	return &Bounded{next: next, timeout: timeout, logger: logger}
}

func (b *Bounded) GetProduct(ctx context.Context, id uint64) (*Product, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	type result struct {
		p   *Product
		err error
	}
	done := make(chan result, 1)
	go func() {
		p, err := b.next.GetProduct(ctx, id)
		done <- result{p, err}
	}()

	select {
	case <-ctx.Done():
		b.logger.Warn("Catalog lookup timed out", zap.Uint64("product_id", id), zap.Duration("timeout", b.timeout))
		return nil, fmt.Errorf("%w: catalog lookup for product %d: %v", apperr.ErrUpstreamFailure, id, ctx.Err())
	case r := <-done:
		if r.err == nil {
			return r.p, nil
		}
		if errors.Is(r.err, apperr.ErrProductNotFound) {
			return nil, r.err
		}
		b.logger.Error("Catalog lookup failed", zap.Uint64("product_id", id), zap.Error(r.err))
		return nil, fmt.Errorf("%w: catalog lookup for product %d: %v", apperr.ErrUpstreamFailure, id, r.err)
	}
}
