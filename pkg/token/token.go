// Package token issues and resolves guest order access tokens: opaque
// 128-bit capabilities that grant read access to exactly one order.
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/models"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 30 * 24 * time.Hour
	tokenBytes = 16
)

// Store persists tokens. FindToken returns apperr.ErrInvalidToken for an
// unknown token string.
type Store interface {
	CreateToken(ctx context.Context, t *models.OrderAccessToken) error
	FindToken(ctx context.Context, token string) (*models.OrderAccessToken, error)
	HasToken(ctx context.Context, orderID uint64) (bool, error)
	MarkTokenUsed(ctx context.Context, id uint64) error
}

// OrderReader loads an order with its details, or apperr.ErrOrderNotFound.
type OrderReader interface {
	GetOrder(ctx context.Context, id uint64) (*models.Order, error)
}

type Issuer struct {
	store  Store
	orders OrderReader
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewIssuer(store Store, orders OrderReader, ttl time.Duration, now func() time.Time, logger *zap.Logger) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{store: store, orders: orders, ttl: ttl, now: now, logger: logger}
}

// Issue mints the single token of an order. Tokens are never rotated, so a
// second call for the same order fails.
func (i *Issuer) Issue(ctx context.Context, orderID uint64) (*models.OrderAccessToken, error) {
	if _, err := i.orders.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	exists, err := i.store.HasToken(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("check existing token for order %d: %w", orderID, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: order %d", apperr.ErrTokenAlreadyIssued, orderID)
	}

	value, err := generate()
	if err != nil {
		return nil, err
	}
	now := i.now()
	t := &models.OrderAccessToken{
		Token:     value,
		OrderID:   orderID,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}
	if err := i.store.CreateToken(ctx, t); err != nil {
		return nil, fmt.Errorf("store token for order %d: %w", orderID, err)
	}

	i.logger.Info("Guest access token issued",
		zap.Uint64("order_id", orderID),
		zap.Time("expires_at", t.ExpiresAt))
	return t, nil
}

// Resolve returns the order bound to token. Expiry is the only revocation;
// the used flag is set on first success and ignored afterwards.
func (i *Issuer) Resolve(ctx context.Context, token string) (*models.Order, error) {
	if token == "" {
		return nil, apperr.ErrInvalidToken
	}
	t, err := i.store.FindToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !i.now().Before(t.ExpiresAt) {
		i.logger.Info("Expired guest token presented",
			zap.Uint64("order_id", t.OrderID),
			zap.Time("expired_at", t.ExpiresAt))
		return nil, fmt.Errorf("%w: expired at %s", apperr.ErrTokenExpired, t.ExpiresAt.Format(time.RFC3339))
	}

	if !t.Used {
		if err := i.store.MarkTokenUsed(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("mark token used: %w", err)
		}
	}
	return i.orders.GetOrder(ctx, t.OrderID)
}

func generate() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
