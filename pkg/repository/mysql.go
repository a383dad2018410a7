package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/bookshop/pkg/apperr"
	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txKey struct{}

// MySQLRepository persists orders, tokens, vouchers and outbox rows. Calls
// made with a context returned by Transact run inside that transaction.
type MySQLRepository struct {
	db *gorm.DB
}

func OpenMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(
			&models.Order{},
			&models.OrderDetail{},
			&models.OrderAccessToken{},
			&models.Voucher{},
			&models.Outbox{},
		); err != nil {
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return db, nil
}

func NewMySQLRepository(db *gorm.DB) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (r *MySQLRepository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

func (r *MySQLRepository) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *MySQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *MySQLRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	return r.conn(ctx).Create(o).Error
}

func (r *MySQLRepository) GetOrder(ctx context.Context, id uint64) (*models.Order, error) {
	var o models.Order
	err := r.conn(ctx).Preload("Details", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).First(&o, id).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrOrderNotFound, id)
	}
	return &o, nil
}

// LockOrder must be called inside Transact for the row lock to hold.
func (r *MySQLRepository) LockOrder(ctx context.Context, id uint64) (*models.Order, error) {
	var o models.Order
	err := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, id).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrOrderNotFound, id)
	}
	return &o, nil
}

func (r *MySQLRepository) UpdateStatus(ctx context.Context, id uint64, status models.OrderStatus, at time.Time) error {
	res := r.conn(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", apperr.ErrOrderNotFound, id)
	}
	return nil
}

func (r *MySQLRepository) ListOrdersByUser(ctx context.Context, userID uint64, limit, offset int) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := r.conn(ctx).Model(&models.Order{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.conn(ctx).Preload("Details").Where("user_id = ?", userID).
		Order("id DESC").Offset(offset).Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *MySQLRepository) FindOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var o models.Order
	err := r.conn(ctx).Preload("Details").Where("idempotency_key = ?", key).First(&o).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrOrderNotFound, key)
	}
	return &o, nil
}

// ListDeliveredOrders returns delivered orders placed in [from, to).
func (r *MySQLRepository) ListDeliveredOrders(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := r.conn(ctx).Preload("Details").
		Where("status = ? AND placed_at >= ? AND placed_at < ?", models.StatusDelivered, from, to).
		Order("placed_at").
		Find(&orders).Error
	return orders, err
}

func (r *MySQLRepository) CreateToken(ctx context.Context, t *models.OrderAccessToken) error {
	return r.conn(ctx).Create(t).Error
}

func (r *MySQLRepository) FindToken(ctx context.Context, token string) (*models.OrderAccessToken, error) {
	var t models.OrderAccessToken
	if err := r.conn(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrInvalidToken
		}
		return nil, err
	}
	return &t, nil
}

func (r *MySQLRepository) FindTokenByOrder(ctx context.Context, orderID uint64) (*models.OrderAccessToken, error) {
	var t models.OrderAccessToken
	if err := r.conn(ctx).Where("order_id = ?", orderID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no token for order %d", apperr.ErrInvalidToken, orderID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *MySQLRepository) HasToken(ctx context.Context, orderID uint64) (bool, error) {
	var n int64
	err := r.conn(ctx).Model(&models.OrderAccessToken{}).Where("order_id = ?", orderID).Count(&n).Error
	return n > 0, err
}

func (r *MySQLRepository) MarkTokenUsed(ctx context.Context, id uint64) error {
	return r.conn(ctx).Model(&models.OrderAccessToken{}).Where("id = ?", id).Update("used", true).Error
}

func (r *MySQLRepository) FindVoucherByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var v models.Voucher
	err := r.conn(ctx).Where("LOWER(code) = ?", strings.ToLower(code)).First(&v).Error
	if err != nil {
		return nil, notFound(err, apperr.ErrVoucherNotFound, code)
	}
	return &v, nil
}

func (r *MySQLRepository) CreateOutbox(ctx context.Context, o *models.Outbox) error {
	return r.conn(ctx).Create(o).Error
}

func (r *MySQLRepository) GetPendingOutbox(ctx context.Context, limit int) ([]models.Outbox, error) {
	var rows []models.Outbox
	err := r.conn(ctx).Where("status = ?", models.OutboxPending).Order("id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *MySQLRepository) MarkDoneOutboxes(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return r.conn(ctx).Model(&models.Outbox{}).Where("id IN ?", ids).Update("status", models.OutboxCompleted).Error
}

func notFound(err error, sentinel *apperr.Error, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", sentinel, key)
	}
	return err
}
