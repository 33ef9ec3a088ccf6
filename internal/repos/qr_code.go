package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

type QRCodeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, qr *types.QRCode) (*types.QRCode, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.QRCode, error)
	// GetByIDForUpdate acquires an exclusive row lock. Only valid inside a
	// transaction.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*types.QRCode, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.QRCode, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
}

type qrCodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQRCodeRepo(db *gorm.DB, baseLog *logger.Logger) QRCodeRepo {
	return &qrCodeRepo{db: db, log: baseLog.With("repo", "QRCodeRepo")}
}

func (r *qrCodeRepo) Create(ctx context.Context, tx *gorm.DB, qr *types.QRCode) (*types.QRCode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(qr).Error; err != nil {
		return nil, err
	}
	return qr, nil
}

func (r *qrCodeRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.QRCode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var qr types.QRCode
	err := transaction.WithContext(ctx).First(&qr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrCodeRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*types.QRCode, error) {
	if tx == nil {
		return nil, errors.New("row lock requires a transaction")
	}
	q := tx.WithContext(ctx)
	if useRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var qr types.QRCode
	err := q.First(&qr, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrCodeRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.QRCode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var qr types.QRCode
	err := transaction.WithContext(ctx).First(&qr, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &qr, nil
}

func (r *qrCodeRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.QRCode{}).
		Where("id = ?", id).
		Updates(updates).Error
}
