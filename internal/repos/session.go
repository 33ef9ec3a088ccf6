package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, session *types.Session) (*types.Session, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Session, error)
	// GetByUUID resolves a session by its public identifier, preloading the
	// style and QR code references.
	GetByUUID(ctx context.Context, tx *gorm.DB, sessionUUID uuid.UUID) (*types.Session, error)
	List(ctx context.Context, tx *gorm.DB, page, pageSize int) ([]*types.Session, int64, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(ctx context.Context, tx *gorm.DB, session *types.Session) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var session types.Session
	err := transaction.WithContext(ctx).
		Preload("Style").
		Preload("QRCode").
		First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByUUID(ctx context.Context, tx *gorm.DB, sessionUUID uuid.UUID) (*types.Session, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var session types.Session
	err := transaction.WithContext(ctx).
		Preload("Style").
		Preload("QRCode").
		First(&session, "uuid = ?", sessionUUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) List(ctx context.Context, tx *gorm.DB, page, pageSize int) ([]*types.Session, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	var total int64
	if err := transaction.WithContext(ctx).
		Model(&types.Session{}).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Session
	if err := transaction.WithContext(ctx).
		Preload("Style").
		Preload("QRCode").
		Order("updated_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *sessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
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
		Model(&types.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
}
