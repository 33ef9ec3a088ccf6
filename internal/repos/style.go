package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

type StyleRepo interface {
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Style, error)
	GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Style, error)
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Style, error)
	Upsert(ctx context.Context, tx *gorm.DB, style *types.Style) error
}

type styleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStyleRepo(db *gorm.DB, baseLog *logger.Logger) StyleRepo {
	return &styleRepo{db: db, log: baseLog.With("repo", "StyleRepo")}
}

func (r *styleRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.Style, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var style types.Style
	err := transaction.WithContext(ctx).First(&style, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &style, nil
}

func (r *styleRepo) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*types.Style, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var style types.Style
	err := transaction.WithContext(ctx).First(&style, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &style, nil
}

func (r *styleRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Style, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Style
	if err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *styleRepo) Upsert(ctx context.Context, tx *gorm.DB, style *types.Style) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	existing, err := r.GetByCode(ctx, transaction, style.Code)
	if err != nil {
		return err
	}
	if existing == nil {
		return transaction.WithContext(ctx).Create(style).Error
	}
	style.ID = existing.ID
	return transaction.WithContext(ctx).
		Model(&types.Style{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"name":          style.Name,
			"description":   style.Description,
			"prompt":        style.Prompt,
			"is_active":     style.IsActive,
			"thumbnail_url": style.ThumbnailURL,
		}).Error
}
