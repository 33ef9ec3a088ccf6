package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/logger"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

type ImageAssetRepo interface {
	Create(ctx context.Context, tx *gorm.DB, asset *types.ImageAsset) (*types.ImageAsset, error)
	// LatestBySessionAndKind resolves "latest" by descending id, which
	// tracks creation order for the append-only ORIGINAL/AI history.
	LatestBySessionAndKind(ctx context.Context, tx *gorm.DB, sessionID int64, kind types.ImageKind) (*types.ImageAsset, error)
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID int64) ([]*types.ImageAsset, error)
}

type imageAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImageAssetRepo(db *gorm.DB, baseLog *logger.Logger) ImageAssetRepo {
	return &imageAssetRepo{db: db, log: baseLog.With("repo", "ImageAssetRepo")}
}

func (r *imageAssetRepo) Create(ctx context.Context, tx *gorm.DB, asset *types.ImageAsset) (*types.ImageAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *imageAssetRepo) LatestBySessionAndKind(ctx context.Context, tx *gorm.DB, sessionID int64, kind types.ImageKind) (*types.ImageAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var asset types.ImageAsset
	err := transaction.WithContext(ctx).
		Where("session_id = ? AND kind = ?", sessionID, kind).
		Order("id DESC").
		First(&asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *imageAssetRepo) ListBySession(ctx context.Context, tx *gorm.DB, sessionID int64) ([]*types.ImageAsset, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImageAsset
	if err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
