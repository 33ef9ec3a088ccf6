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

type AIJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.AIJob) (*types.AIJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.AIJob, error)
	// GetByIDForUpdate acquires an exclusive row lock. Only valid inside a
	// transaction.
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*types.AIJob, error)
	GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*types.AIJob, error)
	GetLatestBySession(ctx context.Context, tx *gorm.DB, sessionID int64) (*types.AIJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error
}

type aiJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAIJobRepo(db *gorm.DB, baseLog *logger.Logger) AIJobRepo {
	return &aiJobRepo{db: db, log: baseLog.With("repo", "AIJobRepo")}
}

func (r *aiJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.AIJob) (*types.AIJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *aiJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.AIJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.AIJob
	err := transaction.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *aiJobRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*types.AIJob, error) {
	if tx == nil {
		return nil, errors.New("row lock requires a transaction")
	}
	q := tx.WithContext(ctx)
	if useRowLocks(tx) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var job types.AIJob
	err := q.First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *aiJobRepo) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*types.AIJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.AIJob
	err := transaction.WithContext(ctx).First(&job, "request_id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *aiJobRepo) GetLatestBySession(ctx context.Context, tx *gorm.DB, sessionID int64) (*types.AIJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var job types.AIJob
	err := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *aiJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
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
		Model(&types.AIJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}
