package services

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/jobs"
	"github.com/tigerphoto/photobooth-backend/internal/logger"
	qrpkg "github.com/tigerphoto/photobooth-backend/internal/qr"
	"github.com/tigerphoto/photobooth-backend/internal/repos"
	"github.com/tigerphoto/photobooth-backend/internal/storage"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

// QRJobService renders the scannable PNG for a session's QR code and
// uploads it to object storage. Runs off the durable queue with up to three
// attempts per code.
type QRJobService struct {
	db      *gorm.DB
	log     *logger.Logger
	qrCodes repos.QRCodeRepo
	store   storage.Storage
	baseURL string
}

func NewQRJobService(db *gorm.DB, baseLog *logger.Logger, qrCodes repos.QRCodeRepo, store storage.Storage, baseURL string) *QRJobService {
	return &QRJobService{
		db:      db,
		log:     baseLog.With("component", "QRJobService"),
		qrCodes: qrCodes,
		store:   store,
		baseURL: baseURL,
	}
}

func (s *QRJobService) Type() string { return jobs.TypeQRGenerate }

func (s *QRJobService) Run(ctx context.Context, run *types.JobRun) error {
	var payload jobs.QRPayload
	if err := json.Unmarshal(run.Payload, &payload); err != nil {
		return apperr.Validationf("malformed qr payload: %v", err)
	}
	if payload.QRCodeID == 0 {
		return apperr.Validationf("qr payload missing qr_code_id")
	}
	return s.Generate(ctx, payload.QRCodeID)
}

// Generate renders and stores the PNG under a row lock, then flips the code
// to READY. Any error flips it to FAILED (outside the rolled-back
// transaction) and is re-raised so the queue can retry.
func (s *QRJobService) Generate(ctx context.Context, qrCodeID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		code, err := s.qrCodes.GetByIDForUpdate(ctx, tx, qrCodeID)
		if err != nil {
			return err
		}
		if code == nil {
			return apperr.NotFoundf("qr code %d", qrCodeID)
		}
		redirectURL := qrpkg.BuildRedirectURL(s.baseURL, code.Slug)
		png, err := qrpkg.RenderPNG(redirectURL)
		if err != nil {
			return err
		}
		objectName := fmt.Sprintf("qr/%s.png", code.Slug)
		path, publicURL, err := s.store.PutBytes(ctx, png, objectName, "image/png")
		if err != nil {
			return err
		}
		return s.qrCodes.UpdateFields(ctx, tx, qrCodeID, map[string]interface{}{
			"qr_image_path": path,
			"qr_image_url":  publicURL,
			"status":        types.QRStatusReady,
			"error_message": "",
		})
	})
	if err != nil {
		s.markFailed(ctx, qrCodeID, err)
		return err
	}
	return nil
}

func (s *QRJobService) markFailed(ctx context.Context, qrCodeID int64, cause error) {
	msg := cause.Error()
	if len(msg) > maxRecordedErrorLen {
		msg = msg[:maxRecordedErrorLen]
	}
	if err := s.qrCodes.UpdateFields(ctx, nil, qrCodeID, map[string]interface{}{
		"status":        types.QRStatusFailed,
		"error_message": msg,
	}); err != nil {
		s.log.Error("Failed to mark qr code failed", "qr_code_id", qrCodeID, "error", err, "cause", msg)
	}
}
