package services

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
	"github.com/tigerphoto/photobooth-backend/internal/types"
)

func TestQRJobGenerate_RendersStoresAndReadies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.qrCodes.Create(ctx, nil, &types.QRCode{Slug: "Abc_12345", Status: types.QRStatusPending})
	require.NoError(t, err)

	svc := NewQRJobService(env.db, env.log, env.qrCodes, env.store, "https://booth.test")
	require.NoError(t, svc.Generate(ctx, code.ID))

	reloaded, err := env.qrCodes.GetByID(ctx, nil, code.ID)
	require.NoError(t, err)
	require.Equal(t, types.QRStatusReady, reloaded.Status)
	require.Equal(t, "mem://qr/Abc_12345.png", reloaded.QRImagePath)
	require.Equal(t, "https://cdn.test/qr/Abc_12345.png", reloaded.QRImageURL)
	require.Empty(t, reloaded.ErrorMessage)

	stored, ok := env.store.objects["qr/Abc_12345.png"]
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(stored))
	require.NoError(t, err)
	require.Positive(t, img.Bounds().Dx())
}

func TestQRJobGenerate_StorageFailureMarksFailedAndRaises(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.qrCodes.Create(ctx, nil, &types.QRCode{Slug: "Xyz_98765", Status: types.QRStatusPending})
	require.NoError(t, err)

	env.store.failErr = apperr.Storagef(errors.New("bucket unreachable"), "put %q", "qr/Xyz_98765.png")
	svc := NewQRJobService(env.db, env.log, env.qrCodes, env.store, "https://booth.test")

	err = svc.Generate(ctx, code.ID)
	require.ErrorIs(t, err, apperr.ErrStorage)

	reloaded, getErr := env.qrCodes.GetByID(ctx, nil, code.ID)
	require.NoError(t, getErr)
	require.Equal(t, types.QRStatusFailed, reloaded.Status)
	require.NotEmpty(t, reloaded.ErrorMessage)
	require.LessOrEqual(t, len(reloaded.ErrorMessage), 500)
}

func TestQRJobGenerate_RecoversAfterRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	code, err := env.qrCodes.Create(ctx, nil, &types.QRCode{Slug: "Rty_55555", Status: types.QRStatusPending})
	require.NoError(t, err)

	svc := NewQRJobService(env.db, env.log, env.qrCodes, env.store, "https://booth.test")
	env.store.failErr = apperr.Storagef(errors.New("flaky"), "put")
	require.Error(t, svc.Generate(ctx, code.ID))

	// Next attempt succeeds and clears the recorded error.
	env.store.failErr = nil
	require.NoError(t, svc.Generate(ctx, code.ID))

	reloaded, getErr := env.qrCodes.GetByID(ctx, nil, code.ID)
	require.NoError(t, getErr)
	require.Equal(t, types.QRStatusReady, reloaded.Status)
	require.Empty(t, reloaded.ErrorMessage)
	require.True(t, strings.HasSuffix(reloaded.QRImageURL, "qr/Rty_55555.png"))
}
