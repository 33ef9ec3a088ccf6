package qr

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/big"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// Pixels per QR module and quiet-zone width in modules. Fixed so every
	// issued code renders identically.
	moduleScale  = 8
	borderModule = 2

	slugLength   = 9
	slugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_"
)

// RenderPNG renders content as a QR code PNG at error-correction level M
// with the fixed module/border sizing.
func RenderPNG(content string) ([]byte, error) {
	code, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	code.DisableBorder = true

	inner := code.Image(-moduleScale)
	margin := borderModule * moduleScale
	bounds := inner.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx()+2*margin, bounds.Dy()+2*margin))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, bounds.Add(image.Pt(margin, margin)), inner, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("qr png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildRedirectURL derives the short redirect URL a QR code encodes.
func BuildRedirectURL(baseURL, slug string) string {
	return strings.TrimRight(baseURL, "/") + "/s/" + slug
}

// NewSlug returns a fresh URL-safe slug for a QR code.
func NewSlug() (string, error) {
	var b strings.Builder
	max := big.NewInt(int64(len(slugAlphabet)))
	for i := 0; i < slugLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(slugAlphabet[n.Int64()])
	}
	return b.String(), nil
}
