package imaging

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ProbeDimensions reads just enough of data to report the image's pixel
// dimensions and detected format. PNG, JPEG, GIF and WebP are recognized.
func ProbeDimensions(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}
