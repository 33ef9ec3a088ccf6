package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Storage is the content-addressable blob store boundary: bytes in, a
// durable path and a publicly resolvable URL out. Implementations do not
// retry; the caller owns retry policy.
type Storage interface {
	PutBytes(ctx context.Context, data []byte, objectName, contentType string) (storagePath, publicURL string, err error)
}

// BuildObjectName generates a collision-free object key under prefix,
// keeping the original file extension when present.
func BuildObjectName(prefix, filename string) string {
	ext := "bin"
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		ext = strings.ToLower(filename[i+1:])
	}
	return fmt.Sprintf("%s/%s.%s", prefix, strings.ReplaceAll(uuid.New().String(), "-", ""), ext)
}
