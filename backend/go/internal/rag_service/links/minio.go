package links

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
)

const defaultExpiry = 15 * time.Minute

// MinioLinker presigns GET links to the original files behind search results.
type MinioLinker struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinioLinker builds a resolver for objects in bucket. expiry <= 0 uses 15m.
func NewMinioLinker(client *minio.Client, bucket string, expiry time.Duration) *MinioLinker {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &MinioLinker{client: client, bucket: bucket, expiry: expiry}
}

// DownloadURL returns a presigned link; the browser downloads under the object's base name.
func (l *MinioLinker) DownloadURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("empty object key")
	}
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectKey)))
	u, err := l.client.PresignedGetObject(ctx, l.bucket, objectKey, l.expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", l.bucket, objectKey, err)
	}
	return u.String(), nil
}

// None resolves nothing; results keep an empty download URL.
type None struct{}

func (None) DownloadURL(context.Context, string) (string, error) { return "", nil }

var (
	_ interfaces.LinkResolver = (*MinioLinker)(nil)
	_ interfaces.LinkResolver = None{}
)
