package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// partSize is the multipart chunk size. Run documents are far smaller, so
// uploads normally complete in a single PutObject.
const partSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter with the S3 upload manager.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that uploads into c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		uploader: manager.NewUploader(c.s3, func(u *manager.Uploader) {
			u.PartSize = partSize
			u.Concurrency = 2
		}),
		bucket: c.bucket,
	}
}

// Put uploads data to path. Large bodies are split into parts automatically.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(path),
		Body:   data,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := w.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

var _ domain.BlobWriter = (*Writer)(nil)
