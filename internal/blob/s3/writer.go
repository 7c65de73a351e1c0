package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 rejects multipart parts below 5 MiB except the last.
const minPartSize int64 = 5 << 20

// Writer is the write side of the archive bucket.
type Writer struct{ c *Client }

// NewWriter creates a Writer over c's bucket.
func NewWriter(c *Client) *Writer { return &Writer{c: c} }

// Put stores one trade-log batch with a single PutObject.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	bucket, key := w.c.key(path)
	in := &s3.PutObjectInput{Bucket: bucket, Key: key, Body: data}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := w.c.api.PutObject(ctx, in); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams a large batch through the upload manager.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	bucket, key := w.c.key(path)
	up := manager.NewUploader(w.c.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	if _, err := up.Upload(ctx, &s3.PutObjectInput{
		Bucket:      bucket,
		Key:         key,
		Body:        data,
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", path, err)
	}
	return nil
}
