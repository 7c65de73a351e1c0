package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// Reader is the read side of the archive bucket.
type Reader struct{ c *Client }

// NewReader creates a Reader over c's bucket.
func NewReader(c *Client) *Reader { return &Reader{c: c} }

// Get opens the object at path. The caller closes the body. A missing key
// maps to domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	bucket, key := r.c.key(path)
	out, err := r.c.api.GetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: key})
	if err != nil {
		return nil, fmt.Errorf("s3blob: get %s: %w", path, mapNotFound(err))
	}
	return out.Body, nil
}

// List walks every page under prefix.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	p := s3.NewListObjectsV2Paginator(r.c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.c.bucket),
		Prefix: aws.String(prefix),
	})

	var infos []domain.BlobInfo
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Exists is a HEAD on path. The archiver uses it to avoid uploading a batch
// twice after a failed prune.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key := r.c.key(path)
	_, err := r.c.api.HeadObject(ctx, &s3.HeadObjectInput{Bucket: bucket, Key: key})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(mapNotFound(err), domain.ErrNotFound):
		return false, nil
	}
	return false, fmt.Errorf("s3blob: head %s: %w", path, err)
}

// mapNotFound turns the SDK's flavours of "no such key" into
// domain.ErrNotFound. HEAD carries no error body, so some providers only
// surface the status code.
func mapNotFound(err error) error {
	var (
		noKey   *types.NoSuchKey
		missing *types.NotFound
		status  interface{ HTTPStatusCode() int }
	)
	if errors.As(err, &noKey) || errors.As(err, &missing) ||
		(errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound) {
		return domain.ErrNotFound
	}
	return err
}
