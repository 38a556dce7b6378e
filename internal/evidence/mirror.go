package evidence

import (
	"context"

	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Saver stores a screenshot and returns its local path.
type Saver interface {
	Save(ctx context.Context, name string, png []byte) (string, error)
}

// S3Mirror saves locally first, then copies the same bytes to a bucket under
// <prefix>/<runID>/<name>. A failed upload fails the save.
type S3Mirror struct {
	Local  Saver
	Bucket *Bucket
	Prefix string
}

// NewS3Mirror wraps local with a bucket copy.
func NewS3Mirror(local Saver, bucket *Bucket, prefix string) *S3Mirror {
	return &S3Mirror{Local: local, Bucket: bucket, Prefix: prefix}
}

// Save implements Saver.
func (m *S3Mirror) Save(ctx context.Context, name string, png []byte) (string, error) {
	path, err := m.Local.Save(ctx, name, png)
	if err != nil {
		return "", err
	}
	key := ObjectKey(m.Prefix, obs.RunIDFromContext(ctx), name)
	if err := m.Bucket.PutObject(ctx, key, png, PNGContentType); err != nil {
		return "", err
	}
	obs.From(ctx).Info("screenshot mirrored", "bucket", m.Bucket.Name(), "key", key)
	return path, nil
}
