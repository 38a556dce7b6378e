// Package evidence persists journey screenshots. FileStore writes them under
// the output directory; S3Mirror additionally copies them to object storage.
package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// PNGContentType is the content type of every stored screenshot.
const PNGContentType = "image/png"

// FileStore writes screenshots to Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Save writes png to Dir/name and returns the path. The write only counts if
// the file on disk is non-empty afterwards.
func (s *FileStore) Save(ctx context.Context, name string, png []byte) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if len(png) == 0 {
		return "", errs.New(errs.InvalidArgument, "screenshot is empty: "+name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", errs.Wrap(errs.Internal, "create output directory", err)
	}

	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", errs.Wrap(errs.Internal, "write "+path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", errs.Wrap(errs.Internal, "stat "+path, err)
	}
	if info.Size() == 0 {
		return "", errs.New(errs.Internal, "screenshot written as zero bytes: "+path)
	}

	obs.From(ctx).Info("screenshot saved", "path", path, "bytes", info.Size())
	return path, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errs.New(errs.InvalidArgument, "invalid evidence name: "+name)
	}
	return nil
}
