package include

import (
	"context"
	"io/fs"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cockroachdb/errors"
	"github.com/viant/afs"
)

// Reader gives the resolver access to documents on disk.
type Reader interface {
	// Read returns the file contents. A missing file yields an error matching
	// fs.ErrNotExist.
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Glob returns the files matching pattern, sorted.
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// AFSReader reads documents through an afs storage service.
type AFSReader struct {
	fs afs.Service
}

// NewAFSReader returns a Reader over the local filesystem.
func NewAFSReader() *AFSReader {
	return &AFSReader{fs: afs.New()}
}

func (r *AFSReader) Read(ctx context.Context, path string) ([]byte, error) {
	ok, err := r.fs.Exists(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	data, err := r.fs.DownloadWithURL(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}

func (r *AFSReader) Exists(ctx context.Context, path string) (bool, error) {
	return r.fs.Exists(ctx, path)
}

func (r *AFSReader) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", pattern)
	}
	sort.Strings(matches)
	return matches, nil
}
