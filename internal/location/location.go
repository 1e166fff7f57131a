// Package location opens manifest sources and sinks named by the user:
// "-" for stdio, an s3:// URI, or a local path.
package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/yuya-takeyama/fs-manifest/internal/s3client"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

// Stdio is the location name for stdin or stdout
const Stdio = "-"

// objectStore is implemented by *s3client.Client
type objectStore interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Create(ctx context.Context, bucket, key string) io.WriteCloser
}

// Resolver maps location names to readers and writers. The S3 client is
// only built the first time an s3:// location is used.
type Resolver struct {
	Stdin  io.Reader
	Stdout io.Writer

	newStore func(ctx context.Context) (objectStore, error)

	mu    sync.Mutex
	store objectStore
}

// New creates a Resolver that talks to S3 with the given options
func New(opts s3client.Options) *Resolver {
	return &Resolver{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		newStore: func(ctx context.Context) (objectStore, error) {
			cfg, err := s3client.LoadConfig(ctx, opts)
			if err != nil {
				return nil, err
			}
			return s3client.NewClient(cfg, opts), nil
		},
	}
}

func (r *Resolver) objects(ctx context.Context) (objectStore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return r.store, nil
	}
	if r.newStore == nil {
		return nil, errors.New("s3 locations are not configured")
	}
	store, err := r.newStore(ctx)
	if err != nil {
		return nil, err
	}
	r.store = store
	return store, nil
}

// Open returns a reader for loc. A missing file or object yields
// manifest.ErrInputNotFound.
func (r *Resolver) Open(ctx context.Context, loc string) (io.ReadCloser, error) {
	switch {
	case loc == Stdio:
		return io.NopCloser(r.Stdin), nil
	case s3client.IsURI(loc):
		bucket, key, err := s3client.ParseURI(loc)
		if err != nil {
			return nil, err
		}
		store, err := r.objects(ctx)
		if err != nil {
			return nil, err
		}
		return store.Open(ctx, bucket, key)
	default:
		file, err := os.Open(loc)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", manifest.ErrInputNotFound, loc)
			}
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return file, nil
	}
}

// Create returns a writer for loc, creating local parent directories
func (r *Resolver) Create(ctx context.Context, loc string) (io.WriteCloser, error) {
	switch {
	case loc == Stdio:
		return nopWriteCloser{r.Stdout}, nil
	case s3client.IsURI(loc):
		bucket, key, err := s3client.ParseURI(loc)
		if err != nil {
			return nil, err
		}
		if key == "" {
			return nil, fmt.Errorf("s3 location %s has no object key", loc)
		}
		store, err := r.objects(ctx)
		if err != nil {
			return nil, err
		}
		return store.Create(ctx, bucket, key), nil
	default:
		if err := os.MkdirAll(filepath.Dir(loc), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", loc, err)
		}
		file, err := os.Create(loc)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", loc, err)
		}
		return file, nil
	}
}

// Exists reports whether loc can be opened. Stdio always exists.
func (r *Resolver) Exists(ctx context.Context, loc string) (bool, error) {
	switch {
	case loc == Stdio:
		return true, nil
	case s3client.IsURI(loc):
		bucket, key, err := s3client.ParseURI(loc)
		if err != nil {
			return false, err
		}
		store, err := r.objects(ctx)
		if err != nil {
			return false, err
		}
		return store.Exists(ctx, bucket, key)
	default:
		_, err := os.Stat(loc)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", loc, err)
	}
}

// Join appends a file name to a directory or key prefix location
func (r *Resolver) Join(base, name string) string {
	if s3client.IsURI(base) {
		bucket, key, err := s3client.ParseURI(base)
		if err == nil {
			return s3client.FormatURI(bucket, s3client.JoinKey(key, name))
		}
	}
	return filepath.Join(base, name)
}

// LoadManifest opens loc and parses it as a manifest
func (r *Resolver) LoadManifest(ctx context.Context, loc string, opts ...manifest.LoadOption) (manifest.Manifest, error) {
	rc, err := r.Open(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	m, err := manifest.Load(rc, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", loc, err)
	}
	return m, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
