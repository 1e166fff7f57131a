// Package scanner walks a directory tree and turns every regular file into
// a manifest record.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/charmbracelet/log"
	"github.com/yuya-takeyama/fs-manifest/pkg/fingerprint"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

// ErrNotDirectory is returned when the scan root is not a directory
var ErrNotDirectory = errors.New("not a directory")

// ErrInvalidName is the check state of files whose relative path is not
// valid UTF-8. Their record path carries the offending bytes as \xNN.
var ErrInvalidName = errors.New("file name is not valid UTF-8")

// Options configures a Scanner
type Options struct {
	// Root is the entry directory of the scan.
	Root string

	// Strategy computes record fingerprints. Nil means fingerprint.NoneStrategy.
	Strategy fingerprint.Strategy

	// Exclude holds doublestar patterns matched against record paths.
	// A pattern ending in "/" only matches directories, whose whole
	// subtree is skipped.
	Exclude []string

	// RelativeToRoot makes record paths relative to Root itself. By default
	// they are relative to Root's parent, so they start with Root's base name.
	RelativeToRoot bool

	// Workers is the number of fastwalk workers. Zero uses fastwalk's default.
	Workers int

	Logger *log.Logger
}

// Stats summarizes a finished scan
type Stats struct {
	Files       int64
	Errors      int64
	Skipped     int64
	ContentSize int64
	Duration    time.Duration
}

// Scanner produces the records of one tree
type Scanner struct {
	opts   Options
	root   string
	base   string
	logger *log.Logger
}

// New validates the options and resolves the root
func New(opts Options) (*Scanner, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", manifest.ErrInputNotFound, opts.Root)
		}
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, opts.Root)
	}

	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(strings.TrimSuffix(pattern, "/")) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	if opts.Strategy == nil {
		opts.Strategy = fingerprint.NoneStrategy{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	base := filepath.Dir(root)
	if opts.RelativeToRoot {
		base = root
	}

	return &Scanner{
		opts:   opts,
		root:   root,
		base:   base,
		logger: logger,
	}, nil
}

// Root returns the absolute scan root
func (s *Scanner) Root() string {
	return s.root
}

// scanState collects results from concurrent walk callbacks
type scanState struct {
	mu      sync.Mutex
	records []manifest.Record

	files   atomic.Int64
	errors  atomic.Int64
	skipped atomic.Int64
	bytes   atomic.Int64
}

func (st *scanState) add(r manifest.Record) {
	st.mu.Lock()
	st.records = append(st.records, r)
	st.mu.Unlock()
	st.files.Add(1)
}

// Scan walks the tree and calls emit once per record in path order. A
// file that cannot be stat'ed or fingerprinted still yields a record,
// with the error text as its check state.
func (s *Scanner) Scan(ctx context.Context, emit func(manifest.Record) error) (Stats, error) {
	start := time.Now()
	state := &scanState{}

	conf := fastwalk.Config{
		Follow:     false,
		NumWorkers: s.opts.Workers,
	}

	err := fastwalk.Walk(&conf, s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			s.logger.Warn("unable to read entry", "path", path, "err", walkErr)
			state.errors.Add(1)
			return nil
		}

		if path == s.root {
			return nil
		}

		relPath, err := s.relPath(path)
		if err != nil {
			return err
		}
		relPath, validName := escapeName(relPath)

		if d.IsDir() {
			if s.isExcluded(relPath, true) {
				s.logger.Debug("excluded directory", "path", relPath)
				return fastwalk.SkipDir
			}
			return nil
		}

		if s.isExcluded(relPath, false) {
			s.logger.Debug("excluded file", "path", relPath)
			return nil
		}

		s.processFile(path, relPath, validName, state)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Stats{}, fmt.Errorf("scan interrupted: %w", err)
		}
		return Stats{}, fmt.Errorf("walk directory: %w", err)
	}

	sort.Slice(state.records, func(i, j int) bool {
		return state.records[i].Path < state.records[j].Path
	})

	for _, r := range state.records {
		if err := emit(r); err != nil {
			return Stats{}, fmt.Errorf("emit record %s: %w", r.Path, err)
		}
	}

	return Stats{
		Files:       state.files.Load(),
		Errors:      state.errors.Load(),
		Skipped:     state.skipped.Load(),
		ContentSize: state.bytes.Load(),
		Duration:    time.Since(start),
	}, nil
}

// processFile stats path, following symlinks, and records it if it is a regular file
func (s *Scanner) processFile(path, relPath string, validName bool, state *scanState) {
	info, err := os.Stat(path)
	if err != nil {
		s.logger.Error("unable to process file", "path", relPath, "err", err)
		state.errors.Add(1)
		state.add(manifest.Record{
			Path:        relPath,
			Fingerprint: fingerprint.None(),
			CheckState:  err.Error(),
		})
		return
	}

	if !info.Mode().IsRegular() {
		s.logger.Warn("not a regular file, skipping", "path", relPath)
		state.skipped.Add(1)
		return
	}

	record := manifest.Record{
		Path:         relPath,
		Size:         info.Size(),
		LastModified: manifest.EpochSeconds(info.ModTime()),
		CheckState:   manifest.StateOK,
	}
	state.bytes.Add(info.Size())

	if !validName {
		s.logger.Error("unable to record file", "path", relPath, "err", ErrInvalidName)
		state.errors.Add(1)
		record.Fingerprint = fingerprint.None()
		record.CheckState = ErrInvalidName.Error()
		state.add(record)
		return
	}

	fp, err := s.opts.Strategy.Compute(path, info)
	if err != nil {
		s.logger.Error("unable to fingerprint file", "path", relPath, "err", err)
		state.errors.Add(1)
		record.Fingerprint = fingerprint.None()
		record.CheckState = err.Error()
	} else {
		record.Fingerprint = fp
	}

	state.add(record)
}

func (s *Scanner) relPath(path string) (string, error) {
	rel, err := filepath.Rel(s.base, path)
	if err != nil {
		return "", fmt.Errorf("get relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// escapeName replaces bytes that are not valid UTF-8 with \xNN so that
// distinct names stay distinct once encoded as JSON. ok is false if any
// byte was replaced.
func escapeName(name string) (escaped string, ok bool) {
	if utf8.ValidString(name) {
		return name, true
	}

	var b strings.Builder
	for i := 0; i < len(name); {
		r, size := utf8.DecodeRuneInString(name[i:])
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&b, `\x%02x`, name[i])
		} else {
			b.WriteString(name[i : i+size])
		}
		i += size
	}
	return b.String(), false
}

// isExcluded checks relPath against the exclude patterns. Directory-only
// patterns (trailing "/") are applied to directories alone.
func (s *Scanner) isExcluded(relPath string, isDir bool) bool {
	for _, pattern := range s.opts.Exclude {
		if strings.HasSuffix(pattern, "/") {
			if !isDir {
				continue
			}
			pattern = strings.TrimSuffix(pattern, "/")
		}
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
	}
	return false
}
