package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuya-takeyama/fs-manifest/pkg/fingerprint"
)

// maxLineSize caps a single record line
const maxLineSize = 16 * 1024 * 1024

// Manifest maps relative paths to their records
type Manifest map[string]Record

// Len returns the number of records
func (m Manifest) Len() int {
	return len(m)
}

// Get looks up a record by path
func (m Manifest) Get(path string) (Record, bool) {
	r, ok := m[path]
	return r, ok
}

// Paths returns all paths in lexical order
func (m Manifest) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Records returns all records ordered by path
func (m Manifest) Records() []Record {
	records := make([]Record, 0, len(m))
	for _, p := range m.Paths() {
		records = append(records, m[p])
	}
	return records
}

// Filter returns a copy of m without records matching any of the
// patterns. A pattern ending in "/" drops everything below that directory.
func (m Manifest) Filter(patterns []string) (Manifest, error) {
	expanded := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if strings.HasSuffix(pattern, "/") {
			pattern += "**"
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		expanded = append(expanded, pattern)
	}

	filtered := make(Manifest, len(m))
	for path, record := range m {
		if matchAny(expanded, path) {
			continue
		}
		filtered[path] = record
	}
	return filtered, nil
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, _ := doublestar.Match(pattern, path); matched {
			return true
		}
	}
	return false
}

type loadOptions struct {
	intKind fingerprint.Kind
}

// LoadOption configures Load
type LoadOption func(*loadOptions)

// WithIntegerKind sets the fingerprint kind given to integer checksums.
// The default is fingerprint.KindWeak.
func WithIntegerKind(kind fingerprint.Kind) LoadOption {
	return func(o *loadOptions) {
		o.intKind = kind
	}
}

// wireRecord keeps the checksum raw so presence and integer kind can be decided here
type wireRecord struct {
	Path         *string         `json:"path"`
	Size         int64           `json:"size"`
	LastModified float64         `json:"last_modified"`
	Checksum     json.RawMessage `json:"checksum"`
	CheckState   *string         `json:"check_state"`
}

// Load reads a line-delimited record stream. Blank lines are skipped,
// later duplicates replace earlier ones, and the first unparsable line
// aborts the load with a *MalformedRecordError.
func Load(r io.Reader, opts ...LoadOption) (Manifest, error) {
	o := loadOptions{intKind: fingerprint.KindWeak}
	for _, opt := range opts {
		opt(&o)
	}

	m := make(Manifest)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		record, err := parseRecord(line, o)
		if err != nil {
			return nil, &MalformedRecordError{Line: lineNo, Err: err}
		}
		m[record.Path] = record
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return m, nil
}

func parseRecord(line []byte, o loadOptions) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(line, &w); err != nil {
		return Record{}, err
	}
	if w.Path == nil {
		return Record{}, errors.New(`missing "path" field`)
	}
	if w.Checksum == nil {
		return Record{}, errors.New(`missing "checksum" field`)
	}

	fp, err := fingerprint.Decode(w.Checksum, o.intKind)
	if err != nil {
		return Record{}, err
	}

	state := StateOK
	if w.CheckState != nil {
		state = *w.CheckState
	}

	return Record{
		Path:         *w.Path,
		Size:         w.Size,
		LastModified: w.LastModified,
		Fingerprint:  fp,
		CheckState:   state,
	}, nil
}

// LoadFile loads the manifest stored at path
func LoadFile(path string, opts ...LoadOption) (Manifest, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	return Load(file, opts...)
}
