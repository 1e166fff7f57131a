// Package manifest holds the record model of a scanned tree and reads and
// writes it in line-delimited JSON.
package manifest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yuya-takeyama/fs-manifest/pkg/fingerprint"
)

// StateOK marks a record whose stat and fingerprint succeeded
const StateOK = "OK"

var (
	// ErrInputNotFound is returned when a manifest or scan root does not exist
	ErrInputNotFound = errors.New("input not found")
	// ErrMalformedRecord is wrapped by every MalformedRecordError
	ErrMalformedRecord = errors.New("malformed record")
)

// MalformedRecordError reports the line that could not be parsed
type MalformedRecordError struct {
	Line int
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record on line %d: %v", e.Line, e.Err)
}

func (e *MalformedRecordError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}

// Record is one file entry of a manifest
type Record struct {
	Path         string                  `json:"path"`
	Size         int64                   `json:"size"`
	LastModified float64                 `json:"last_modified"`
	Fingerprint  fingerprint.Fingerprint `json:"checksum"`
	CheckState   string                  `json:"check_state"`
}

// OK reports whether the record was read without error
func (r Record) OK() bool {
	return r.CheckState == StateOK
}

// ModTime converts LastModified back to a time.Time
func (r Record) ModTime() time.Time {
	sec, frac := math.Modf(r.LastModified)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// EpochSeconds converts t to the float representation used on the wire
func EpochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/1e9
}
