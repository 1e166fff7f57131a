// Package diff classifies the records of one manifest against another.
//
// Compare iterates the "other" manifest and puts every path into exactly
// one of missing, equal, unverified or differing. Differing paths are
// split again by which side has the newer modification time.
package diff

import (
	"errors"
	"fmt"

	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

// Bucket names a classification outcome
type Bucket string

const (
	BucketMissing             Bucket = "missing"
	BucketEqual               Bucket = "equal"
	BucketDiffering           Bucket = "differing"
	BucketDifferingOtherNewer Bucket = "differing_other_newer"
	BucketDifferingThisNewer  Bucket = "differing_this_newer"
	BucketDifferingSameAge    Bucket = "differing_same_age"
	BucketUnverified          Bucket = "unverified"
)

// ErrInvariantViolation is wrapped by InvariantViolationError
var ErrInvariantViolation = errors.New("classification invariant violated")

// InvariantViolationError carries the bucket sizes that failed the self-check
type InvariantViolationError struct {
	Reason string
	Counts Counts
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrInvariantViolation, e.Reason, e.Counts)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// Classification holds the buckets of one Compare run. Each bucket maps a
// path to the record it was classified with.
type Classification struct {
	Missing             manifest.Manifest
	Equal               manifest.Manifest
	Differing           manifest.Manifest
	DifferingOtherNewer manifest.Manifest
	DifferingThisNewer  manifest.Manifest
	DifferingSameAge    manifest.Manifest
	Unverified          manifest.Manifest

	thisTotal  int
	otherTotal int
}

func newClassification(thisTotal, otherTotal int) *Classification {
	return &Classification{
		Missing:             manifest.Manifest{},
		Equal:               manifest.Manifest{},
		Differing:           manifest.Manifest{},
		DifferingOtherNewer: manifest.Manifest{},
		DifferingThisNewer:  manifest.Manifest{},
		DifferingSameAge:    manifest.Manifest{},
		Unverified:          manifest.Manifest{},
		thisTotal:           thisTotal,
		otherTotal:          otherTotal,
	}
}

// Counts summarizes bucket sizes
type Counts struct {
	This                int
	Other               int
	Missing             int
	Equal               int
	Differing           int
	DifferingOtherNewer int
	DifferingThisNewer  int
	DifferingSameAge    int
	Unverified          int
}

func (c Counts) String() string {
	return fmt.Sprintf("this=%d other=%d missing=%d equal=%d differing=%d other_newer=%d this_newer=%d same_age=%d unverified=%d",
		c.This, c.Other, c.Missing, c.Equal, c.Differing,
		c.DifferingOtherNewer, c.DifferingThisNewer, c.DifferingSameAge, c.Unverified)
}

// Counts returns the size of every bucket
func (c *Classification) Counts() Counts {
	return Counts{
		This:                c.thisTotal,
		Other:               c.otherTotal,
		Missing:             len(c.Missing),
		Equal:               len(c.Equal),
		Differing:           len(c.Differing),
		DifferingOtherNewer: len(c.DifferingOtherNewer),
		DifferingThisNewer:  len(c.DifferingThisNewer),
		DifferingSameAge:    len(c.DifferingSameAge),
		Unverified:          len(c.Unverified),
	}
}

// Lookup returns the most specific bucket holding path
func (c *Classification) Lookup(path string) (Bucket, bool) {
	for _, b := range c.leafBuckets() {
		if _, ok := b.records[path]; ok {
			return b.name, true
		}
	}
	return "", false
}

// Bucket returns the records of the named bucket
func (c *Classification) Bucket(name Bucket) manifest.Manifest {
	if name == BucketDiffering {
		return c.Differing
	}
	for _, b := range c.leafBuckets() {
		if b.name == name {
			return b.records
		}
	}
	return nil
}

type namedBucket struct {
	name    Bucket
	records manifest.Manifest
}

// leafBuckets lists the mutually exclusive buckets
func (c *Classification) leafBuckets() []namedBucket {
	return []namedBucket{
		{BucketMissing, c.Missing},
		{BucketEqual, c.Equal},
		{BucketDifferingOtherNewer, c.DifferingOtherNewer},
		{BucketDifferingThisNewer, c.DifferingThisNewer},
		{BucketDifferingSameAge, c.DifferingSameAge},
		{BucketUnverified, c.Unverified},
	}
}

// Verify checks that the buckets partition the other manifest: the coarse
// and the refined bucket sizes both sum to its length, differing is the
// union of its refinements, and no path sits in two buckets.
func (c *Classification) Verify() error {
	n := c.Counts()

	if coarse := n.Missing + n.Equal + n.Differing + n.Unverified; coarse != n.Other {
		return &InvariantViolationError{
			Reason: fmt.Sprintf("missing+equal+differing+unverified = %d, other has %d", coarse, n.Other),
			Counts: n,
		}
	}

	refined := n.Missing + n.Equal + n.DifferingOtherNewer + n.DifferingThisNewer + n.DifferingSameAge + n.Unverified
	if refined != n.Other {
		return &InvariantViolationError{
			Reason: fmt.Sprintf("refined bucket sum = %d, other has %d", refined, n.Other),
			Counts: n,
		}
	}

	seen := make(map[string]Bucket, n.Other)
	for _, b := range c.leafBuckets() {
		for path := range b.records {
			if prev, dup := seen[path]; dup {
				return &InvariantViolationError{
					Reason: fmt.Sprintf("%s is in both %s and %s", path, prev, b.name),
					Counts: n,
				}
			}
			seen[path] = b.name
		}
	}

	for path := range c.Differing {
		switch seen[path] {
		case BucketDifferingOtherNewer, BucketDifferingThisNewer, BucketDifferingSameAge:
		default:
			return &InvariantViolationError{
				Reason: fmt.Sprintf("%s is differing but has no age refinement", path),
				Counts: n,
			}
		}
	}

	return nil
}
