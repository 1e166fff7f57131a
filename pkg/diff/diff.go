package diff

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

type options struct {
	logger             *log.Logger
	separateUnverified bool
}

// Option configures Compare
type Option func(*options)

// WithLogger sets the logger receiving per-path debug lines and same-age warnings
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// SeparateUnverified controls where paths go whose record on either side
// carries a failed check state. Enabled, the default, they land in the
// unverified bucket. Disabled, they are classified as differing and refined
// by modification time. They are never equal either way.
func SeparateUnverified(enabled bool) Option {
	return func(o *options) {
		o.separateUnverified = enabled
	}
}

// Compare classifies every path of other against this. The this-newer and
// same-age buckets hold the record from this, every other bucket holds the
// record from other. Paths that exist only in this are not visited.
// Compare panics with an *InvariantViolationError if the result fails Verify.
func Compare(this, other manifest.Manifest, opts ...Option) *Classification {
	o := options{separateUnverified: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	result := newClassification(len(this), len(other))

	for path, otherRecord := range other {
		thisRecord, exists := this[path]
		if !exists {
			logger.Debug("missing in this location", "path", path)
			result.Missing[path] = otherRecord
			continue
		}

		verified := otherRecord.OK() && thisRecord.OK()
		if !verified && o.separateUnverified {
			logger.Debug("check state not OK, not comparing", "path", path,
				"this", thisRecord.CheckState, "other", otherRecord.CheckState)
			result.Unverified[path] = otherRecord
			continue
		}

		if verified && otherRecord.Fingerprint.Equal(thisRecord.Fingerprint) {
			logger.Debug("equal in both locations", "path", path)
			result.Equal[path] = otherRecord
			continue
		}

		result.Differing[path] = otherRecord
		switch {
		case otherRecord.LastModified > thisRecord.LastModified:
			logger.Debug("differing, newer in other location", "path", path)
			result.DifferingOtherNewer[path] = otherRecord
		case otherRecord.LastModified < thisRecord.LastModified:
			logger.Debug("differing, newer in this location", "path", path)
			result.DifferingThisNewer[path] = thisRecord
		default:
			logger.Warn("content differs although modification times are identical",
				"path", path,
				"last_modified", thisRecord.LastModified,
				"this_checksum", thisRecord.Fingerprint,
				"other_checksum", otherRecord.Fingerprint)
			result.DifferingSameAge[path] = thisRecord
		}
	}

	if err := result.Verify(); err != nil {
		panic(err)
	}

	return result
}

// CompareBoth runs Compare in both directions. forward classifies other
// against this, reverse classifies this against other.
func CompareBoth(this, other manifest.Manifest, opts ...Option) (forward, reverse *Classification) {
	return Compare(this, other, opts...), Compare(other, this, opts...)
}
