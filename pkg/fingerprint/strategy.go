package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"hash/adler32"
	"io"
	"io/fs"
	"os"
)

// chunkSize bounds the memory used per file while hashing
const chunkSize = 1024

// Strategy names accepted by ParseStrategy
const (
	StrategyNone   = "none"
	StrategySize   = "size"
	StrategySimple = "simple"
	StrategyStrong = "strong"
)

// ErrUnknownStrategy is returned by ParseStrategy for names it does not know
var ErrUnknownStrategy = errors.New("unknown checksum strategy")

// Strategy computes a fingerprint for a file that has already been stat'ed
type Strategy interface {
	Name() string
	Compute(path string, info fs.FileInfo) (Fingerprint, error)
}

// Names lists the strategy names in order of increasing cost
func Names() []string {
	return []string{StrategyNone, StrategySize, StrategySimple, StrategyStrong}
}

// ParseStrategy returns the strategy registered under name
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case StrategyNone:
		return NoneStrategy{}, nil
	case StrategySize:
		return SizeStrategy{}, nil
	case StrategySimple:
		return SimpleStrategy{}, nil
	case StrategyStrong:
		return StrongStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %v)", ErrUnknownStrategy, name, Names())
	}
}

// NoneStrategy never reads the file. Every record compares equal to every
// other None record, so it only suits existence checks.
type NoneStrategy struct{}

func (NoneStrategy) Name() string { return StrategyNone }

func (NoneStrategy) Compute(string, fs.FileInfo) (Fingerprint, error) {
	return None(), nil
}

// SizeStrategy uses the byte count. Collides for any two files of equal length.
type SizeStrategy struct{}

func (SizeStrategy) Name() string { return StrategySize }

func (SizeStrategy) Compute(_ string, info fs.FileInfo) (Fingerprint, error) {
	return Size(info.Size()), nil
}

// SimpleStrategy computes an Adler-32 checksum chunk by chunk
type SimpleStrategy struct{}

func (SimpleStrategy) Name() string { return StrategySimple }

func (SimpleStrategy) Compute(path string, _ fs.FileInfo) (Fingerprint, error) {
	h := adler32.New()
	if err := hashFile(path, h); err != nil {
		return None(), err
	}
	return Weak(h.Sum32()), nil
}

// StrongStrategy computes an MD5 digest and returns it hex encoded
type StrongStrategy struct{}

func (StrongStrategy) Name() string { return StrategyStrong }

func (StrongStrategy) Compute(path string, _ fs.FileInfo) (Fingerprint, error) {
	h := md5.New()
	if err := hashFile(path, h); err != nil {
		return None(), err
	}
	return Strong(hex.EncodeToString(h.Sum(nil))), nil
}

func hashFile(path string, h hash.Hash) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return HashReader(file, h)
}

// HashReader feeds r into h in fixed-size chunks
func HashReader(r io.Reader, h hash.Hash) error {
	buffer := make([]byte, chunkSize)

	for {
		n, err := r.Read(buffer)
		if n > 0 {
			if _, err := h.Write(buffer[:n]); err != nil {
				return fmt.Errorf("write to hash: %w", err)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
	}
}
