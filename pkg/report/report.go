// Package report turns a diff.Classification into log lines and artifacts.
package report

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/yuya-takeyama/fs-manifest/pkg/diff"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

// Artifact names written by Dump
const (
	MissingFile        = "missing.jsonl"
	OtherNewerFile     = "differing_other_newer.jsonl"
	MissingOrNewerFile = "missing_or_newer.txt"
)

// Opener creates artifacts below a destination prefix.
type Opener interface {
	Create(ctx context.Context, loc string) (io.WriteCloser, error)
	Join(base, name string) string
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

// Summary logs one line per bucket
func Summary(logger *log.Logger, c diff.Counts) {
	logger.Infof("We have %s equal entries in this and the other location.", count(c.Equal))
	logger.Infof("There are %s entries available on both sides but with differing content.", count(c.Differing))
	logger.Infof("  %s of them are newer in the other location.", count(c.DifferingOtherNewer))
	logger.Infof("  %s of them are newer in this location.", count(c.DifferingThisNewer))
	if c.DifferingSameAge > 0 {
		logger.Warnf("  %s of them have identical modification times.", count(c.DifferingSameAge))
	}
	logger.Infof("%s entries are missing on this side.", count(c.Missing))
	if c.Unverified > 0 {
		logger.Warnf("%s entries could not be verified because a scan failed to read them.", count(c.Unverified))
	}
}

// Dump writes the missing and other-newer buckets plus the sorted union of
// their paths under dest. It returns the locations written.
func Dump(ctx context.Context, opener Opener, dest string, c *diff.Classification) ([]string, error) {
	var written []string

	for _, artifact := range []struct {
		name    string
		records manifest.Manifest
	}{
		{MissingFile, c.Missing},
		{OtherNewerFile, c.DifferingOtherNewer},
	} {
		loc := opener.Join(dest, artifact.name)
		err := create(ctx, opener, loc, func(w io.Writer) error {
			return manifest.WriteAll(w, artifact.records.Records())
		})
		if err != nil {
			return written, err
		}
		written = append(written, loc)
	}

	loc := opener.Join(dest, MissingOrNewerFile)
	err := create(ctx, opener, loc, func(w io.Writer) error {
		return writePaths(w, MissingOrNewer(c))
	})
	if err != nil {
		return written, err
	}
	written = append(written, loc)

	return written, nil
}

// MissingOrNewer lists the paths this should fetch from other, sorted
func MissingOrNewer(c *diff.Classification) []string {
	paths := make([]string, 0, len(c.Missing)+len(c.DifferingOtherNewer))
	paths = append(paths, c.Missing.Paths()...)
	paths = append(paths, c.DifferingOtherNewer.Paths()...)
	slices.Sort(paths)
	return slices.Compact(paths)
}

func create(ctx context.Context, opener Opener, loc string, fill func(io.Writer) error) error {
	w, err := opener.Create(ctx, loc)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", loc, err)
	}
	if err := fill(w); err != nil {
		w.Close()
		return fmt.Errorf("failed to write %s: %w", loc, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", loc, err)
	}
	return nil
}

func writePaths(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := bw.WriteString(p + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
