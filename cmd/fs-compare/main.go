package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/fs-manifest/internal/config"
	"github.com/yuya-takeyama/fs-manifest/internal/location"
	"github.com/yuya-takeyama/fs-manifest/internal/logging"
	"github.com/yuya-takeyama/fs-manifest/pkg/diff"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
	"github.com/yuya-takeyama/fs-manifest/pkg/report"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	thisLoc    string
	otherLoc   string
	dumpDest   string
	configFile string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fs-compare --this <Manifest> --other <Manifest>",
		Short: "Compare two manifests written by fs-scan",
		Long: `fs-compare classifies every record of the other manifest against this
manifest: missing here, equal, or differing, and for differing records
which side holds the newer copy.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVar(&thisLoc, "this", "", "Manifest of this location (file, s3://bucket/key or -)")
	flags.StringVar(&otherLoc, "other", "", "Manifest of the other location (file, s3://bucket/key or -)")
	flags.StringVar(&dumpDest, "dump", "", "Directory or s3:// prefix receiving missing and other-newer artifacts")
	flags.StringArrayP("exclude", "e", nil, "Exclude pattern applied to both manifests (multiple allowed)")
	flags.String("integer-checksum", config.DefaultIntegerChecksum, "Strategy that produced integer checksums (simple or size)")
	flags.Bool("separate-unverified", true, "Put records whose scan failed into their own bucket (=false classifies them as differing)")
	flags.Bool("both-directions", false, "Also classify this against other")
	flags.String("profile", "", "AWS profile for s3:// locations")
	flags.String("region", "", "AWS region for s3:// locations")
	flags.StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/fs-manifest/config.yaml)")
	flags.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	_ = rootCmd.MarkFlagRequired("this")
	_ = rootCmd.MarkFlagRequired("other")

	return rootCmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.NewStderrLogger(cfg.Verbose)

	if thisLoc == location.Stdio && otherLoc == location.Stdio {
		return errors.New("--this and --other cannot both read stdin")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := location.New(cfg.S3Options())

	for _, side := range []struct{ name, loc string }{{"this", thisLoc}, {"other", otherLoc}} {
		ok, err := resolver.Exists(ctx, side.loc)
		if err != nil {
			return err
		}
		if !ok {
			logger.Errorf("Path to result set for %s location does not exist. Check path. Exiting!", side.name)
			return fmt.Errorf("%s location: %w: %s", side.name, manifest.ErrInputNotFound, side.loc)
		}
	}

	this, err := loadSide(ctx, resolver, logger, "this", thisLoc, cfg)
	if err != nil {
		return err
	}
	other, err := loadSide(ctx, resolver, logger, "other", otherLoc, cfg)
	if err != nil {
		return err
	}

	opts := []diff.Option{
		diff.WithLogger(logger),
		diff.SeparateUnverified(cfg.SeparateUnverified),
	}

	tic := time.Now()
	var result, reverse *diff.Classification
	if cfg.BothDirections {
		result, reverse = diff.CompareBoth(this, other, opts...)
	} else {
		result = diff.Compare(this, other, opts...)
	}
	logger.Infof("Comparison took %.1f s.", time.Since(tic).Seconds())

	report.Summary(logger, result.Counts())
	if reverse != nil {
		logger.Info("Classifying this location against the other one")
		report.Summary(logger.With("direction", "reverse"), reverse.Counts())
	}

	if dumpDest != "" {
		written, err := report.Dump(ctx, resolver, dumpDest, result)
		if err != nil {
			return err
		}
		for _, loc := range written {
			logger.Info("Wrote artifact", "location", loc)
		}
	}

	return nil
}

func loadSide(ctx context.Context, resolver *location.Resolver, logger *log.Logger, name, loc string, cfg *config.Config) (manifest.Manifest, error) {
	logger.Infof("Reading result contents for %s location", name)

	m, err := resolver.LoadManifest(ctx, loc, manifest.WithIntegerKind(cfg.IntegerKind()))
	if err != nil {
		return nil, fmt.Errorf("%s location: %w", name, err)
	}

	if len(cfg.Exclude) > 0 {
		before := m.Len()
		if m, err = m.Filter(cfg.Exclude); err != nil {
			return nil, err
		}
		logger.Debug("applied excludes", "side", name, "dropped", before-m.Len())
	}

	logger.Infof("Result set for %s location has %s entries.", name, humanize.Comma(int64(m.Len())))
	return m, nil
}
