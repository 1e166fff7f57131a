package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yuya-takeyama/fs-manifest/internal/config"
	"github.com/yuya-takeyama/fs-manifest/internal/location"
	"github.com/yuya-takeyama/fs-manifest/internal/logging"
	"github.com/yuya-takeyama/fs-manifest/pkg/fingerprint"
	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
	"github.com/yuya-takeyama/fs-manifest/pkg/scanner"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

var (
	entryDir   string
	output     string
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
		Use:   "fs-scan -d <EntryDir>",
		Short: "Write a manifest of every file below a directory",
		Long: `fs-scan walks a directory tree and writes one JSON record per file
(path, size, modification time, checksum) to a manifest that fs-compare
can diff against the manifest of another location.`,
		Version:      fmt.Sprintf("%s (commit: %s, built at: %s by %s)", version, commit, date, builtBy),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&entryDir, "entry-dir", "d", "", "Directory to scan")
	flags.StringVarP(&output, "output", "o", location.Stdio, "Manifest destination: file path, s3://bucket/key or - for stdout")
	flags.StringP("checksum", "c", config.DefaultChecksum, fmt.Sprintf("Checksum strategy (%v)", fingerprint.Names()))
	flags.StringArrayP("exclude", "e", nil, "Exclude pattern, matched against record paths (multiple allowed)")
	flags.Bool("relative-to-root", false, "Make record paths relative to the entry directory instead of its parent")
	flags.Int("workers", 0, "Number of walker goroutines (0 picks a default)")
	flags.String("profile", "", "AWS profile for s3:// output")
	flags.String("region", "", "AWS region for s3:// output")
	flags.StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/fs-manifest/config.yaml)")
	flags.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
	_ = rootCmd.MarkFlagRequired("entry-dir")

	return rootCmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.NewStderrLogger(cfg.Verbose)

	strategy, err := cfg.Strategy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := scanner.New(scanner.Options{
		Root:           entryDir,
		Strategy:       strategy,
		Exclude:        cfg.Exclude,
		RelativeToRoot: cfg.RelativeToRoot,
		Workers:        cfg.Workers,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("Entry directory cannot be scanned. Check path. Exiting!", "entry_dir", entryDir, "err", err)
		return err
	}

	resolver := location.New(cfg.S3Options())
	out, err := resolver.Create(ctx, output)
	if err != nil {
		return err
	}

	logger.Info("Scanning", "root", s.Root(), "checksum", strategy.Name(), "output", output)

	w := manifest.NewWriter(out)
	stats, err := s.Scan(ctx, w.Write)
	if err != nil {
		_ = out.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to finish manifest %s: %w", output, err)
	}

	logger.Infof("Scan took %.1f s.", stats.Duration.Seconds())
	logger.Infof("Wrote %s records, %s of them with read errors.", humanize.Comma(stats.Files), humanize.Comma(stats.Errors))
	logger.Infof("Overall content size is %s.", humanize.IBytes(uint64(stats.ContentSize)))
	if stats.Skipped > 0 {
		logger.Warnf("Skipped %s entries that are not regular files.", humanize.Comma(stats.Skipped))
	}

	return nil
}
