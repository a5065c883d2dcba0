package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/iamwavecut/tool"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngprep/internal/config"
	"github.com/iamwavecut/ngprep/internal/db"
	"github.com/iamwavecut/ngprep/internal/db/sqlite"
	ngerrors "github.com/iamwavecut/ngprep/internal/errors"
	"github.com/iamwavecut/ngprep/internal/pipeline"
	"github.com/iamwavecut/ngprep/internal/utils/text"
)

func main() {
	cfg, err := config.Load()
	if !setupLogging(os.Stderr, cfg, err) {
		os.Exit(2)
	}

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "serve" {
		os.Exit(serve(cfg))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, args, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.WithError(err).Error("normalization failed")
		stop()
		os.Exit(1)
	}
}

// setupLogging points the standard logger at w and reports a config error there.
// A failed load logs at least at info level so the error is never filtered out.
func setupLogging(w io.Writer, cfg config.Config, loadErr error) bool {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}
	log.SetFormatter(&config.NbFormatter{NoColor: noColor})
	log.SetOutput(w)
	level := log.Level(cfg.LogLevel)
	if loadErr != nil && level < log.InfoLevel {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if loadErr != nil {
		log.WithError(loadErr).Error("cant load config")
		return false
	}
	return true
}

// run normalizes stdin or the named files ("-" is stdin) into out.
func run(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("ngprep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: ngprep [flags] [file...]\n       ngprep serve\n\n")
		fs.PrintDefaults()
	}
	var (
		mode      = fs.String("mode", cfg.Mode, "input mode: line, document or jsonl")
		workers   = fs.Int("workers", cfg.EffectiveWorkers(), "concurrent normalizations")
		noCache   = fs.Bool("no-cache", !cfg.Cache.Enabled, "disable the persistent cache")
		skipEmpty = fs.Bool("skip-empty", false, "drop empty results from output")
		explain   = fs.Bool("explain", false, "print every stage output for the whole input")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *explain {
		raw, err := readAll(stdin, fs.Args())
		if err != nil {
			return err
		}
		return printSteps(out, text.Explain(raw))
	}

	m, err := pipeline.ParseMode(*mode)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithWorkers(*workers),
		pipeline.WithMemorySize(cfg.Cache.MemorySize),
		pipeline.WithSkipEmpty(*skipEmpty),
	}
	if !*noCache {
		store, err := openStore(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("cache disabled")
		} else {
			defer closeStore(store)
			opts = append(opts, pipeline.WithStore(store))
		}
	}
	p := pipeline.New(opts...)

	files := fs.Args()
	if len(files) == 0 {
		files = []string{"-"}
	}
	var total pipeline.Stats
	for _, name := range files {
		stats, err := processFile(ctx, p, name, stdin, out, m)
		total.Records += stats.Records
		total.Empty += stats.Empty
		total.CacheHits += stats.CacheHits
		if err != nil {
			return errors.Wrapf(err, "process %s", name)
		}
	}
	log.WithFields(log.Fields{
		"records":    total.Records,
		"empty":      total.Empty,
		"cache_hits": total.CacheHits,
	}).Info("done")
	return nil
}

func processFile(ctx context.Context, p *pipeline.Pipeline, name string, stdin io.Reader, out io.Writer, mode pipeline.Mode) (pipeline.Stats, error) {
	if name == "-" {
		return p.Process(ctx, stdin, out, mode)
	}
	f, err := os.Open(name)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer f.Close()
	return p.Process(ctx, f, out, mode)
}

func readAll(stdin io.Reader, files []string) (string, error) {
	if len(files) == 0 {
		files = []string{"-"}
	}
	var sb strings.Builder
	for _, name := range files {
		var (
			raw []byte
			err error
		)
		if name == "-" {
			raw, err = io.ReadAll(stdin)
		} else {
			raw, err = os.ReadFile(name)
		}
		if err != nil {
			return "", errors.Wrapf(err, "read %s", name)
		}
		sb.Write(raw)
	}
	return sb.String(), nil
}

func printSteps(out io.Writer, steps []text.Step) error {
	for _, step := range steps {
		if _, err := fmt.Fprintf(out, "%-20s %s\n", step.Name, strconv.Quote(step.Output)); err != nil {
			return err
		}
	}
	return nil
}

// openStore opens the persistent cache and drops entries not touched within the TTL.
func openStore(ctx context.Context, cfg config.Config) (db.Client, error) {
	store, err := sqlite.NewSQLiteClient(ctx, cfg.DotPath, cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ngerrors.ErrCacheUnavailable, err)
	}
	if cfg.Cache.TTL > 0 {
		purged, err := store.Purge(ctx, cfg.Cache.TTL)
		if tool.Try(err) {
			log.WithError(err).Warn("cant purge stale cache entries")
		} else if purged > 0 {
			log.WithField("purged", purged).Debug("stale cache entries removed")
		}
	}
	return store, nil
}

func closeStore(store db.Client) {
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("cant close cache")
	}
}
