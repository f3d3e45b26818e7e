// Package cli implements the disklru command: inspection and maintenance of
// a cache directory from the shell.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"

	"github.com/meigma/disklru"
	"github.com/meigma/disklru/internal/fsutil"
	"github.com/meigma/disklru/internal/journal"
)

// Config holds the command configuration.
type Config struct {
	Dir        string
	Generation int
	ValueCount int
	Verbose    bool

	// MaxSize is the bound the cache is trimmed to on exit. Zero leaves the
	// cache untrimmed, so inspecting it never evicts anything.
	MaxSize int64

	// Args is the command and its operands.
	Args []string
}

type envConfig struct {
	Dir        string `env:"DISKLRU_DIR"`
	Generation int    `env:"DISKLRU_GENERATION" envDefault:"1"`
	ValueCount int    `env:"DISKLRU_VALUE_COUNT" envDefault:"1"`
	MaxSize    string `env:"DISKLRU_MAX_SIZE"`
}

var (
	errUsage = errors.New("usage: disklru [flags] stat | get KEY [SLOT] | put KEY FILE... | rm KEY | trim SIZE | compact")

	// errNoCache is returned by every command but put when dir holds no journal.
	errNoCache = errors.New("no cache journal found")

	// errHeaderMismatch is returned when the journal was written with another
	// generation or value count. Opening it would delete the cache.
	errHeaderMismatch = errors.New("cache was written with different settings")
)

// ParseConfig reads defaults from the environment and overrides them with
// flags parsed from args.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		Dir:        envCfg.Dir,
		Generation: envCfg.Generation,
		ValueCount: envCfg.ValueCount,
	}
	maxSize := envCfg.MaxSize

	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "cache directory (default: DISKLRU_DIR)")
	fs.IntVar(&cfg.Generation, "generation", cfg.Generation, "generation the cache was opened with")
	fs.IntVar(&cfg.ValueCount, "value-count", cfg.ValueCount, "values per entry")
	fs.StringVar(&maxSize, "max-size", maxSize, "size bound, e.g. 512KiB or 10MB; the cache is trimmed to it on exit (default: no trim)")
	fs.BoolVar(&cfg.Verbose, "v", false, "log debug events to stderr")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if maxSize != "" {
		n, err := parseSize(maxSize)
		if err != nil {
			return Config{}, fmt.Errorf("max size: %w", err)
		}
		cfg.MaxSize = n
	}
	cfg.Args = fs.Args()
	return cfg, nil
}

// Run opens the cache, executes the command in cfg.Args and closes the cache.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) (err error) {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	if len(cfg.Args) == 0 {
		return errUsage
	}
	if cfg.Dir == "" {
		return errors.New("cache directory is required (-dir or DISKLRU_DIR)")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd, operands := cfg.Args[0], cfg.Args[1:]
	if err := checkJournal(cfg, cmd == "put"); err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	maxSize := cfg.MaxSize
	if maxSize == 0 {
		maxSize = math.MaxInt64
	}
	c, err := disklru.Open(cfg.Dir, cfg.Generation, cfg.ValueCount, maxSize, disklru.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close cache: %w", closeErr))
		}
	}()

	switch cmd {
	case "stat":
		return runStat(c, cfg.MaxSize, out)
	case "get":
		return runGet(c, operands, out)
	case "put":
		return runPut(ctx, c, operands)
	case "rm":
		return runRemove(c, operands, out)
	case "trim":
		return runTrim(c, operands)
	case "compact":
		return c.Compact()
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// checkJournal refuses to open a directory whose journal Open would discard.
// A missing journal is only acceptable when the command creates entries.
func checkJournal(cfg Config, create bool) error {
	path := journal.Path(cfg.Dir)
	if !fsutil.Exists(path) {
		// Open promotes a backup left by an interrupted rebuild.
		path = filepath.Join(cfg.Dir, journal.BackupFileName)
	}
	if !fsutil.Exists(path) {
		if create {
			return nil
		}
		return fmt.Errorf("%w in %s", errNoCache, cfg.Dir)
	}

	h, err := journal.ReadHeader(path)
	if err != nil {
		return fmt.Errorf("read journal header: %w", err)
	}
	if h.Generation != cfg.Generation || h.ValueCount != cfg.ValueCount {
		return fmt.Errorf("%w: %s has generation %d and %d values per entry, not %d and %d",
			errHeaderMismatch, cfg.Dir, h.Generation, h.ValueCount, cfg.Generation, cfg.ValueCount)
	}
	return nil
}

func runStat(c *disklru.Cache, bound int64, out io.Writer) error {
	usage, err := fsutil.DiskUsage(c.Dir())
	if err != nil {
		return fmt.Errorf("disk usage: %w", err)
	}
	maxSize := "none"
	if bound > 0 {
		maxSize = humanize.IBytes(uint64(bound)) //nolint:gosec // checked positive
	}
	_, err = fmt.Fprintf(out, "dir\t%s\nentries\t%d\nsize\t%s\nmax_size\t%s\nfiles\t%d\ndisk_usage\t%s\nstaged\t%s\n",
		c.Dir(), c.Len(),
		humanize.IBytes(uint64(c.Size())), //nolint:gosec // sizes are never negative
		maxSize,
		usage.Files,
		humanize.IBytes(uint64(usage.Total)),  //nolint:gosec // see above
		humanize.IBytes(uint64(usage.Staged)), //nolint:gosec // see above
	)
	return err
}

func runGet(c *disklru.Cache, operands []string, out io.Writer) error {
	if len(operands) < 1 || len(operands) > 2 {
		return errUsage
	}
	slot := 0
	if len(operands) == 2 {
		n, err := strconv.Atoi(operands[1])
		if err != nil {
			return fmt.Errorf("slot: %w", err)
		}
		slot = n
	}
	if slot < 0 || slot >= c.ValueCount() {
		return fmt.Errorf("%w: slot %d not in [0, %d)", disklru.ErrInvalidArgument, slot, c.ValueCount())
	}

	snap, err := c.Get(operands[0])
	if err != nil {
		return fmt.Errorf("get %s: %w", operands[0], err)
	}
	defer snap.Close()
	_, err = io.Copy(out, snap.Reader(slot))
	return err
}

func runPut(ctx context.Context, c *disklru.Cache, operands []string) error {
	if len(operands) != c.ValueCount()+1 {
		return fmt.Errorf("put needs a key and %d files: %w", c.ValueCount(), errUsage)
	}
	key, files := operands[0], operands[1:]

	ed, err := c.Edit(key)
	if err != nil {
		return fmt.Errorf("edit %s: %w", key, err)
	}
	defer ed.Close()

	for slot, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyFileToSlot(ed, slot, name); err != nil {
			return err
		}
	}
	return ed.Commit()
}

func copyFileToSlot(ed *disklru.Editor, slot int, name string) error {
	f, err := os.Open(name) //nolint:gosec // operator-supplied path
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := ed.NewWriter(slot)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("read %s: %w", name, err)
	}
	return w.Close()
}

func runRemove(c *disklru.Cache, operands []string, out io.Writer) error {
	if len(operands) != 1 {
		return errUsage
	}
	removed, err := c.Remove(operands[0])
	if err != nil {
		return err
	}
	if !removed {
		_, err = fmt.Fprintf(out, "%s: not present\n", operands[0])
		return err
	}
	_, err = fmt.Fprintf(out, "%s: removed\n", operands[0])
	return err
}

func runTrim(c *disklru.Cache, operands []string) error {
	if len(operands) != 1 {
		return errUsage
	}
	n, err := parseSize(operands[0])
	if err != nil {
		return err
	}
	if err := c.SetMaxSize(n); err != nil {
		return err
	}
	return c.Flush()
}

// parseSize accepts plain byte counts and humanized sizes such as 64KiB.
func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > uint64(1<<62) {
		return 0, fmt.Errorf("%w: size %q out of range", disklru.ErrInvalidArgument, s)
	}
	return int64(n), nil
}
