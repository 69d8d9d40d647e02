package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/term"

	"image-hunter/internal/codec"
	"image-hunter/internal/database"
	"image-hunter/internal/dispatcher"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
	"image-hunter/internal/mediatypes"
	"image-hunter/internal/options"
	"image-hunter/internal/source"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	exitAborted = 130

	defaultTimeout = 2 * time.Minute
)

type cliFlags struct {
	output    string
	maxOutput int64
	maxInput  int64
	step      int
	level     string
	maxDim    int
	format    string
	width     int
	height    int
	attempts  int
	timeout   time.Duration
	dbPath    string
	mediaDir  string
	spoolDir  string
	vips      bool
	force     bool
	verbose   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	isTTY := func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, isTTY))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, stdoutIsTerminal func() bool) int {
	fs := flag.NewFlagSet("hunt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var f cliFlags
	fs.StringVar(&f.output, "o", "", "write the image to this file (default: stdout)")
	fs.Int64Var(&f.maxOutput, "max-output", -1, "exact: output byte budget")
	fs.Int64Var(&f.maxInput, "max-input", -1, "exact: reject sources larger than this many bytes")
	fs.IntVar(&f.step, "step", -1, "exact: quality decrement per retry (default 15)")
	fs.StringVar(&f.level, "level", "", "fuzzy: high, medium or low")
	fs.IntVar(&f.maxDim, "max-dim", -1, "longest output edge in pixels (default: twice the display)")
	fs.StringVar(&f.format, "format", "", "jpeg, png or webp (default: from -o extension, else jpeg)")
	fs.IntVar(&f.width, "width", 1920, "display width")
	fs.IntVar(&f.height, "height", 1080, "display height")
	fs.IntVar(&f.attempts, "attempts", 0, "allocation failures tolerated before giving up (default 32)")
	fs.DurationVar(&f.timeout, "timeout", defaultTimeout, "give up after this long")
	fs.StringVar(&f.dbPath, "db", "", "media index database, enables media: locators")
	fs.StringVar(&f.mediaDir, "media-dir", os.Getenv("MEDIA_DIR"), "media directory of the index")
	fs.StringVar(&f.spoolDir, "spool", "", "download spool directory (default: system temp)")
	fs.BoolVar(&f.vips, "vips", true, "use libvips when available")
	fs.BoolVar(&f.force, "force", false, "write image data even when stdout is a terminal")
	fs.BoolVar(&f.verbose, "v", false, "debug logging on stderr")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: hunt [flags] <locator>")
		fmt.Fprintln(stderr, "")
		fmt.Fprintln(stderr, "Locators: a file path, file://, http(s)://, or media:<id|path> with -db.")
		fmt.Fprintln(stderr, "")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}
	locator := fs.Arg(0)

	switch {
	case f.verbose:
		logging.SetLevel(logging.LevelDebug)
	case os.Getenv("LOG_LEVEL") == "" && os.Getenv("DEBUG") == "":
		logging.SetLevel(logging.LevelWarn)
	}

	opts, err := buildOptions(f)
	if err != nil {
		fmt.Fprintf(stderr, "hunt: %v\n", err)
		return exitUsage
	}

	toStdout := f.output == "" || f.output == "-"
	if toStdout && !f.force && stdoutIsTerminal() {
		fmt.Fprintln(stderr, "hunt: refusing to write image data to a terminal; use -o or -force")
		return exitUsage
	}

	cfg := dispatcher.Config{
		Display:     options.Display{Width: f.width, Height: f.height},
		SpoolDir:    f.spoolDir,
		Fetch:       source.RemoteConfig{SpoolDir: f.spoolDir},
		Codec:       codec.Select(f.vips),
		MaxAttempts: f.attempts,
	}
	defer codec.StopVips()

	if f.dbPath != "" {
		mediaDir := f.mediaDir
		if mediaDir == "" {
			mediaDir = filepath.Dir(f.dbPath)
		}
		db, err := database.New(ctx, f.dbPath, mediaDir)
		if err != nil {
			fmt.Fprintf(stderr, "hunt: open index: %v\n", err)
			return exitFailed
		}
		defer db.Close()
		cfg.Index = db
	}

	d := dispatcher.New(cfg)
	defer d.Shutdown()

	huntCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := d.HuntBlockingWithOptions(huntCtx, "", locator, opts)
	if err != nil {
		fmt.Fprintf(stderr, "hunt: %v\n", err)
		if errors.Is(err, hunt.ErrCanceled) && ctx.Err() != nil {
			return exitAborted
		}
		return exitFailed
	}

	if toStdout {
		_, err = stdout.Write(res.Encoded)
	} else {
		err = os.WriteFile(f.output, res.Encoded, 0o644)
	}
	if err != nil {
		fmt.Fprintf(stderr, "hunt: write output: %v\n", err)
		return exitFailed
	}

	md := res.Metadata
	fmt.Fprintf(stderr, "%s %s %dx%d -> %s %dx%d subsample=%d quality=%d attempts=%d bytes=%d cost=%v\n",
		md.Source, md.SourceFormat, md.SourceWidth, md.SourceHeight,
		md.Format, md.Width, md.Height, md.Subsample, md.Quality, md.Attempts, md.Bytes,
		md.Cost.Round(time.Millisecond))
	return exitOK
}

// buildOptions picks Exact options when -max-output is given, Fuzzy
// otherwise.
func buildOptions(f cliFlags) (options.Options, error) {
	format := options.FormatJPEG
	if ext, ok := mediatypes.FormatFromExtension(f.output); ok {
		format = ext
	}
	if f.format != "" {
		parsed, err := options.ParseFormat(f.format)
		if err != nil {
			return options.Options{}, err
		}
		format = parsed
	}

	if f.maxOutput >= 0 {
		b := options.NewExact().MaxOutput(f.maxOutput).Format(format)
		if f.maxInput >= 0 {
			b.MaxInput(f.maxInput)
		}
		if f.step >= 0 {
			b.Step(f.step)
		}
		if f.maxDim >= 0 {
			b.MaxDimension(f.maxDim)
		}
		return b.Build()
	}

	if f.maxInput >= 0 || f.step >= 0 {
		return options.Options{}, fmt.Errorf("%w: -max-input and -step need -max-output", options.ErrInvalid)
	}
	level, err := options.ParseLevel(f.level)
	if err != nil {
		return options.Options{}, err
	}
	b := options.NewFuzzy().Level(level).Format(format)
	if f.maxDim >= 0 {
		b.MaxDimension(f.maxDim)
	}
	return b.Build()
}
