// Command lwa-query drives a running query service from the terminal using
// the same controller as the page.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lwa-query-web/internal/controller"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

const usage = `usage: lwa-query [global flags] <command> [flags]

commands:
  query    list files and the availability summary for a range
  preview  look up the daily movie and spectrogram for a shifted day
  bundle   pack files of one list into a zip archive and download it
  movie    build a frame-player page from image files

global flags:
`

func main() {
	global := flag.NewFlagSet("lwa-query", flag.ExitOnError)
	baseURL := global.String("url", envOr("LWA_QUERY_URL", "http://localhost:8080"), "service base URL")
	prefix := global.String("prefix", os.Getenv("LWA_QUERY_PREFIX"), "page mount prefix, e.g. /lwadata-query")
	timeout := global.Duration("timeout", 2*time.Minute, "per request timeout")
	noCadence := global.Bool("no-cadence", false, "omit the cadence field from range requests")
	logLevel := global.String("log-level", "warn", "log level")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	view := newTerminalView(os.Stdout)
	opts := controller.DefaultOptions(*baseURL)
	opts.Prefix = *prefix
	opts.Timeout = *timeout
	opts.SendCadence = !*noCadence
	opts.AlwaysShowMovieContainer = true
	opts.Logger = logging.NewWithWriter(os.Stderr, *logLevel, false)
	ctl := controller.New(view, opts)

	cmd, args := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "query":
		err = runQuery(ctx, ctl, args)
	case "preview":
		err = runPreview(ctx, ctl, args)
	case "bundle":
		err = runBundle(ctx, ctl, view, args)
	case "movie":
		err = runMovie(ctx, ctl, args)
	default:
		global.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// rangeFlags registers the fields of the query form on fs.
func rangeFlags(fs *flag.FlagSet) *controller.Form {
	start, end := lwa.DefaultRange(time.Now())
	f := &controller.Form{}
	fs.StringVar(&f.Start, "start", start, "range start, YYYY-MM-DDTHH:MM:SS")
	fs.StringVar(&f.End, "end", end, "range end, YYYY-MM-DDTHH:MM:SS")
	fs.StringVar(&f.Cadence, "cadence", "", "minimum spacing between image files, e.g. 60 or 5m")
	return f
}

func runQuery(ctx context.Context, ctl *controller.Controller, args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	form := rangeFlags(fs)
	_ = fs.Parse(args)
	_, err := ctl.RunQuery(ctx, *form)
	return err
}

func runPreview(ctx context.Context, ctl *controller.Controller, args []string) error {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	start := fs.String("start", lwa.FormatTime(time.Now()), "base day")
	offset := fs.Int("offset", 0, "days to move from the base day")
	_ = fs.Parse(args)
	shifted, err := ctl.RefreshPreview(ctx, *start, *offset)
	if shifted != "" {
		fmt.Printf("preview day: %s\n", shifted)
	}
	return err
}

func runBundle(ctx context.Context, ctl *controller.Controller, view *terminalView, args []string) error {
	fs := flag.NewFlagSet("bundle", flag.ExitOnError)
	form := rangeFlags(fs)
	kindFlag := fs.String("kind", string(lwa.KindSpecFITS), "list to pack: spec_fits, slow_lev1 or slow_lev15")
	sel := fs.String("select", "", "comma separated file URLs to pack (default: the whole list)")
	out := fs.String("out", "", "write the archive here instead of printing the download URL")
	_ = fs.Parse(args)

	kind, err := lwa.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	outcome, err := ctl.RunQuery(ctx, *form)
	if err != nil {
		return err
	}
	if !outcome.Applied {
		return errors.New("query answer was superseded")
	}
	ctl.Select(kind, splitList(*sel))
	name, err := ctl.GenerateBundle(ctx, kind)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = ctl.Download(kind)
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	n, err := ctl.Client().DownloadBundle(ctx, name, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	view.Saved(*out, n)
	return nil
}

func runMovie(ctx context.Context, ctl *controller.Controller, args []string) error {
	fs := flag.NewFlagSet("movie", flag.ExitOnError)
	form := rangeFlags(fs)
	kindFlag := fs.String("kind", string(lwa.KindSlowLev15), "image list: slow_lev1 or slow_lev15")
	sel := fs.String("select", "", "comma separated file URLs (default: the whole list)")
	_ = fs.Parse(args)

	kind, err := lwa.ParseKind(*kindFlag)
	if err != nil {
		return err
	}
	if !kind.SupportsMovie() {
		return controller.ErrNotMovieKind
	}
	if _, err := ctl.RunQuery(ctx, *form); err != nil {
		return err
	}
	ctl.Select(kind, splitList(*sel))
	_, err = ctl.GenerateMovieFromSelection(ctx, kind)
	return err
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
