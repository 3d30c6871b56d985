package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"lwa-query-web/internal/config"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
	"lwa-query-web/internal/movie"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	start := flag.String("start", "", "first day, YYYY-MM-DD")
	end := flag.String("end", "", "last day, YYYY-MM-DD (defaults to start)")
	out := flag.String("out", cfg.MoviesDir, "output directory")
	parallel := flag.Int("parallel", 2, "days encoded at once")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogJSON)
	if *start == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *end == "" {
		*end = *start
	}
	from, err := lwa.ParseTime(*start)
	if err != nil {
		logger.Error("invalid --start", "err", err)
		os.Exit(2)
	}
	to, err := lwa.ParseTime(*end)
	if err != nil {
		logger.Error("invalid --end", "err", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := movie.Daily{
		SynopDir: cfg.SynopDir,
		OutDir:   *out,
		Encoder:  movie.Encoder{Binary: cfg.FFmpegBin, Framerate: cfg.MovieFramerate},
		Parallel: *parallel,
		Log:      logger,
	}
	results, err := d.GenerateRange(ctx, from, to)
	days := make([]string, 0, len(results))
	for day := range results {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		if p := results[day]; p != "" {
			fmt.Printf("%s  %s\n", day, p)
		} else {
			fmt.Printf("%s  -\n", day)
		}
	}
	if err != nil {
		logger.Error("movie generation interrupted", "err", err)
		os.Exit(1)
	}
}
