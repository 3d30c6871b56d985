package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lwa-query-web/internal/config"
	mysqlstore "lwa-query-web/internal/connectors/mysql"
	"lwa-query-web/internal/ingest"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

func main() {
	start := flag.String("start", "", "start time, YYYY-MM-DDTHH:MM:SS")
	end := flag.String("end", "", "end time, YYYY-MM-DDTHH:MM:SS")
	del := flag.Bool("delete", false, "delete index rows instead of inserting")
	types := flag.String("types", "", "comma separated file types (default: all)")
	specRoot := flag.String("spec-root", "", "spectrogram FITS root (default: production layout)")
	hdfRoots := flag.String("hdf-roots", "", "comma separated HDF roots (default: production layout)")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogJSON)

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
	fileTypes, err := parseTypes(*types)
	if err != nil {
		logger.Error("invalid --types", "err", err)
		os.Exit(2)
	}

	store, err := mysqlstore.NewStore(cfg)
	if err != nil {
		logger.Error("connect mysql", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *del {
		if _, err := ingest.Delete(ctx, store, from, to, fileTypes, logger); err != nil {
			logger.Error("delete failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "err", err)
		os.Exit(1)
	}
	scanner := ingest.DefaultScanner(logger)
	if *specRoot != "" {
		scanner.SpecRoot = *specRoot
	}
	if *hdfRoots != "" {
		scanner.HDFRoots = splitList(*hdfRoots)
	}
	sums, err := ingest.Run(ctx, scanner, store, from, to, fileTypes, logger)
	for _, s := range sums {
		if s.Type != "" {
			fmt.Printf("%-10s found=%d inserted=%d\n", s.Type, s.Found, s.Rows)
		}
	}
	if err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func parseTypes(raw string) ([]lwa.FileType, error) {
	if strings.TrimSpace(raw) == "" {
		return lwa.FileTypes(), nil
	}
	var out []lwa.FileType
	for _, part := range splitList(raw) {
		ft, err := lwa.ParseFileType(part)
		if err != nil {
			return nil, err
		}
		out = append(out, ft)
	}
	return out, nil
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
