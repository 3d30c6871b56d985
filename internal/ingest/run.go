package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"lwa-query-web/internal/connectors/mysql"
	"lwa-query-web/internal/logging"
	"lwa-query-web/internal/lwa"
)

// Index is the part of the catalog store ingest writes to.
type Index interface {
	InsertImages(ctx context.Context, ft lwa.FileType, rows []lwa.Record) (int64, error)
	InsertSpectra(ctx context.Context, rows []mysql.SpecRow) (int64, error)
	DeleteRange(ctx context.Context, ft lwa.FileType, start, end time.Time) (int64, error)
}

// Summary counts files found and rows changed per category.
type Summary struct {
	Type  lwa.FileType
	Found int
	Rows  int64
}

// Run collects and indexes every category in types concurrently.
func Run(ctx context.Context, scanner Scanner, idx Index, start, end time.Time, types []lwa.FileType, log *slog.Logger) ([]Summary, error) {
	log = logging.OrDefault(log)
	out := make([]Summary, len(types))

	g, gctx := errgroup.WithContext(ctx)
	for i, ft := range types {
		i, ft := i, ft
		g.Go(func() error {
			batch, err := scanner.Collect(gctx, ft, start, end)
			if err != nil {
				return fmt.Errorf("collect %s: %w", ft, err)
			}
			var n int64
			if ft == lwa.FileSpec {
				n, err = idx.InsertSpectra(gctx, batch.Spectra)
			} else {
				n, err = idx.InsertImages(gctx, ft, batch.Images)
			}
			if err != nil {
				return fmt.Errorf("insert %s: %w", ft, err)
			}
			out[i] = Summary{Type: ft, Found: batch.Len(), Rows: n}
			log.Info("indexed files", "type", ft, "found", batch.Len(), "inserted", n)
			return nil
		})
	}
	return out, g.Wait()
}

// Delete removes the index rows of every category in types inside [start, end].
func Delete(ctx context.Context, idx Index, start, end time.Time, types []lwa.FileType, log *slog.Logger) ([]Summary, error) {
	log = logging.OrDefault(log)
	out := make([]Summary, 0, len(types))
	for _, ft := range types {
		n, err := idx.DeleteRange(ctx, ft, start, end)
		if err != nil {
			return out, fmt.Errorf("delete %s: %w", ft, err)
		}
		out = append(out, Summary{Type: ft, Rows: n})
		log.Info("deleted index rows", "type", ft, "deleted", n)
	}
	return out, nil
}
