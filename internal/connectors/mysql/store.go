package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"lwa-query-web/internal/config"
	"lwa-query-web/internal/lwa"
)

// Store wraps MySQL access to the LWA file index.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
	imageType    lwa.ImageType
	tables       map[lwa.Kind]string
}

// NewStore opens and pings the index database described by cfg.
func NewStore(cfg config.Config) (*Store, error) {
	db, err := sql.Open("mysql", cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}

	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DBConnTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return NewStoreFromDB(db, cfg.ImageType, cfg.DBQueryTimeout), nil
}

// NewStoreFromDB wraps an already opened handle.
func NewStoreFromDB(db *sql.DB, imageType lwa.ImageType, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	if imageType == "" {
		imageType = lwa.ImageMFS
	}
	return &Store{
		db:           db,
		queryTimeout: queryTimeout,
		imageType:    imageType,
		tables:       lwa.Tables(imageType),
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity within the query timeout.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}
