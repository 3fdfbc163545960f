// Package store persists analyses with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotFound = errors.New("analysis not found")

type Store struct {
	db *gorm.DB
}

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite", "":
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects to the database, tunes the pool and migrates the schema
func Open(driver, dsn string, log *slog.Logger) (*Store, error) {
	dial, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	gormLogger := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dial, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if driver == "sqlite" || driver == "" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db)
}

// New wraps an open connection and runs migrations
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Analysis{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks the connection, used by the health endpoint
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, a *Analysis) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// Get returns one of the user's analyses. Other users' rows are not found.
func (s *Store) Get(ctx context.Context, userID, id string) (*Analysis, error) {
	var a Analysis
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analysis: %w", err)
	}
	return &a, nil
}

// ListOptions filters and pages List
type ListOptions struct {
	Page   int
	Size   int
	Status Status
}

// MaxPage keeps the row offset inside an int32 at the largest page size
const MaxPage = math.MaxInt32 / 100

func (o *ListOptions) normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Page > MaxPage {
		o.Page = MaxPage
	}
	if o.Size < 1 || o.Size > 100 {
		o.Size = 10
	}
}

// List returns the user's analyses newest first, without crawl data, and the
// total count matching the filter
func (s *Store) List(ctx context.Context, userID string, opts ListOptions) ([]Analysis, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&Analysis{}).Where("user_id = ?", userID)
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count analyses: %w", err)
	}

	var rows []Analysis
	err := query.Session(&gorm.Session{}).
		Omit("crawl_data").
		Order("created_at desc").
		Limit(opts.Size).
		Offset((opts.Page - 1) * opts.Size).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch analyses: %w", err)
	}
	return rows, total, nil
}

// Recent returns up to limit of the user's newest analyses for export
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Analysis, error) {
	var rows []Analysis
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Omit("crawl_data").
		Order("created_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch analyses: %w", err)
	}
	return rows, nil
}
