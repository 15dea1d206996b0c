package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"limit_chaser/internal/domain"
	"limit_chaser/internal/event"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal persists managed orders and their fills.
type Journal struct {
	db *gorm.DB
}

// Open connects to the SQLite journal at path, creating it if needed.
// An empty path resolves to the per-user data directory.
func Open(path string) (*Journal, error) {
	if path == "" {
		var err error
		if path, err = defaultDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.OrderRecord{}, &domain.FillRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

func defaultDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "LimitChaser", "data", "journal.db"), nil
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Writes
// ======================================================================================

// Begin creates the row for a newly started order.
func (j *Journal) Begin(o domain.WorkingOrder) error {
	rec := domain.OrderRecord{
		Handle:         o.Handle,
		Symbol:         o.Instrument.Symbol,
		Kind:           string(o.Instrument.Kind),
		Side:           string(o.Side),
		Quantity:       o.OriginalQuantity,
		FilledQuantity: o.FilledQuantity,
		State:          string(o.State),
		VenueOrderID:   o.VenueOrderID,
		Price:          o.CurrentPrice,
	}
	return j.db.Save(&rec).Error
}

// Record applies one order event: the order row follows the event's view of the order
// and fills are appended.
func (j *Journal) Record(ev event.Event) error {
	return j.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"state":           string(ev.State),
			"filled_quantity": ev.Filled,
			"venue_order_id":  ev.VenueOrderID,
			"price":           ev.Price,
		}
		if ev.Type == event.TypeError {
			updates["last_error"] = ev.Error
		}
		res := tx.Model(&domain.OrderRecord{}).Where("handle = ?", ev.Handle).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("order %s: %w", ev.Handle, domain.ErrUnknownHandle)
		}

		if ev.Type == event.TypeFill && ev.Fill != nil {
			fill := domain.FillRecord{
				Handle:   ev.Handle,
				Seq:      ev.Seq,
				Symbol:   ev.Symbol,
				Side:     string(ev.Side),
				Quantity: ev.Fill.Quantity,
				Price:    ev.Fill.Price,
				FilledAt: ev.Fill.Time,
			}
			if err := tx.Create(&fill).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Follow records every event of s until the stream closes or ctx ends.
func (j *Journal) Follow(ctx context.Context, s *event.Stream, logger *slog.Logger) {
	for ev := range s.Cursor().All(ctx) {
		if err := j.Record(ev); err != nil {
			logger.Error("Journal write failed",
				slog.String("handle", ev.Handle),
				slog.Uint64("seq", ev.Seq),
				slog.Any("error", err))
		}
	}
}

// ======================================================================================
// Reads
// ======================================================================================

// Orders returns every journaled order, newest first.
func (j *Journal) Orders() ([]domain.OrderRecord, error) {
	var orders []domain.OrderRecord
	err := j.db.Order("created_at desc").Find(&orders).Error
	return orders, err
}

// Order returns one order row, or nil if it does not exist.
func (j *Journal) Order(handle string) (*domain.OrderRecord, error) {
	var rec domain.OrderRecord
	err := j.db.First(&rec, "handle = ?", handle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Fills returns the fills of handle in arrival order.
func (j *Journal) Fills(handle string) ([]domain.FillRecord, error) {
	var fills []domain.FillRecord
	err := j.db.Where("handle = ?", handle).Order("seq asc").Find(&fills).Error
	return fills, err
}
