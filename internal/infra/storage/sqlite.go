// Package storage persists the order journal in an embedded SQLite file.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"optiongate/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Journal records order submission outcomes for post-trade review.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the journal database at the given path.
func NewJournal(dbPath string) (*Journal, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite, no cgo
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.OrderJournalEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record persists one leg outcome. Implements domain.OrderJournal.
func (j *Journal) Record(leg domain.OrderLeg, res domain.LegResult) error {
	entry := domain.OrderJournalEntry{
		Symbol:    leg.Symbol,
		Exchange:  leg.Exchange,
		Action:    leg.Action,
		OrderType: leg.OrderType,
		Quantity:  leg.Quantity,
		Price:     leg.Price.String(),
		Strike:    leg.Strike,
		Right:     leg.Right,
		Expiry:    leg.Expiry,
		Remark:    leg.Remark,
		OrderID:   res.OrderID,
		Success:   res.Success,
		Error:     res.Error,
	}
	return j.db.Create(&entry).Error
}

// BySymbol returns the journal entries for one symbol, newest first.
func (j *Journal) BySymbol(symbol string, limit int) ([]domain.OrderJournalEntry, error) {
	var entries []domain.OrderJournalEntry
	q := j.db.Where("symbol = ?", symbol).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// Since returns every entry recorded at or after the given time, newest first.
func (j *Journal) Since(t time.Time) ([]domain.OrderJournalEntry, error) {
	var entries []domain.OrderJournalEntry
	err := j.db.Where("created_at >= ?", t).Order("created_at DESC").Find(&entries).Error
	return entries, err
}

// Recent returns the latest entries regardless of symbol.
func (j *Journal) Recent(limit int) ([]domain.OrderJournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.OrderJournalEntry
	err := j.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
