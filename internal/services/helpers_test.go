package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/traderobots-backend/internal/domain"
	"github.com/tbourn/traderobots-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var (
	owner = domain.Principal{UserID: "owner-1", Email: "owner@example.com"}
	ana   = domain.Principal{UserID: "ana-1", Email: "ana@example.com"}
	bob   = domain.Principal{UserID: "bob-1", Email: "bob@example.com"}
)

func seedRobot(t *testing.T, db *gorm.DB, p domain.Principal, name string) {
	t.Helper()
	if _, err := repo.CreateRobot(context.Background(), db, p.UserID, name, ""); err != nil {
		t.Fatalf("seed robot: %v", err)
	}
}

func seedProfile(t *testing.T, db *gorm.DB, p domain.Principal, balance int64) {
	t.Helper()
	prof := &domain.Profile{ID: p.UserID, Email: p.Email, TokenBalance: balance, Plan: "free", PlanStatus: "active"}
	if err := db.Create(prof).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
}
