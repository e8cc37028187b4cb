package repo

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/traderobots-backend/internal/domain"
)

func TestAnalyses_CRUDScopedByOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a1", "a2", "a3"} {
		a := &domain.StrategyAnalysis{ID: id, UserID: "u1", Kind: domain.AnalysisBacktest, Data: datatypes.JSON(`{}`), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := CreateAnalysis(ctx, db, a); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := CreateAnalysis(ctx, db, &domain.StrategyAnalysis{ID: "b1", UserID: "u2", Kind: domain.AnalysisStrategy, Data: datatypes.JSON(`{}`)}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	n, err := CountAnalyses(ctx, db, "u1")
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
	page, err := ListAnalysesPage(ctx, db, "u1", 0, 2)
	if err != nil || len(page) != 2 || page[0].ID != "a3" {
		t.Fatalf("page = %+v, %v", page, err)
	}

	if _, err := GetAnalysis(ctx, db, "b1", "u1"); err != ErrNotFound {
		t.Fatalf("cross-user get: want ErrNotFound, got %v", err)
	}

	if err := UpdateAnalysisData(ctx, db, "a1", "u1", datatypes.JSON(`{"metrics":{"winRate":58.3}}`)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := GetAnalysis(ctx, db, "a1", "u1")
	if err != nil || string(got.Data) != `{"metrics":{"winRate":58.3}}` {
		t.Fatalf("updated data = %s, %v", got.Data, err)
	}
	if err := UpdateAnalysisData(ctx, db, "b1", "u1", datatypes.JSON(`{}`)); err != ErrNotFound {
		t.Fatalf("cross-user update: want ErrNotFound, got %v", err)
	}
}
