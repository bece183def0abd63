package catalog

import (
	"context"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&AIModel{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seed(t *testing.T, db *gorm.DB, rows ...AIModel) {
	t.Helper()
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed %s: %v", rows[i].ID, err)
		}
	}
}

func TestListActive_FiltersInactiveAndProvider(t *testing.T) {
	db := openTestDB(t)
	seed(t, db,
		AIModel{ID: "gpt-4", Provider: "openai", DisplayName: "GPT-4", ContextWindow: 8192, SupportsStreaming: true, IsActive: true},
		AIModel{ID: "gpt-3.5-turbo", Provider: "openai", DisplayName: "GPT-3.5", ContextWindow: 4096, SupportsStreaming: true, IsActive: false},
		AIModel{ID: "claude-3-sonnet", Provider: "anthropic", DisplayName: "Claude 3 Sonnet", ContextWindow: 200000, IsActive: true},
	)
	repo := NewRepo(db)
	ctx := context.Background()

	all, err := repo.ListActive(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("active models = %d, want 2", len(all))
	}

	oa, err := repo.ListActive(ctx, "openai")
	if err != nil {
		t.Fatalf("list openai: %v", err)
	}
	if len(oa) != 1 || oa[0].ID != "gpt-4" {
		t.Fatalf("openai models = %+v", oa)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := NewRepo(openTestDB(t))

	_, err := repo.Get(context.Background(), "no-such-model")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("err = %v, want record not found", err)
	}
}
