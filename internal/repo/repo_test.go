package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weliakcay/mirrorly-app/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedGarment(t *testing.T, db *gorm.DB, id string) *domain.Garment {
	t.Helper()
	g, err := CreateGarment(context.Background(), db, &domain.Garment{
		ID:           id,
		Name:         "Silk Evening Gown",
		Description:  "A midnight blue silk gown with elegant draping.",
		ImageURL:     "https://cdn.example.com/gown.jpg",
		Price:        450,
		BoutiqueName: "Lumière Boutique",
	})
	if err != nil {
		t.Fatalf("seed garment: %v", err)
	}
	return g
}

func TestGarment_CRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g := seedGarment(t, db, "g1")
	if g.ID != "g1" {
		t.Fatalf("CreateGarment must keep caller-supplied IDs, got %q", g.ID)
	}

	got, err := GetGarment(ctx, db, "g1")
	if err != nil {
		t.Fatalf("GetGarment: %v", err)
	}
	if got.Name != "Silk Evening Gown" {
		t.Errorf("Name = %q", got.Name)
	}

	got.Price = 399
	got.Name = "Silk Gown (sale)"
	if err := UpdateGarment(ctx, db, got); err != nil {
		t.Fatalf("UpdateGarment: %v", err)
	}
	got, _ = GetGarment(ctx, db, "g1")
	if got.Price != 399 || got.Name != "Silk Gown (sale)" {
		t.Errorf("update not applied: %+v", got)
	}

	if err := DeleteGarment(ctx, db, "g1"); err != nil {
		t.Fatalf("DeleteGarment: %v", err)
	}
	if _, err := GetGarment(ctx, db, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := DeleteGarment(ctx, db, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestGarment_GeneratedID(t *testing.T) {
	db := newTestDB(t)
	g, err := CreateGarment(context.Background(), db, &domain.Garment{
		Name:     "Trench Coat",
		ImageURL: "data:image/jpeg;base64,xxx",
	})
	if err != nil {
		t.Fatalf("CreateGarment: %v", err)
	}
	if g.ID == "" {
		t.Fatal("expected a generated ID")
	}
}

func TestGarment_ListOrder(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1")
	seedGarment(t, db, "g2")

	items, err := ListGarments(context.Background(), db)
	if err != nil {
		t.Fatalf("ListGarments: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
}

func TestProfile_ProvisionAndSave(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p, err := GetProfile(ctx, db, DefaultProfileID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Credits != 0 {
		t.Errorf("fresh profile credits = %d, want 0", p.Credits)
	}

	p.Name = "Lumière Boutique"
	p.GeminiAPIKey = "profile-key"
	p.Credits = 99 // must be ignored by SaveProfile
	if err := SaveProfile(ctx, db, p); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	p2, _ := GetProfile(ctx, db, DefaultProfileID)
	if p2.Name != "Lumière Boutique" || p2.GeminiAPIKey != "profile-key" {
		t.Errorf("profile not saved: %+v", p2)
	}
	if p2.Credits != 0 {
		t.Errorf("SaveProfile must not touch credits, got %d", p2.Credits)
	}
}

func TestProfile_Credits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetProfile(ctx, db, DefaultProfileID); err != nil {
		t.Fatalf("GetProfile: %v", err)
	}

	// Spending at zero must fail and leave the balance untouched.
	if err := SpendCredit(ctx, db, DefaultProfileID); !errors.Is(err, ErrNoCredits) {
		t.Fatalf("expected ErrNoCredits, got %v", err)
	}

	if err := AddCredits(ctx, db, DefaultProfileID, 2); err != nil {
		t.Fatalf("AddCredits: %v", err)
	}
	if err := SpendCredit(ctx, db, DefaultProfileID); err != nil {
		t.Fatalf("SpendCredit: %v", err)
	}
	p, _ := GetProfile(ctx, db, DefaultProfileID)
	if p.Credits != 1 {
		t.Errorf("credits = %d, want 1", p.Credits)
	}

	if err := AddCredits(ctx, db, DefaultProfileID, 0); err == nil {
		t.Error("AddCredits(0) must be rejected")
	}
}

func TestHistory_CapAndOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	const limit = 20

	g := domain.Garment{ID: "g1", Name: "Gown", ImageURL: "u"}
	for i := 0; i < limit+1; i++ {
		if _, err := AppendHistory(ctx, db, g, fmt.Sprintf("result-%d", i), limit); err != nil {
			t.Fatalf("AppendHistory #%d: %v", i, err)
		}
	}

	items, err := ListHistory(ctx, db)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(items) != limit {
		t.Fatalf("len = %d, want %d (oldest evicted)", len(items), limit)
	}
	// Most recent first: entry #20 leads, entry #0 is gone.
	if items[0].ResultImageURL != "result-20" {
		t.Errorf("head = %q, want result-20", items[0].ResultImageURL)
	}
	for _, it := range items {
		if it.ResultImageURL == "result-0" {
			t.Error("oldest entry was not evicted")
		}
	}
}

func TestHistory_Clear(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g := domain.Garment{ID: "g1", Name: "Gown", ImageURL: "u"}
	if _, err := AppendHistory(ctx, db, g, "r1", 20); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := ClearHistory(ctx, db); err != nil {
		t.Fatalf("ClearHistory: %v", err)
	}
	items, _ := ListHistory(ctx, db)
	if len(items) != 0 {
		t.Errorf("len = %d after clear, want 0", len(items))
	}
}

func TestHistory_SnapshotSurvivesGarmentDeletion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	g := seedGarment(t, db, "g1")
	if _, err := AppendHistory(ctx, db, *g, "result", 20); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := DeleteGarment(ctx, db, "g1"); err != nil {
		t.Fatalf("DeleteGarment: %v", err)
	}

	items, _ := ListHistory(ctx, db)
	if len(items) != 1 || items[0].GarmentName != "Silk Evening Gown" {
		t.Fatalf("history snapshot lost after garment deletion: %+v", items)
	}
}

const testTTL = time.Hour

func nowUTC() time.Time { return time.Now().UTC() }

func TestIdempotency_CreateAndReplay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := GetIdempotency(ctx, db, "s1", "k1", nowUTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "s1", "k1", 202, testTTL); err != nil {
		t.Fatalf("CreateIdempotency: %v", err)
	}
	rec, err := GetIdempotency(ctx, db, "s1", "k1", nowUTC())
	if err != nil {
		t.Fatalf("GetIdempotency: %v", err)
	}
	if rec.Status != 202 {
		t.Errorf("status = %d, want 202", rec.Status)
	}

	if _, err := CreateIdempotency(ctx, db, "s1", "k1", 202, testTTL); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}
