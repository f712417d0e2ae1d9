package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/fetch"
	"github.com/weliakcay/mirrorly-app/internal/imaging"
	"github.com/weliakcay/mirrorly-app/internal/repo"
	"github.com/weliakcay/mirrorly-app/internal/tryon"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// garmentDataURI is a tiny embedded garment image; the preparer passes
// undecodable bytes through unchanged, which is all the fakes need.
var garmentDataURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("garment-bytes"))

func seedGarment(t *testing.T, db *gorm.DB, id, imageURL string) *domain.Garment {
	t.Helper()
	g, err := repo.CreateGarment(context.Background(), db, &domain.Garment{
		ID:           id,
		Name:         "Silk Evening Gown",
		ImageURL:     imageURL,
		Price:        450,
		BoutiqueName: "Lumière Boutique",
	})
	if err != nil {
		t.Fatalf("seed garment: %v", err)
	}
	return g
}

func seedCredits(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	ctx := context.Background()
	if _, err := repo.GetProfile(ctx, db, repo.DefaultProfileID); err != nil {
		t.Fatalf("provision profile: %v", err)
	}
	if n > 0 {
		if err := repo.AddCredits(ctx, db, repo.DefaultProfileID, n); err != nil {
			t.Fatalf("seed credits: %v", err)
		}
	}
}

func credits(t *testing.T, db *gorm.DB) int {
	t.Helper()
	p, err := repo.GetProfile(context.Background(), db, repo.DefaultProfileID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p.Credits
}

// scriptedCaller is a fake generation backend.
type scriptedCaller struct {
	resp  *genai.GenerateContentResponse
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (c *scriptedCaller) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.resp, c.err
}

func scriptedInvoker(c *scriptedCaller) *tryon.Invoker {
	return &tryon.Invoker{
		Timeout: 2 * time.Second,
		NewCaller: func(ctx context.Context, apiKey string) (tryon.ModelCaller, func(), error) {
			return c, func() {}, nil
		},
	}
}

func imageReply(data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Blob{MIMEType: "image/png", Data: data},
			}},
		}},
	}
}

func textReply(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(text)}},
		}},
	}
}

func newTryOnService(db *gorm.DB, inv *tryon.Invoker) *TryOnService {
	return NewTryOnService(
		db,
		NewCreditLedger(db),
		NewHistoryService(db, 20),
		imaging.Preparer{MaxDimension: 800, Quality: 65},
		fetch.New(time.Second, time.Second, "https://images.weserv.nl/?url="),
		inv,
		"system-key",
		0, // no cancel grace in tests unless a test sets one
		time.Hour,
	)
}

// waitForResult polls until the session reaches a terminal result.
func waitForResult(t *testing.T, svc *TryOnService, id string) *SessionView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		v, err := svc.GetSession(id)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if v.State == StateResult {
			return v
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached a result")
	return nil
}
