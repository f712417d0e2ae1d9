package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weliakcay/mirrorly-app/internal/fetch"
	"github.com/weliakcay/mirrorly-app/internal/tryon"
)

var testPhoto = []byte("shopper-photo-bytes")

func submit(t *testing.T, svc *TryOnService, id, garmentID string) *SessionView {
	t.Helper()
	v, err := svc.SubmitPhoto(context.Background(), id, testPhoto, "image/jpeg", garmentID, "")
	if err != nil {
		t.Fatalf("submit photo: %v", err)
	}
	return v
}

func TestTryOn_HappyPath(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{0x89, 0x50})}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	if sess.State != StateIdle || sess.GarmentID != "g1" {
		t.Fatalf("fresh session = %+v", sess)
	}

	v := submit(t, svc, sess.ID, "")
	if v.State != StateProcessing {
		t.Fatalf("state after submit = %s, want processing", v.State)
	}

	v = waitForResult(t, svc, sess.ID)
	if v.Result == nil || !v.Result.Success {
		t.Fatalf("result = %+v", v.Result)
	}
	if !strings.HasPrefix(v.Result.ImageURL, "data:image/png;base64,") {
		t.Errorf("result image = %q", v.Result.ImageURL)
	}
	if got := credits(t, db); got != 4 {
		t.Errorf("credits = %d, want 4", got)
	}

	items, err := NewHistoryService(db, 20).List(context.Background())
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(items) != 1 || items[0].GarmentID != "g1" {
		t.Errorf("history = %+v", items)
	}
}

func TestTryOn_CreditGateShortCircuits(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 0)

	caller := &scriptedCaller{resp: imageReply([]byte{1})}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	v := submit(t, svc, sess.ID, "")
	// The gate fails synchronously: the submission response already carries
	// the terminal failure.
	if v.State != StateResult || v.Result == nil || v.Result.Success {
		t.Fatalf("view after gated submit = %+v", v)
	}
	if v.Result.Category != string(tryon.CategoryInsufficientCredits) {
		t.Errorf("category = %s", v.Result.Category)
	}
	if v.Result.Retryable {
		t.Error("an empty balance is not fixed by trying again")
	}
	if caller.calls.Load() != 0 {
		t.Error("exhausted balance must never reach the model")
	}
	if got := credits(t, db); got != 0 {
		t.Errorf("credits = %d, want 0", got)
	}
}

func TestTryOn_SafetyRefusalLeavesCreditsUntouched(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: textReply("I can't generate this image because it violates the safety policy.")}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	v := waitForResult(t, svc, sess.ID)

	if v.Result.Success || v.Result.Category != string(tryon.CategorySafetyRefusal) {
		t.Fatalf("result = %+v", v.Result)
	}
	if v.Result.Message == "" || strings.Contains(v.Result.Message, "policy violation") {
		t.Errorf("message must be user-safe, got %q", v.Result.Message)
	}
	if !v.Result.Retryable {
		t.Error("a refusal should leave the retry action available")
	}
	if got := credits(t, db); got != 5 {
		t.Errorf("credits = %d, want 5 (failure never charges)", got)
	}
}

func TestTryOn_DeadGarmentURL(t *testing.T) {
	db := newTestDB(t)
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer dead.Close()

	seedGarment(t, db, "g1", dead.URL+"/gone.jpg")
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1})}
	svc := newTryOnService(db, scriptedInvoker(caller))
	svc.Fetcher = fetch.New(200*time.Millisecond, 200*time.Millisecond, dead.URL+"/proxy?url=")

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	v := waitForResult(t, svc, sess.ID)

	if v.Result.Category != string(tryon.CategoryGarmentFetchFailed) {
		t.Fatalf("result = %+v", v.Result)
	}
	if caller.calls.Load() != 0 {
		t.Error("fetch failure must not reach the model")
	}
	if got := credits(t, db); got != 5 {
		t.Errorf("credits = %d, want 5", got)
	}
}

func TestTryOn_TimeoutIsClassified(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1}), delay: time.Second}
	inv := scriptedInvoker(caller)
	inv.Timeout = 30 * time.Millisecond
	svc := newTryOnService(db, inv)

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	v := waitForResult(t, svc, sess.ID)

	if v.Result.Category != string(tryon.CategoryTimeout) {
		t.Fatalf("result = %+v", v.Result)
	}
	if got := credits(t, db); got != 5 {
		t.Errorf("credits = %d, want 5", got)
	}
}

func TestTryOn_SubmitWhileProcessingRejected(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1}), delay: 300 * time.Millisecond}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")

	_, err := svc.SubmitPhoto(context.Background(), sess.ID, testPhoto, "image/jpeg", "", "")
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	waitForResult(t, svc, sess.ID)
}

func TestTryOn_CancelBeforeGrace(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1}), delay: 300 * time.Millisecond}
	svc := newTryOnService(db, scriptedInvoker(caller))
	svc.CancelGrace = time.Hour

	sess := svc.CreateSession("g1")
	v := submit(t, svc, sess.ID, "")
	if v.CancelAvailable {
		t.Error("cancel must not be offered inside the grace period")
	}

	_, err := svc.Cancel(sess.ID)
	if !errors.Is(err, ErrCancelTooEarly) {
		t.Fatalf("expected ErrCancelTooEarly, got %v", err)
	}
	waitForResult(t, svc, sess.ID)
}

func TestTryOn_CancelDiscardsStaleResult(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1}), delay: 150 * time.Millisecond}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")

	v, err := svc.Cancel(sess.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if v.State != StateIdle {
		t.Fatalf("state after cancel = %s", v.State)
	}

	// Let the in-flight call settle; the session must not move and the
	// ledger must not be charged.
	time.Sleep(400 * time.Millisecond)
	v, err = svc.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if v.State != StateIdle || v.Result != nil {
		t.Errorf("stale result mutated the session: %+v", v)
	}
	if got := credits(t, db); got != 5 {
		t.Errorf("credits = %d, want 5 (canceled attempt must not charge)", got)
	}
}

func TestTryOn_RetryChargesOncePerSuccess(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: textReply("request timed out")}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	v := waitForResult(t, svc, sess.ID)
	if v.Result.Success {
		t.Fatal("first attempt should fail")
	}
	if got := credits(t, db); got != 5 {
		t.Fatalf("credits after failure = %d, want 5", got)
	}

	// The backend recovers; Retry re-runs with the stored photo.
	caller.resp = imageReply([]byte{1})
	if _, err := svc.Retry(context.Background(), sess.ID); err != nil {
		t.Fatalf("retry: %v", err)
	}
	v = waitForResult(t, svc, sess.ID)
	if !v.Result.Success {
		t.Fatalf("retry result = %+v", v.Result)
	}
	if got := credits(t, db); got != 4 {
		t.Errorf("credits = %d, want 4 (exactly one decrement)", got)
	}
}

func TestTryOn_RetakeAndReset(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	svc := newTryOnService(db, scriptedInvoker(&scriptedCaller{resp: imageReply([]byte{1})}))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	waitForResult(t, svc, sess.ID)

	// Retake keeps the deep-link garment so the shopper can re-shoot.
	v, err := svc.Retake(sess.ID)
	if err != nil {
		t.Fatalf("retake: %v", err)
	}
	if v.State != StateIdle || v.GarmentID != "g1" || v.Result != nil {
		t.Fatalf("view after retake = %+v", v)
	}

	// With the photo gone, retry has nothing to re-run.
	if _, err := svc.Retry(context.Background(), sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("retry from idle: %v", err)
	}

	// Reset is "try another garment": the deep link goes too.
	v, err = svc.Reset(sess.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if v.GarmentID != "" {
		t.Errorf("reset kept garment %q", v.GarmentID)
	}
}

func TestTryOn_IdempotentSubmission(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1})}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	if _, err := svc.SubmitPhoto(context.Background(), sess.ID, testPhoto, "image/jpeg", "", "key-1"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForResult(t, svc, sess.ID)

	// The client retries the same request; no second attempt, no second
	// charge.
	v, err := svc.SubmitPhoto(context.Background(), sess.ID, testPhoto, "image/jpeg", "", "key-1")
	if err != nil {
		t.Fatalf("replayed submit: %v", err)
	}
	if v.State != StateResult {
		t.Errorf("replay state = %s", v.State)
	}
	if caller.calls.Load() != 1 {
		t.Errorf("model calls = %d, want 1", caller.calls.Load())
	}
	if got := credits(t, db); got != 4 {
		t.Errorf("credits = %d, want 4", got)
	}
}

func TestTryOn_RejectedSubmissionKeyStaysUsable(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	caller := &scriptedCaller{resp: imageReply([]byte{1}), delay: 300 * time.Millisecond}
	svc := newTryOnService(db, scriptedInvoker(caller))

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")

	// A keyed submission rejected while busy must not burn its key.
	_, err := svc.SubmitPhoto(context.Background(), sess.ID, testPhoto, "image/jpeg", "", "key-busy")
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
	waitForResult(t, svc, sess.ID)

	// The client retries the rejected request with the same key once the
	// session settles; this is a fresh submission, not a replay.
	v, err := svc.SubmitPhoto(context.Background(), sess.ID, testPhoto, "image/jpeg", "", "key-busy")
	if err != nil {
		t.Fatalf("retried submit: %v", err)
	}
	if v.State != StateProcessing {
		t.Fatalf("retried submit state = %s, want processing", v.State)
	}
	waitForResult(t, svc, sess.ID)

	if caller.calls.Load() != 2 {
		t.Errorf("model calls = %d, want 2", caller.calls.Load())
	}
	if got := credits(t, db); got != 3 {
		t.Errorf("credits = %d, want 3", got)
	}
}

func TestTryOn_ProfileKeyOverridesSystemKey(t *testing.T) {
	db := newTestDB(t)
	seedGarment(t, db, "g1", garmentDataURI)
	seedCredits(t, db, 5)

	var usedKey string
	caller := &scriptedCaller{resp: imageReply([]byte{1})}
	inv := &tryon.Invoker{
		Timeout: time.Second,
		NewCaller: func(ctx context.Context, apiKey string) (tryon.ModelCaller, func(), error) {
			usedKey = apiKey
			return caller, func() {}, nil
		},
	}
	svc := newTryOnService(db, inv)

	profiles := NewProfileService(db)
	p, _ := profiles.Get(context.Background())
	p.GeminiAPIKey = "boutique-key"
	if err := profiles.Update(context.Background(), p); err != nil {
		t.Fatalf("update profile: %v", err)
	}

	sess := svc.CreateSession("g1")
	submit(t, svc, sess.ID, "")
	waitForResult(t, svc, sess.ID)

	if usedKey != "boutique-key" {
		t.Errorf("used key %q, want the profile key", usedKey)
	}
}

func TestTryOn_InputValidation(t *testing.T) {
	db := newTestDB(t)
	svc := newTryOnService(db, scriptedInvoker(&scriptedCaller{}))

	if _, err := svc.GetSession("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session: %v", err)
	}
	sess := svc.CreateSession("")
	if _, err := svc.SubmitPhoto(context.Background(), sess.ID, nil, "", "", ""); !errors.Is(err, ErrEmptyPhoto) {
		t.Errorf("empty photo: %v", err)
	}
	if _, err := svc.Cancel(sess.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel from idle: %v", err)
	}
}
