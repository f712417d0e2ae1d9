// Package services – TryOnService
//
// This file implements the try-on session machine, the finite-state
// controller driving Idle → PhotoCaptured → Processing → Result. The
// transition into Processing is synchronous so clients observe "processing"
// immediately; the pipeline itself (prepare → fetch → build → invoke) runs on
// its own goroutine and commits its outcome back through a generation
// counter, so a canceled attempt can never mutate the session when its remote
// call eventually settles.
//
// Credits: the balance gates entry to Processing and is decremented exactly
// once, after a successful image extraction and before the history append.
// No failure path touches credits.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/fetch"
	"github.com/weliakcay/mirrorly-app/internal/imaging"
	"github.com/weliakcay/mirrorly-app/internal/repo"
	"github.com/weliakcay/mirrorly-app/internal/sysutil"
	"github.com/weliakcay/mirrorly-app/internal/tryon"
)

// SessionState is a phase of the try-on session machine.
type SessionState string

const (
	StateIdle          SessionState = "idle"
	StatePhotoCaptured SessionState = "photo_captured"
	StateProcessing    SessionState = "processing"
	StateResult        SessionState = "result"
)

// resultsTotal counts terminal pipeline outcomes by category. Successes carry
// the empty-category label "ok".
var resultsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mirrorly_tryon_results_total",
		Help: "Terminal try-on outcomes by category.",
	},
	[]string{"outcome", "category"},
)

// session is one shopper's machine. All fields are guarded by mu.
type session struct {
	mu sync.Mutex

	id        string
	state     SessionState
	garmentID string
	photo     imaging.Payload
	result    *domain.ProcessingResult

	// generation invalidates in-flight pipelines: each entry into
	// Processing, and each Cancel/reset, bumps it, and a pipeline only
	// commits when its captured value still matches.
	generation uint64

	processingSince time.Time
}

// SessionView is the client-facing snapshot of a session.
type SessionView struct {
	ID              string                   `json:"id"`
	State           SessionState             `json:"state"`
	GarmentID       string                   `json:"garmentId,omitempty"`
	Result          *domain.ProcessingResult `json:"result,omitempty"`
	CancelAvailable bool                     `json:"cancelAvailable"`
}

// TryOnService owns the in-memory sessions and runs the generation pipeline.
type TryOnService struct {
	DB      *gorm.DB
	Ledger  *CreditLedger
	History *HistoryService

	Preparer imaging.Preparer
	Fetcher  *fetch.Fetcher
	Invoker  *tryon.Invoker

	// SystemAPIKey is the environment-configured fallback; a key on the
	// merchant profile takes priority.
	SystemAPIKey string

	// CancelGrace is how long Processing must run before Cancel is honored.
	CancelGrace time.Duration

	// IdempotencyTTL bounds how long a photo-submission key is remembered.
	IdempotencyTTL time.Duration

	// now is a test seam.
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewTryOnService wires the session machine to its collaborators.
func NewTryOnService(db *gorm.DB, ledger *CreditLedger, history *HistoryService,
	preparer imaging.Preparer, fetcher *fetch.Fetcher, invoker *tryon.Invoker,
	systemAPIKey string, cancelGrace, idempotencyTTL time.Duration) *TryOnService {
	return &TryOnService{
		DB:             db,
		Ledger:         ledger,
		History:        history,
		Preparer:       preparer,
		Fetcher:        fetcher,
		Invoker:        invoker,
		SystemAPIKey:   systemAPIKey,
		CancelGrace:    cancelGrace,
		IdempotencyTTL: idempotencyTTL,
		now:            time.Now,
		sessions:       make(map[string]*session),
	}
}

// CreateSession opens a new idle session, optionally carrying a deep-link
// garment.
func (s *TryOnService) CreateSession(garmentID string) *SessionView {
	sess := &session{
		id:        uuid.NewString(),
		state:     StateIdle,
		garmentID: strings.TrimSpace(garmentID),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess)
}

// GetSession returns the current snapshot of a session.
func (s *TryOnService) GetSession(id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return s.viewLocked(sess), nil
}

// SubmitPhoto captures the shopper's photo and starts processing. The state
// moves to Processing before this returns; the pipeline runs asynchronously.
// A repeated submission carrying the same idempotency key replays the current
// state instead of starting (and charging) a second attempt. Submissions
// while already Processing are rejected.
func (s *TryOnService) SubmitPhoto(ctx context.Context, id string, photo []byte, mime, garmentID, idemKey string) (*SessionView, error) {
	tr := otel.Tracer("services/TryOnService")
	ctx, span := tr.Start(ctx, "SubmitPhoto",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if len(photo) == 0 {
		return nil, ErrEmptyPhoto
	}

	if idemKey != "" {
		if _, ierr := repo.GetIdempotency(ctx, s.DB, id, idemKey, s.now()); ierr == nil {
			sess.mu.Lock()
			defer sess.mu.Unlock()
			return s.viewLocked(sess), nil
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state == StateProcessing {
		return nil, ErrSessionBusy
	}

	// Record the key only for accepted submissions. A submission rejected
	// above must stay retryable under the same key once the session settles.
	if idemKey != "" {
		if _, ierr := repo.CreateIdempotency(ctx, s.DB, id, idemKey, 0, s.IdempotencyTTL); ierr != nil {
			if errors.Is(ierr, repo.ErrDuplicate) {
				return s.viewLocked(sess), nil
			}
			return nil, ierr
		}
	}

	if g := strings.TrimSpace(garmentID); g != "" {
		sess.garmentID = g
	}
	if mime == "" {
		mime = imaging.SniffMIME(photo)
	}
	sess.photo = imaging.Payload{Data: photo, MIME: mime}
	sess.state = StatePhotoCaptured

	s.startProcessingLocked(ctx, sess)
	return s.viewLocked(sess), nil
}

// Cancel returns a Processing session to Idle. It is honored only after the
// grace period; the in-flight pipeline result, when it eventually settles, is
// discarded.
func (s *TryOnService) Cancel(id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateProcessing {
		return nil, ErrInvalidTransition
	}
	if s.now().Sub(sess.processingSince) < s.CancelGrace {
		return nil, ErrCancelTooEarly
	}

	sess.generation++
	sess.state = StateIdle
	sess.photo = imaging.Payload{}
	sess.result = nil
	log.Info().Str("session_id", sess.id).Msg("try-on canceled, in-flight result will be discarded")
	return s.viewLocked(sess), nil
}

// Retry re-runs the pipeline with the already-captured photo. Every retry is
// user-initiated; nothing here retries automatically.
func (s *TryOnService) Retry(ctx context.Context, id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateResult {
		return nil, ErrInvalidTransition
	}
	if len(sess.photo.Data) == 0 {
		return nil, ErrNoPhoto
	}

	sess.state = StatePhotoCaptured
	s.startProcessingLocked(ctx, sess)
	return s.viewLocked(sess), nil
}

// Retake discards the captured photo and result so the shopper can take a new
// photo for the same garment.
func (s *TryOnService) Retake(id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateProcessing {
		return nil, ErrSessionBusy
	}
	sess.generation++
	sess.state = StateIdle
	sess.photo = imaging.Payload{}
	sess.result = nil
	return s.viewLocked(sess), nil
}

// Reset is the "try another garment" transition: back to Idle with the
// deep-link garment cleared along with the photo and result.
func (s *TryOnService) Reset(id string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state == StateProcessing {
		return nil, ErrSessionBusy
	}
	sess.generation++
	sess.state = StateIdle
	sess.garmentID = ""
	sess.photo = imaging.Payload{}
	sess.result = nil
	return s.viewLocked(sess), nil
}

// startProcessingLocked moves the session into Processing and launches the
// pipeline. The credit gate runs here, synchronously, so an exhausted balance
// yields its failure result immediately without spawning anything. Caller
// holds sess.mu.
func (s *TryOnService) startProcessingLocked(ctx context.Context, sess *session) {
	sess.state = StateProcessing
	sess.result = nil
	sess.processingSince = s.now()
	sess.generation++
	gen := sess.generation

	if err := s.Ledger.Gate(ctx); err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			s.commitLocked(sess, gen, failure(tryon.CategoryInsufficientCredits))
			return
		}
		log.Error().Err(err).Str("session_id", sess.id).Msg("credit gate check failed")
		s.commitLocked(sess, gen, failure(tryon.CategoryUnknown))
		return
	}

	photo := sess.photo
	garmentID := sess.garmentID
	// The request context dies with the HTTP response; the pipeline outlives
	// it but keeps its trace linkage.
	go s.runPipeline(context.WithoutCancel(ctx), sess, gen, photo, garmentID)
}

// runPipeline executes one try-on attempt end to end and commits a terminal
// ProcessingResult, unless the session moved on in the meantime.
func (s *TryOnService) runPipeline(ctx context.Context, sess *session, gen uint64, photo imaging.Payload, garmentID string) {
	tr := otel.Tracer("services/TryOnService")
	ctx, span := tr.Start(ctx, "runPipeline",
		trace.WithAttributes(
			attribute.String("session.id", sess.id),
			attribute.String("garment.id", garmentID),
		),
	)
	defer span.End()

	res := s.attempt(ctx, sess, gen, photo, garmentID)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	s.commitLocked(sess, gen, res)
}

// attempt runs prepare → resolve garment image → build → invoke → spend →
// record. Every failure is converted to exactly one user-safe result; no raw
// error leaves this function.
func (s *TryOnService) attempt(ctx context.Context, sess *session, gen uint64, photo imaging.Payload, garmentID string) domain.ProcessingResult {
	prepared := s.Preparer.Prepare(photo)

	garment, err := repo.GetGarment(ctx, s.DB, garmentID)
	if err != nil {
		log.Warn().Err(err).Str("garment_id", garmentID).Msg("garment lookup failed")
		return failure(tryon.CategoryGarmentFetchFailed)
	}

	garmentImage, err := s.garmentImage(ctx, garment)
	if err != nil {
		return failureFromErr(err)
	}

	req := tryon.BuildRequest(prepared, garmentImage, *garment)

	profile, err := repo.GetProfile(ctx, s.DB, s.Ledger.ProfileID)
	if err != nil {
		log.Error().Err(err).Msg("profile lookup failed")
		return failure(tryon.CategoryUnknown)
	}
	apiKey := sysutil.FirstNonEmpty(profile.GeminiAPIKey, s.SystemAPIKey)

	img, err := s.Invoker.Invoke(ctx, req, apiKey)
	if err != nil {
		return failureFromErr(err)
	}

	// A cancel that landed while the remote call was in flight must keep the
	// ledger untouched; the stale result is discarded at commit regardless.
	sess.mu.Lock()
	canceled := sess.generation != gen
	sess.mu.Unlock()
	if canceled {
		return failure(tryon.CategoryUnknown)
	}

	if err := s.Ledger.Spend(ctx); err != nil {
		// The balance ran out between the gate and here.
		if errors.Is(err, ErrInsufficientCredits) {
			return failure(tryon.CategoryInsufficientCredits)
		}
		log.Error().Err(err).Msg("credit spend failed")
		return failure(tryon.CategoryUnknown)
	}

	dataURI := img.DataURI()
	if _, err := s.History.Append(ctx, *garment, dataURI); err != nil {
		// The shopper has their image and the credit is spent; a gallery miss
		// is not worth failing the attempt over.
		log.Warn().Err(err).Str("garment_id", garment.ID).Msg("history append failed")
	}
	return domain.SuccessResult(dataURI)
}

// garmentImage resolves the garment's image bytes: embedded data-URIs are
// decoded locally, remote URLs go through the fetch fallback chain. Either
// way the result is prepared before it reaches the model.
func (s *TryOnService) garmentImage(ctx context.Context, g *domain.Garment) (imaging.Payload, error) {
	if strings.HasPrefix(g.ImageURL, "data:") {
		p, err := imaging.ParseDataURI(g.ImageURL)
		if err != nil {
			return imaging.Payload{}, fetch.ErrGarmentUnavailable
		}
		return s.Preparer.Prepare(p), nil
	}
	data, mime, err := s.Fetcher.Fetch(ctx, g.ImageURL)
	if err != nil {
		return imaging.Payload{}, err
	}
	return s.Preparer.Prepare(imaging.Payload{Data: data, MIME: mime}), nil
}

// commitLocked records a terminal result if the session still belongs to this
// attempt. Caller holds sess.mu.
func (s *TryOnService) commitLocked(sess *session, gen uint64, res domain.ProcessingResult) {
	if sess.generation != gen {
		log.Info().Str("session_id", sess.id).Msg("discarding stale pipeline result")
		return
	}
	sess.state = StateResult
	sess.result = &res

	if res.Success {
		resultsTotal.WithLabelValues("success", "ok").Inc()
	} else {
		resultsTotal.WithLabelValues("failure", res.Category).Inc()
	}
}

func (s *TryOnService) lookup(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// viewLocked snapshots the session. Caller holds sess.mu.
func (s *TryOnService) viewLocked(sess *session) *SessionView {
	v := &SessionView{
		ID:        sess.id,
		State:     sess.state,
		GarmentID: sess.garmentID,
	}
	if sess.result != nil {
		r := *sess.result
		v.Result = &r
	}
	if sess.state == StateProcessing {
		v.CancelAvailable = s.now().Sub(sess.processingSince) >= s.CancelGrace
	}
	return v
}

func failure(c tryon.Category) domain.ProcessingResult {
	return domain.FailureResult(string(c), tryon.Message(c), c.Retryable())
}

func failureFromErr(err error) domain.ProcessingResult {
	return failure(tryon.Classify(err))
}
