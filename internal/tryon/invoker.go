package tryon

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/weliakcay/mirrorly-app/internal/imaging"
)

// Sentinel errors surfaced by Invoke. The classifier maps each to exactly one
// user-facing category.
var (
	// ErrMissingAPIKey means no key was resolvable; the call is never
	// attempted.
	ErrMissingAPIKey = errors.New("no API key configured")
	// ErrTimeout means the deadline elapsed before the remote call settled.
	// Whatever the call eventually returns is discarded.
	ErrTimeout = errors.New("generation timed out")
	// ErrEmptyResponse means the call succeeded transport-wise but carried
	// neither an image nor any text to classify.
	ErrEmptyResponse = errors.New("empty model response")
)

// RefusalError carries the model's textual reply when no image came back.
// The text is never shown to the user; the classifier mines it for a
// category.
type RefusalError struct {
	Text string
	// SafetyBlocked is set when the response carried explicit block-reason
	// metadata, independent of the text.
	SafetyBlocked bool
}

func (e *RefusalError) Error() string {
	if e.SafetyBlocked {
		return "generation blocked by safety filter"
	}
	return "model returned text instead of an image"
}

// GenImage is the extracted inline image from a successful generation.
type GenImage struct {
	Data []byte
	MIME string
}

// DataURI renders the generated image as a data-URI for the result view.
func (g GenImage) DataURI() string {
	mime := g.MIME
	if mime == "" {
		mime = "image/png"
	}
	return imaging.FormatDataURI(mime, g.Data)
}

// ModelCaller issues a single generation call. The production implementation
// wraps *genai.GenerativeModel; tests substitute fakes.
type ModelCaller interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// CallerFactory builds a ModelCaller bound to an API key, returning a release
// function for the underlying client.
type CallerFactory func(ctx context.Context, apiKey string) (ModelCaller, func(), error)

// GeminiCallerFactory returns the production CallerFactory: a genai client
// configured with the model name and generation tuning.
func GeminiCallerFactory(model string, cfg GenerationConfig) CallerFactory {
	return func(ctx context.Context, apiKey string) (ModelCaller, func(), error) {
		client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
		if err != nil {
			return nil, nil, err
		}
		m := client.GenerativeModel(model)
		m.SetTemperature(cfg.Temperature)
		m.SafetySettings = cfg.SafetySettings
		return m, func() { client.Close() }, nil
	}
}

// Invoker issues generation calls raced against a hard deadline.
//
// Retry policy deliberately lives with the caller: retrying here would charge
// a second call's latency against the same deadline.
type Invoker struct {
	NewCaller CallerFactory
	Timeout   time.Duration
}

// callOutcome carries the settled remote call across the race.
type callOutcome struct {
	resp *genai.GenerateContentResponse
	err  error
}

// Invoke runs one generation call. The call is raced against the configured
// deadline; if the deadline wins, ErrTimeout propagates and the in-flight
// call is left to settle into a buffered channel nobody reads (aborting the
// remote work is not assumed possible).
func (iv *Invoker) Invoke(ctx context.Context, req Request, apiKey string) (*GenImage, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	caller, release, err := iv.NewCaller(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	ch := make(chan callOutcome, 1)
	go func() {
		defer release()
		resp, err := caller.GenerateContent(ctx, req.Parts...)
		ch <- callOutcome{resp: resp, err: err}
	}()

	timeout := iv.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return extract(out.resp)
	case <-timer.C:
		log.Warn().Dur("timeout", timeout).Msg("generation deadline elapsed, discarding in-flight call")
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// extract scans the response's content blocks in order. The first inline
// image wins; otherwise the text content becomes a RefusalError for the
// classifier, and a fully empty response becomes ErrEmptyResponse.
func extract(resp *genai.GenerateContentResponse) (*GenImage, error) {
	if resp == nil {
		return nil, ErrEmptyResponse
	}

	safetyBlocked := resp.PromptFeedback != nil &&
		resp.PromptFeedback.BlockReason == genai.BlockReasonSafety

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.FinishReason == genai.FinishReasonSafety {
			safetyBlocked = true
		}
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch p := part.(type) {
			case genai.Blob:
				return &GenImage{Data: p.Data, MIME: p.MIMEType}, nil
			case genai.Text:
				text.WriteString(string(p))
			}
		}
	}

	if safetyBlocked || text.Len() > 0 {
		return nil, &RefusalError{Text: text.String(), SafetyBlocked: safetyBlocked}
	}
	return nil, ErrEmptyResponse
}
