// Package verify drives one identity-verification attempt: it pulls frames
// from a capture source, embeds each frame, and compares the result against
// the subject's stored reference until it reaches a terminal outcome.
package verify

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/facegate/facegate/internal/capture"
	"github.com/facegate/facegate/internal/embedding"
	"github.com/facegate/facegate/internal/similarity"
)

// Outcome is the terminal state of a verification attempt.
type Outcome int

const (
	// OutcomeMatched means a frame matched the stored reference.
	OutcomeMatched Outcome = iota
	// OutcomeNoMatch means the frame budget or stream ended without a match.
	OutcomeNoMatch
	// OutcomeCancelled means the attempt was cancelled or timed out externally.
	OutcomeCancelled
	// OutcomeError means the attempt aborted: capture failure, model failure,
	// or the transient-failure budget ran out.
	OutcomeError
)

// String returns the wire name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Attempt is the result of one verification attempt. It is ephemeral and
// never persisted; only a Matched outcome leaves a trace, in the ledger.
type Attempt struct {
	Outcome     Outcome
	FramesTried int
	BestScore   float64
	Err         error // set for OutcomeError and OutcomeCancelled
}

// Embedder computes a face embedding for a single frame.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

// Policy bounds a verification attempt so it always terminates.
type Policy struct {
	Threshold       float64       // minimum cosine similarity to accept
	MaxFrames       int           // hard upper bound on frames pulled
	MaxEmbedRetries int           // budget for no-face/multi-face frames
	FrameTimeout    time.Duration // per-frame read deadline
}

// Engine runs verification attempts. It is stateless and safe for concurrent
// use; capture-source exclusivity is enforced by capture.Guard at the caller.
type Engine struct {
	embedder Embedder
	policy   Policy
}

// NewEngine creates an engine with the given embedder and policy.
func NewEngine(embedder Embedder, policy Policy) *Engine {
	return &Engine{embedder: embedder, policy: policy}
}

// Policy returns the engine's configured policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Embedder returns the engine's embedder, shared with registration so a
// subject's reference and later probes come from the same model.
func (e *Engine) Embedder() Embedder {
	return e.embedder
}

// Verify runs one attempt against the stored reference embedding. Cancellation
// is observed before every frame pull and every embedding call; every path
// returns a terminal Attempt, never hangs.
func (e *Engine) Verify(ctx context.Context, reference []float32, src capture.FrameSource) Attempt {
	attempt := Attempt{Outcome: OutcomeNoMatch}
	retries := 0

	for attempt.FramesTried < e.policy.MaxFrames {
		if err := ctx.Err(); err != nil {
			attempt.Outcome = OutcomeCancelled
			attempt.Err = err
			return attempt
		}

		frame, err := e.nextFrame(ctx, src)
		if err != nil {
			if err == io.EOF {
				return attempt // stream ended without a match
			}
			if ctx.Err() != nil {
				attempt.Outcome = OutcomeCancelled
				attempt.Err = ctx.Err()
				return attempt
			}
			attempt.Outcome = OutcomeError
			attempt.Err = err
			return attempt
		}
		attempt.FramesTried++

		if err := ctx.Err(); err != nil {
			attempt.Outcome = OutcomeCancelled
			attempt.Err = err
			return attempt
		}

		probe, err := e.embedder.Embed(ctx, frame)
		if err != nil {
			if errors.Is(err, embedding.ErrNoFace) || errors.Is(err, embedding.ErrMultipleFaces) {
				// Transient: discard the frame and keep capturing, bounded
				// by the retry budget.
				retries++
				if retries > e.policy.MaxEmbedRetries {
					attempt.Outcome = OutcomeError
					attempt.Err = err
					return attempt
				}
				continue
			}
			if ctx.Err() != nil {
				attempt.Outcome = OutcomeCancelled
				attempt.Err = ctx.Err()
				return attempt
			}
			attempt.Outcome = OutcomeError
			attempt.Err = err
			return attempt
		}

		score, err := similarity.Score(reference, probe)
		if err != nil {
			attempt.Outcome = OutcomeError
			attempt.Err = err
			return attempt
		}
		if score > attempt.BestScore {
			attempt.BestScore = score
		}
		if score >= e.policy.Threshold {
			attempt.Outcome = OutcomeMatched
			return attempt
		}
	}

	return attempt // frame budget exhausted
}

// ErrNoUsableFrame is returned by Probe when the stream or frame budget runs
// out before any frame produces an embedding.
var ErrNoUsableFrame = errors.New("no usable frame in stream")

// Probe extracts the first usable embedding from the stream, for 1:N lookup.
// It shares the frame and retry budgets with Verify. Returns the number of
// frames pulled alongside the embedding or error.
func (e *Engine) Probe(ctx context.Context, src capture.FrameSource) ([]float32, int, error) {
	framesTried := 0
	retries := 0

	for framesTried < e.policy.MaxFrames {
		if err := ctx.Err(); err != nil {
			return nil, framesTried, err
		}

		frame, err := e.nextFrame(ctx, src)
		if err != nil {
			if err == io.EOF {
				return nil, framesTried, ErrNoUsableFrame
			}
			if ctx.Err() != nil {
				return nil, framesTried, ctx.Err()
			}
			return nil, framesTried, err
		}
		framesTried++

		probe, err := e.embedder.Embed(ctx, frame)
		if err != nil {
			if errors.Is(err, embedding.ErrNoFace) || errors.Is(err, embedding.ErrMultipleFaces) {
				retries++
				if retries > e.policy.MaxEmbedRetries {
					return nil, framesTried, err
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, framesTried, ctx.Err()
			}
			return nil, framesTried, err
		}
		return probe, framesTried, nil
	}

	return nil, framesTried, ErrNoUsableFrame
}

// nextFrame pulls one frame under the per-frame deadline.
func (e *Engine) nextFrame(ctx context.Context, src capture.FrameSource) ([]byte, error) {
	if e.policy.FrameTimeout <= 0 {
		return src.Next(ctx)
	}
	frameCtx, cancel := context.WithTimeout(ctx, e.policy.FrameTimeout)
	defer cancel()
	return src.Next(frameCtx)
}
