package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/breaker"
	"github.com/saturnino-fabrica-de-software/ponto/internal/confirm"
	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/matcher"
	"github.com/saturnino-fabrica-de-software/ponto/internal/metrics"
	"github.com/saturnino-fabrica-de-software/ponto/internal/provider"
	"github.com/saturnino-fabrica-de-software/ponto/internal/service"
	"github.com/saturnino-fabrica-de-software/ponto/internal/threshold"
)

// ErrBusy is returned when a frame arrives while the previous frame of the
// same session is still being processed. The frame is dropped.
var ErrBusy = domain.ErrFrameDropped

// Outcome is what happened to one frame.
type Outcome string

const (
	OutcomeLowQuality   Outcome = "low_quality"
	OutcomeNoFace       Outcome = "no_face"
	OutcomeNoMatch      Outcome = "no_match"
	OutcomeAccumulating Outcome = "accumulating"
	OutcomeConfirmed    Outcome = "confirmed"
	OutcomeDuplicate    Outcome = "duplicate"
)

// Frame is one probe from the camera. Either Embedding or Image is set;
// Image is sent to the embedder when no embedding is supplied.
type Frame struct {
	Embedding domain.Embedding
	Image     []byte
	Quality   threshold.FrameQuality
	At        time.Time
	Latitude  *float64
	Longitude *float64
	PhotoRef  *string
}

// Result reports the pipeline's handling of a frame.
type Result struct {
	Outcome  Outcome
	Reason   string
	Decision domain.MatchDecision
	State    confirm.State
	Event    *domain.AttendanceEvent
}

type RosterSource interface {
	Entries() ([]domain.IdentityEmbedding, error)
}

type Recorder interface {
	Record(ctx context.Context, p service.Punch) (*service.Recording, error)
}

// Config holds the pipeline knobs.
type Config struct {
	Confirm          confirm.Config
	BreakerThreshold int
	BreakerCooldown  time.Duration
	SessionIdle      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Confirm:          confirm.DefaultConfig(),
		BreakerThreshold: 3,
		BreakerCooldown:  30 * time.Second,
		SessionIdle:      5 * time.Minute,
	}
}

// session owns one tracker. mu is held for the whole processing of a
// frame; lastUsed is guarded by the pipeline mutex.
type session struct {
	mu       sync.Mutex
	tracker  *confirm.Tracker
	lastUsed time.Time
}

// Pipeline runs frames through quality gating, embedding, matching and
// confirmation, and records attendance once an identity is confirmed.
// Sessions are independent; frames of one session are processed one at a time.
type Pipeline struct {
	matcher  *matcher.Matcher
	embedder provider.Embedder
	breaker  *breaker.Breaker
	roster   RosterSource
	recorder Recorder
	config   Config
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewPipeline wires the pipeline. embedder may be nil, in which case frames
// must carry an embedding.
func NewPipeline(m *matcher.Matcher, embedder provider.Embedder, roster RosterSource, recorder Recorder, config Config, logger *slog.Logger) *Pipeline {
	p := &Pipeline{
		matcher:  m,
		embedder: embedder,
		roster:   roster,
		recorder: recorder,
		config:   config,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*session),
	}

	p.breaker = breaker.New(config.BreakerThreshold, config.BreakerCooldown).
		OnStateChange(func(from, to breaker.State) {
			logger.Warn("embedder breaker state changed", "from", from.String(), "to", to.String())
			if to == breaker.Open {
				metrics.EmbedderState.Set(1)
			} else {
				metrics.EmbedderState.Set(0)
			}
		})

	return p
}

// WithClock overrides the time source for sessions, trackers and the breaker.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	p.breaker.WithClock(now)
	return p
}

// Breaker exposes the embedder breaker state.
func (p *Pipeline) Breaker() breaker.State {
	return p.breaker.State()
}

// Process handles one frame of a session.
func (p *Pipeline) Process(ctx context.Context, sessionID string, frame Frame) (*Result, error) {
	if sessionID == "" {
		return nil, domain.ErrValidationFailed.WithError(errors.New("session id is required"))
	}

	s, ok := p.acquire(sessionID)
	if !ok {
		metrics.FramesTotal.WithLabelValues("dropped").Inc()
		return nil, ErrBusy
	}
	defer p.release(s)

	result, err := p.process(ctx, s, frame)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.FramesTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

func (p *Pipeline) process(ctx context.Context, s *session, frame Frame) (*Result, error) {
	if err := p.matcher.Profile().CheckQuality(frame.Quality); err != nil {
		return &Result{Outcome: OutcomeLowQuality, Reason: err.Error(), State: s.tracker.State()}, nil
	}

	probe, err := p.embed(ctx, frame)
	if errors.Is(err, domain.ErrNoFaceDetected) {
		state := s.tracker.Observe(domain.NoMatch)
		return &Result{Outcome: OutcomeNoFace, Reason: err.Error(), State: state}, nil
	}
	if err != nil {
		return nil, err
	}

	entries, err := p.roster.Entries()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	decision, err := p.matcher.Match(probe, entries)
	if err != nil {
		return nil, err
	}
	if decision.Matched {
		metrics.MatchDecisions.WithLabelValues("match").Inc()
		metrics.MatchConfidence.Observe(decision.Confidence)
	} else {
		metrics.MatchDecisions.WithLabelValues("no_match").Inc()
	}

	state := s.tracker.Observe(decision)
	result := &Result{Decision: decision, State: state}

	switch state.Phase {
	case confirm.Idle:
		result.Outcome = OutcomeNoMatch
		return result, nil
	case confirm.Accumulating:
		result.Outcome = OutcomeAccumulating
		return result, nil
	}

	// Confirmed: record, then reset so the session can confirm again.
	// A failed recording keeps the tracker confirmed and the next frame retries.
	at := frame.At
	if at.IsZero() {
		at = p.now()
	}
	rec, err := p.recorder.Record(ctx, service.Punch{
		Identity:  state.Identity,
		At:        at,
		Latitude:  frame.Latitude,
		Longitude: frame.Longitude,
		PhotoRef:  frame.PhotoRef,
	})
	if err != nil {
		return nil, fmt.Errorf("record attendance: %w", err)
	}

	s.tracker.Reset()
	metrics.Confirmations.Inc()
	metrics.PunchesTotal.WithLabelValues(string(rec.Event.Type), punchResult(rec.Created)).Inc()

	result.Event = rec.Event
	result.Outcome = OutcomeConfirmed
	if !rec.Created {
		result.Outcome = OutcomeDuplicate
	}
	return result, nil
}

func punchResult(created bool) string {
	if created {
		return "stored"
	}
	return "suppressed"
}

// embed returns the frame's probe, calling the embedder behind the breaker
// when only an image was supplied. Only availability failures trip the breaker.
func (p *Pipeline) embed(ctx context.Context, frame Frame) (domain.Embedding, error) {
	if len(frame.Embedding) > 0 {
		return frame.Embedding, nil
	}
	if len(frame.Image) == 0 {
		return nil, domain.ErrValidationFailed.WithError(errors.New("frame needs an embedding or an image"))
	}
	if p.embedder == nil {
		return nil, domain.ErrEmbedderUnavailable.WithError(errors.New("no embedder configured"))
	}
	if !p.breaker.Allow() {
		return nil, domain.ErrEmbedderUnavailable.WithError(breaker.ErrOpen)
	}

	face, err := p.embedder.Embed(ctx, frame.Image)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedderUnavailable) {
			p.breaker.Failure()
		} else {
			p.breaker.Success()
		}
		return nil, err
	}
	p.breaker.Success()

	if face.Faces > 1 {
		p.logger.Debug("multiple faces in frame, using the largest", "faces", face.Faces)
	}
	return face.Embedding, nil
}

// Reset drops any partial confirmation of a session. It waits for an
// in-flight frame of that session to finish.
func (p *Pipeline) Reset(sessionID string) {
	s, ok := p.lookup(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.tracker.Reset()
	s.mu.Unlock()
}

// SessionState returns the tracker state of a session, if it exists.
func (p *Pipeline) SessionState(sessionID string) (confirm.State, bool) {
	s, ok := p.lookup(sessionID)
	if !ok {
		return confirm.State{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.State(), true
}

// Sessions returns the number of live sessions.
func (p *Pipeline) Sessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *Pipeline) lookup(id string) (*session, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	return s, ok
}

func (p *Pipeline) acquire(id string) (*session, bool) {
	p.mu.Lock()
	now := p.now()
	p.sweep(now)

	s, ok := p.sessions[id]
	if !ok {
		s = &session{tracker: confirm.NewTracker(p.config.Confirm).WithClock(p.now)}
		p.sessions[id] = s
	}
	s.lastUsed = now
	p.mu.Unlock()

	if !s.mu.TryLock() {
		return nil, false
	}
	return s, true
}

func (p *Pipeline) release(s *session) {
	s.mu.Unlock()
}

// sweep forgets idle sessions. Callers hold p.mu.
func (p *Pipeline) sweep(now time.Time) {
	if p.config.SessionIdle <= 0 {
		return
	}
	for id, s := range p.sessions {
		if now.Sub(s.lastUsed) <= p.config.SessionIdle {
			continue
		}
		if s.mu.TryLock() {
			delete(p.sessions, id)
			s.mu.Unlock()
		}
	}
}
