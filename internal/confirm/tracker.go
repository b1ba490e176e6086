package confirm

import (
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// Phase is the tracker's coarse state.
type Phase int

const (
	Idle Phase = iota
	Accumulating
	Confirmed
)

func (p Phase) String() string {
	switch p {
	case Accumulating:
		return "accumulating"
	case Confirmed:
		return "confirmed"
	default:
		return "idle"
	}
}

// State is a snapshot of the tracker.
type State struct {
	Phase          Phase
	Identity       domain.Identity
	Count          int
	BestConfidence float64
}

// Config holds the confirmation constants.
type Config struct {
	RequiredMatches   int
	ConfirmationFloor float64
	HighConfidence    float64
	SessionTimeout    time.Duration
}

// DefaultConfig returns the terminal defaults.
func DefaultConfig() Config {
	return Config{
		RequiredMatches:   3,
		ConfirmationFloor: 0.5,
		HighConfidence:    0.9,
		SessionTimeout:    3500 * time.Millisecond,
	}
}

// Tracker turns a stream of per-frame decisions into one confirmed identity.
// One Tracker belongs to one capture session; it is not safe for concurrent use.
type Tracker struct {
	cfg      Config
	state    State
	lastSeen time.Time
	now      func() time.Time
}

// NewTracker creates an idle tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.RequiredMatches < 1 {
		cfg.RequiredMatches = 1
	}
	return &Tracker{
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// Observe feeds one decision and returns the resulting state.
func (t *Tracker) Observe(d domain.MatchDecision) State {
	if t.state.Phase == Confirmed {
		return t.state
	}

	now := t.now()
	t.expire(now)
	t.lastSeen = now

	if !d.Matched || d.Confidence < t.cfg.ConfirmationFloor {
		t.state = State{}
		return t.state
	}

	if d.Confidence >= t.cfg.HighConfidence {
		t.state = State{
			Phase:          Confirmed,
			Identity:       d.Identity,
			Count:          t.streakFor(d.Identity.Code) + 1,
			BestConfidence: max(t.state.BestConfidence, d.Confidence),
		}
		return t.state
	}

	if t.state.Phase == Accumulating && t.state.Identity.Code == d.Identity.Code {
		t.state.Count++
		t.state.BestConfidence = max(t.state.BestConfidence, d.Confidence)
	} else {
		t.state = State{
			Phase:          Accumulating,
			Identity:       d.Identity,
			Count:          1,
			BestConfidence: d.Confidence,
		}
	}

	if t.state.Count >= t.cfg.RequiredMatches && t.state.BestConfidence >= t.cfg.ConfirmationFloor {
		t.state.Phase = Confirmed
	}

	return t.state
}

// State returns the current state, applying the session timeout.
func (t *Tracker) State() State {
	t.expire(t.now())
	return t.state
}

// Confirmed returns the confirmed identity, if any.
func (t *Tracker) Confirmed() (domain.Identity, bool) {
	if t.state.Phase != Confirmed {
		return domain.Identity{}, false
	}
	return t.state.Identity, true
}

// Reset returns the tracker to Idle. Required after a confirmation before
// the tracker can confirm again.
func (t *Tracker) Reset() {
	t.state = State{}
	t.lastSeen = time.Time{}
}

// expire drops a stale streak. Confirmed survives until Reset.
func (t *Tracker) expire(now time.Time) {
	if t.state.Phase != Accumulating || t.lastSeen.IsZero() {
		return
	}
	if now.Sub(t.lastSeen) > t.cfg.SessionTimeout {
		t.state = State{}
	}
}

func (t *Tracker) streakFor(code string) int {
	if t.state.Phase == Accumulating && t.state.Identity.Code == code {
		return t.state.Count
	}
	return 0
}
