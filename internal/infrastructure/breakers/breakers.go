package breakers

import (
	"time"

	"github.com/rs/zerolog/log"
	cb "github.com/sony/gobreaker"
)

// Breaker guards calls to an optional backend (cache, database) so a dead
// dependency degrades to "not available" instead of stalling every run
type Breaker struct{ cb *cb.CircuitBreaker }

// Settings tunes when the breaker trips
type Settings struct {
	ConsecutiveFailures uint32
	MinRequests         uint32
	MaxFailureRatio     float64
	Interval            time.Duration
	Timeout             time.Duration
}

// DefaultSettings trips after 3 consecutive failures or >5% failures over 20+ calls
func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 3,
		MinRequests:         20,
		MaxFailureRatio:     0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

// New creates a breaker with default settings
func New(name string) *Breaker {
	return NewWithSettings(name, DefaultSettings())
}

// NewWithSettings creates a named breaker
func NewWithSettings(name string, s Settings) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = s.Interval
	st.Timeout = s.Timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
			return true
		}
		total := counts.Requests
		if total < s.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > s.MaxFailureRatio
	}
	st.OnStateChange = func(name string, from, to cb.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker
func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// Do runs an error-only call through the breaker
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	return err
}

// State reports the breaker state ("closed", "half-open", "open")
func (b *Breaker) State() string { return b.cb.State().String() }

// IsOpen reports whether calls are currently being rejected
func (b *Breaker) IsOpen() bool { return b.cb.State() == cb.StateOpen }
