package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gaugeValue is the value exported on the breaker_state gauge.
func (s State) gaugeValue() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	// outcomeNeutral is a call that says nothing about dependency health,
	// such as a caller cancellation or a declined card.
	outcomeNeutral
)

// window counts outcomes while closed. It is halved once it grows past twice
// the minimum so old results fade out.
type window struct {
	failures  int
	successes int
}

func (w *window) add(o outcome) {
	switch o {
	case outcomeSuccess:
		w.successes++
	case outcomeFailure:
		w.failures++
	}
}

func (w *window) total() int { return w.failures + w.successes }

func (w *window) ratio() float64 {
	if w.total() == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.total())
}

func (w *window) decay() {
	w.failures = (w.failures + 1) / 2
	w.successes = (w.successes + 1) / 2
}

// Breaker guards a checkout collaborator (price store or payment provider).
// While open, calls fail fast with ErrOpenCircuit. After openFor it admits a
// single trial call; every other caller keeps failing fast until that trial
// reports. The breaker never retries.
type Breaker struct {
	mu           sync.Mutex
	state        State
	counts       window
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	trialBusy    bool
	target       string
	logger       zerolog.Logger
	isFailure    func(error) bool
	now          func() time.Time
}

// NewBreaker constructs a breaker that opens when the failure ratio reaches
// failureRatio once at least minRequests outcomes were observed.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 {
		failureRatio = 0.5
	}
	if failureRatio > 1 {
		failureRatio = 1
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithFailureClassifier overrides which errors count as dependency failures.
// By default every error except caller cancellation counts.
func (b *Breaker) WithFailureClassifier(fn func(error) bool) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.isFailure = fn
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.exportStateLocked()
	return b
}

// WithLogger configures the fallback logger for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. In half-open only the caller that
// takes the trial slot is admitted; it must be followed by Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.transitionLocked(ctx, HalfOpen)
	}
	if b.trialBusy {
		return false
	}
	b.trialBusy = true
	return true
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	o := outcomeFailure
	if success {
		o = outcomeSuccess
	}
	b.record(ctx, o)
}

// Do runs fn when the breaker admits it and records the outcome. Do never
// retries.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		BreakerRejectedTotal.WithLabelValues(b.label()).Inc()
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.record(ctx, b.classify(err))
	return err
}

func (b *Breaker) classify(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	b.mu.Lock()
	isFailure := b.isFailure
	b.mu.Unlock()
	if isFailure == nil {
		isFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if isFailure(err) {
		return outcomeFailure
	}
	return outcomeNeutral
}

func (b *Breaker) record(ctx context.Context, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.trialBusy = false
		switch o {
		case outcomeSuccess:
			b.transitionLocked(ctx, Closed)
		case outcomeFailure:
			b.transitionLocked(ctx, Open)
		}
		return
	}

	b.counts.add(o)
	if b.counts.total() < b.minRequests {
		return
	}
	if b.counts.ratio() >= b.failureRatio {
		b.transitionLocked(ctx, Open)
		return
	}
	if b.counts.total() > 2*b.minRequests {
		b.counts.decay()
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	b.counts = window{}
	b.trialBusy = false
	if next == Open {
		b.openedAt = b.now()
	}
	b.exportStateLocked()

	label := b.label()
	BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &b.logger
	}
	evt := logger.Info()
	if next == Open {
		evt = logger.Warn()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Str("target", label).
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("breaker_transition")
}

func (b *Breaker) exportStateLocked() {
	BreakerState.WithLabelValues(b.label()).Set(b.state.gaugeValue())
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
