package watcher

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"ipwatch/client/notifier"
)

// Resolver returns the caller's current public address.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

type Outcome int

const (
	Failed Outcome = iota
	Unchanged
	Changed
)

func (o Outcome) String() string {
	switch o {
	case Failed:
		return "failed"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	}
	return "unknown"
}

// State is everything the loop remembers between ticks. The zero value is
// the startup state.
type State struct {
	Observed string
}

// Tick describes what one resolution did to the state.
type Tick struct {
	Outcome Outcome
	Old     string
	New     string
	Err     error
}

// Step folds one resolution result into state. It never touches the state
// on failure and only replaces it when the trimmed address differs.
func Step(state State, addr string, err error) (State, Tick) {
	if err != nil {
		return state, Tick{Outcome: Failed, Old: state.Observed, New: state.Observed, Err: err}
	}
	addr = strings.TrimSpace(addr)
	if addr == state.Observed {
		return state, Tick{Outcome: Unchanged, Old: addr, New: addr}
	}
	return State{Observed: addr}, Tick{Outcome: Changed, Old: state.Observed, New: addr}
}

type Options struct {
	Interval time.Duration
	// ResolveTimeout bounds each resolution. Zero means no bound.
	ResolveTimeout time.Duration
	Notifiers      []notifier.Notifier
	// Reporters receive every successful resolution.
	Reporters []notifier.Reporter
}

type Watcher struct {
	resolver Resolver
	opts     Options
	state    State
	now      func() time.Time
}

func New(resolver Resolver, opts Options) *Watcher {
	return &Watcher{
		resolver: resolver,
		opts:     opts,
		now:      time.Now,
	}
}

// State returns the currently observed address.
func (w *Watcher) State() State {
	return w.state
}

// Run polls immediately and then on every interval until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	log.Info().Msgf("Starting IP change detection, interval %s", w.opts.Interval)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("IP change detection stopped")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs a single tick: resolve, compare, notify.
func (w *Watcher) Poll(ctx context.Context) Tick {
	addr, err := w.resolve(ctx)

	var tick Tick
	w.state, tick = Step(w.state, addr, err)

	switch tick.Outcome {
	case Failed:
		log.Error().Err(tick.Err).Msg("Error fetching public IP")
		return tick
	case Unchanged:
		log.Info().Msgf("IP unchanged: %s", tick.New)
	case Changed:
		log.Info().Msgf("IP changed: old IP = %s, new IP = %s", tick.Old, tick.New)
	}

	for _, r := range w.opts.Reporters {
		if err := r.Report(ctx, tick.New); err != nil {
			log.Warn().Err(err).Msgf("Reporter %s failed", r.Name())
		}
	}

	if tick.Outcome == Changed {
		w.dispatch(ctx, notifier.Change{Old: tick.Old, New: tick.New, At: w.now()})
	}
	return tick
}

func (w *Watcher) resolve(ctx context.Context) (string, error) {
	if w.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.ResolveTimeout)
		defer cancel()
	}
	return w.resolver.Resolve(ctx)
}

// dispatch calls every notifier in order. Errors are logged and dropped.
func (w *Watcher) dispatch(ctx context.Context, change notifier.Change) {
	for _, n := range w.opts.Notifiers {
		if err := n.Notify(ctx, change); err != nil {
			log.Warn().Err(err).Msgf("Notifier %s failed", n.Name())
			continue
		}
		log.Debug().Msgf("Notifier %s delivered %s", n.Name(), change.New)
	}
}
