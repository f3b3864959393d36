package sidecar

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/run"
)

// loop is satisfied by both WatchLoop and ListLoop: block until ctx is cancelled (nil return) or
// a *FatalError occurs.
type loop interface {
	Run(ctx context.Context) error
}

// Supervisor is C7 (§4.8): runs one loop per (namespace, kind) pair and enforces the fail-fast
// invariant — the first loop to return a *FatalError cancels every other loop and Run returns
// that error. Grounded directly on cmd/operator/main.go's and cmd/config-reloader/main.go's
// "var g run.Group" construction, generalized from a fixed, small set of actors to one actor per
// configured (namespace, kind) pair.
type Supervisor struct {
	logger log.Logger
	loops  map[string]loop
}

// NewSupervisor constructs an empty Supervisor. Loops are registered with Add before Run.
func NewSupervisor(logger log.Logger) *Supervisor {
	return &Supervisor{
		logger: logger,
		loops:  make(map[string]loop),
	}
}

// Add registers a loop under name (used only for logging). Must be called before Run.
func (s *Supervisor) Add(name string, l loop) {
	s.loops[name] = l
}

// Run blocks until ctx is cancelled or any loop returns a non-nil error, per §9's fail-fast
// supervision invariant: one loop dying for a fatal reason takes the whole process down rather
// than continuing in a partially-degraded state.
func (s *Supervisor) Run(ctx context.Context) error {
	var g run.Group

	// Root cancellation actor: lets an external ctx cancellation (process shutdown) unwind the
	// group the same way a fatal loop error would.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			<-ctx.Done()
			return nil
		}, func(error) {
			cancel()
		})
	}

	for name, l := range s.loops {
		name, l := name, l
		loopCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			err := l.Run(loopCtx)
			if err != nil {
				level.Error(s.logger).Log("msg", "process for "+name+" died", "err", err)
			}
			return err
		}, func(err error) {
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		level.Error(s.logger).Log("msg", "supervisor exiting", "err", err)
		return err
	}
	return nil
}
