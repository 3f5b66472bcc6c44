package feed

import (
	"context"
	"errors"
	"time"

	"vantage/internal/logging"
	"vantage/internal/types"
)

// StatusFunc reports the session's current server-side state.
type StatusFunc func(ctx context.Context) (types.SessionState, error)

// Poller re-triggers catch-up on a fixed interval while the session is
// live. It is scoped to one session view: Start when the view mounts, Stop
// when it unmounts. Both are idempotent; Stop waits for the loop to exit.
//
// Ticks are skipped while the engine is busy and while the session sits in
// a terminal state. A terminal session keeps its status checked, so the
// poller recovers if the server ever reports the session live again.
type Poller struct {
	engine   *Engine
	status   StatusFunc
	interval time.Duration
	log      logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(engine *Engine, status StatusFunc, interval time.Duration, log logging.Logger) *Poller {
	if log == nil {
		log = logging.Nop()
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Poller{
		engine:   engine,
		status:   status,
		interval: interval,
		log:      log,
	}
}

func (p *Poller) Start() {
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if p.engine.Busy() {
			continue
		}
		state, err := p.status(ctx)
		if err != nil {
			p.log.Debug("status poll failed", logging.F("err", err))
			continue
		}
		if state.Terminal() {
			continue
		}
		if _, err := p.engine.CatchUp(ctx); err != nil {
			if errors.Is(err, ErrOperationInFlight) || errors.Is(err, context.Canceled) {
				continue
			}
			p.log.Debug("poll catch-up failed", logging.F("err", err))
		}
	}
}
