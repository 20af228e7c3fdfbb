package engine

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Clock triggers engine runs on a cron cadence. Each tick is a
// bounded, finite task; there is no persistent background run loop
// beyond the cron scheduler itself.
type Clock struct {
	cron   *cron.Cron
	engine *Engine
}

// NewClock wires the engine to a cron expression (standard five-field
// syntax, e.g. "0 * * * *" for hourly).
func NewClock(engine *Engine, schedule string) (*Clock, error) {
	c := &Clock{
		cron:   cron.New(),
		engine: engine,
	}

	_, err := c.cron.AddFunc(schedule, c.tick)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Clock) tick() {
	logger := log.With().Str("component", "engine_clock").Logger()

	// The lease TTL doubles as the run-level deadline, bounding tail
	// latency when the batch is large.
	ctx, cancel := context.WithTimeout(context.Background(), c.engine.cfg.RunLeaseTTL)
	defer cancel()

	_, err := c.engine.Run(ctx)
	if errors.Is(err, ErrRunInProgress) {
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("scheduled run failed")
	}
}

// Start begins firing ticks. Non-blocking.
func (c *Clock) Start() {
	c.cron.Start()
}

// Stop halts the schedule and waits for an in-flight tick to finish.
func (c *Clock) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}
