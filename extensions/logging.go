package extensions

import (
	"context"
	"time"

	magik "github.com/magik-fn/magik-go"
	"github.com/rs/zerolog"
)

// LoggingExtension logs rituals and block invocations.
type LoggingExtension struct {
	magik.BaseExtension
	log zerolog.Logger
}

// NewLoggingExtension creates a new logging extension
func NewLoggingExtension(log zerolog.Logger) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: magik.NewBaseExtension("logging"),
		log:           log,
	}
}

func (e *LoggingExtension) OnRitualStart(ctx context.Context, r *magik.Ritual) error {
	e.log.Debug().Str("ritual", r.ID()).Msg("ritual started")
	return nil
}

func (e *LoggingExtension) OnRitualEnd(ctx context.Context, r *magik.Ritual, result any, err error) error {
	if err != nil {
		e.log.Error().Str("ritual", r.ID()).Err(err).Msg("ritual failed")
	} else {
		e.log.Debug().Str("ritual", r.ID()).Msg("ritual completed")
	}
	return nil
}

func (e *LoggingExtension) WrapStep(ctx context.Context, next func() (any, error), step *magik.StepInfo) (any, error) {
	start := time.Now()
	result, err := next()

	evt := e.log.Debug()
	if err != nil {
		evt = e.log.Error().Err(err)
	}
	evt.Str("ritual", step.Ritual.ID()).
		Str("block", step.Block.Name).
		Int("hop", step.Hop).
		Str("mode", string(step.Mode)).
		Dur("duration", time.Since(start)).
		Msg("block invoked")

	return result, err
}
