package pipeline

import (
	"github.com/kbukum/relay/logger"
	"github.com/kbukum/relay/observability"
)

// Option configures a Stage.
type Option func(*options)

type options struct {
	name    string
	log     *logger.Logger
	metrics *observability.StageMetrics
}

// WithName sets the stage name used in logs, spans and errors. Stages are
// named after their shape and ID by default.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger the stage reports its lifecycle to. Defaults to
// the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stage runs on m.
func WithMetrics(m *observability.StageMetrics) Option {
	return func(o *options) { o.metrics = m }
}
