package verify

import "log/slog"

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger for verification events.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}
