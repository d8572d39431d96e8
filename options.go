package akron

import "github.com/rs/zerolog"

// Option configures a DB handle at Open time.
type Option func(*DB)

// WithLogger attaches a structured logger. Compiled operations log at
// debug level; reduced transaction guarantees log at warn. The default
// logger discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(db *DB) {
		db.log = log
	}
}
