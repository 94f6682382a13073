package navtags

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/navtags/internal/activity"
)

// ntConfig holds mutable state during NavTags construction.
type ntConfig struct {
	title           string
	source          *Source
	pollingInterval time.Duration
	port            int
	headless        bool
	cacheDir        string
	logger          *slog.Logger
	tagCallbacks    []func(TagResult)
	pollerOpts      []activity.Option
}

// Option is a function that configures a [NavTags] instance during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithSource], [WithPollingInterval], [WithPort],
// [WithLogger], [WithTagCallback], [WithTitle], [WithCacheDir], [WithHeadless].
type Option func(*ntConfig) error

// WithSource sets the tag service to poll. Required.
func WithSource(s Source) Option {
	return func(cfg *ntConfig) error {
		if s.url == "" {
			return errors.New("source must be created with NewSource")
		}
		cfg.source = &s
		return nil
	}
}

// WithPollingInterval sets the time between fetches while the user is active.
//
// Intervals below one second are accepted but disable polling entirely: the
// dashboard is served without ever fetching. Defaults to 10 seconds.
//
// Returns an error if the duration is negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *ntConfig) error {
		if d < 0 {
			return errors.New("polling interval cannot be negative")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port for the dashboard server. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *ntConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithHeadless disables the HTTP dashboard. Activity must then be reported
// through [NavTags.ReportActivity] or [NavTags.Hub].
func WithHeadless() Option {
	return func(cfg *ntConfig) error {
		cfg.headless = true
		return nil
	}
}

// WithCacheDir persists the last successful tag snapshot under dir so that a
// restart shows last-known tags before the first fetch completes.
func WithCacheDir(dir string) Option {
	return func(cfg *ntConfig) error {
		if dir == "" {
			return errors.New("cache directory cannot be empty")
		}
		cfg.cacheDir = dir
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *ntConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTagCallback registers a function called after every fetch, successful
// or not, once the store has been updated.
//
// Callbacks run synchronously on the fetch goroutine, in registration order,
// and must not block: the next fetch is only scheduled once they return.
// Panics are recovered and logged.
//
// Example:
//
//	nt, err := navtags.New(
//	    navtags.WithSource(src),
//	    navtags.WithTagCallback(func(r navtags.TagResult) {
//	        for _, tag := range r.Tags {
//	            fmt.Println(tag.Name, tag.Value)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithTagCallback(cb func(TagResult)) Option {
	return func(cfg *ntConfig) error {
		if cb == nil {
			return nil
		}
		cfg.tagCallbacks = append(cfg.tagCallbacks, cb)
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and header.
//
// If not specified, defaults to "navtags".
func WithTitle(title string) Option {
	return func(cfg *ntConfig) error {
		cfg.title = title
		return nil
	}
}

// withPollerOptions passes options through to every poller the instance
// creates. Tests use it to install a manual clock.
func withPollerOptions(opts ...activity.Option) Option {
	return func(cfg *ntConfig) error {
		cfg.pollerOpts = append(cfg.pollerOpts, opts...)
		return nil
	}
}
