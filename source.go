package navtags

import (
	"errors"
	"net/http"
	"net/url"
	"time"
)

const defaultSourceTimeout = 10 * time.Second

// Source is the tag service the dashboard polls.
//
// Source is immutable after creation via [NewSource]. Getters return copies
// of mutable data.
type Source struct {
	url     string
	method  string
	headers map[string]string
	names   []string
	timeout time.Duration
	decoder TagDecoder
}

// URL returns the tag endpoint.
func (s Source) URL() string {
	return s.url
}

// Method returns the HTTP method, GET unless set with [WithMethod].
func (s Source) Method() string {
	return s.method
}

// Headers returns a copy of the custom HTTP headers.
func (s Source) Headers() map[string]string {
	return copyMap(s.headers)
}

// Names returns a copy of the tag names requested from the service.
// Nil means all tags.
func (s Source) Names() []string {
	if s.names == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Timeout returns the per-request timeout.
func (s Source) Timeout() time.Duration {
	return s.timeout
}

// Decoder returns the response decoder, [DefaultDecoder] if none was set.
func (s Source) Decoder() TagDecoder {
	if s.decoder == nil {
		return DefaultDecoder
	}
	return s.decoder
}

// sourceConfig holds mutable state during source construction.
type sourceConfig struct {
	method  string
	headers map[string]string
	names   []string
	timeout time.Duration
	decoder TagDecoder
}

// SourceOption configures a [Source] during construction.
//
// Built-in options: [WithHeaders], [WithTimeout], [WithMethod], [WithNames],
// [WithDecoder].
type SourceOption func(*sourceConfig) error

// NewSource creates a [Source] for the given tag endpoint.
//
// rawURL must be an absolute http or https URL.
//
// Example:
//
//	src, err := navtags.NewSource("https://erp.example.com/ws/tags",
//	    navtags.WithMethod(http.MethodPost),
//	    navtags.WithNames("mail-inbox", "tasks"),
//	    navtags.WithHeaders("Authorization", "Bearer "+token),
//	)
func NewSource(rawURL string, opts ...SourceOption) (Source, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Source{}, errors.New("URL must have a scheme (http:// or https://)")
	}
	if parsedURL.Host == "" {
		return Source{}, errors.New("URL must have a host")
	}

	cfg := &sourceConfig{
		method:  http.MethodGet,
		headers: make(map[string]string),
		timeout: defaultSourceTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Source{}, err
		}
	}

	return Source{
		url:     rawURL,
		method:  cfg.method,
		headers: cfg.headers,
		names:   cfg.names,
		timeout: cfg.timeout,
		decoder: cfg.decoder,
	}, nil
}

// WithHeaders adds custom HTTP headers, such as a session cookie, to every
// tag request.
//
// Accepts variadic key-value pairs. Returns an error if an odd number of
// arguments is provided.
func WithHeaders(keyValues ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the HTTP request timeout. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SourceOption {
	return func(cfg *sourceConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the HTTP method. Only GET and POST are supported; POST
// sends the names from [WithNames] as the JSON body {"names": [...]}.
func WithMethod(method string) SourceOption {
	return func(cfg *sourceConfig) error {
		switch method {
		case http.MethodGet, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET or POST, got " + method)
		}
	}
}

// WithNames restricts the request to the given tag names.
func WithNames(names ...string) SourceOption {
	return func(cfg *sourceConfig) error {
		for _, n := range names {
			if n == "" {
				return errors.New("tag names cannot be empty")
			}
		}
		cfg.names = append(cfg.names, names...)
		return nil
	}
}

// WithDecoder sets a custom [TagDecoder]. Nil decoders are rejected.
func WithDecoder(decoder TagDecoder) SourceOption {
	return func(cfg *sourceConfig) error {
		if decoder == nil {
			return errors.New("decoder cannot be nil")
		}
		cfg.decoder = decoder
		return nil
	}
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
