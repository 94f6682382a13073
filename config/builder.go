package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/navtags"
)

// BuildSource converts the source section into an SDK Source.
func BuildSource(cfg *Config) (navtags.Source, error) {
	sc := cfg.Source
	var opts []navtags.SourceOption

	if sc.Method != "" {
		opts = append(opts, navtags.WithMethod(sc.Method))
	}

	if sc.Timeout != 0 {
		opts = append(opts, navtags.WithTimeout(sc.Timeout.Duration()))
	}

	if len(sc.Headers) > 0 {
		opts = append(opts, navtags.WithHeaders(mapToKeyValuePairs(sc.Headers)...))
	}

	if len(sc.Names) > 0 {
		opts = append(opts, navtags.WithNames(sc.Names...))
	}

	if decoder := BuildDecoder(sc.Decoder); decoder != nil {
		opts = append(opts, navtags.WithDecoder(decoder))
	}

	return navtags.NewSource(sc.URL, opts...)
}

// BuildOptions converts parsed configuration into SDK options. The logger
// is passed through when non-nil.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]navtags.Option, error) {
	src, err := BuildSource(cfg)
	if err != nil {
		return nil, err
	}

	opts := []navtags.Option{
		navtags.WithSource(src),
		navtags.WithPort(cfg.Port),
		navtags.WithPollingInterval(cfg.Interval()),
	}
	if cfg.Title != "" {
		opts = append(opts, navtags.WithTitle(cfg.Title))
	}
	if cfg.CacheDir != "" {
		opts = append(opts, navtags.WithCacheDir(cfg.CacheDir))
	}
	if logger != nil {
		opts = append(opts, navtags.WithLogger(logger))
	}
	return opts, nil
}

// BuildDecoder converts a DecoderConfig to a TagDecoder.
// Returns nil for default/empty decoders (SDK uses DefaultDecoder).
func BuildDecoder(dc DecoderConfig) navtags.TagDecoder {
	switch dc.Type {
	case "json":
		return navtags.JSONPathDecoder(dc.Path)
	case "first":
		chain := make([]navtags.TagDecoder, 0, len(dc.Chain))
		for _, c := range dc.Chain {
			decoder := BuildDecoder(c)
			if decoder == nil {
				decoder = navtags.DefaultDecoder
			}
			chain = append(chain, decoder)
		}
		return navtags.FirstMatch(chain...)
	default:
		return nil
	}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
