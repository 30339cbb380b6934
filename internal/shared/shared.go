// package shared defines shared helpers
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// sourceNamespace seeds name-derived source uuids.
var sourceNamespace = uuid.MustParse("6f0c3bd4-5b2e-4a8e-9d3f-1c7f8b1e2a90")

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// ConfigureLogger applies the level named in the config, keeping the current level when it is empty or unknown.
func ConfigureLogger(l *log.Logger, cfg LogConfig) {
	if cfg.Level == "" {
		return
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		l.Warn("unknown log level, keeping default", "level", cfg.Level)
		return
	}
	SetLogLevel(l, level)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// SourceUUID returns a stable v5 [uuid.UUID] derived from a source name.
func SourceUUID(name string) string {
	return uuid.NewSHA1(sourceNamespace, []byte(name)).String()
}

// MarshalJSON encodes v, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
