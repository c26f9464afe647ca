// Package sysutil holds process-level helpers used by the supportrouter
// commands: global logger setup and small environment value parsers.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions configures the process-wide logger.
type LogOptions struct {
	Level   string
	Pretty  bool
	NoColor bool
	Version string
	Out     io.Writer // defaults to os.Stderr
}

// ConfigureLogger sets the global zerolog level and output, installs the
// resulting logger as log.Logger and returns it.
func ConfigureLogger(o LogOptions) zerolog.Logger {
	SetLogLevel(o.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: o.NoColor}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if o.Version != "" {
		ctx = ctx.Str("version", o.Version)
	}
	log.Logger = ctx.Logger()
	return log.Logger
}

// SetLogLevel sets the global zerolog level from a name such as "debug" or
// "warning". Empty and unknown names select info; the result reports whether
// the name was recognised.
func SetLogLevel(lvl string) bool {
	name := strings.ToLower(strings.TrimSpace(lvl))
	if name == "warning" {
		name = "warn"
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil || l == zerolog.NoLevel {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return name == ""
	}
	zerolog.SetGlobalLevel(l)
	return true
}

// IsTruthy reports whether v spells an enabled flag: 1, true, yes, y or on.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
