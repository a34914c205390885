package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
)

const (
	ansiCodeReset     = "\033[0m"
	ansiCodeRed       = "\033[31m"
	ansiCodeGreen     = "\033[32m"
	ansiCodeYellow    = "\033[33m"
	ansiCodeCyan      = "\033[36m"
	ansiCodeGray      = "\033[90m"
	ansiCodeUnderline = "\033[4m"
)

//nolint:gochecknoglobals
var ansiCodeMap = map[slog.Level]string{
	slog.LevelDebug: ansiCodeCyan,
	slog.LevelInfo:  ansiCodeGreen,
	slog.LevelWarn:  ansiCodeYellow,
	slog.LevelError: ansiCodeRed,
}

// ConsoleHandler implements slog.Handler with colored, human-readable output
// suitable for development environments.
type ConsoleHandler struct {
	// Output is the destination for log output (typically os.Stdout or os.Stderr)
	Output io.Writer
	// Level is the minimum level for log records to be processed
	Level slog.Leveler
	// PkgLevels maps logger names to minimum log levels
	PkgLevels map[string]slog.Level

	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// Handle implements slog.Handler by formatting the log record with colors,
// timestamps, and source file information.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs []slog.Attr

	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)

		return true
	})

	attrs = append(attrs, h.attrs...)

	if h.suppressed(r.Level, attrs) {
		return nil
	}

	logMessage := ansiCodeGray + r.Time.Format("15:04:05.000000") + ansiCodeReset
	logMessage += " " + ansiCodeMap[r.Level] + "[" + r.Level.String() + "]" + ansiCodeReset
	logMessage += " " + r.Message

	var prefix string

	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	if len(attrs) > 0 {
		logMessage += " " + ansiCodeGray + "|" + ansiCodeReset
		logMessage += h.renderAttrs(prefix, attrs)
	}

	fs := runtime.CallersFrames([]uintptr{r.PC})
	f, _ := fs.Next()

	logMessage += "\n-> " + ansiCodeGray + ansiCodeUnderline +
		f.File + ":" + strconv.Itoa(f.Line) + ansiCodeReset

	fmt.Fprintln(h.Output, logMessage)

	return nil
}

// suppressed applies per-logger level overrides: the most specific configured
// prefix of the "logger" attr wins.
func (h *ConsoleHandler) suppressed(level slog.Level, attrs []slog.Attr) bool {
	var name string

	for _, attr := range attrs {
		if attr.Key == "logger" {
			name = attr.Value.String()

			break
		}
	}

	parts := strings.Split(name, ".")

	for i := len(parts); i >= 0; i-- {
		key := strings.Join(parts[:i], ".")

		pkgLevel, ok := h.PkgLevels[key]
		if !ok {
			continue
		}

		return level < pkgLevel
	}

	return false
}

func (h *ConsoleHandler) renderAttrs(prefix string, attrs []slog.Attr) (out string) {
	for _, attr := range attrs {
		if attr.Value.Kind() == slog.KindGroup {
			out += h.renderAttrs(prefix+attr.Key+".", attr.Value.Group())

			continue
		}

		out += " " + prefix + attr.Key
		out += "=" + ansiCodeGray + attr.Value.String() + ansiCodeReset
	}

	return
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	return &ConsoleHandler{
		Output:    h.Output,
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		attrs:     append(h.attrs, attrs...),
		groups:    h.groups,
	}
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	return &ConsoleHandler{
		Output:    h.Output,
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		attrs:     h.attrs,
		groups:    append(h.groups, name),
	}
}

// Enabled implements slog.Handler.Enabled.
func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.Level.Level() <= level
}
