package logging

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset     = "\033[0m"
	ansiRed       = "\033[31m"
	ansiGreen     = "\033[32m"
	ansiYellow    = "\033[33m"
	ansiCyan      = "\033[36m"
	ansiGray      = "\033[90m"
	ansiUnderline = "\033[4m"
)

//nolint:gochecknoglobals
var levelStyle = map[slog.Level]struct{ tag, color string }{
	slog.LevelDebug: {"DBG", ansiCyan},
	slog.LevelInfo:  {"INF", ansiGreen},
	slog.LevelWarn:  {"WRN", ansiYellow},
	slog.LevelError: {"ERR", ansiRed},
}

// ConsoleHandler writes one human-readable line per record:
//
//	15:04:05.000 INF authclient.http_client signed in | op=sign-in/email (http_client.go:171)
//
// The logger name is taken from the "logger" attribute GetLogger attaches and
// selects the per-name level from LOG_FILTER.
type ConsoleHandler struct {
	out       io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	pkgLevels map[string]slog.Level
	noColor   bool

	name   string
	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// NewConsoleHandler creates a ConsoleHandler writing to out.
func NewConsoleHandler(out io.Writer, level slog.Leveler, pkgLevels map[string]slog.Level, noColor bool) *ConsoleHandler {
	return &ConsoleHandler{
		out:       out,
		mu:        new(sync.Mutex),
		level:     level,
		pkgLevels: pkgLevels,
		noColor:   noColor,
	}
}

// Enabled implements slog.Handler.Enabled.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= levelFor(h.name, h.pkgLevels, h.level.Level())
}

// Handle implements slog.Handler.Handle.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	style, ok := levelStyle[r.Level]
	if !ok {
		style.tag, style.color = r.Level.String(), ansiGray
	}

	b.WriteString(h.paint(ansiGray, r.Time.Format("15:04:05.000")))
	b.WriteString(" " + h.paint(style.color, style.tag))

	if h.name != "" {
		b.WriteString(" " + h.name)
	}

	b.WriteString(" " + r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	attrs := slices.Clone(h.attrs)

	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})

		return true
	})

	if len(attrs) > 0 {
		b.WriteString(" " + h.paint(ansiGray, "|"))
		h.writeAttrs(&b, "", attrs)
	}

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		b.WriteString(" " + h.paint(ansiUnderline, "("+filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line)+")"))
	}

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	//nolint:wrapcheck
	_, err := io.WriteString(h.out, b.String())

	return err
}

func (h *ConsoleHandler) writeAttrs(b *strings.Builder, prefix string, attrs []slog.Attr) {
	for _, attr := range attrs {
		value := attr.Value.Resolve()

		if value.Kind() == slog.KindGroup {
			h.writeAttrs(b, prefix+attr.Key+".", value.Group())

			continue
		}

		b.WriteString(" " + prefix + attr.Key + "=" + h.paint(ansiGray, value.String()))
	}
}

func (h *ConsoleHandler) paint(code, text string) string {
	if h.noColor {
		return text
	}

	return code + text + ansiReset
}

// WithAttrs implements slog.Handler.WithAttrs. The logger name attribute is
// lifted out of the attribute list.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := *h
	clone.attrs = slices.Clone(h.attrs)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	for _, attr := range attrs {
		if attr.Key == loggerNameKey && prefix == "" {
			clone.name = attr.Value.String()

			continue
		}

		clone.attrs = append(clone.attrs, slog.Attr{Key: prefix + attr.Key, Value: attr.Value})
	}

	return &clone
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	if name == "" {
		return h
	}

	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)

	return &clone
}
