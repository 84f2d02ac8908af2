package scopelog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dianlight/scopelog/redact"
	"github.com/lmittmann/tint"
	slogformatter "github.com/samber/slog-formatter"
	slogmulti "github.com/samber/slog-multi"
)

// Handler is a slog.Handler that writes records through a Logger's emitter.
// Attributes follow the message as key=value pairs; groups are flattened
// with dots.
type Handler struct {
	l      *Logger
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a slog.Handler bridging into l. Errors, tozd errors and
// durations are rendered by slog-formatter before they reach the emitter.
func NewHandler(l *Logger) slog.Handler {
	formatters := []slogformatter.Formatter{
		TozdErrorFormatter(),
		ErrorFormatter("error"),
		ErrorFormatter("err"),
		DurationFormatter(),
	}
	if l.cfg.HideSensitiveData {
		formatters = append(formatters,
			slogformatter.IPAddressFormatter("ip"),
			slogformatter.IPAddressFormatter("client_ip"),
			slogformatter.IPAddressFormatter("remote_addr"),
		)
	}
	return slogformatter.NewFormatterHandler(formatters...)(&Handler{l: l})
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return h.l.Enabled(level)
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	file, line := "???", 0
	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		file, line = filepath.Base(frame.File), frame.Line
	}

	var b strings.Builder
	b.WriteString(r.Message)
	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		h.appendAttr(&b, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, prefix, a)
		return true
	})

	h.l.ensureInit()
	h.l.emitAndExit(r.Level, file, line, "%s", b.String())
	return nil
}

func (h *Handler) appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) || a.Key == "org_error" {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, key, ga)
		}
		return
	}

	var v any = a.Value.Any()
	if h.l.cfg.HideSensitiveData {
		v = redact.Value(a.Key, v)
	}
	s := fmt.Sprint(v)
	if a.Value.Kind() == slog.KindTime {
		s = a.Value.Time().Format(time.RFC3339)
	}
	if strings.ContainsAny(s, " \t\"=") {
		s = fmt.Sprintf("%q", s)
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(s)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	prefix := strings.Join(h.groups, ".")
	nh := *h
	nh.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if prefix != "" {
			a = slog.Attr{Key: prefix + "." + a.Key, Value: a.Value}
		}
		nh.attrs = append(nh.attrs, a)
	}
	return &nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

// Slog returns a *slog.Logger writing through l and, when given, to every
// mirror handler as well.
func (l *Logger) Slog(mirrors ...slog.Handler) *slog.Logger {
	if len(mirrors) == 0 {
		return slog.New(NewHandler(l))
	}
	handlers := append([]slog.Handler{NewHandler(l)}, mirrors...)
	return slog.New(slogmulti.Fanout(handlers...))
}

// NewConsoleHandler returns a tint handler using this package's level names
// and colors, for mirroring slog output to a console.
func NewConsoleHandler(w io.Writer, level slog.Leveler, noColor bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:       level,
		TimeFormat:  time.RFC3339,
		NoColor:     noColor,
		AddSource:   true,
		ReplaceAttr: replaceLogLevel,
	})
}

// replaceLogLevel customizes the display names for custom log levels
func replaceLogLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if level, ok := a.Value.Any().(slog.Level); ok {
		if name, exists := reverseLevelNames[level]; exists {
			a.Value = slog.StringValue(name)
			a = tint.Attr(levelColorNumbers[level], a)
		}
	}
	return a
}
