// Package internal provides internal implementation details for logx.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Options configures the handler.
type Options struct {
	JSON             bool
	Level            slog.Level
	Color            bool
	PayloadMaxBytes  int
	DisableTimestamp bool
}

// Handler writes logfmt or JSON lines with sorted fields. AsSlog exposes it
// as a slog.Handler. Derived handlers share the writer lock of their parent.
type Handler struct {
	opts   Options
	mu     *sync.Mutex
	writer io.Writer
	attrs  []slog.Attr
	group  string
	now    func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(opts Options, writer io.Writer) *Handler {
	return &Handler{
		opts:   opts,
		mu:     &sync.Mutex{},
		writer: writer,
		now:    time.Now,
	}
}

// Enabled reports whether records at level are written.
func (h *Handler) Enabled(level slog.Level) bool {
	return level >= h.opts.Level
}

// LogRecord writes one record.
func (h *Handler) LogRecord(level slog.Level, msg string, attrs []slog.Attr) {
	if !h.Enabled(level) {
		return
	}

	all := append([]slog.Attr{}, h.attrs...)
	all = append(all, attrs...)
	all = SortAttrs(all)
	if h.group != "" {
		for i := range all {
			all[i].Key = h.group + "." + all[i].Key
		}
	}

	var line string
	if h.opts.JSON {
		line = h.encodeJSON(level, msg, all)
	} else {
		line = h.encodeLogfmt(level, msg, all)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = io.WriteString(h.writer, line)
}

func (h *Handler) encodeLogfmt(level slog.Level, msg string, attrs []slog.Attr) string {
	var buf strings.Builder
	if !h.opts.DisableTimestamp {
		buf.WriteString("time=")
		buf.WriteString(h.now().Format(time.RFC3339))
		buf.WriteByte(' ')
	}

	buf.WriteString("level=")
	if h.opts.Color {
		buf.WriteString(ColorizeLevel(LevelString(level)))
	} else {
		buf.WriteString(LevelString(level))
	}
	buf.WriteString(" msg=")
	buf.WriteString(strconv.Quote(msg))

	for _, attr := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(attr.Key)
		buf.WriteByte('=')
		buf.WriteString(FormatValue(attr.Value, h.opts))
	}
	buf.WriteByte('\n')
	return buf.String()
}

func (h *Handler) encodeJSON(level slog.Level, msg string, attrs []slog.Attr) string {
	record := make(map[string]any, len(attrs)+3)
	if !h.opts.DisableTimestamp {
		record["time"] = h.now().Format(time.RFC3339)
	}
	record["level"] = LevelString(level)
	record["msg"] = msg
	for _, attr := range attrs {
		record[attr.Key] = jsonValue(attr.Value, h.opts)
	}

	// json.Marshal sorts map keys.
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Sprintf("{\"level\":\"ERROR\",\"msg\":%q}\n", "log encoding failed: "+err.Error())
	}
	return string(data) + "\n"
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	h.LogRecord(r.Level, r.Message, attrs)
	return nil
}

// WithAttrs returns a new Handler with the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return AsSlog(&c)
}

// WithGroup returns a new Handler that prefixes keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	c := *h
	c.group = name
	return AsSlog(&c)
}

// slogHandler adapts Handler to slog.Handler's Enabled signature.
type slogHandler struct{ *Handler }

// Enabled implements slog.Handler.
func (s slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return s.Handler.Enabled(level)
}

// AsSlog returns h as a slog.Handler.
func AsSlog(h *Handler) slog.Handler {
	return slogHandler{h}
}

// KVToAttrs converts key-value pairs to a slog.Attr slice. Nested two-element
// []any values (as produced by log.Str and friends) are flattened.
func KVToAttrs(kv []any) []slog.Attr {
	flat := make([]any, 0, len(kv))
	for _, item := range kv {
		if pair, ok := item.([]any); ok && len(pair) == 2 {
			flat = append(flat, pair[0], pair[1])
			continue
		}
		flat = append(flat, item)
	}

	attrs := make([]slog.Attr, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs = append(attrs, slog.Any(fmt.Sprint(flat[i]), flat[i+1]))
	}
	if len(flat)%2 == 1 {
		attrs = append(attrs, slog.Any("!BADKEY", flat[len(flat)-1]))
	}
	return attrs
}

// SortAttrs returns a copy of attrs sorted by key. Equal keys keep call order.
func SortAttrs(attrs []slog.Attr) []slog.Attr {
	sorted := make([]slog.Attr, len(attrs))
	copy(sorted, attrs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Key < sorted[j].Key
	})
	return sorted
}

// FormatValue formats a slog.Value for logfmt output.
func FormatValue(v slog.Value, opts Options) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return strconv.Quote(truncate(v.String(), opts.PayloadMaxBytes))
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindDuration:
		return strconv.Quote(v.Duration().String())
	case slog.KindTime:
		return strconv.Quote(v.Time().Format(time.RFC3339))
	}
	if err, ok := v.Any().(error); ok {
		return strconv.Quote(truncate(err.Error(), opts.PayloadMaxBytes))
	}
	return strconv.Quote(truncate(fmt.Sprint(v.Any()), opts.PayloadMaxBytes))
}

func jsonValue(v slog.Value, opts Options) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return truncate(v.String(), opts.PayloadMaxBytes)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

func truncate(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return fmt.Sprintf("%s...(truncated, %d bytes)", s[:limit], len(s))
	}
	return s
}

// LevelString returns the string representation of a log level.
func LevelString(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBUG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", level)
}

var levelColors = map[string]*color.Color{
	"DEBUG": forced(color.FgMagenta),
	"INFO":  forced(color.FgCyan),
	"WARN":  forced(color.FgYellow),
	"ERROR": forced(color.FgRed),
}

// forced returns a color that ignores terminal detection; the caller opted in.
func forced(attr color.Attribute) *color.Color {
	c := color.New(attr)
	c.EnableColor()
	return c
}

// ColorizeLevel wraps the level value in ANSI color codes.
func ColorizeLevel(level string) string {
	c, ok := levelColors[level]
	if !ok {
		return level
	}
	return c.Sprint(level)
}
