package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"

	"github.com/fatih/color"
)

// PrettyHandlerOptions configures a PrettyHandler
type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// PrettyHandler writes one line per record: time, colored level, message and
// the attributes as a JSON object
type PrettyHandler struct {
	slog.Handler
	l *log.Logger

	attrs  []scopedAttr
	groups []string
}

// scopedAttr is an attribute bound with WithAttrs under the groups open at
// that time
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

// NewPrettyHandler creates a handler writing to out
func NewPrettyHandler(out io.Writer, opts PrettyHandlerOptions) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}

// Handle formats and writes r
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.BlueString(level)
	default:
		level = color.MagentaString(level)
	}

	fields := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, sa := range h.attrs {
		addAttr(nested(fields, sa.groups), sa.attr)
	}
	target := nested(fields, h.groups)
	r.Attrs(func(a slog.Attr) bool {
		addAttr(target, a)
		return true
	})

	b, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode log attributes: %w", err)
	}

	timeStr := r.Time.Format("[15:04:05.000]")
	msg := color.CyanString(r.Message)

	h.l.Println(timeStr, level, msg, color.WhiteString(string(b)))
	return nil
}

// WithAttrs returns a handler that adds attrs to every record
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, scopedAttr{groups: h.groups, attr: a})
	}
	clone.Handler = h.Handler.WithAttrs(attrs)
	return &clone
}

// WithGroup returns a handler that nests later attributes under name
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	clone.Handler = h.Handler.WithGroup(name)
	return &clone
}

// nested returns the map for the group path, creating missing levels
func nested(fields map[string]any, groups []string) map[string]any {
	for _, g := range groups {
		inner, ok := fields[g].(map[string]any)
		if !ok {
			inner = make(map[string]any)
			fields[g] = inner
		}
		fields = inner
	}
	return fields
}

func addAttr(fields map[string]any, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		if len(group) == 0 {
			return
		}
		target := fields
		if a.Key != "" {
			target = make(map[string]any, len(group))
			fields[a.Key] = target
		}
		for _, ga := range group {
			addAttr(target, ga)
		}
		return
	}

	switch v := a.Value.Any().(type) {
	case error:
		fields[a.Key] = v.Error()
	case fmt.Stringer:
		fields[a.Key] = v.String()
	default:
		fields[a.Key] = v
	}
}
