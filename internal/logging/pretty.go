// Package logging builds the slog loggers used by the CLI and the pipeline.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"strings"

	"github.com/fatih/color"

	"groundedrag/internal/domain"
)

// PrettyHandlerOptions wraps the standard handler options.
type PrettyHandlerOptions struct {
	SlogOpts slog.HandlerOptions
}

// PrettyHandler writes one coloured line per record: timestamp, level,
// message and the attributes as indented JSON.
type PrettyHandler struct {
	slog.Handler
	l      *log.Logger
	attrs  []slog.Attr
	groups []string
}

func NewPrettyHandler(out io.Writer, opts PrettyHandlerOptions) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(out, &opts.SlogOpts),
		l:       log.New(out, "", 0),
	}
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		put(fields, a.Key, attrValue(a.Value))
	}
	if r.NumAttrs() > 0 {
		target := fields
		for _, g := range h.groups {
			sub, ok := target[g].(map[string]any)
			if !ok {
				sub = map[string]any{}
				target[g] = sub
			}
			target = sub
		}
		r.Attrs(func(a slog.Attr) bool {
			put(target, a.Key, attrValue(a.Value))
			return true
		})
	}

	b, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}

	timeStr := r.Time.Format("[15:04:05.000]")
	msg := color.CyanString(r.Message)

	h.l.Println(timeStr, level, msg, color.WhiteString(string(b)))
	return nil
}

// WithAttrs nests attrs under the open groups.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nested := attrs
	for i := len(h.groups) - 1; i >= 0; i-- {
		nested = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(nested...)}}
	}
	return &PrettyHandler{
		Handler: h.Handler.WithAttrs(attrs),
		l:       h.l,
		attrs:   append(slices.Clone(h.attrs), nested...),
		groups:  h.groups,
	}
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &PrettyHandler{
		Handler: h.Handler.WithGroup(name),
		l:       h.l,
		attrs:   h.attrs,
		groups:  append(slices.Clone(h.groups), name),
	}
}

// put sets key in m, merging group maps that share a key.
func put(m map[string]any, key string, v any) {
	if sub, ok := v.(map[string]any); ok {
		if existing, ok := m[key].(map[string]any); ok {
			for k, sv := range sub {
				put(existing, k, sv)
			}
			return
		}
	}
	m[key] = v
}

// attrValue converts a value into something encoding/json renders usefully.
func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		m := map[string]any{}
		for _, a := range v.Group() {
			m[a.Key] = attrValue(a.Value)
		}
		return m
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("%w: unknown log level %q", domain.ErrInvalidConfiguration, s)
	}
	return level, nil
}

// New builds a logger writing to w. Format is "pretty", "text" or "json".
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "pretty":
		return slog.New(NewPrettyHandler(w, PrettyHandlerOptions{SlogOpts: opts})), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, &opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &opts)), nil
	default:
		return nil, fmt.Errorf("%w: unknown log format %q", domain.ErrInvalidConfiguration, format)
	}
}
