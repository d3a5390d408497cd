// Package correlation tags log records with the id of the request or viewer
// session they belong to.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
)

// Header carries a caller-supplied correlation id on HTTP requests.
const Header = "X-Correlation-ID"

const (
	attrKey  = "correlation_id"
	maxIDLen = 64
)

type ctxKey struct{}

// NewID returns 8 random hex characters.
func NewID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Accept returns candidate when it is a usable id, otherwise a fresh one.
// Usable ids are short and limited to letters, digits, '-' and '_' so they
// can be logged verbatim.
func Accept(candidate string) string {
	if candidate == "" || len(candidate) > maxIDLen {
		return NewID()
	}
	for _, r := range candidate {
		ok := r == '-' || r == '_' ||
			(r >= '0' && r <= '9') ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z')
		if !ok {
			return NewID()
		}
	}
	return candidate
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID reports the id stored in ctx; an empty id counts as absent.
func ID(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id, id != ""
}

// Handler decorates records with the context's correlation id.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r = r.Clone()
		r.AddAttrs(slog.String(attrKey, id))
	}
	return h.next.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.next.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.next.WithGroup(name))
}
