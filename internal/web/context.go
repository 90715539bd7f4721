package web

import "context"

type contextKey int

const visitorCtxKey contextKey = iota

// Visitor identifies one browser session. View sessions and toasts are keyed
// by it.
type Visitor struct {
	ID string
}

func withVisitor(ctx context.Context, v Visitor) context.Context {
	return context.WithValue(ctx, visitorCtxKey, v)
}

func CurrentVisitor(ctx context.Context) (Visitor, bool) {
	v, ok := ctx.Value(visitorCtxKey).(Visitor)
	return v, ok && v.ID != ""
}
