package metered

import "context"

type scopeContextKey struct{}

// WithScope returns a context carrying the scope (tenant) identifier under
// which all usage and credit operations execute. The engine never resolves
// the scope itself; the caller's request handling supplies it.
func WithScope(ctx context.Context, scopeID string) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scopeID)
}

// ScopeFromContext extracts the scope identifier set by WithScope.
func ScopeFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(string)
	return s, ok && s != ""
}

// scope returns the ambient scope identifier or ErrNoScope.
func (e *Engine) scope(ctx context.Context) (string, error) {
	s, ok := ScopeFromContext(ctx)
	if !ok {
		return "", ErrNoScope
	}
	return s, nil
}
