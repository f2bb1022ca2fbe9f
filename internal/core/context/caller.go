// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// CallerContext identifies who triggered an emission.
// CompanyID is zero for operator tooling that may act on any tenant.
type CallerContext struct {
	Subject   string
	CompanyID int64
}

type callerContextKey struct{}

// WithCaller adds CallerContext to context.
func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// GetCaller returns CallerContext from context.
func GetCaller(ctx context.Context) *CallerContext {
	if v, ok := ctx.Value(callerContextKey{}).(*CallerContext); ok {
		return v
	}
	return nil
}

// GetCompanyID returns the company the caller is scoped to, or 0.
func GetCompanyID(ctx context.Context) int64 {
	if c := GetCaller(ctx); c != nil {
		return c.CompanyID
	}
	return 0
}
