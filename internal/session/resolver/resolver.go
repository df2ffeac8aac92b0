// Package resolver turns request credentials into an authenticated session, failing closed
// on every provider error.
package resolver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/yonathanth/Workline-backend/internal/session/domain"
)

// Result is the outcome of session resolution. Session and User are set only when
// Authenticated is true.
type Result struct {
	Authenticated bool
	Session       *domain.Session
	User          User
}

// Resolver wraps a Provider. It never returns an error: anything other than a usable
// session is Unauthenticated.
type Resolver struct {
	provider Provider
	log      *slog.Logger
	failures metric.Int64Counter
	now      func() time.Time
}

// New returns a Resolver over provider. logger may be nil.
func New(provider Provider, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	failures, err := otel.Meter("github.com/yonathanth/Workline-backend/internal/session/resolver").Int64Counter(
		"workline.session.provider_errors",
		metric.WithDescription("Session provider failures treated as unauthenticated."),
	)
	if err != nil {
		logger.Warn("session: failure counter unavailable", slog.Any("error", err))
	}
	return &Resolver{provider: provider, log: logger, failures: failures, now: time.Now}
}

// Resolve returns the authenticated session for headers, or an unauthenticated Result.
// It does not modify session state.
func (r *Resolver) Resolve(ctx context.Context, headers http.Header) (res Result) {
	defer func() {
		// A panicking provider is a provider error.
		if p := recover(); p != nil {
			r.fail(ctx, slog.Any("panic", p))
			res = Result{}
		}
	}()
	resolved, err := r.provider.GetSession(ctx, headers)
	if err != nil {
		r.fail(ctx, slog.Any("error", err))
		return Result{}
	}
	if resolved == nil || resolved.Session == nil || !resolved.Session.Active(r.now()) {
		r.log.DebugContext(ctx, "no valid session")
		return Result{}
	}
	r.log.DebugContext(ctx, "session resolved", slog.String("user_id", resolved.User.ID))
	return Result{Authenticated: true, Session: resolved.Session, User: resolved.User}
}

func (r *Resolver) fail(ctx context.Context, attr slog.Attr) {
	r.log.WarnContext(ctx, "session provider failed; treating request as unauthenticated", attr)
	if r.failures != nil {
		r.failures.Add(ctx, 1)
	}
}

type resultKey struct{}

// WithResult returns a context carrying res.
func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// FromContext returns the Result stored by WithResult; the zero Result when absent.
func FromContext(ctx context.Context) Result {
	res, _ := ctx.Value(resultKey{}).(Result)
	return res
}
