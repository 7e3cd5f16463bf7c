package grantkit

import (
	"context"
)

type contextKey string

const (
	contextKeyPrincipalID contextKey = "grantkit:principal_id"
	contextKeyActorID     contextKey = "grantkit:actor_id"
	contextKeyIPAddress   contextKey = "grantkit:ip_address"
	contextKeyUserAgent   contextKey = "grantkit:user_agent"
	contextKeyRequestID   contextKey = "grantkit:request_id"
	contextKeyChecker     contextKey = "grantkit:checker"
)

// SystemActor is recorded as the actor of mutations performed without a caller,
// such as the expiry sweeper.
const SystemActor = "system"

// valueOf returns the value stored under key, or the zero T.
func valueOf[T any](ctx context.Context, key contextKey) T {
	v, _ := ctx.Value(key).(T)
	return v
}

// WithPrincipalID records the authenticated principal making the request.
func WithPrincipalID(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, contextKeyPrincipalID, principalID)
}

// GetPrincipalID returns the principal from ctx, or "".
func GetPrincipalID(ctx context.Context) string {
	return valueOf[string](ctx, contextKeyPrincipalID)
}

// MustGetPrincipalID is GetPrincipalID for handlers mounted behind
// authenticating middleware. It panics when no principal is present.
func MustGetPrincipalID(ctx context.Context) string {
	id := GetPrincipalID(ctx)
	if id == "" {
		panic("grantkit: principal ID not in context")
	}
	return id
}

// WithActorID sets the actor recorded as AssignedBy, RevokedBy and in audit rows.
// Set it when a principal acts on behalf of someone else; otherwise the
// principal itself is the actor.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, contextKeyActorID, actorID)
}

// GetActorID returns the actor from ctx, falling back to the principal.
func GetActorID(ctx context.Context) string {
	if actor := valueOf[string](ctx, contextKeyActorID); actor != "" {
		return actor
	}
	return GetPrincipalID(ctx)
}

// WithIPAddress records the client address for audit rows.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKeyIPAddress, ip)
}

// GetIPAddress returns the client address from ctx, or "".
func GetIPAddress(ctx context.Context) string {
	return valueOf[string](ctx, contextKeyIPAddress)
}

// WithUserAgent records the client user agent for audit rows.
func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, contextKeyUserAgent, ua)
}

// GetUserAgent returns the client user agent from ctx, or "".
func GetUserAgent(ctx context.Context) string {
	return valueOf[string](ctx, contextKeyUserAgent)
}

// WithRequestID records the correlation id of the request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// GetRequestID returns the request correlation id from ctx, or "".
func GetRequestID(ctx context.Context) string {
	return valueOf[string](ctx, contextKeyRequestID)
}

// WithChecker stores an evaluated Checker, normally from RequirePermission
// or LoadChecker.
func WithChecker(ctx context.Context, checker *Checker) context.Context {
	return context.WithValue(ctx, contextKeyChecker, checker)
}

// GetChecker returns the Checker stored in ctx, or nil.
func GetChecker(ctx context.Context) *Checker {
	return valueOf[*Checker](ctx, contextKeyChecker)
}

// AuditContext is the request metadata copied into every audit row.
type AuditContext struct {
	ActorID   string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContext collects the audit metadata carried by ctx.
func GetAuditContext(ctx context.Context) AuditContext {
	return AuditContext{
		ActorID:   GetActorID(ctx),
		IPAddress: GetIPAddress(ctx),
		UserAgent: GetUserAgent(ctx),
		RequestID: GetRequestID(ctx),
	}
}

// WithAuditContext stores every non-empty field of ac in ctx.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	for key, value := range map[contextKey]string{
		contextKeyActorID:   ac.ActorID,
		contextKeyIPAddress: ac.IPAddress,
		contextKeyUserAgent: ac.UserAgent,
		contextKeyRequestID: ac.RequestID,
	} {
		if value != "" {
			ctx = context.WithValue(ctx, key, value)
		}
	}
	return ctx
}
