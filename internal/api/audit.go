package api

import (
	"log/slog"
	"net/http"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/ratelimit"
)

// auditLog records a state-changing action. detail holds extra key/value
// pairs and is nested under "detail".
func auditLog(r *http.Request, action, resourceType, resourceID string, detail ...any) {
	ctx := r.Context()
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.Group("resource", "type", resourceType, "id", resourceID),
		slog.String("ip", ratelimit.ClientIP(r)),
		slog.String("request_id", RequestIDFromContext(ctx)),
	}
	if u := auth.UserFromContext(ctx); u != nil {
		attrs = append(attrs, slog.Group("actor", "id", u.ID, "email", u.Email, "role", u.Role.String()))
	}
	if len(detail) > 0 {
		attrs = append(attrs, slog.Group("detail", detail...))
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}
