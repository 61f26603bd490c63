package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/teamhub.json.
const wellKnownManifest = `{
  "name": "TeamHub",
  "description": "Team collaboration backend with role-based access",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "login": "/api/v1/auth/login"
  },
  "roles": ["admin", "project_admin", "project_member", "viewer"],
  "endpoints": {
    "teams": "/api/v1/teams",
    "public_teams": "/api/v1/teams/public",
    "invitations": "/api/v1/invitations",
    "notifications": "/api/v1/notifications",
    "notification_stream": "/api/v1/notifications/stream",
    "chat_rooms": "/api/v1/chat/rooms",
    "public_viewers": "/api/v1/users/viewers",
    "users": "/api/v1/admin/users"
  },
  "health": "/health",
  "metrics": "/metrics"
}`

// WellKnownHandler returns the static TeamHub well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
