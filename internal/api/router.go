package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/alecgard/teamhub/internal/auth"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/board"
	"github.com/alecgard/teamhub/internal/chat"
	"github.com/alecgard/teamhub/internal/logbook"
	"github.com/alecgard/teamhub/internal/metrics"
	"github.com/alecgard/teamhub/internal/notification"
	"github.com/alecgard/teamhub/internal/ratelimit"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/alecgard/teamhub/internal/task"
	"github.com/alecgard/teamhub/internal/team"
	"github.com/alecgard/teamhub/internal/user"
)

// Defaults for the login limiter when RouterDeps leaves them unset.
const (
	defaultLoginLimit  = 10
	defaultLoginWindow = 15 * time.Minute

	// limiterIdle is how long a rate-limit bucket may sit unused before the
	// janitor drops it.
	limiterIdle = 30 * time.Minute
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	AllowedOrigins []string

	Sessions      auth.SessionLookup
	Users         *user.Service
	Roles         *role.Service
	Teams         *team.Service
	Boards        *board.Service
	Tasks         *task.Service
	Logbook       *logbook.Service
	Notifications *notification.Service
	Hub           *notification.Hub
	Chat          *chat.Service

	Metrics *metrics.Metrics
	// Decisions receive the outcome of every route-level predicate check.
	Decisions []authz.DecisionFunc

	Limiter     *ratelimit.Limiter
	AdminRate   int
	LoginLimit  int
	LoginWindow time.Duration

	DB    Pinger
	Redis Pinger

	// Cron, when set, gets the limiter janitor jobs.
	Cron *cron.Cron
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	loginLimit, loginWindow := deps.LoginLimit, deps.LoginWindow
	if loginLimit <= 0 {
		loginLimit = defaultLoginLimit
	}
	if loginWindow <= 0 {
		loginWindow = defaultLoginWindow
	}
	loginLimiter := newLoginRateLimiter(loginLimit, loginWindow)
	scheduleJanitors(deps.Cron, loginLimiter, deps.Limiter)

	authH := newAuthHandler(deps.Users, loginLimiter, deps.Metrics)
	users := newUsersHandler(deps.Users, deps.Roles)
	teams := newTeamsHandler(deps.Teams)
	boards := newBoardsHandler(deps.Boards)
	tasks := newTasksHandler(deps.Tasks)
	logs := newLogbookHandler(deps.Logbook)
	notes := newNotificationsHandler(deps.Notifications, deps.Hub)
	chats := newChatHandler(deps.Chat)

	r.Get("/health", healthHandler(deps.DB, deps.Redis))
	r.Get("/.well-known/teamhub.json", WellKnownHandler)
	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	// Public routes.
	r.Post("/api/v1/auth/register", authH.Register)
	r.Post("/api/v1/auth/login", authH.Login)
	r.Get("/api/v1/teams/public", teams.ListPublic)
	r.Get("/api/v1/users/viewers", users.PublicViewers)

	// Session routes.
	r.Route("/api/v1", func(ar chi.Router) {
		if deps.Sessions != nil {
			ar.Use(auth.SessionMiddleware(deps.Sessions))
		}
		if deps.Limiter != nil {
			ar.Use(ratelimit.Middleware(deps.Limiter, ratelimit.ByUser(deps.AdminRate), func() {
				if deps.Metrics != nil {
					deps.Metrics.IncRateLimitRejection("user")
				}
			}))
		}

		ar.Get("/auth/me", authH.Me)
		ar.Patch("/auth/me", authH.UpdateMe)
		ar.Post("/auth/logout", authH.Logout)

		// Teams.
		ar.Get("/teams", teams.ListMine)
		ar.With(authz.Require(authz.IsAnyUser, routeObserver(deps, "route.team_create"))).Post("/teams", teams.Create)
		ar.Get("/teams/{id}", teams.Get)
		ar.Patch("/teams/{id}", teams.Update)
		ar.Delete("/teams/{id}", teams.Delete)
		ar.Put("/teams/{id}/lock", teams.SetLocked)
		ar.Put("/teams/{id}/visibility", teams.SetPublic)
		ar.Get("/teams/{id}/members", teams.Members)
		ar.Post("/teams/{id}/members", teams.AddMember)
		ar.Delete("/teams/{id}/members/{userID}", teams.RemoveMember)
		ar.Get("/teams/{id}/join-requests", teams.JoinRequests)
		ar.Post("/teams/{id}/join-requests", teams.RequestJoin)
		ar.Post("/join-requests/{id}/accept", teams.AcceptJoinRequest)
		ar.Post("/join-requests/{id}/reject", teams.RejectJoinRequest)
		ar.Post("/teams/{id}/invitations", teams.Invite)
		ar.Get("/invitations", teams.Invitations)
		ar.Post("/invitations/{id}/accept", teams.AcceptInvitation)
		ar.Post("/invitations/{id}/reject", teams.RejectInvitation)
		ar.Get("/teams/{id}/logbook", logs.List)
		ar.Get("/teams/{id}/logbook/stats", logs.Stats)

		// Boards.
		ar.Get("/teams/{id}/boards", boards.List)
		ar.Post("/teams/{id}/boards", boards.Create)
		ar.Get("/boards/{id}", boards.Get)
		ar.Patch("/boards/{id}", boards.Update)
		ar.Post("/boards/{id}/archive", boards.Archive)
		ar.Post("/boards/{id}/restore", boards.Restore)
		ar.Delete("/boards/{id}", boards.Delete)

		// Task lists and tasks.
		ar.Get("/boards/{id}/lists", tasks.Lists)
		ar.Post("/boards/{id}/lists", tasks.CreateList)
		ar.Get("/lists/{id}", tasks.GetList)
		ar.Delete("/lists/{id}", tasks.DeleteList)
		ar.Post("/lists/{id}/tasks", tasks.Create)
		ar.Get("/tasks/{id}", tasks.Get)
		ar.Patch("/tasks/{id}", tasks.Update)
		ar.Delete("/tasks/{id}", tasks.Delete)
		ar.Post("/tasks/{id}/done", tasks.MarkDone)

		// Notifications.
		ar.Get("/notifications", notes.List)
		ar.Get("/notifications/count", notes.Count)
		ar.Get("/notifications/stream", notes.Stream)
		ar.Post("/notifications/visit-all", notes.VisitAll)
		ar.Post("/notifications/{id}/visit", notes.Visit)

		// Chat.
		ar.Post("/chat/rooms", chats.CreateRoom)
		ar.Get("/chat/rooms/summary", chats.Summaries)
		ar.Get("/chat/rooms/unread", chats.Unread)
		ar.Get("/chat/rooms/{id}/messages", chats.Messages)
		ar.Post("/chat/rooms/{id}/messages", chats.Send)
		ar.Post("/chat/rooms/{id}/read", chats.MarkRead)

		// Administration.
		ar.Group(func(adm chi.Router) {
			adm.Use(authz.Require(authz.IsAdmin, routeObserver(deps, "route.admin")))

			adm.Get("/admin/users", users.ListUsers)
			adm.Get("/admin/users/{id}", users.GetUser)
			adm.Delete("/admin/users/{id}", users.DeleteUser)
			adm.Post("/admin/users/{id}/block", users.BlockUser)
			adm.Delete("/admin/users/{id}/block", users.UnblockUser)
			adm.Post("/admin/users/{id}/deactivate", users.DeactivateUser)
			adm.Post("/admin/users/{id}/activate", users.ActivateUser)
			adm.Get("/admin/users/{id}/role", users.InspectRole)
			adm.Post("/admin/users/{id}/role/elevate", users.ElevateRole)
			adm.Post("/admin/users/{id}/role/demote", users.DemoteRole)
			adm.Post("/admin/users/{id}/role/resync", users.ResyncRole)

			if deps.Metrics != nil {
				adm.Get("/metrics/summary", deps.Metrics.Handler())
			}
		})
	})

	return r
}

// routeObserver forwards Require outcomes to the configured decision
// observers under a fixed action name.
func routeObserver(deps RouterDeps, action string) authz.RequestDecisionFunc {
	return func(r *http.Request, p authz.Predicate, allowed bool) {
		d := authz.Decision{
			Predicate: authz.Label(p),
			Action:    action,
			Allowed:   allowed,
		}
		if u := auth.UserFromContext(r.Context()); u != nil {
			d.UserID = u.ID
		}
		if deps.Metrics != nil {
			deps.Metrics.ObserveDecision(r.Context(), d)
		}
		for _, fn := range deps.Decisions {
			fn(r.Context(), d)
		}
	}
}

// scheduleJanitors registers periodic pruning of the limiters' state.
func scheduleJanitors(c *cron.Cron, login *loginRateLimiter, limiter *ratelimit.Limiter) {
	if c == nil {
		return
	}
	if _, err := c.AddFunc("@every 1m", login.cleanup); err != nil {
		slog.Error("scheduling login limiter cleanup", "error", err)
	}
	if limiter != nil {
		if _, err := c.AddFunc("@every 5m", func() {
			if n := limiter.Prune(limiterIdle); n > 0 {
				slog.Debug("pruned idle rate-limit buckets", "count", n)
			}
		}); err != nil {
			slog.Error("scheduling rate-limit prune", "error", err)
		}
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}
