package main

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alecgard/teamhub/internal/audit"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/board"
	"github.com/alecgard/teamhub/internal/chat"
	"github.com/alecgard/teamhub/internal/config"
	"github.com/alecgard/teamhub/internal/db"
	"github.com/alecgard/teamhub/internal/events"
	"github.com/alecgard/teamhub/internal/logbook"
	"github.com/alecgard/teamhub/internal/notification"
	"github.com/alecgard/teamhub/internal/role"
	"github.com/alecgard/teamhub/internal/task"
	"github.com/alecgard/teamhub/internal/team"
	"github.com/alecgard/teamhub/internal/user"
)

// app is the wired service graph shared by serve and seed.
type app struct {
	userStore *user.Store
	auditLog  *audit.Store

	bus   *events.Bus
	authz *authz.Authorizer

	users         *user.Service
	roles         *role.Service
	teams         *team.Service
	boards        *board.Service
	tasks         *task.Service
	logbook       *logbook.Service
	notifications *notification.Service
	chat          *chat.Service
}

// newApp builds stores and services on pool. Subscribers are registered in
// the order they must run inside a transaction: role recompute first, then
// the activity log, then notifications. A nil hub stores notifications
// without live delivery.
func newApp(cfg *config.Config, pool *pgxpool.Pool, hub *notification.Hub) *app {
	tx := db.NewTxManager(pool)
	bus := events.NewBus()

	teamStore := team.NewStore(pool)
	az := authz.NewAuthorizer(teamStore)

	a := &app{
		userStore: user.NewStore(pool, cfg.Session.Duration),
		auditLog:  audit.NewStore(pool),
		bus:       bus,
		authz:     az,
	}

	logStore := logbook.NewStore(pool)
	noteStore := notification.NewStore(pool)

	a.users = user.NewService(a.userStore, tx)
	a.roles = role.NewService(role.NewPGStore(pool), tx)
	a.teams = team.NewService(teamStore, tx, bus, az)
	a.boards = board.NewService(board.NewStore(pool), tx, bus, az)
	a.tasks = task.NewService(task.NewStore(pool), tx, bus, az, teamStore)
	a.logbook = logbook.NewService(logStore, az)
	a.notifications = notification.NewService(noteStore, az)

	var pub notification.Publisher
	if hub != nil {
		pub = hub
	}
	a.chat = chat.NewService(chat.NewStore(pool), tx, pub, az)

	role.NewHooks(a.roles).Register(bus)
	logbook.NewRecorder(logStore).Register(bus)
	notification.NewRecorder(noteStore, pub).Register(bus)

	return a
}
