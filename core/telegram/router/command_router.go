package router

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/m3rciful/currencybot/core/logger"
	tg "github.com/m3rciful/currencybot/core/telegram"
	"github.com/m3rciful/currencybot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures admin handling for command routes.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command, sorted by name.
// Admin-only commands are wrapped with middleware.AdminOnly.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	cmds := reg.Commands()
	adminOnly := middleware.AdminOnly(opts.AdminID, opts.OnAdminReject)

	var routes []tg.Route
	for _, name := range slices.Sorted(maps.Keys(cmds)) {
		cmd := cmds[name]
		label := handlerName(name)
		h := func(c tele.Context) error {
			return begin(c, label).run(cmd.Handler)
		}
		if cmd.AdminOnly {
			h = adminOnly(h)
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
	}

	logger.TWire.Info("routes.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
