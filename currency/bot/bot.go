// Package bot binds the conversion conversation to Telegram updates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/currencybot/core/logger"
	tg "github.com/m3rciful/currencybot/core/telegram"
	"github.com/m3rciful/currencybot/core/telegram/commands"
	tghelpers "github.com/m3rciful/currencybot/core/telegram/helpers"
	"github.com/m3rciful/currencybot/core/telegram/router"
	"github.com/m3rciful/currencybot/core/telegram/state"
	"github.com/m3rciful/currencybot/currency/flow"

	tele "gopkg.in/telebot.v4"
)

var _ router.Conversation = (*Bot)(nil)

// Options wires a Bot.
type Options struct {
	Machine *flow.Machine
	// Sessions, when the store can count, backs the /stats command.
	Sessions state.Counter
	// SendErrors reports failed outbound sends for /stats.
	SendErrors func() uint64
	AdminID    int64
}

// Bot adapts flow.Machine to telebot handlers.
type Bot struct {
	machine    *flow.Machine
	sessions   state.Counter
	sendErrors func() uint64
	adminID    int64
}

// New returns a Bot around opts.Machine.
func New(opts Options) (*Bot, error) {
	if opts.Machine == nil {
		return nil, errors.New("bot: nil machine")
	}
	return &Bot{
		machine:    opts.Machine,
		sessions:   opts.Sessions,
		sendErrors: opts.SendErrors,
		adminID:    opts.AdminID,
	}, nil
}

// Register adds the bot's commands and callbacks to reg.
func (b *Bot) Register(reg *tg.Registry) error {
	cmds := map[string]commands.Command{
		"/" + flow.CommandStart: {Handler: b.command(flow.CommandStart), Description: "Start a new conversion"},
		"/" + flow.CommandHelp:  {Handler: b.command(flow.CommandHelp), Description: "How to use the bot"},
	}
	if b.adminID != 0 {
		cmds["/stats"] = commands.Command{
			Handler:     b.stats,
			Description: "Runtime statistics",
			AdminOnly:   true,
			Hidden:      true,
		}
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			return fmt.Errorf("bot: %w", err)
		}
	}

	for _, token := range []string{
		flow.ActionStartConversion,
		flow.ActionHelp,
		flow.ActionShowCurrencies,
		flow.ActionBackToStart,
		flow.ActionYes,
		flow.ActionNo,
	} {
		if err := reg.RegisterCallback(token, b.callback(token)); err != nil {
			return fmt.Errorf("bot: register callback %q: %w", token, err)
		}
	}
	return nil
}

// Routes builds every route the bot handles.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: b.adminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: b.UnknownCallback()}))
	routes = append(routes, router.TextRoutes(b, router.TextOptions{UnknownText: b.UnknownText()})...)
	return routes
}

// InProgress reports whether the sender has left the idle step.
func (b *Bot) InProgress(c tele.Context) (bool, error) {
	user := c.Sender()
	if user == nil {
		return false, nil
	}
	step, err := b.machine.Step(tghelpers.BuildContext(c), user.ID)
	if err != nil {
		return false, err
	}
	return step != flow.StepIdle, nil
}

// HandleText feeds free text to the conversation.
func (b *Bot) HandleText(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	out, err := b.machine.Text(ctx, user.ID, c.Text())
	if err != nil {
		return err
	}
	return b.deliver(ctx, c, user.ID, out)
}

// UnknownText returns nil: text outside a conversation is ignored.
func (b *Bot) UnknownText() tele.HandlerFunc { return nil }

// UnknownCallback returns nil so the registry answers unknown buttons.
func (b *Bot) UnknownCallback() tele.HandlerFunc { return nil }

// OnError is the last stop for handler errors and recovered panics. The user
// is told something went wrong when the update has a chat to reply to.
func (b *Bot) OnError(err error, c tele.Context) {
	ctx := logger.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "tg.error",
		slog.String("err", logger.Sanitize(err.Error())),
	)
	if c == nil || c.Chat() == nil {
		return
	}

	var sendErr error
	if c.Callback() != nil {
		sendErr = tghelpers.EditOrSend(c, flow.TextUnexpectedError, nil)
	} else {
		sendErr = tghelpers.Send(c, flow.TextUnexpectedError, nil)
	}
	if sendErr != nil {
		logger.Warn(ctx, "tg", "tg.error.notify_failed",
			slog.String("err", logger.Sanitize(sendErr.Error())),
		)
	}
}

func (b *Bot) command(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		out, err := b.machine.Command(ctx, user.ID, name)
		if err != nil {
			return err
		}
		return b.deliver(ctx, c, user.ID, out)
	}
}

func (b *Bot) callback(token string) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		out, err := b.machine.Callback(ctx, user.ID, token)
		if err != nil {
			return err
		}
		return b.deliver(ctx, c, user.ID, out)
	}
}

// deliver renders out and, when it asks for a conversion, runs it and
// renders the result as well.
func (b *Bot) deliver(ctx context.Context, c tele.Context, userID int64, out flow.Outcome) error {
	if err := render(c, out.Messages); err != nil {
		return err
	}
	if out.Convert == nil {
		return nil
	}
	res, err := b.machine.Convert(ctx, userID, *out.Convert)
	if err != nil {
		return err
	}
	return render(c, res.Messages)
}

func (b *Bot) stats(c tele.Context) error {
	active := "n/a"
	if b.sessions != nil {
		n, err := b.sessions.Len(tghelpers.BuildContext(c))
		if err != nil {
			return fmt.Errorf("bot: count sessions: %w", err)
		}
		active = fmt.Sprint(n)
	}
	var failed uint64
	if b.sendErrors != nil {
		failed = b.sendErrors()
	}
	return tghelpers.Send(c, fmt.Sprintf("📈 Active sessions: %s\n📮 Failed sends: %d", active, failed), nil)
}
