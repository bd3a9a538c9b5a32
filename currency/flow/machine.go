package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/currencybot/core/logger"
	"github.com/m3rciful/currencybot/core/metrics"
	"github.com/m3rciful/currencybot/core/telegram/state"
	"github.com/m3rciful/currencybot/currency/catalog"
	"github.com/m3rciful/currencybot/currency/rates"
	"github.com/shopspring/decimal"
)

// Options wires a Machine.
type Options struct {
	Store     state.Store
	Rates     rates.Source
	Catalog   *catalog.Catalog
	MatchMode catalog.MatchMode
	Metrics   *metrics.Registry
}

// Machine drives the conversation for every user. It holds no per-user state
// itself; callers serialize inputs for the same user.
type Machine struct {
	store   state.Store
	rates   rates.Source
	catalog *catalog.Catalog
	mode    catalog.MatchMode
	metrics *metrics.Registry
}

// New validates opts and returns a Machine.
func New(opts Options) (*Machine, error) {
	if opts.Store == nil {
		return nil, state.ErrNilStore
	}
	if opts.Rates == nil {
		return nil, errors.New("flow: nil rate source")
	}
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	mode := opts.MatchMode
	if mode == "" {
		mode = catalog.MatchSubstring
	}
	return &Machine{
		store:   opts.Store,
		rates:   opts.Rates,
		catalog: cat,
		mode:    mode,
		metrics: opts.Metrics,
	}, nil
}

// Catalog exposes the currencies the machine converts between.
func (m *Machine) Catalog() *catalog.Catalog { return m.catalog }

// Step reports where userID currently is in the conversation.
func (m *Machine) Step(ctx context.Context, userID int64) (Step, error) {
	_, step, err := m.load(ctx, userID)
	return step, err
}

// Command handles /start and /help, which override any step in progress.
func (m *Machine) Command(ctx context.Context, userID int64, name string) (Outcome, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/") {
	case CommandStart:
		return m.welcome(ctx, userID, false)
	case CommandHelp:
		return m.help(ctx, userID, false)
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Callback handles an inline button token.
func (m *Machine) Callback(ctx context.Context, userID int64, token string) (Outcome, error) {
	switch strings.TrimSpace(token) {
	case ActionStartConversion:
		return m.begin(ctx, userID, Message{Text: textStepOne, Markdown: true, Edit: true},
			Message{Text: textChooseKeyboard, Keyboard: m.currencyKeyboard()})
	case ActionYes:
		return m.begin(ctx, userID, Message{Text: textRestarting, Edit: true},
			Message{Text: textStepOne, Markdown: true, Keyboard: m.currencyKeyboard()})
	case ActionNo:
		if err := m.store.Clear(ctx, userID); err != nil {
			return Outcome{}, fmt.Errorf("flow: clear session: %w", err)
		}
		return Outcome{Step: StepIdle, Messages: []Message{{Text: textGoodbye, Edit: true, Keyboard: goodbyeMenu}}}, nil
	case ActionHelp:
		return m.help(ctx, userID, true)
	case ActionShowCurrencies:
		_, step, err := m.load(ctx, userID)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Step: step, Messages: []Message{{Text: currencyList(m.catalog), Markdown: true, Edit: true, Keyboard: supportMenu}}}, nil
	case ActionBackToStart:
		return m.welcome(ctx, userID, true)
	}
	return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, token)
}

// Text handles free text according to the stored step.
func (m *Machine) Text(ctx context.Context, userID int64, text string) (Outcome, error) {
	sess, step, err := m.load(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}

	switch step {
	case StepSourceCurrency:
		cur, ok := m.catalog.Match(text, m.mode)
		if !ok {
			return m.reprompt(step), nil
		}
		sess.Set(keySource, cur.Code)
		return m.advance(ctx, userID, sess, step, StepTargetCurrency,
			Message{Text: textSelectTarget, Keyboard: m.currencyKeyboard()})

	case StepTargetCurrency:
		cur, ok := m.catalog.Match(text, m.mode)
		if !ok {
			return m.reprompt(step), nil
		}
		sess.Set(keyTarget, cur.Code)
		return m.advance(ctx, userID, sess, step, StepAmount,
			Message{Text: textEnterAmount, Keyboard: removeKeyboard})

	case StepAmount:
		amount, msg, ok := ParseAmount(text)
		if !ok {
			return Outcome{Step: step, Messages: []Message{{Text: msg}}}, nil
		}
		return Outcome{
			Step:     step,
			Messages: []Message{{Text: textFetching}},
			Convert: &ConversionRequest{
				Amount: amount,
				Source: sess.Value(keySource),
				Target: sess.Value(keyTarget),
			},
		}, nil
	}

	// idle and confirm_restart ignore free text.
	return Outcome{Step: step}, nil
}

// Convert performs the conversion emitted by Text. A failed lookup keeps the
// user in the amount step so they can retry.
func (m *Machine) Convert(ctx context.Context, userID int64, req ConversionRequest) (Outcome, error) {
	rate, err := m.rates.Rate(ctx, req.Source, req.Target)
	if err != nil {
		if errors.Is(err, rates.ErrLookup) {
			logger.LogEvent(ctx, logger.Flow, slog.LevelWarn, "flow.convert.failed",
				slog.Int64("user_id", userID),
				slog.String("source", req.Source),
				slog.String("target", req.Target),
				slog.String("err", err.Error()),
			)
			return Outcome{Step: StepAmount, Messages: []Message{{Text: textLookupFailed}}}, nil
		}
		return Outcome{}, fmt.Errorf("flow: rate %s->%s: %w", req.Source, req.Target, err)
	}

	conv := rates.Convert(req.Amount, req.Source, req.Target, rate)

	sess, _, err := m.load(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	out, err := m.advance(ctx, userID, sess, StepAmount, StepConfirmRestart,
		Message{Text: conversionResult(m.catalog, conv), Markdown: true},
		Message{Text: textConvertAgain, Keyboard: restartMenu},
	)
	if err != nil {
		return Outcome{}, err
	}
	m.metrics.Conversion(conv.Source, conv.Target)
	logger.LogEvent(ctx, logger.Flow, slog.LevelInfo, "flow.convert",
		slog.Int64("user_id", userID),
		slog.String("source", conv.Source),
		slog.String("target", conv.Target),
		slog.String("amount", conv.Amount.String()),
		slog.String("rate", conv.Rate.String()),
	)
	return out, nil
}

// Bounds on accepted amounts: significant digits and digits before the point.
const (
	maxAmountDigits = 30
	maxAmountWhole  = 15
)

// ParseAmount validates user input as a positive decimal that is at least
// 0.01 once rounded to cents. On failure it returns the message explaining
// what is wrong.
func ParseAmount(text string) (decimal.Decimal, string, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil || amount.NumDigits() > maxAmountDigits {
		return decimal.Zero, textAmountInvalid, false
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, textAmountPositive, false
	}
	whole := amount.NumDigits() + int(amount.Exponent())
	if whole > maxAmountWhole {
		return decimal.Zero, textAmountInvalid, false
	}
	// below 0.001 it rounds to zero; skip Round for huge negative exponents
	if whole < -2 || amount.Round(2).IsZero() {
		return decimal.Zero, textAmountPositive, false
	}
	return amount, "", true
}

func (m *Machine) welcome(ctx context.Context, userID int64, edit bool) (Outcome, error) {
	if err := m.store.Clear(ctx, userID); err != nil {
		return Outcome{}, fmt.Errorf("flow: clear session: %w", err)
	}
	return Outcome{Step: StepIdle, Messages: []Message{{Text: textWelcome, Markdown: true, Edit: edit, Keyboard: startMenu}}}, nil
}

func (m *Machine) help(ctx context.Context, userID int64, edit bool) (Outcome, error) {
	_, step, err := m.load(ctx, userID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Step: step, Messages: []Message{{Text: textHelp, Markdown: true, Edit: edit, Keyboard: helpMenu}}}, nil
}

// begin resets the session and moves it to source currency selection.
func (m *Machine) begin(ctx context.Context, userID int64, msgs ...Message) (Outcome, error) {
	if err := m.store.Clear(ctx, userID); err != nil {
		return Outcome{}, fmt.Errorf("flow: clear session: %w", err)
	}
	return m.advance(ctx, userID, state.NewSession(state.StateIdle), StepIdle, StepSourceCurrency, msgs...)
}

func (m *Machine) advance(ctx context.Context, userID int64, sess state.Session, from, to Step, msgs ...Message) (Outcome, error) {
	sess.State = state.State(to)
	if err := m.store.Put(ctx, userID, sess); err != nil {
		return Outcome{}, fmt.Errorf("flow: save session: %w", err)
	}
	logger.LogEvent(ctx, logger.Flow, slog.LevelDebug, "flow.transition",
		slog.Int64("user_id", userID),
		slog.String("step", string(from)),
		slog.String("next_step", string(to)),
	)
	return Outcome{Step: to, Messages: msgs}, nil
}

func (m *Machine) reprompt(step Step) Outcome {
	return Outcome{Step: step, Messages: []Message{{Text: textPickFromKB, Keyboard: m.currencyKeyboard()}}}
}

func (m *Machine) currencyKeyboard() *Keyboard {
	return &Keyboard{Reply: m.catalog.Rows(2)}
}

// load reads the session and resets it when the stored step or currencies
// cannot belong to this conversation.
func (m *Machine) load(ctx context.Context, userID int64) (state.Session, Step, error) {
	sess, err := m.store.Get(ctx, userID)
	if err != nil {
		return state.Session{}, "", fmt.Errorf("flow: load session: %w", err)
	}
	step := Step(sess.State)
	if step == "" {
		step = StepIdle
	}
	if reason := m.corrupt(sess, step); reason != "" {
		logger.LogEvent(ctx, logger.Flow, slog.LevelWarn, "flow.session.reset",
			slog.Int64("user_id", userID),
			slog.String("step", string(step)),
			slog.String("reason", reason),
		)
		if err := m.store.Clear(ctx, userID); err != nil {
			return state.Session{}, "", fmt.Errorf("flow: reset session: %w", err)
		}
		return state.NewSession(state.StateIdle), StepIdle, nil
	}
	return sess, step, nil
}

func (m *Machine) corrupt(sess state.Session, step Step) string {
	if !step.Valid() {
		return "unknown_step"
	}
	needSource := step == StepTargetCurrency || step == StepAmount
	needTarget := step == StepAmount
	if needSource && !m.catalog.Valid(sess.Value(keySource)) {
		return "invalid_source"
	}
	if needTarget && !m.catalog.Valid(sess.Value(keyTarget)) {
		return "invalid_target"
	}
	return ""
}
