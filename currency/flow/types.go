// Package flow implements the currency conversion conversation as a
// transport-agnostic state machine. Handlers receive an Outcome describing the
// messages to render and, for a valid amount, the conversion to perform next.
package flow

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Step is the conversation position stored in the user's session.
type Step string

const (
	StepIdle           Step = "idle"
	StepSourceCurrency Step = "source_currency"
	StepTargetCurrency Step = "target_currency"
	StepAmount         Step = "amount"
	StepConfirmRestart Step = "confirm_restart"
)

// Valid reports whether s is a known step.
func (s Step) Valid() bool {
	switch s {
	case StepIdle, StepSourceCurrency, StepTargetCurrency, StepAmount, StepConfirmRestart:
		return true
	}
	return false
}

// Callback tokens carried by inline buttons.
const (
	ActionStartConversion = "start_conversion"
	ActionHelp            = "help"
	ActionShowCurrencies  = "show_currencies"
	ActionBackToStart     = "back_to_start"
	ActionYes             = "yes"
	ActionNo              = "no"
)

// Commands understood by Machine.Command, without the leading slash.
const (
	CommandStart = "start"
	CommandHelp  = "help"
)

// Session data keys.
const (
	keySource = "source"
	keyTarget = "target"
)

var (
	// ErrUnknownAction is returned for callback tokens the bot never issues.
	ErrUnknownAction = errors.New("flow: unknown action")
	// ErrUnknownCommand is returned for commands the machine does not handle.
	ErrUnknownCommand = errors.New("flow: unknown command")
)

// Button is an inline keyboard button carrying a callback token.
type Button struct {
	Text string
	Data string
}

// Keyboard describes the markup attached to a message. At most one of Reply,
// Inline or Remove is meaningful.
type Keyboard struct {
	Reply  [][]string
	Inline [][]Button
	Remove bool
}

// Message is a single bot reply. Edit asks the renderer to replace the message
// the callback came from instead of sending a new one.
type Message struct {
	Text     string
	Markdown bool
	Edit     bool
	Keyboard *Keyboard
}

// ConversionRequest is the effect emitted once a valid amount was entered.
type ConversionRequest struct {
	Amount decimal.Decimal
	Source string
	Target string
}

// Outcome is the result of feeding one input to the machine.
type Outcome struct {
	Step     Step
	Messages []Message
	Convert  *ConversionRequest
}
