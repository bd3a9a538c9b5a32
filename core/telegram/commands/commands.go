// Package commands describes slash commands and validates their definitions.
package commands

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Command is a slash command handler with its menu metadata.
// AdminOnly commands are restricted to the configured admin; Hidden ones
// stay out of the Telegram command menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
}

// Validation errors returned by Validate.
var (
	ErrNoHandler     = errors.New("commands: nil handler")
	ErrNoDescription = errors.New("commands: empty description")
	ErrBadName       = errors.New("commands: name must be /[a-z0-9_]{1,32}")
)

// Validate checks name and cmd before registration.
func Validate(name string, cmd Command) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	if cmd.Handler == nil {
		return ErrNoHandler
	}
	if strings.TrimSpace(cmd.Description) == "" {
		return ErrNoDescription
	}
	return nil
}

func validName(name string) bool {
	body, ok := strings.CutPrefix(name, "/")
	if !ok || body == "" || len(body) > 32 {
		return false
	}
	for _, r := range body {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

// InMenu reports whether the command belongs in the public command menu.
func (c Command) InMenu() bool { return !c.Hidden && !c.AdminOnly }

// MenuEntry converts the command to the form Bot API setMyCommands expects.
func MenuEntry(name string, cmd Command) tele.Command {
	return tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description}
}
