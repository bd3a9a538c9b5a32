package commands

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestValidate(t *testing.T) {
	ok := Command{Handler: func(tele.Context) error { return nil }, Description: "Start"}
	cases := []struct {
		name string
		cmd  Command
		want error
	}{
		{"/start", ok, nil},
		{"start", ok, ErrBadName},
		{"/Start", ok, ErrBadName},
		{"/", ok, ErrBadName},
		{"/start", Command{Description: "x"}, ErrNoHandler},
		{"/start", Command{Handler: ok.Handler, Description: " "}, ErrNoDescription},
	}
	for _, c := range cases {
		if err := Validate(c.name, c.cmd); !errors.Is(err, c.want) {
			t.Errorf("Validate(%q) = %v, want %v", c.name, err, c.want)
		}
	}
}

func TestMenuEntry(t *testing.T) {
	got := MenuEntry("/help", Command{Description: "How to use"})
	if got.Text != "help" || got.Description != "How to use" {
		t.Fatalf("entry = %+v", got)
	}
	if (Command{AdminOnly: true}).InMenu() || (Command{Hidden: true}).InMenu() || !(Command{}).InMenu() {
		t.Fatal("InMenu mismatch")
	}
}
