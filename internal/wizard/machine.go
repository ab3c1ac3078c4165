// Package wizard walks a user through connecting a chat assistant to their
// instance: choose the public domain, confirm it, paste three prepared texts
// into the assistant's configuration, then check the endpoint answers.
//
// Machine is strictly sequential and holds no goroutines. The Bubble Tea
// front end in tui.go only feeds it input and renders its state.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// State is a wizard step.
type State int

const (
	AwaitDomain State = iota
	ConfirmConfig
	PasteInstructions
	PasteStarter
	PasteSchema
	Test
	Done
)

var stateNames = [...]string{
	AwaitDomain:       "await_domain",
	ConfirmConfig:     "confirm_config",
	PasteInstructions: "paste_instructions",
	PasteStarter:      "paste_starter",
	PasteSchema:       "paste_schema",
	Test:              "test",
	Done:              "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

var (
	ErrInvalidDomain = errors.New("invalid domain")
	ErrInvalidAnswer = errors.New("answer y or n")
	ErrCheckFailed   = errors.New("endpoint check failed")
	ErrFinished      = errors.New("wizard already finished")
)

// DomainPlaceholder is replaced by the chosen domain in the schema text.
const DomainPlaceholder = "{{domain}}"

// Clipboard receives the text for each paste step.
type Clipboard interface {
	WriteAll(text string) error
}

// HealthChecker checks that the instance answers at url.
type HealthChecker interface {
	Check(ctx context.Context, url string) error
}

// Content is the prepared text for the three paste steps.
type Content struct {
	Instructions string
	Starter      string
	Schema       string
}

// Step reports what an Advance did.
type Step struct {
	State State
	// Text is what the new state wants pasted, if anything.
	Text string
	// CopyErr is set when Text could not be put on the clipboard; the user
	// has to copy it by hand.
	CopyErr error
}

// Machine is the wizard state machine.
type Machine struct {
	state   State
	domain  string
	content Content
	clip    Clipboard
	checker HealthChecker
}

// NewMachine starts a wizard at AwaitDomain.
func NewMachine(content Content, clip Clipboard, checker HealthChecker) *Machine {
	return &Machine{state: AwaitDomain, content: content, clip: clip, checker: checker}
}

func (m *Machine) State() State   { return m.state }
func (m *Machine) Domain() string { return m.domain }

// HealthURL is the endpoint checked in the Test step.
func (m *Machine) HealthURL() string {
	return "https://" + m.domain + "/healthz"
}

// Prompt is the question for the current state.
func (m *Machine) Prompt() string {
	switch m.state {
	case AwaitDomain:
		return "Public domain of your instance (for example orchestrate.example.com):"
	case ConfirmConfig:
		return fmt.Sprintf("Use https://%s for the assistant's actions? [y/n]", m.domain)
	case PasteInstructions:
		return "Instructions copied. Paste them into the assistant's Instructions field, then press Enter (r to copy again)."
	case PasteStarter:
		return "Conversation starter copied. Paste it into the first starter field, then press Enter (r to copy again)."
	case PasteSchema:
		return "Action schema copied. Paste it into the Actions schema editor, then press Enter (r to copy again)."
	case Test:
		return fmt.Sprintf("Press Enter to check %s (s to skip).", m.HealthURL())
	default:
		return "Setup complete."
	}
}

// Text returns what the current state wants pasted.
func (m *Machine) Text() string {
	switch m.state {
	case PasteInstructions:
		return m.content.Instructions
	case PasteStarter:
		return m.content.Starter
	case PasteSchema:
		return strings.ReplaceAll(m.content.Schema, DomainPlaceholder, m.domain)
	}
	return ""
}

// Advance feeds one line of input to the current state. Invalid input
// returns an error and leaves the state unchanged.
func (m *Machine) Advance(ctx context.Context, input string) (Step, error) {
	input = strings.TrimSpace(input)

	switch m.state {
	case AwaitDomain:
		domain, err := NormalizeDomain(input)
		if err != nil {
			return m.step(), err
		}
		m.domain = domain
		return m.enter(ConfirmConfig), nil

	case ConfirmConfig:
		switch strings.ToLower(input) {
		case "y", "yes":
			return m.enter(PasteInstructions), nil
		case "n", "no":
			m.domain = ""
			return m.enter(AwaitDomain), nil
		}
		return m.step(), ErrInvalidAnswer

	case PasteInstructions, PasteStarter, PasteSchema:
		if strings.EqualFold(input, "r") {
			return m.enter(m.state), nil
		}
		return m.enter(m.state + 1), nil

	case Test:
		if strings.EqualFold(input, "s") {
			return m.enter(Done), nil
		}
		if err := m.checker.Check(ctx, m.HealthURL()); err != nil {
			return m.step(), fmt.Errorf("%w: %v", ErrCheckFailed, err)
		}
		return m.enter(Done), nil
	}

	return m.step(), ErrFinished
}

func (m *Machine) step() Step {
	return Step{State: m.state}
}

// enter moves to s and copies its text, if it has any.
func (m *Machine) enter(s State) Step {
	m.state = s
	st := Step{State: s, Text: m.Text()}
	if st.Text != "" && m.clip != nil {
		st.CopyErr = m.clip.WriteAll(st.Text)
	}
	return st
}

var labelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// NormalizeDomain accepts a bare hostname or an http(s) URL and returns the
// lower-cased hostname. The name needs at least two labels.
func NormalizeDomain(input string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(input))
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return "", fmt.Errorf("%w: %q", ErrInvalidDomain, input)
		}
		if u.Port() != "" || (u.Path != "" && u.Path != "/") {
			return "", fmt.Errorf("%w: %q must be a bare host", ErrInvalidDomain, input)
		}
		host = u.Hostname()
	}
	host = strings.TrimSuffix(host, ".")

	if host == "" || len(host) > 253 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, input)
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return "", fmt.Errorf("%w: %q needs a top-level domain", ErrInvalidDomain, input)
	}
	for _, l := range labels {
		if len(l) > 63 || !labelPattern.MatchString(l) {
			return "", fmt.Errorf("%w: %q", ErrInvalidDomain, input)
		}
	}
	return host, nil
}
