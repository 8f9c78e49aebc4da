package command

import (
	"errors"
	"strings"
)

type Mode int

const (
	ModeLogin Mode = iota
	ModeRegister
)

func (m Mode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "login"
}

// State is the position of the auth prompt. It is one of Idle,
// AwaitingEmail, AwaitingPassword or Resolved.
type State interface {
	state()
}

type Idle struct{}

type AwaitingEmail struct {
	Mode Mode
}

type AwaitingPassword struct {
	Email string
	Mode  Mode
}

// Resolved carries the collected credentials. The caller performs the sign
// in and then resets the wizard.
type Resolved struct {
	Email    string
	Password string
	Mode     Mode
}

func (Idle) state()             {}
func (AwaitingEmail) state()    {}
func (AwaitingPassword) state() {}
func (Resolved) state()         {}

// SignInHint answers any other input while signed out.
const SignInHint = "Please type /login or /register to begin."

var (
	ErrSignInFirst = errors.New("sign in required")
	ErrEmptyEmail  = errors.New("email must not be empty")
)

// Wizard collects an email and a password over two submissions.
type Wizard struct {
	state State
}

func NewWizard() *Wizard { return &Wizard{state: Idle{}} }

func (w *Wizard) State() State { return w.state }

// Active is true while the wizard is waiting for input.
func (w *Wizard) Active() bool {
	switch w.state.(type) {
	case AwaitingEmail, AwaitingPassword:
		return true
	}
	return false
}

// Secret reports whether the next input is a password.
func (w *Wizard) Secret() bool {
	_, ok := w.state.(AwaitingPassword)
	return ok
}

func (w *Wizard) Reset() { w.state = Idle{} }

// Prompt is the line shown for the current state.
func (w *Wizard) Prompt() string {
	switch w.state.(type) {
	case AwaitingEmail:
		return "Enter your email:"
	case AwaitingPassword:
		return "Enter your password:"
	}
	return ""
}

// Placeholder is the hint shown in the input field.
func (w *Wizard) Placeholder() string {
	switch w.state.(type) {
	case AwaitingEmail:
		return "Enter email..."
	case AwaitingPassword:
		return "Enter password..."
	}
	return "[Type your message or command here...]"
}

// Submit advances the wizard with one line of input. From Idle only /login
// and /register are accepted; /cancel returns to Idle from any state.
func (w *Wizard) Submit(input string) (State, error) {
	input = strings.TrimSpace(input)
	if w.Active() && strings.EqualFold(input, "/"+Cancel) {
		w.state = Idle{}
		return w.state, nil
	}
	switch s := w.state.(type) {
	case Idle, Resolved:
		p := Parse(input)
		switch {
		case p.IsCommand && p.Name == Login:
			w.state = AwaitingEmail{Mode: ModeLogin}
		case p.IsCommand && p.Name == Register:
			w.state = AwaitingEmail{Mode: ModeRegister}
		default:
			w.state = Idle{}
			return w.state, ErrSignInFirst
		}
	case AwaitingEmail:
		if input == "" {
			return w.state, ErrEmptyEmail
		}
		w.state = AwaitingPassword{Email: input, Mode: s.Mode}
	case AwaitingPassword:
		w.state = Resolved{Email: s.Email, Password: input, Mode: s.Mode}
	}
	return w.state, nil
}
