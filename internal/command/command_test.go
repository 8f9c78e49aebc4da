package command

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input     string
		isCommand bool
		name      string
		args      []string
		known     bool
	}{
		{"hello world", false, "", nil, false},
		{"  hi /help", false, "", nil, false},
		{"/help", true, "help", nil, true},
		{"/HELP", true, "help", nil, true},
		{"  /Room   lounge  ", true, "room", []string{"lounge"}, true},
		{"/reply ab12 see   you", true, "reply", []string{"ab12", "see", "you"}, true},
		{"/dance", true, "dance", nil, false},
		{"/", true, "", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			p := Parse(tc.input)
			if p.IsCommand != tc.isCommand {
				t.Fatalf("IsCommand = %v, want %v", p.IsCommand, tc.isCommand)
			}
			if p.Name != tc.name {
				t.Errorf("Name = %q, want %q", p.Name, tc.name)
			}
			if !reflect.DeepEqual(p.Args, tc.args) {
				t.Errorf("Args = %#v, want %#v", p.Args, tc.args)
			}
			if (p.Command != nil) != tc.known {
				t.Errorf("known = %v, want %v", p.Command != nil, tc.known)
			}
		})
	}
}

func TestParsed_Validate(t *testing.T) {
	var unknown *UnknownError
	if err := Parse("/dance").Validate(); !errors.As(err, &unknown) || unknown.Name != "dance" {
		t.Errorf("unknown command: got %v", err)
	}
	var usage *UsageError
	if err := Parse("/room").Validate(); !errors.As(err, &usage) || usage.Usage != "/room <name>" {
		t.Errorf("missing arg: got %v", err)
	}
	if err := Parse("/reply abc").Validate(); !errors.As(err, &usage) {
		t.Errorf("reply needs text: got %v", err)
	}
	if err := Parse("/room lounge").Validate(); err != nil {
		t.Errorf("valid: got %v", err)
	}
}

func TestParsed_Tail(t *testing.T) {
	p := Parse("/reply ab12   see  you  soon ")
	if got := p.Tail(1); got != "see  you  soon" {
		t.Errorf("Tail(1) = %q", got)
	}
	if got := p.Tail(0); got != "ab12   see  you  soon" {
		t.Errorf("Tail(0) = %q", got)
	}
	if got := Parse("/reply ab12").Tail(1); got != "" {
		t.Errorf("Tail past end = %q", got)
	}
}

func TestHelpLines(t *testing.T) {
	user := strings.Join(HelpLines(false), "\n")
	admin := strings.Join(HelpLines(true), "\n")
	for _, want := range []string{"/help", "/logout", "/cleanup", "/room <name>", "/rooms", "/reply"} {
		if !strings.Contains(user, want) {
			t.Errorf("help misses %s", want)
		}
	}
	if strings.Contains(user, "/makeadmin") {
		t.Error("non-admin help lists /makeadmin")
	}
	if !strings.Contains(admin, "/makeadmin") {
		t.Error("admin help misses /makeadmin")
	}
	if strings.Contains(admin, "/login") {
		t.Error("help lists /login")
	}
}

func TestWizard_Login(t *testing.T) {
	w := NewWizard()
	if w.Active() {
		t.Fatal("new wizard is active")
	}

	st, err := w.Submit("hello")
	if !errors.Is(err, ErrSignInFirst) {
		t.Fatalf("plain text: err = %v", err)
	}
	if _, ok := st.(Idle); !ok {
		t.Fatalf("plain text: state = %T", st)
	}

	st, _ = w.Submit("/LOGIN")
	if got, ok := st.(AwaitingEmail); !ok || got.Mode != ModeLogin {
		t.Fatalf("after /login: state = %#v", st)
	}
	if w.Prompt() != "Enter your email:" || w.Secret() {
		t.Errorf("email prompt = %q secret=%v", w.Prompt(), w.Secret())
	}

	if _, err := w.Submit("   "); !errors.Is(err, ErrEmptyEmail) {
		t.Errorf("empty email: err = %v", err)
	}

	st, _ = w.Submit(" ann@example.com ")
	if got, ok := st.(AwaitingPassword); !ok || got.Email != "ann@example.com" {
		t.Fatalf("after email: state = %#v", st)
	}
	if !w.Secret() || w.Placeholder() != "Enter password..." {
		t.Errorf("password step not secret")
	}

	st, _ = w.Submit("hunter22")
	want := Resolved{Email: "ann@example.com", Password: "hunter22", Mode: ModeLogin}
	if st != want {
		t.Fatalf("resolved = %#v, want %#v", st, want)
	}
	if w.Active() {
		t.Error("resolved wizard still active")
	}

	w.Reset()
	if _, ok := w.State().(Idle); !ok {
		t.Errorf("reset state = %T", w.State())
	}
}

func TestWizard_RegisterAndCancel(t *testing.T) {
	w := NewWizard()
	st, _ := w.Submit("/register")
	if got, ok := st.(AwaitingEmail); !ok || got.Mode != ModeRegister {
		t.Fatalf("state = %#v", st)
	}
	st, _ = w.Submit("bo@example.com")
	if got := st.(AwaitingPassword); got.Mode != ModeRegister {
		t.Fatalf("mode = %v", got.Mode)
	}
	st, err := w.Submit("/cancel")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := st.(Idle); !ok {
		t.Errorf("after cancel: %T", st)
	}
}
