// Package command parses terminal input into slash commands and drives the
// interactive login/register prompt.
package command

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Command describes one slash command.
type Command struct {
	Name        string
	Usage       string
	Description string
	// MinArgs is the number of arguments the handler needs.
	MinArgs   int
	AdminOnly bool
	// Anonymous commands are the only ones accepted while signed out.
	Anonymous bool
}

const (
	Help      = "help"
	Logout    = "logout"
	Cleanup   = "cleanup"
	Room      = "room"
	Rooms     = "rooms"
	MakeAdmin = "makeadmin"
	Reply     = "reply"
	Login     = "login"
	Register  = "register"
	Cancel    = "cancel"
)

var registry = map[string]*Command{
	Help:      {Name: Help, Usage: "/help", Description: "show available commands"},
	Logout:    {Name: Logout, Usage: "/logout", Description: "end the session"},
	Cleanup:   {Name: Cleanup, Usage: "/cleanup", Description: "delete messages older than the retention window"},
	Room:      {Name: Room, Usage: "/room <name>", Description: "switch to a room", MinArgs: 1},
	Rooms:     {Name: Rooms, Usage: "/rooms", Description: "list rooms you can join"},
	Reply:     {Name: Reply, Usage: "/reply <id> <text>", Description: "reply to a message by id prefix", MinArgs: 2},
	MakeAdmin: {Name: MakeAdmin, Usage: "/makeadmin <username>", Description: "grant admin rights", MinArgs: 1, AdminOnly: true},
	Login:     {Name: Login, Usage: "/login", Description: "sign in", Anonymous: true},
	Register:  {Name: Register, Usage: "/register", Description: "create an account", Anonymous: true},
}

// Parsed is one line of input.
type Parsed struct {
	IsCommand bool
	// Name is the lower-cased first token without the slash.
	Name    string
	Args    []string
	RawArgs string
	Command *Command
	Raw     string
}

// Parse splits input. Anything not starting with '/' is chat text.
func Parse(input string) Parsed {
	input = strings.TrimSpace(input)
	p := Parsed{Raw: input}
	if !strings.HasPrefix(input, "/") {
		return p
	}
	p.IsCommand = true
	body := input[1:]
	end := strings.IndexFunc(body, unicode.IsSpace)
	if end < 0 {
		p.Name = strings.ToLower(body)
	} else {
		p.Name = strings.ToLower(body[:end])
		p.RawArgs = strings.TrimSpace(body[end:])
		p.Args = strings.Fields(p.RawArgs)
	}
	p.Command = registry[p.Name]
	return p
}

type UnknownError struct {
	Name string
}

func (e *UnknownError) Error() string { return "unknown command: /" + e.Name }

type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string { return "usage: " + e.Usage }

// Validate checks that the command exists and has its arguments.
func (p Parsed) Validate() error {
	if p.Command == nil {
		return &UnknownError{Name: p.Name}
	}
	if len(p.Args) < p.Command.MinArgs {
		return &UsageError{Usage: p.Command.Usage}
	}
	return nil
}

// Tail returns the raw argument text after the first n arguments, with its
// inner spacing intact.
func (p Parsed) Tail(n int) string {
	rest := p.RawArgs
	for i := 0; i < n; i++ {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			return ""
		}
		rest = rest[end:]
	}
	return strings.TrimSpace(rest)
}

// HelpLines lists the commands available to a signed-in identity.
func HelpLines(admin bool) []string {
	var cmds []*Command
	for _, c := range registry {
		if c.Anonymous || (c.AdminOnly && !admin) {
			continue
		}
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	lines := []string{"Available commands:"}
	for _, c := range cmds {
		lines = append(lines, fmt.Sprintf("  %-22s %s", c.Usage, c.Description))
	}
	return lines
}
