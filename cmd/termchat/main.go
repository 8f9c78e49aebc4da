// Command termchat is the line-oriented terminal client. It opens one
// terminal on the server and renders what the server sends back.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/terminal"

	"github.com/gorilla/websocket"
	"github.com/peterh/liner"
)

func wsURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String(), nil
}

func main() {
	server := flag.String("server", envOr("TERMCHAT_SERVER", "http://localhost:8080"), "server base URL")
	sessionPath := flag.String("session", defaultSessionPath(), "file the session is kept in")
	flag.Parse()

	httpc := &http.Client{Timeout: 10 * time.Second}
	token := usable(httpc, *server, *sessionPath, time.Now())
	target, err := wsURL(*server, token)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid server url:", err)
		os.Exit(1)
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect:", err)
		os.Exit(1)
	}
	defer conn.Close()

	scr := newScreen(os.Stdout)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var f terminal.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Type == terminal.FrameSession {
				persist(*sessionPath, f.Session)
			}
			scr.render(f)
		}
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	for {
		select {
		case <-scr.ready:
		case <-closed:
			fmt.Println(errorStyle.Render("Connection closed."))
			return
		case <-time.After(5 * time.Second):
		}

		p := scr.currentPrompt()
		label := p.Label + " "
		var text string
		if p.Secret {
			text, err = line.PasswordPrompt(label)
		} else {
			text, err = line.Prompt(label)
		}
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		if !p.Secret && strings.TrimSpace(text) != "" {
			line.AppendHistory(text)
		}

		if strings.HasPrefix(strings.TrimSpace(text), ":") {
			if err := noteCommand(conn, scr, strings.TrimSpace(text)); err != nil {
				fmt.Println(errorStyle.Render(err.Error()))
			}
			scr.signal()
			continue
		}
		if err := conn.WriteJSON(terminal.Inbound{Type: terminal.InboundInput, Text: text}); err != nil {
			fmt.Println(errorStyle.Render("Connection closed."))
			return
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// persist writes the session frame to path. A restored session carries no
// refresh token, so the stored one is kept when the frame has none.
func persist(path string, info *terminal.SessionInfo) {
	var s *savedSession
	if info != nil {
		s = &savedSession{AccessToken: info.AccessToken, RefreshToken: info.RefreshToken, ExpiresAt: info.ExpiresAt}
		if s.RefreshToken == "" {
			if prev, err := loadSession(path); err == nil && prev != nil {
				s.RefreshToken = prev.RefreshToken
			}
		}
	}
	if err := storeSession(path, s); err != nil {
		fmt.Fprintln(os.Stderr, "save session:", err)
	}
}

const notesUsage = "notes: :notes | :note <n> <text> | :note new | :note rm <n> [!] | :note mv <from> <to>"

// noteCommand maps the ":note" shorthands onto note operations.
func noteCommand(conn *websocket.Conn, scr *screen, text string) error {
	fields := strings.Fields(text)
	view := scr.notesView()
	cell := func(arg string) (string, error) {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(view.Cells) {
			return "", fmt.Errorf("no cell %s", arg)
		}
		return view.Cells[n-1].ID, nil
	}
	send := func(ops ...terminal.NoteOp) error {
		for _, op := range ops {
			if err := conn.WriteJSON(terminal.Inbound{Type: terminal.InboundNote, NoteOp: op}); err != nil {
				return err
			}
		}
		return nil
	}

	switch {
	case fields[0] == ":notes":
		scr.printNotes(view)
		return nil
	case fields[0] != ":note" || len(fields) < 2:
		return errors.New(notesUsage)
	}

	switch fields[1] {
	case "new":
		return send(terminal.NoteOp{Op: terminal.NoteEnter})
	case "rm":
		if len(fields) < 3 {
			return errors.New(notesUsage)
		}
		id, err := cell(fields[2])
		if err != nil {
			return err
		}
		confirm := len(fields) > 3 && fields[3] == "!"
		return send(terminal.NoteOp{Op: terminal.NoteFocus, CellID: id}, terminal.NoteOp{Op: terminal.NoteDelete, Confirm: confirm})
	case "mv":
		if len(fields) < 4 {
			return errors.New(notesUsage)
		}
		from, err := cell(fields[2])
		if err != nil {
			return err
		}
		to, err := cell(fields[3])
		if err != nil {
			return err
		}
		return send(terminal.NoteOp{Op: terminal.NoteReorder, CellID: from, TargetID: to})
	default:
		id, err := cell(fields[1])
		if err != nil {
			return err
		}
		content := strings.Join(fields[2:], " ")
		return send(
			terminal.NoteOp{Op: terminal.NoteFocus, CellID: id},
			terminal.NoteOp{Op: terminal.NoteEdit, CellID: id, Content: content},
			terminal.NoteOp{Op: terminal.NoteBlur},
		)
	}
}
