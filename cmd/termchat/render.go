package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Harsh4r0ra/chat-cli/internal/models"
	"github.com/Harsh4r0ra/chat-cli/internal/terminal"

	"github.com/charmbracelet/lipgloss"
)

var (
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	quoteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	statusStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 1)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
)

// screen renders frames and keeps the state the input loop needs.
type screen struct {
	w io.Writer

	mu     sync.Mutex
	prompt terminal.Prompt
	notes  terminal.NotesView
	ready  chan struct{}
}

func newScreen(w io.Writer) *screen {
	return &screen{
		w:      w,
		prompt: terminal.Prompt{Label: "guest@chat:~$"},
		ready:  make(chan struct{}, 1),
	}
}

func (s *screen) currentPrompt() terminal.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

func (s *screen) notesView() terminal.NotesView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func formatMessage(m *models.Message) string {
	var b strings.Builder
	if m.ReplyToUsername != nil && m.ReplyToText != nil {
		b.WriteString(quoteStyle.Render(fmt.Sprintf("  > @%s: %s", *m.ReplyToUsername, truncate(*m.ReplyToText, 50))))
		b.WriteByte('\n')
	}
	b.WriteString(timeStyle.Render(m.InsertedAt.Local().Format("15:04")))
	b.WriteByte(' ')
	b.WriteString(timeStyle.Render("[" + m.ID[:min(8, len(m.ID))] + "]"))
	b.WriteByte(' ')
	b.WriteString(userStyle.Render(m.Username))
	b.WriteString(": ")
	b.WriteString(m.Text)
	return b.String()
}

func (s *screen) printNotes(v terminal.NotesView) {
	fmt.Fprintln(s.w, systemStyle.Render("Notes:"))
	for i, c := range v.Cells {
		line := fmt.Sprintf("%2d  %s", i+1, c.Content)
		if c.ID == v.Focus {
			line = focusStyle.Render(line)
		}
		fmt.Fprintln(s.w, line)
	}
}

func (s *screen) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// render prints f and records the prompt and notes it carries.
func (s *screen) render(f terminal.Frame) {
	switch f.Type {
	case terminal.FrameLine:
		if f.Level == terminal.LevelError {
			fmt.Fprintln(s.w, errorStyle.Render(f.Text))
		} else {
			fmt.Fprintln(s.w, systemStyle.Render(f.Text))
		}
	case terminal.FrameMessage:
		if f.Message != nil {
			fmt.Fprintln(s.w, formatMessage(f.Message))
		}
	case terminal.FrameClear:
		fmt.Fprint(s.w, "\033[2J\033[H")
		for i := range f.Messages {
			fmt.Fprintln(s.w, formatMessage(&f.Messages[i]))
		}
	case terminal.FrameStatus:
		text := f.Text
		if f.Room != "" {
			text = "#" + f.Room + "  " + text
		}
		fmt.Fprintln(s.w, statusStyle.Render(strings.TrimSpace(text)))
	case terminal.FrameRooms:
		names := make([]string, 0, len(f.Rooms))
		for _, r := range f.Rooms {
			names = append(names, "#"+r.Name)
		}
		fmt.Fprintln(s.w, systemStyle.Render("Rooms: "+strings.Join(names, " ")))
	case terminal.FrameNotes:
		if f.Notes != nil {
			s.mu.Lock()
			s.notes = *f.Notes
			s.mu.Unlock()
		}
	case terminal.FramePrompt:
		if f.Prompt != nil {
			s.mu.Lock()
			s.prompt = *f.Prompt
			s.mu.Unlock()
			s.signal()
		}
	}
}
