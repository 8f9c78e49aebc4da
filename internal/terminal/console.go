package terminal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/command"
	"github.com/Harsh4r0ra/chat-cli/internal/models"
	"github.com/Harsh4r0ra/chat-cli/internal/service"

	"github.com/rs/zerolog/log"
)

// Options tune the message stream of a console.
type Options struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// Console is the orchestrator behind one connected terminal. Input is
// expected from a single goroutine; frames may be emitted from several.
type Console struct {
	ctx  context.Context
	out  func(Frame)
	opts Options

	sessions *service.SessionManager
	admins   *service.AdminResolver
	rooms    *service.RoomDirectory
	admin    *service.AdminConsole
	stream   *service.MessageStream
	notes    *service.NotesEditor
	wizard   *command.Wizard

	inputMu sync.Mutex
}

// New builds a console whose subscriptions live as long as ctx.
func New(ctx context.Context, client backend.Client, opts Options, out func(Frame)) *Console {
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Hour
	}
	profiles := service.NewProfileService(client.Store)
	admins := service.NewAdminResolver(client.Store)
	rooms := service.NewRoomDirectory(client.Store, admins)
	c := &Console{
		ctx:      ctx,
		out:      out,
		opts:     opts,
		sessions: service.NewSessionManager(client.Auth, profiles),
		admins:   admins,
		rooms:    rooms,
		admin:    service.NewAdminConsole(client.Store),
		wizard:   command.NewWizard(),
	}
	c.stream = service.NewMessageStream(client, service.NewModerationGate(client.Store), rooms, profiles, opts.Retention, c.onStream)
	c.notes = service.NewNotesEditor(client, c.onNotes)
	c.sessions.OnChange(c.onSession)
	return c
}

// Start restores the session of accessToken, if any, and greets the user.
func (c *Console) Start(accessToken string) {
	sess, err := c.sessions.Start(c.ctx, accessToken)
	if err != nil {
		log.Debug().Err(err).Msg("restore session")
		c.line(LevelError, "Session expired. Please log in again.")
		c.emit(Frame{Type: FrameSession})
	}
	if sess == nil {
		c.line(LevelInfo, "Welcome. "+command.SignInHint)
	}
	c.prompt()
}

// Close releases every subscription. The session itself stays valid so the
// client can reconnect with it.
func (c *Console) Close() {
	c.stream.Stop()
	c.notes.Stop()
}

// Session returns the current identity or nil.
func (c *Console) Session() *backend.Session { return c.sessions.Current() }

// Stream exposes the message stream of the console.
func (c *Console) Stream() *service.MessageStream { return c.stream }

// Notes exposes the notes editor of the console.
func (c *Console) Notes() *service.NotesEditor { return c.notes }

func (c *Console) emit(f Frame) { c.out(f) }

func (c *Console) line(level, text string) {
	c.emit(Frame{Type: FrameLine, Level: level, Text: text})
}

func (c *Console) lines(level string, texts []string) {
	for _, t := range texts {
		c.line(level, t)
	}
}

func (c *Console) prompt() {
	label := "guest@chat:~$"
	if sess := c.sessions.Current(); sess != nil {
		label = sess.Username() + "@chat:~$"
	}
	c.emit(Frame{Type: FramePrompt, Prompt: &Prompt{
		Label:       label,
		Placeholder: c.wizard.Placeholder(),
		Secret:      c.wizard.Secret(),
	}})
}

func (c *Console) onSession(ev service.SessionEvent) {
	switch ev.Kind {
	case service.SignedIn, service.Restored:
		c.emit(Frame{Type: FrameSession, Session: c.sessionInfo(ev.Session)})
		c.enterRoom(models.ProtectedRoom)
		c.stream.StartSweeper(c.ctx, c.opts.SweepInterval)
		if err := c.notes.Load(c.ctx); err != nil {
			c.line(LevelError, "Failed to load notes: "+err.Error())
		}
		c.sendRooms()
	case service.Refreshed:
		c.emit(Frame{Type: FrameSession, Session: c.sessionInfo(ev.Session)})
	case service.SignedOut:
		c.stream.Stop()
		c.notes.Stop()
		c.emit(Frame{Type: FrameSession})
		c.emit(Frame{Type: FrameClear})
		c.line(LevelInfo, "Logged out. Type /login or /register to begin.")
	}
}

func (c *Console) sessionInfo(s *backend.Session) *SessionInfo {
	return &SessionInfo{
		UserID:       s.UserID,
		Email:        s.Email,
		Username:     s.Username(),
		Admin:        c.admins.IsAdmin(c.ctx, s.UserID),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

func (c *Console) onStream(ev service.StreamEvent) {
	switch ev.Kind {
	case service.StreamAppended:
		for i := range ev.Messages {
			m := ev.Messages[i]
			c.emit(Frame{Type: FrameMessage, Room: ev.Room, Message: &m})
		}
	default:
		c.emit(Frame{Type: FrameClear, Room: ev.Room, Messages: ev.Messages})
	}
}

func (c *Console) onNotes(ev service.NotesEvent) {
	c.emit(Frame{Type: FrameNotes, Notes: &NotesView{Cells: ev.Cells, Focus: ev.Focus}})
}

// HandleInput processes one submitted line.
func (c *Console) HandleInput(text string) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()
	defer c.prompt()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if c.sessions.Current() == nil || c.wizard.Active() {
		c.authFlow(text)
		return
	}
	p := command.Parse(text)
	if p.IsCommand {
		c.runCommand(p)
		return
	}
	c.send(text, nil)
}

func (c *Console) authFlow(text string) {
	st, err := c.wizard.Submit(text)
	switch {
	case errors.Is(err, command.ErrSignInFirst):
		c.line(LevelInfo, command.SignInHint)
		return
	case err != nil:
		c.line(LevelError, err.Error())
		return
	}
	res, ok := st.(command.Resolved)
	if !ok {
		if p := c.wizard.Prompt(); p != "" {
			c.line(LevelInfo, p)
		}
		return
	}
	c.wizard.Reset()
	if res.Mode == command.ModeRegister {
		if _, err := c.sessions.Register(c.ctx, res.Email, res.Password); err != nil {
			c.line(LevelError, "Registration failed: "+err.Error())
			return
		}
		c.line(LevelInfo, "Registration successful!")
		return
	}
	if _, err := c.sessions.Login(c.ctx, res.Email, res.Password); err != nil {
		c.line(LevelError, "Login failed: "+err.Error())
		return
	}
	c.line(LevelInfo, "Login successful!")
}

func (c *Console) runCommand(p command.Parsed) {
	if err := p.Validate(); err != nil {
		var usage *command.UsageError
		if errors.As(err, &usage) {
			c.line(LevelError, "Usage: "+usage.Usage)
			return
		}
		c.line(LevelError, fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", p.Name))
		return
	}
	sess := c.sessions.Current()
	if p.Command.AdminOnly && !c.admins.IsAdmin(c.ctx, sess.UserID) {
		c.line(LevelError, "Only admins can use /"+p.Name+".")
		return
	}

	switch p.Name {
	case command.Help:
		c.lines(LevelInfo, command.HelpLines(c.admins.IsAdmin(c.ctx, sess.UserID)))
	case command.Logout:
		_ = c.sessions.Logout(c.ctx)
	case command.Cleanup:
		n, err := c.stream.Sweep(c.ctx)
		if err != nil {
			c.line(LevelError, "Cleanup failed: "+err.Error())
			return
		}
		c.line(LevelInfo, fmt.Sprintf("Cleanup complete: %d old messages deleted.", n))
	case command.Room:
		c.switchRoom(p.Args[0])
	case command.Rooms:
		c.listRooms()
	case command.MakeAdmin:
		c.makeAdmin(p.Args[0])
	case command.Reply:
		target := c.stream.Find(p.Args[0])
		if target == nil {
			c.line(LevelError, "No visible message matches id "+p.Args[0]+".")
			return
		}
		c.send(p.Tail(1), target)
	case command.Login, command.Register:
		c.line(LevelInfo, "Already logged in as "+sess.Username()+". Use /logout first.")
	}
}

func (c *Console) send(text string, replyTo *models.Message) {
	_, err := c.stream.Send(c.ctx, c.sessions.Current(), text, replyTo)
	if err == nil {
		return
	}
	var merr *service.ModerationError
	switch {
	case errors.As(err, &merr):
		msg := "Cannot send: " + merr.Error()
		if merr.Reason != "" {
			msg += " (" + merr.Reason + ")"
		}
		c.line(LevelError, msg)
	case errors.Is(err, service.ErrNoWriteAccess):
		c.line(LevelError, "You don't have permission to write in this room.")
	default:
		c.line(LevelError, "Error sending message: "+err.Error())
	}
}

func (c *Console) switchRoom(name string) {
	sess := c.sessions.Current()
	room, created, err := c.rooms.Resolve(c.ctx, sess.UserID, name)
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.line(LevelError, fmt.Sprintf("Room '%s' does not exist.", name))
		return
	case errors.Is(err, service.ErrNoRoomAccess):
		c.line(LevelError, fmt.Sprintf("You don't have access to room '%s'.", name))
		return
	case err != nil:
		c.line(LevelError, "Failed to switch room: "+err.Error())
		return
	}
	if created {
		c.line(LevelInfo, fmt.Sprintf("Created private room '%s'.", room.Name))
		c.sendRooms()
	}
	c.enterRoom(room.Name)
}

func (c *Console) enterRoom(name string) {
	if err := c.stream.Enter(c.ctx, name); err != nil {
		c.line(LevelError, "Failed to load messages: "+err.Error())
	}
	c.emit(Frame{Type: FrameStatus, Room: name, Text: service.DisplayNameFor(name)})
	c.line(LevelInfo, "Switched to #"+name)
}

func (c *Console) accessibleRooms() ([]models.ChatRoom, error) {
	sess := c.sessions.Current()
	if sess == nil {
		return nil, service.ErrNotAuthenticated
	}
	return c.rooms.ListAccessible(c.ctx, sess.UserID)
}

func (c *Console) sendRooms() {
	rooms, err := c.accessibleRooms()
	if err != nil {
		log.Warn().Err(err).Msg("list rooms")
		return
	}
	c.emit(Frame{Type: FrameRooms, Room: c.stream.Room(), Rooms: rooms})
}

func (c *Console) listRooms() {
	rooms, err := c.accessibleRooms()
	if err != nil {
		c.line(LevelError, "Failed to list rooms: "+err.Error())
		return
	}
	active := c.stream.Room()
	c.line(LevelInfo, "Rooms:")
	for _, r := range rooms {
		marker := " "
		if r.Name == active {
			marker = "*"
		}
		vis := "public"
		if !r.IsPublic {
			vis = "private"
		}
		c.line(LevelInfo, fmt.Sprintf(" %s #%-20s %-8s %s", marker, r.Name, vis, r.Description))
	}
	c.emit(Frame{Type: FrameRooms, Room: active, Rooms: rooms})
}

func (c *Console) makeAdmin(username string) {
	_, err := c.admin.MakeAdmin(c.ctx, username)
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		c.line(LevelError, fmt.Sprintf("User '%s' not found.", username))
	case errors.Is(err, service.ErrAlreadyAdmin):
		c.line(LevelInfo, fmt.Sprintf("User '%s' is already an admin.", username))
	case err != nil:
		c.line(LevelError, "Failed to grant admin: "+err.Error())
	default:
		c.line(LevelInfo, fmt.Sprintf("User '%s' is now an admin.", username))
	}
}

// HandleNote applies one notes pane action.
func (c *Console) HandleNote(op NoteOp) {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	if c.sessions.Current() == nil {
		c.line(LevelError, "Log in to use notes.")
		return
	}
	var err error
	switch op.Op {
	case NoteLoad:
		err = c.notes.Load(c.ctx)
	case NoteFocus:
		err = c.notes.Focus(c.ctx, op.CellID)
	case NoteEdit:
		err = c.notes.Edit(op.CellID, op.Content)
	case NoteBlur:
		err = c.notes.Blur(c.ctx)
	case NoteEnter:
		err = c.notes.Enter(c.ctx)
	case NoteShiftEnter:
		err = c.notes.ShiftEnter()
	case NoteUp:
		err = c.notes.ArrowUp(c.ctx)
	case NoteDown:
		err = c.notes.ArrowDown(c.ctx)
	case NoteDelete:
		err = c.notes.CtrlDelete(c.ctx, op.Confirm)
	case NoteReorder:
		err = c.notes.Reorder(c.ctx, op.CellID, op.TargetID)
	default:
		err = fmt.Errorf("unknown note action %q", op.Op)
	}
	switch {
	case err == nil:
		if op.Op == NoteEdit || op.Op == NoteShiftEnter {
			c.onNotes(service.NotesEvent{Cells: c.notes.Cells(), Focus: c.notes.Focused()})
		}
	case errors.Is(err, service.ErrConfirmationRequired):
		c.emit(Frame{Type: FrameStatus, Level: LevelInfo, Text: "Delete this cell? Send the delete again with confirm."})
	case errors.Is(err, service.ErrLastCell):
		c.line(LevelError, "Cannot delete the last cell.")
	default:
		c.line(LevelError, "Notes: "+err.Error())
	}
}
