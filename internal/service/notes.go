package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// seedCells is what an empty notebook shows. They are saved on first edit.
var seedCells = []string{
	"Welcome to Notes",
	"",
	"Start typing your notes here...",
	"",
	"Features:",
	"- Real-time sync",
	"- Cell-based editing",
	"- Collaborative editing",
}

type NotesEvent struct {
	Cells []models.NoteCell
	Focus string
}

// NotesEditor is the shared, ordered notebook as seen from one terminal.
// Remote changes are folded in by id with a last-writer-wins rule on
// UpdatedAt.
type NotesEditor struct {
	client backend.Client
	emit   func(NotesEvent)
	Now    func() time.Time

	mu    sync.Mutex
	cells []models.NoteCell
	saved map[string]string
	focus string
	sub   backend.Subscription
}

func NewNotesEditor(client backend.Client, emit func(NotesEvent)) *NotesEditor {
	if emit == nil {
		emit = func(NotesEvent) {}
	}
	return &NotesEditor{client: client, emit: emit, Now: time.Now, saved: make(map[string]string)}
}

// Load subscribes to cell changes and fetches the notebook. An empty notebook
// is replaced by the seed cells, kept local until edited.
func (e *NotesEditor) Load(ctx context.Context) error {
	e.release()
	sub, err := e.client.Realtime.Subscribe(ctx, backend.Topic{Table: backend.TableCells, Event: backend.EventAll}, e.onChange)
	if err != nil {
		return dataErr("subscribe notes", err)
	}
	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()

	cells, err := e.client.Store.Cells().List(ctx)
	if err != nil {
		return dataErr("load notes", err)
	}
	e.mu.Lock()
	e.saved = make(map[string]string, len(cells))
	if len(cells) == 0 {
		now := e.Now().UTC()
		for i, content := range seedCells {
			cells = append(cells, models.NoteCell{ID: uuid.NewString(), Content: content, Order: i + 1, UpdatedAt: now})
		}
	} else {
		for _, c := range cells {
			e.saved[c.ID] = c.Content
		}
	}
	e.cells = cells
	e.focus = ""
	e.mu.Unlock()
	e.publish()
	return nil
}

// Stop releases the subscription.
func (e *NotesEditor) Stop() {
	e.release()
	e.mu.Lock()
	e.cells = nil
	e.focus = ""
	e.saved = make(map[string]string)
	e.mu.Unlock()
}

func (e *NotesEditor) release() {
	e.mu.Lock()
	old := e.sub
	e.sub = nil
	e.mu.Unlock()
	if old != nil {
		old.Unsubscribe()
	}
}

func (e *NotesEditor) Cells() []models.NoteCell {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.NoteCell, len(e.cells))
	copy(out, e.cells)
	return out
}

func (e *NotesEditor) Focused() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focus
}

func (e *NotesEditor) snapshot() NotesEvent {
	out := make([]models.NoteCell, len(e.cells))
	copy(out, e.cells)
	return NotesEvent{Cells: out, Focus: e.focus}
}

func (e *NotesEditor) publish() {
	e.mu.Lock()
	ev := e.snapshot()
	e.mu.Unlock()
	e.emit(ev)
}

func (e *NotesEditor) indexOf(id string) int {
	for i := range e.cells {
		if e.cells[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *NotesEditor) sortCells() {
	sort.SliceStable(e.cells, func(i, j int) bool { return e.cells[i].Order < e.cells[j].Order })
}

func (e *NotesEditor) onChange(c backend.Change) {
	var cell models.NoteCell
	if err := c.Decode(&cell); err != nil || cell.ID == "" {
		log.Warn().Err(err).Str("event", string(c.Event)).Msg("decode cell change")
		return
	}
	e.mu.Lock()
	i := e.indexOf(cell.ID)
	switch c.Event {
	case backend.EventDelete:
		if i < 0 {
			e.mu.Unlock()
			return
		}
		e.cells = append(e.cells[:i], e.cells[i+1:]...)
		delete(e.saved, cell.ID)
		if e.focus == cell.ID {
			e.focus = ""
			if len(e.cells) > 0 {
				e.focus = e.cells[min(i, len(e.cells)-1)].ID
			}
		}
	default:
		if i >= 0 {
			if cell.UpdatedAt.Before(e.cells[i].UpdatedAt) {
				e.mu.Unlock()
				return
			}
			e.cells[i] = cell
		} else {
			e.cells = append(e.cells, cell)
		}
		e.saved[cell.ID] = cell.Content
		e.sortCells()
	}
	ev := e.snapshot()
	e.mu.Unlock()
	e.emit(ev)
}

// Focus moves the cursor to id, saving the previously focused cell.
func (e *NotesEditor) Focus(ctx context.Context, id string) error {
	e.mu.Lock()
	if e.indexOf(id) < 0 {
		e.mu.Unlock()
		return &ValidationError{Field: "cell_id", Message: "no such cell"}
	}
	prev := e.focus
	e.mu.Unlock()

	var err error
	if prev != "" && prev != id {
		err = e.save(ctx, prev)
	}
	e.mu.Lock()
	e.focus = id
	e.mu.Unlock()
	e.publish()
	return err
}

// Edit replaces the content of a cell locally. It is saved on blur.
func (e *NotesEditor) Edit(id, content string) error {
	e.mu.Lock()
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return &ValidationError{Field: "cell_id", Message: "no such cell"}
	}
	e.cells[i].Content = content
	e.cells[i].UpdatedAt = e.Now().UTC()
	e.focus = id
	e.mu.Unlock()
	return nil
}

// Blur saves the focused cell if its content differs from the last saved
// value, then clears focus.
func (e *NotesEditor) Blur(ctx context.Context) error {
	id := e.Focused()
	if id == "" {
		return nil
	}
	err := e.save(ctx, id)
	e.mu.Lock()
	if e.focus == id {
		e.focus = ""
	}
	e.mu.Unlock()
	e.publish()
	return err
}

func (e *NotesEditor) save(ctx context.Context, id string) error {
	e.mu.Lock()
	i := e.indexOf(id)
	if i < 0 {
		e.mu.Unlock()
		return nil
	}
	cell := e.cells[i]
	if last, ok := e.saved[id]; ok && last == cell.Content {
		e.mu.Unlock()
		return nil
	}
	cell.UpdatedAt = e.Now().UTC()
	e.cells[i].UpdatedAt = cell.UpdatedAt
	e.mu.Unlock()

	if err := e.client.Store.Cells().Upsert(ctx, cell); err != nil {
		return dataErr("save note", err)
	}
	e.mu.Lock()
	e.saved[id] = cell.Content
	e.mu.Unlock()
	return nil
}

// ShiftEnter inserts a newline into the focused cell.
func (e *NotesEditor) ShiftEnter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexOf(e.focus)
	if i < 0 {
		return &ValidationError{Field: "cell_id", Message: "no cell focused"}
	}
	e.cells[i].Content += "\n"
	e.cells[i].UpdatedAt = e.Now().UTC()
	return nil
}

// Enter saves the focused cell and moves to the next empty cell after it, or
// appends a new cell when there is none. The new cell is shown immediately and
// removed again if it cannot be saved.
func (e *NotesEditor) Enter(ctx context.Context) error {
	cur := e.Focused()
	var saveErr error
	if cur != "" {
		saveErr = e.save(ctx, cur)
	}

	e.mu.Lock()
	start := e.indexOf(cur) + 1
	for j := start; j < len(e.cells); j++ {
		if strings.TrimSpace(e.cells[j].Content) == "" {
			e.focus = e.cells[j].ID
			e.mu.Unlock()
			e.publish()
			return saveErr
		}
	}
	maxOrder := 0
	for _, c := range e.cells {
		maxOrder = max(maxOrder, c.Order)
	}
	cell := models.NoteCell{ID: uuid.NewString(), Order: maxOrder + 1, UpdatedAt: e.Now().UTC()}
	e.cells = append(e.cells, cell)
	e.saved[cell.ID] = ""
	e.focus = cell.ID
	e.mu.Unlock()
	e.publish()

	if err := e.client.Store.Cells().Upsert(ctx, cell); err != nil {
		e.mu.Lock()
		if i := e.indexOf(cell.ID); i >= 0 {
			e.cells = append(e.cells[:i], e.cells[i+1:]...)
		}
		delete(e.saved, cell.ID)
		if e.focus == cell.ID {
			e.focus = cur
		}
		e.mu.Unlock()
		e.publish()
		return dataErr("create note", err)
	}
	return saveErr
}

// ArrowUp focuses the previous cell.
func (e *NotesEditor) ArrowUp(ctx context.Context) error { return e.step(ctx, -1) }

// ArrowDown focuses the next cell.
func (e *NotesEditor) ArrowDown(ctx context.Context) error { return e.step(ctx, 1) }

func (e *NotesEditor) step(ctx context.Context, delta int) error {
	e.mu.Lock()
	if len(e.cells) == 0 {
		e.mu.Unlock()
		return nil
	}
	i := e.indexOf(e.focus)
	var next int
	switch {
	case i < 0 && delta > 0:
		next = 0
	case i < 0:
		next = len(e.cells) - 1
	default:
		next = min(max(i+delta, 0), len(e.cells)-1)
	}
	id := e.cells[next].ID
	e.mu.Unlock()
	return e.Focus(ctx, id)
}

// CtrlDelete deletes the focused cell. A non-empty cell needs confirmed; the
// only remaining cell is never deleted.
func (e *NotesEditor) CtrlDelete(ctx context.Context, confirmed bool) error {
	e.mu.Lock()
	i := e.indexOf(e.focus)
	if i < 0 {
		e.mu.Unlock()
		return &ValidationError{Field: "cell_id", Message: "no cell focused"}
	}
	if len(e.cells) <= 1 {
		e.mu.Unlock()
		return ErrLastCell
	}
	cell := e.cells[i]
	e.mu.Unlock()
	if strings.TrimSpace(cell.Content) != "" && !confirmed {
		return ErrConfirmationRequired
	}

	if err := e.client.Store.Cells().Delete(ctx, cell.ID); err != nil {
		return dataErr("delete note", err)
	}
	e.mu.Lock()
	if j := e.indexOf(cell.ID); j >= 0 {
		e.cells = append(e.cells[:j], e.cells[j+1:]...)
	}
	delete(e.saved, cell.ID)
	if len(e.cells) > 0 {
		e.focus = e.cells[min(i, len(e.cells)-1)].ID
	} else {
		e.focus = ""
	}
	e.mu.Unlock()
	e.publish()
	return nil
}

// Reorder moves dragged to the position of target and renumbers every cell
// 1..N, persisting the whole set in one write. The previous order is restored
// if the write fails.
func (e *NotesEditor) Reorder(ctx context.Context, dragged, target string) error {
	e.mu.Lock()
	from, to := e.indexOf(dragged), e.indexOf(target)
	if from < 0 || to < 0 {
		e.mu.Unlock()
		return &ValidationError{Field: "cell_id", Message: "no such cell"}
	}
	if from == to {
		e.mu.Unlock()
		return nil
	}
	prev := make([]models.NoteCell, len(e.cells))
	copy(prev, e.cells)

	moved := e.cells[from]
	rest := append(append([]models.NoteCell{}, e.cells[:from]...), e.cells[from+1:]...)
	next := make([]models.NoteCell, 0, len(e.cells))
	next = append(next, rest[:to]...)
	next = append(next, moved)
	next = append(next, rest[to:]...)

	now := e.Now().UTC()
	for i := range next {
		next[i].Order = i + 1
		next[i].UpdatedAt = now
	}
	e.cells = next
	batch := make([]models.NoteCell, len(next))
	copy(batch, next)
	e.mu.Unlock()
	e.publish()

	if err := e.client.Store.Cells().Upsert(ctx, batch...); err != nil {
		e.mu.Lock()
		e.cells = prev
		e.mu.Unlock()
		e.publish()
		return dataErr("reorder notes", err)
	}
	e.mu.Lock()
	for _, c := range batch {
		e.saved[c.ID] = c.Content
	}
	e.mu.Unlock()
	return nil
}
