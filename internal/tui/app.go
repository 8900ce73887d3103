// internal/tui/app.go
//
// The terminal front end for a layer deck. It follows The Elm Architecture
// like every bubbletea program: the App holds the last status read from the
// workspace, Update turns keys, mouse events and workspace notifications into
// commands, and View renders the layer list, the paint order and the log.
//
// The App never touches the order engine directly. Every action is a tea.Cmd
// that calls the workspace, which runs the work on its own loop and blocks
// until it is done.

package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/layerdeck/internal/deck"
	"github.com/kingrea/layerdeck/internal/order"
	"github.com/kingrea/layerdeck/internal/surface"
)

const (
	defaultRefreshInterval = time.Second
	logPanelLines          = 8
	// listOriginY is the screen row of the first layer row: the header and
	// its margin, the pane border, then the pane title.
	listOriginY = 4
)

// Workspace is the part of *deck.Workspace the UI drives.
type Workspace interface {
	Status(ctx context.Context) (deck.Status, error)
	Drag(ctx context.Context, ev order.DragEvent) (order.Result, bool, error)
	Rebuild(ctx context.Context) (order.RebuildResult, error)
	Save(ctx context.Context) error
	RedrawCanvas(ctx context.Context, frame *surface.Frame) error
	OnOrderChanged(ctx context.Context, fn func(order.OrderChange)) (func(), error)
}

// LogTail supplies the most recent log lines. *logbook.Logbook satisfies it.
type LogTail interface {
	Tail(maxLines int) ([]string, int)
	Path() string
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogTail shows the tail of a log in the bottom panel.
func WithLogTail(tail LogTail) AppOption {
	return func(a *App) {
		if tail != nil {
			a.logTail = tail
		}
	}
}

// WithRefreshInterval overrides how often the status and log are re-read.
func WithRefreshInterval(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.refreshInterval = d
		}
	}
}

// WithTitle sets the header text, usually the document name.
func WithTitle(title string) AppOption {
	return func(a *App) {
		if title != "" {
			a.title = title
		}
	}
}

type statusRefreshMsg struct {
	status deck.Status
	err    error
}

type orderChangedMsg struct {
	change order.OrderChange
}

type actionDoneMsg struct {
	note   string
	follow string
	err    error
	// drag marks the end of a drag batch, freeing the queue for the next.
	drag bool
}

type tickMsg time.Time

// App is the main application model.
type App struct {
	ctx             context.Context
	ws              Workspace
	logTail         LogTail
	title           string
	refreshInterval time.Duration

	keys    keyMap
	help    help.Model
	logView viewport.Model

	status   deck.Status
	loaded   bool
	cursor   int
	follow   string
	lastSeq  uint64
	lastMode order.ChangeMode

	mouseDown bool
	mouseOver string

	// Drag events reach the workspace one batch at a time, in the order
	// Update produced them. dragBusy is set while a batch is in flight.
	dragQueue []order.DragEvent
	dragBusy  bool

	statusMsg string
	err       error

	width  int
	height int
}

// NewApp builds the model over ws. ctx bounds every workspace call.
func NewApp(ctx context.Context, ws Workspace, opts ...AppOption) *App {
	a := &App{
		ctx:             ctx,
		ws:              ws,
		title:           "layerdeck",
		refreshInterval: defaultRefreshInterval,
		keys:            defaultKeyMap(),
		help:            help.New(),
		logView:         viewport.New(80, logPanelLines),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Run starts the UI over ws and blocks until the user quits or ctx ends.
// The workspace loop must already be running.
func Run(ctx context.Context, ws Workspace, opts ...AppOption) error {
	app := NewApp(ctx, ws, opts...)
	program := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	unsubscribe, err := ws.OnOrderChanged(ctx, func(change order.OrderChange) {
		// Called on the workspace loop; never block it on the UI.
		go program.Send(orderChangedMsg{change: change})
	})
	if err != nil {
		return fmt.Errorf("tui: subscribe: %w", err)
	}
	defer unsubscribe()
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	a.refreshLog()
	return tea.Batch(a.fetchStatus(), a.scheduleRefresh())
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.logView.Width = max(20, msg.Width-4)
		return a, nil

	case statusRefreshMsg:
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.err = nil
		a.status = msg.status
		a.loaded = true
		a.placeCursor()
		return a, nil

	case orderChangedMsg:
		if msg.change.Seq <= a.lastSeq {
			return a, nil
		}
		a.lastSeq = msg.change.Seq
		a.lastMode = msg.change.Mode
		if msg.change.Mode == order.ChangeRebuild {
			a.statusMsg = fmt.Sprintf("Rebuilt order (%s)", msg.change.Trigger)
		}
		return a, a.fetchStatus()

	case actionDoneMsg:
		if msg.err != nil {
			a.err = msg.err
			a.statusMsg = ""
		} else if msg.note != "" {
			a.statusMsg = msg.note
		}
		if msg.follow != "" {
			a.follow = msg.follow
		}
		if msg.drag {
			a.dragBusy = false
			if msg.err != nil {
				a.dragQueue = nil
			}
			if next := a.sendDrags(); next != nil {
				return a, tea.Batch(next, a.fetchStatus())
			}
		}
		return a, a.fetchStatus()

	case tickMsg:
		a.refreshLog()
		return a, tea.Batch(a.fetchStatus(), a.scheduleRefresh())

	case tea.MouseMsg:
		return a, a.handleMouse(msg)

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit
	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
	case key.Matches(msg, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(msg, a.keys.Down):
		if a.cursor < len(a.status.Snapshot)-1 {
			a.cursor++
		}
	case key.Matches(msg, a.keys.MoveUp):
		return a, a.moveSelected(-1)
	case key.Matches(msg, a.keys.MoveDown):
		return a, a.moveSelected(1)
	case key.Matches(msg, a.keys.Cancel):
		if a.status.Dragging != "" {
			a.mouseDown = false
			a.mouseOver = ""
			return a, a.drag(order.DragEvent{Kind: order.DragEnd})
		}
	case key.Matches(msg, a.keys.Rebuild):
		a.statusMsg = "Rebuilding..."
		return a, a.rebuild()
	case key.Matches(msg, a.keys.Redraw):
		return a, a.redraw()
	case key.Matches(msg, a.keys.Save):
		return a, a.save()
	}
	return a, nil
}

// handleMouse maps left-button presses, motion and releases over the layer
// list onto drag events. The row under the pointer is the event's target.
func (a *App) handleMouse(msg tea.MouseMsg) tea.Cmd {
	row := a.rowAt(msg.X, msg.Y)
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || row == "" {
			return nil
		}
		a.mouseDown = true
		a.mouseOver = row
		a.cursor = a.indexOf(row)
		return a.drag(order.DragEvent{Kind: order.DragStart, RowID: row})
	case tea.MouseActionMotion:
		if !a.mouseDown || row == a.mouseOver {
			return nil
		}
		a.mouseOver = row
		return a.drag(order.DragEvent{Kind: order.DragOver, RowID: row})
	case tea.MouseActionRelease:
		if !a.mouseDown {
			return nil
		}
		a.mouseDown = false
		a.mouseOver = ""
		return a.drag(order.DragEvent{Kind: order.DragDrop, RowID: row})
	}
	return nil
}

// moveSelected swaps the selected row with its neighbour by running a whole
// drag onto it, so keyboard moves take the same path as mouse drags.
func (a *App) moveSelected(delta int) tea.Cmd {
	snapshot := a.status.Snapshot
	from := a.cursor
	to := from + delta
	if from < 0 || from >= len(snapshot) || to < 0 || to >= len(snapshot) {
		return nil
	}
	dragged, target := snapshot[from].ID, snapshot[to].ID
	a.follow = dragged
	return a.drag(
		order.DragEvent{Kind: order.DragStart, RowID: dragged},
		order.DragEvent{Kind: order.DragOver, RowID: target},
		order.DragEvent{Kind: order.DragDrop, RowID: target},
	)
}

// drag queues events for the workspace. Commands run on their own
// goroutines, so only one batch is ever in flight; the rest wait here until
// it reports back.
func (a *App) drag(events ...order.DragEvent) tea.Cmd {
	a.dragQueue = append(a.dragQueue, events...)
	return a.sendDrags()
}

func (a *App) sendDrags() tea.Cmd {
	if a.dragBusy || len(a.dragQueue) == 0 {
		return nil
	}
	events := a.dragQueue
	a.dragQueue = nil
	a.dragBusy = true
	ctx, ws := a.ctx, a.ws
	return func() tea.Msg {
		done := actionDoneMsg{drag: true}
		for _, ev := range events {
			result, committed, err := ws.Drag(ctx, ev)
			if err != nil {
				return actionDoneMsg{err: err, drag: true}
			}
			if committed {
				done.note = describeResult(result)
				done.follow = result.Dragged
			}
		}
		return done
	}
}

func (a *App) rebuild() tea.Cmd {
	ctx, ws := a.ctx, a.ws
	return func() tea.Msg {
		result, err := ws.Rebuild(ctx)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		note := fmt.Sprintf("Rebuilt %d row(s)", len(result.Rows))
		if n := len(result.Report.Issues); n > 0 {
			note += fmt.Sprintf(" · %d issue(s) remain", n)
		}
		return actionDoneMsg{note: note}
	}
}

func (a *App) redraw() tea.Cmd {
	ctx, ws := a.ctx, a.ws
	return func() tea.Msg {
		if err := ws.RedrawCanvas(ctx, nil); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{note: "Canvas redrawn"}
	}
}

func (a *App) save() tea.Cmd {
	ctx, ws := a.ctx, a.ws
	return func() tea.Msg {
		if err := ws.Save(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{note: "Saved"}
	}
}

func (a *App) fetchStatus() tea.Cmd {
	ctx, ws := a.ctx, a.ws
	return func() tea.Msg {
		st, err := ws.Status(ctx)
		return statusRefreshMsg{status: st, err: err}
	}
}

func (a *App) scheduleRefresh() tea.Cmd {
	return tea.Tick(a.refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) refreshLog() {
	if a.logTail == nil {
		return
	}
	lines, _ := a.logTail.Tail(logPanelLines * 4)
	a.logView.SetContent(joinLines(lines))
	a.logView.GotoBottom()
}

// placeCursor keeps the cursor on the followed row after a move and inside
// the list otherwise.
func (a *App) placeCursor() {
	if a.follow != "" {
		if idx := a.indexOf(a.follow); idx >= 0 {
			a.cursor = idx
		}
		a.follow = ""
	}
	if n := len(a.status.Snapshot); a.cursor >= n {
		a.cursor = n - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) indexOf(id string) int {
	for i, entry := range a.status.Snapshot {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

// rowAt returns the id of the layer row drawn at screen cell (x, y), empty
// when the cell is outside the list.
func (a *App) rowAt(x, y int) string {
	leftWidth, _ := a.paneWidths()
	if x < 0 || x >= leftWidth+2 {
		return ""
	}
	idx := y - listOriginY
	if idx < 0 || idx >= len(a.status.Snapshot) {
		return ""
	}
	return a.status.Snapshot[idx].ID
}

func describeResult(result order.Result) string {
	switch result.Applied {
	case order.AppliedFull:
		return fmt.Sprintf("Moved %s next to %s", result.Dragged, result.Target)
	case order.AppliedViewOnly:
		return fmt.Sprintf("Moved %s in the list only (%s) · rebuild scheduled", result.Dragged, result.Reason)
	default:
		if result.Reason != "" {
			return fmt.Sprintf("Move skipped: %s", result.Reason)
		}
		return "Move skipped"
	}
}
