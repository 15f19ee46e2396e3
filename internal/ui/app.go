package ui

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Window is the viewer: toolbar on top, board in the middle and a status
// line at the bottom.
type Window struct {
	fyne.Window
	Board  *Board
	status *widget.Label
}

func NewWindow(a fyne.App, title string, board *Board, actions Actions) *Window {
	w := &Window{
		Window: a.NewWindow(title),
		Board:  board,
		status: widget.NewLabel("Connecting..."),
	}
	w.Resize(fyne.NewSize(1024, 768))
	w.SetContent(container.NewBorder(NewToolbar(board, actions), w.status, nil, nil, board))
	return w
}

// SetStatus may be called from any goroutine.
func (w *Window) SetStatus(text string) {
	fyne.Do(func() { w.status.SetText(text) })
}

func (w *Window) Status() string { return w.status.Text }

// RunApp shows the viewer and blocks until it is closed. It must be called
// from the main goroutine.
func RunApp(title string, board *Board, actions Actions, started func(*Window)) {
	a := app.New()
	w := NewWindow(a, title, board, actions)
	if started != nil {
		started(w)
	}
	w.ShowAndRun()
}
