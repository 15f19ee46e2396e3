package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// Palette is offered as color swatches in the toolbar.
var Palette = []string{"#ff6600", "#e11d48", "#16a34a", "#2563eb", "#facc15", "#111827"}

// Actions are the toolbar commands that act on the session rather than on
// the board itself.
type Actions struct {
	Undo      func()
	Redo      func()
	Delete    func()
	ShareView func()
	Export    func()
	Color     func(hex string)
}

type colorSwatch struct {
	widget.BaseWidget
	Hex      string
	OnTapped func(hex string)
}

func newColorSwatch(hex string, tapped func(string)) *colorSwatch {
	s := &colorSwatch{Hex: hex, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(parseColor(s.Hex, color.Black))
	rect.SetMinSize(fyne.NewSize(24, 24))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Hex)
	}
}

func call(fn func()) func() {
	return func() {
		if fn != nil {
			fn()
		}
	}
}

func NewToolbar(board *Board, actions Actions) fyne.CanvasObject {
	tools := widget.NewToolbar(
		widget.NewToolbarAction(theme.ViewFullScreenIcon(), func() { board.SetTool(ToolPan) }),
		widget.NewToolbarAction(theme.RadioButtonCheckedIcon(), func() { board.SetTool(ToolClick) }),
		widget.NewToolbarAction(theme.InfoIcon(), func() { board.SetTool(ToolMarker) }),
		widget.NewToolbarAction(theme.DocumentCreateIcon(), func() { board.SetTool(ToolPolyline) }),
		widget.NewToolbarAction(theme.CheckButtonIcon(), func() { board.SetTool(ToolRectangle) }),
		widget.NewToolbarAction(theme.SettingsIcon(), func() { board.SetTool(ToolEdit) }),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ContentUndoIcon(), call(actions.Undo)),
		widget.NewToolbarAction(theme.ContentRedoIcon(), call(actions.Redo)),
		widget.NewToolbarAction(theme.DeleteIcon(), call(actions.Delete)),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.MediaReplayIcon(), call(actions.ShareView)),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), call(actions.Export)),
	)

	onColorTapped := func(hex string) {
		board.SetColor(hex)
		if actions.Color != nil {
			actions.Color(hex)
		}
	}
	swatches := make([]fyne.CanvasObject, 0, len(Palette))
	for _, hex := range Palette {
		swatches = append(swatches, newColorSwatch(hex, onColorTapped))
	}

	return container.NewHBox(
		widget.NewLabel("Tool:"),
		tools,
		widget.NewSeparator(),
		widget.NewLabel("Color:"),
		container.NewHBox(swatches...),
		layout.NewSpacer(),
	)
}
