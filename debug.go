package main

import (
	"fmt"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"linescale-gui/internal/comm"
	"linescale-gui/internal/notification"
	"linescale-gui/internal/protocol"
)

const maxRawLines = 200

// debugWindow sends arbitrary commands and shows the raw bytes received.
type debugWindow struct {
	window  fyne.Window
	comm    *comm.Master
	notes   *notification.Log
	command *widget.Select
	raw     *widget.Entry
	pause   *widget.Check

	mu      sync.Mutex
	lines   []string
	visible bool
	paused  bool
}

func newDebugWindow(a fyne.App, master *comm.Master, notes *notification.Log) *debugWindow {
	d := &debugWindow{
		window: a.NewWindow("Debug"),
		comm:   master,
		notes:  notes,
	}

	names := make([]string, len(protocol.Commands))
	for i, c := range protocol.Commands {
		names[i] = c.String()
	}
	d.command = widget.NewSelect(names, nil)
	d.command.SetSelected(protocol.RequestOnline.String())

	sendBtn := widget.NewButton("Send", d.sendSelected)

	d.raw = widget.NewMultiLineEntry()
	d.raw.TextStyle = fyne.TextStyle{Monospace: true}
	d.raw.Wrapping = fyne.TextWrapOff

	d.pause = widget.NewCheck("Pause", func(checked bool) {
		d.mu.Lock()
		d.paused = checked
		d.mu.Unlock()
	})
	clearBtn := widget.NewButton("Clear", func() {
		d.mu.Lock()
		d.lines = nil
		d.mu.Unlock()
		d.raw.SetText("")
	})

	top := container.NewHBox(widget.NewLabel("Command:"), d.command, sendBtn, d.pause, clearBtn)
	d.window.SetContent(container.NewBorder(top, nil, nil, nil, d.raw))
	d.window.Resize(fyne.NewSize(600, 400))
	d.window.SetCloseIntercept(func() {
		d.mu.Lock()
		d.visible = false
		d.mu.Unlock()
		d.window.Hide()
	})
	return d
}

func (d *debugWindow) Show() {
	d.mu.Lock()
	d.visible = true
	text := strings.Join(d.lines, "\n")
	d.mu.Unlock()
	d.raw.SetText(text)
	d.window.Show()
}

func (d *debugWindow) sendSelected() {
	cmd, err := protocol.ParseCommand(d.command.Selected)
	if err != nil {
		d.notes.Warn(err.Error())
		return
	}
	if err := d.comm.SendData(cmd); err != nil {
		d.notes.Warn(fmt.Sprintf("Failed to send %s: %s", cmd, err))
		return
	}
	d.notes.Push("Sent " + cmd.String())
}

// appendRaw records a received chunk. It is called from the reader goroutine.
func (d *debugWindow) appendRaw(chunk []byte) {
	d.mu.Lock()
	if d.paused {
		d.mu.Unlock()
		return
	}
	d.lines = append(d.lines, fmt.Sprintf("% X  %q", chunk, chunk))
	if len(d.lines) > maxRawLines {
		d.lines = d.lines[len(d.lines)-maxRawLines:]
	}
	visible := d.visible
	var text string
	if visible {
		text = strings.Join(d.lines, "\n")
	}
	d.mu.Unlock()

	if visible {
		fyne.Do(func() { d.raw.SetText(text) })
	}
}
