package main

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"linescale-gui/internal/comm"
	"linescale-gui/internal/config"
	"linescale-gui/internal/metrics"
	"linescale-gui/internal/notification"
	"linescale-gui/internal/protocol"
	"linescale-gui/internal/recording"
	"linescale-gui/internal/session"
)

const projectURL = "https://github.com/linescaleGUI/linescaleGUI"

const (
	plotWindow   = 30 * time.Second
	plotInterval = 100 * time.Millisecond
)

var unitCommands = map[string]protocol.Command{
	"kN":  protocol.UnitKN,
	"kgf": protocol.UnitKgf,
	"lbf": protocol.UnitLbf,
}

var speedCommands = map[string]protocol.Command{
	"10 Hz": protocol.SpeedSlow,
	"40 Hz": protocol.SpeedFast,
}

// MainWindow holds all UI state and widgets.
type MainWindow struct {
	app     fyne.App
	window  fyne.Window
	comm    *comm.Master
	ctrl    *session.Controller
	notes   *notification.Log
	rec     *recording.Buffer
	metrics *metrics.Collectors
	logger  *log.Entry

	// Widgets
	connectBtn    *widget.Button
	disconnectBtn *widget.Button
	startStopBtn  *widget.Button
	resetPeakBtn  *widget.Button
	clearBtn      *widget.Button
	exportBtn     *widget.Button
	showLogChk    *widget.Check
	unitSelect    *widget.Select
	speedSelect   *widget.Select
	zeroBtn       *widget.Button
	currentText   *canvas.Text
	peakText      *canvas.Text
	statusLabel   *widget.Label
	logList       *widget.List
	logPanel      fyne.CanvasObject
	plot          *forcePlot
	debug         *debugWindow

	// State
	mu             sync.Mutex
	logLines       []string
	configDir      string
	settings       config.Settings
	savedTemplates []string
	bleOpen        bool
	done           chan struct{}
	closeOnce      sync.Once
}

func NewMainWindow(a fyne.App, w fyne.Window, master *comm.Master, col *metrics.Collectors, configDir string, settings config.Settings) *MainWindow {
	templates, err := config.LoadTemplates(configDir)
	if err != nil {
		log.WithError(err).Warn("loading header templates")
	}
	mw := &MainWindow{
		app:            a,
		window:         w,
		comm:           master,
		notes:          notification.New(0, log.WithField("component", "notification")),
		rec:            recording.NewBuffer(recording.DefaultMaxReadings),
		metrics:        col,
		logger:         log.WithField("component", "ui"),
		configDir:      configDir,
		settings:       settings,
		savedTemplates: templates,
		done:           make(chan struct{}),
	}
	mw.ctrl = session.New(session.Config{
		Sender:   master,
		Notifier: mw.notes,
		View:     mw,
		Logger:   log.WithField("component", "session"),
	})
	mw.build()
	mw.wire()

	// Init controls, deactivate actions that require a connected device
	mw.ctrl.SetConnected(master.IsConnected())
	mw.setLogVisible(settings.ShowLog)
	return mw
}

func (mw *MainWindow) build() {
	mw.connectBtn = widget.NewButtonWithIcon("Connect", theme.LoginIcon(), func() {
		mw.showConnectDialog()
	})
	mw.disconnectBtn = widget.NewButtonWithIcon("Disconnect", theme.LogoutIcon(), func() {
		mw.comm.RemoveConnection()
	})
	mw.startStopBtn = widget.NewButtonWithIcon("Start/Stop", theme.MediaPlayIcon(), func() {
		mw.ctrl.Trigger()
	})

	mw.currentText = canvas.NewText("0.00 kN", theme.Color(theme.ColorNameForeground))
	mw.currentText.TextSize = 36
	mw.currentText.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	mw.peakText = canvas.NewText("0.00 kN", theme.Color(theme.ColorNamePrimary))
	mw.peakText.TextSize = 28
	mw.peakText.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}

	mw.resetPeakBtn = widget.NewButton("Reset peak", func() {
		mw.ctrl.ResetPeak()
	})

	// Connection panel, only usable with a device attached
	mw.unitSelect = widget.NewSelect([]string{"kN", "kgf", "lbf"}, func(s string) {
		if cmd, ok := unitCommands[s]; ok {
			mw.send(cmd)
		}
	})
	mw.unitSelect.PlaceHolder = "Unit"
	mw.speedSelect = widget.NewSelect([]string{"10 Hz", "40 Hz"}, func(s string) {
		if cmd, ok := speedCommands[s]; ok {
			mw.send(cmd)
		}
	})
	mw.speedSelect.PlaceHolder = "Speed"
	mw.zeroBtn = widget.NewButton("Zero", func() {
		mw.send(protocol.ZeroAbsolute)
	})

	mw.clearBtn = widget.NewButton("Clear", func() {
		mw.rec.Reset()
		mw.plot.redraw()
	})
	mw.exportBtn = widget.NewButton("Export CSV", func() {
		mw.showExportDialog()
	})
	mw.showLogChk = widget.NewCheck("Show log", func(checked bool) {
		mw.setLogVisible(checked)
	})

	mw.statusLabel = widget.NewLabel("Not connected")

	mw.logList = widget.NewList(
		func() int {
			mw.mu.Lock()
			defer mw.mu.Unlock()
			return len(mw.logLines)
		},
		func() fyne.CanvasObject {
			label := widget.NewLabel("")
			label.TextStyle = fyne.TextStyle{Monospace: true}
			return label
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			mw.mu.Lock()
			var text string
			if id < len(mw.logLines) {
				text = mw.logLines[id]
			}
			mw.mu.Unlock()
			obj.(*widget.Label).SetText(text)
		},
	)

	mw.plot = newForcePlot(mw.rec, plotWindow)
	mw.debug = newDebugWindow(mw.app, mw.comm, mw.notes)

	// Layout
	toolbar := container.NewHBox(
		mw.connectBtn,
		mw.disconnectBtn,
		mw.startStopBtn,
		layout.NewSpacer(),
		mw.showLogChk,
		mw.clearBtn,
		mw.exportBtn,
	)

	readings := container.NewVBox(
		widget.NewLabel("Current"),
		mw.currentText,
		widget.NewLabel("Peak"),
		mw.peakText,
		mw.resetPeakBtn,
		widget.NewSeparator(),
		widget.NewLabel("Device"),
		mw.unitSelect,
		mw.speedSelect,
		mw.zeroBtn,
	)

	mw.logPanel = container.New(&fixedHeight{height: 140}, mw.logList)

	center := container.NewBorder(nil, mw.logPanel, nil, readings, mw.plot.CanvasObject())
	content := container.NewBorder(toolbar, mw.statusLabel, nil, nil, center)
	mw.window.SetContent(content)
	mw.window.SetMainMenu(mw.buildMenu())
}

func (mw *MainWindow) buildMenu() *fyne.MainMenu {
	file := fyne.NewMenu("File",
		fyne.NewMenuItem("Export CSV...", mw.showExportDialog),
	)
	tools := fyne.NewMenu("Tools",
		fyne.NewMenuItem("Debug", mw.debug.Show),
	)
	help := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mw.showAbout),
		fyne.NewMenuItem("GitHub", mw.openGitHubLink),
	)
	return fyne.NewMainMenu(file, tools, help)
}

// wire connects the communication master and the log to the window.
func (mw *MainWindow) wire() {
	mw.comm.OnForce(func(r protocol.Reading) {
		mw.rec.Add(r)
		mw.ctrl.ReceiveForce(r)
	})
	mw.comm.OnStateChanged(func(connected bool) {
		mw.ctrl.SetConnected(connected)
		status := "Not connected"
		if connected {
			status = "Connected to " + mw.comm.ConnectionName()
			mw.notes.Push(status)
		} else {
			mw.notes.Push("Disconnected")
		}
		fyne.Do(func() { mw.statusLabel.SetText(status) })
	})
	mw.comm.OnRaw(mw.debug.appendRaw)

	mw.ctrl.OnPeak(func(v float64) {
		if mw.metrics != nil {
			mw.metrics.Peak.Set(v)
		}
	})

	mw.notes.OnPush(func(e notification.Entry) {
		mw.mu.Lock()
		mw.logLines = append(mw.logLines, e.String())
		if len(mw.logLines) > 1000 {
			mw.logLines = mw.logLines[len(mw.logLines)-1000:]
		}
		count := len(mw.logLines)
		mw.mu.Unlock()

		fyne.Do(func() {
			mw.logList.Refresh()
			if count > 0 {
				mw.logList.ScrollToBottom()
			}
		})
	})

	go mw.runPlotTicker(mw.done)
}

// runPlotTicker redraws the plot while a device is connected, until done
// is closed.
func (mw *MainWindow) runPlotTicker(done <-chan struct{}) {
	ticker := time.NewTicker(plotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if mw.comm.IsConnected() {
				fyne.Do(mw.plot.redraw)
			}
		}
	}
}

// SetCurrent, SetPeak and SetControls render session state. They may be
// called from any goroutine.
func (mw *MainWindow) SetCurrent(text string) {
	fyne.Do(func() {
		mw.currentText.Text = text
		mw.currentText.Refresh()
	})
}

func (mw *MainWindow) SetPeak(text string) {
	fyne.Do(func() {
		mw.peakText.Text = text
		mw.peakText.Refresh()
	})
}

func (mw *MainWindow) SetControls(c session.Controls) {
	fyne.Do(func() {
		setEnabled(mw.connectBtn, c.Connect)
		setEnabled(mw.disconnectBtn, c.Disconnect)
		setEnabled(mw.startStopBtn, c.StartStop)
		setEnabled(mw.unitSelect, c.ConnectionPanel)
		setEnabled(mw.speedSelect, c.ConnectionPanel)
		setEnabled(mw.zeroBtn, c.ConnectionPanel)
	})
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}

func (mw *MainWindow) setLogVisible(visible bool) {
	if mw.showLogChk.Checked != visible {
		mw.showLogChk.SetChecked(visible)
		return // SetChecked calls back into setLogVisible
	}
	if visible {
		mw.logPanel.Show()
	} else {
		mw.logPanel.Hide()
	}
	if mw.settings.ShowLog != visible {
		mw.settings.ShowLog = visible
		mw.saveSettings()
	}
}

func (mw *MainWindow) send(cmd protocol.Command) {
	if err := mw.comm.SendData(cmd); err != nil {
		mw.notes.Warn(fmt.Sprintf("Failed to send %s: %s", cmd, err))
	}
}

func (mw *MainWindow) saveSettings() {
	if err := config.Save(mw.configDir, mw.settings); err != nil {
		mw.logger.WithError(err).Warn("saving settings")
	}
}

func (mw *MainWindow) openGitHubLink() {
	u, _ := url.Parse(projectURL)
	if err := mw.app.OpenURL(u); err != nil {
		dialog.ShowError(err, mw.window)
	}
}

func (mw *MainWindow) showAbout() {
	u, _ := url.Parse(projectURL)
	content := container.NewVBox(
		widget.NewLabel("LineScale GUI "+version),
		widget.NewLabel("Live force readings from a LineScale over USB or Bluetooth."),
		widget.NewHyperlink("Project page", u),
	)
	dialog.ShowCustom("About", "Close", content, mw.window)
}

// Close stops the plot ticker and tears down the device connection.
func (mw *MainWindow) Close() {
	mw.closeOnce.Do(func() { close(mw.done) })
	mw.comm.RemoveConnection()
	mw.mu.Lock()
	bleOpen := mw.bleOpen
	mw.mu.Unlock()
	if bleOpen {
		if err := comm.CloseBLE(); err != nil {
			mw.logger.WithError(err).Warn("closing bluetooth")
		}
	}
}

// fixedHeight lays out its objects at full width and a fixed height.
type fixedHeight struct {
	height float32
}

func (f *fixedHeight) Layout(objects []fyne.CanvasObject, size fyne.Size) {
	for _, o := range objects {
		o.Move(fyne.NewPos(0, 0))
		o.Resize(size)
	}
}

func (f *fixedHeight) MinSize(objects []fyne.CanvasObject) fyne.Size {
	var w float32
	for _, o := range objects {
		if m := o.MinSize(); m.Width > w {
			w = m.Width
		}
	}
	return fyne.NewSize(w, f.height)
}
