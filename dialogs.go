package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"linescale-gui/internal/comm"
	"linescale-gui/internal/config"
	"linescale-gui/internal/export"
)

const (
	bleScanDuration = 5 * time.Second
	bleDialTimeout  = 10 * time.Second
)

const (
	transportSerialLabel = "Serial"
	transportBLELabel    = "Bluetooth"
)

func (mw *MainWindow) showConnectDialog() {
	transport := widget.NewRadioGroup([]string{transportSerialLabel, transportBLELabel}, nil)
	transport.Horizontal = true

	// Serial
	portSelect := widget.NewSelect([]string{}, nil)
	portSelect.PlaceHolder = "Select port"
	refreshPorts := func() {
		ports := comm.AvailablePorts()
		portSelect.Options = ports
		portSelect.ClearSelected()
		for _, p := range ports {
			if p == mw.settings.Port {
				portSelect.SetSelected(p)
			}
		}
		if portSelect.Selected == "" && len(ports) > 0 {
			portSelect.SetSelected(ports[0])
		}
		portSelect.Refresh()
	}
	refreshPorts()
	refreshBtn := widget.NewButton("Refresh", refreshPorts)

	baudRates := make([]string, len(comm.BaudRates))
	for i, b := range comm.BaudRates {
		baudRates[i] = strconv.Itoa(b)
	}
	baudSelect := widget.NewSelect(baudRates, nil)
	baudSelect.SetSelected(strconv.Itoa(mw.settings.BaudRate))

	// Bluetooth
	bleAddrs := map[string]string{} // option label -> address
	bleSelect := widget.NewSelect([]string{}, nil)
	bleSelect.PlaceHolder = "Scan for devices"
	if addr := mw.settings.BLEAddress; addr != "" {
		bleAddrs[addr] = addr
		bleSelect.Options = []string{addr}
		bleSelect.SetSelected(addr)
	}
	scanBtn := widget.NewButton("Scan", nil)
	scanBtn.OnTapped = func() {
		scanBtn.Disable()
		go func() {
			devices, err := mw.scanBLE()
			fyne.Do(func() {
				scanBtn.Enable()
				if err != nil {
					dialog.ShowError(fmt.Errorf("bluetooth scan failed: %w", err), mw.window)
					return
				}
				options := make([]string, 0, len(devices))
				for _, d := range devices {
					label := fmt.Sprintf("%s (%s, %d dBm)", d.Name, d.Addr, d.RSSI)
					bleAddrs[label] = d.Addr
					options = append(options, label)
				}
				bleSelect.Options = options
				if len(options) > 0 {
					bleSelect.SetSelected(options[0])
				}
				bleSelect.Refresh()
				mw.notes.Push(fmt.Sprintf("Found %d bluetooth device(s)", len(devices)))
			})
		}()
	}

	transport.OnChanged = func(selected string) {
		serial := selected != transportBLELabel
		setEnabled(portSelect, serial)
		setEnabled(refreshBtn, serial)
		setEnabled(baudSelect, serial)
		setEnabled(bleSelect, !serial)
		setEnabled(scanBtn, !serial)
	}
	if mw.settings.Transport == config.TransportBLE {
		transport.SetSelected(transportBLELabel)
	} else {
		transport.SetSelected(transportSerialLabel)
	}

	form := widget.NewForm(
		widget.NewFormItem("Link", transport),
		widget.NewFormItem("Port", container.NewHBox(portSelect, refreshBtn)),
		widget.NewFormItem("Baud", baudSelect),
		widget.NewFormItem("Device", container.NewHBox(bleSelect, scanBtn)),
	)

	dialog.ShowCustomConfirm("Connect", "Connect", "Cancel", form, func(confirmed bool) {
		if !confirmed {
			return
		}

		if transport.Selected == transportBLELabel {
			addr := bleAddrs[bleSelect.Selected]
			if addr == "" {
				dialog.ShowError(fmt.Errorf("no bluetooth device selected"), mw.window)
				return
			}
			mw.settings.Transport = config.TransportBLE
			mw.settings.BLEAddress = addr
			mw.saveSettings()
			go mw.connectBLE(addr)
			return
		}

		portName := portSelect.Selected
		if portName == "" {
			dialog.ShowError(fmt.Errorf("no serial port selected"), mw.window)
			return
		}
		baudRate, err := strconv.Atoi(baudSelect.Selected)
		if err != nil {
			dialog.ShowError(fmt.Errorf("invalid baud rate: %s", baudSelect.Selected), mw.window)
			return
		}
		mw.settings.Transport = config.TransportSerial
		mw.settings.Port = portName
		mw.settings.BaudRate = baudRate
		mw.saveSettings()
		go mw.connectSerial(portName, baudRate)
	}, mw.window)
}

func (mw *MainWindow) connectSerial(portName string, baudRate int) {
	mw.notes.Push(fmt.Sprintf("Connecting to %s at %d baud", portName, baudRate))
	t, err := comm.OpenSerial(portName, baudRate)
	if err != nil {
		mw.connectFailed(err)
		return
	}
	if err := mw.comm.Connect(t); err != nil {
		t.Close()
		mw.connectFailed(err)
	}
}

func (mw *MainWindow) connectBLE(addr string) {
	mw.notes.Push("Connecting to bluetooth device " + addr)
	if err := mw.ensureBLE(); err != nil {
		mw.connectFailed(err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), bleDialTimeout)
	defer cancel()
	t, err := comm.DialBLE(ctx, addr)
	if err != nil {
		mw.connectFailed(err)
		return
	}
	if err := mw.comm.Connect(t); err != nil {
		t.Close()
		mw.connectFailed(err)
	}
}

func (mw *MainWindow) connectFailed(err error) {
	mw.notes.Warn("Connection failed: " + err.Error())
	fyne.Do(func() {
		dialog.ShowError(fmt.Errorf("failed to connect: %w", err), mw.window)
	})
}

func (mw *MainWindow) ensureBLE() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.bleOpen {
		return nil
	}
	if err := comm.OpenBLE(); err != nil {
		return err
	}
	mw.bleOpen = true
	return nil
}

func (mw *MainWindow) scanBLE() ([]comm.BLEDevice, error) {
	if err := mw.ensureBLE(); err != nil {
		return nil, err
	}
	return comm.ScanBLE(context.Background(), bleScanDuration)
}

func (mw *MainWindow) showExportDialog() {
	if mw.rec.Len() == 0 {
		dialog.ShowInformation("Export", "No data to export.", mw.window)
		return
	}

	filterByTime := widget.NewCheck("Filter by time range", nil)

	startEntry := widget.NewEntry()
	startEntry.SetPlaceHolder("Start (HH:MM:SS)")
	startEntry.Disable()

	endEntry := widget.NewEntry()
	endEntry.SetPlaceHolder("End (HH:MM:SS)")
	endEntry.Disable()

	filterByTime.OnChanged = func(checked bool) {
		setEnabled(startEntry, checked)
		setEnabled(endEntry, checked)
	}

	headers := newHeaderPicker(mw)

	items := []*widget.FormItem{
		widget.NewFormItem("Time Filter", filterByTime),
		widget.NewFormItem("Start", startEntry),
		widget.NewFormItem("End", endEntry),
	}
	form := widget.NewForm(append(items, headers.formItems()...)...)

	dialog.ShowCustomConfirm("Export CSV Options", "Export", "Cancel", form, func(confirmed bool) {
		if !confirmed {
			return
		}

		opts := export.CSVOptions{FilterByTime: filterByTime.Checked}
		if filterByTime.Checked {
			now := time.Now()
			start, err := parseClock(startEntry.Text, now)
			if err != nil {
				dialog.ShowError(fmt.Errorf("invalid start time format (use HH:MM:SS): %s", startEntry.Text), mw.window)
				return
			}
			end, err := parseClock(endEntry.Text, now)
			if err != nil {
				dialog.ShowError(fmt.Errorf("invalid end time format (use HH:MM:SS): %s", endEntry.Text), mw.window)
				return
			}
			if end.IsZero() {
				// No end time specified, include everything up to now
				end = now
			}
			opts.StartTime, opts.EndTime = start, end
		}

		header, err := headers.header()
		if err != nil {
			dialog.ShowError(fmt.Errorf("invalid header: %w", err), mw.window)
			return
		}
		opts.CustomHeader = header

		fd := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
			if err != nil || writer == nil {
				return
			}
			writer.Close()

			readings := mw.rec.Snapshot()
			if err := export.CSVFile(localPath(writer.URI().Path()), readings, opts); err != nil {
				dialog.ShowError(err, mw.window)
				return
			}
			mw.notes.Push(fmt.Sprintf("Exported %d readings", len(readings)))
			dialog.ShowInformation("Export", fmt.Sprintf("Exported %d readings to CSV.", len(readings)), mw.window)
		}, mw.window)
		fd.SetFileName(fmt.Sprintf("linescale_%s.csv", mw.rec.ID().String()[:8]))
		fd.Show()
	}, mw.window)
}

func (mw *MainWindow) saveTemplates() {
	if err := config.SaveTemplates(mw.configDir, mw.savedTemplates); err != nil {
		mw.logger.WithError(err).Warn("saving header templates")
	}
}

// parseClock turns HH:MM:SS into a time on the day of now. Empty text gives
// the zero time.
func parseClock(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("15:04:05", text)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local), nil
}

// localPath strips the leading slash Fyne puts before Windows drive letters.
func localPath(p string) string {
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return p
}
