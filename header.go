package main

import (
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"linescale-gui/internal/config"
	"linescale-gui/internal/export"
)

const (
	headerDefault  = "Default"
	headerTemplate = "Template"
	headerCustom   = "Custom"
	headerFile     = "File"
)

// headerPicker chooses the CSV header row for an export. Saved templates are
// shared with the main window, edits are written back to the config dir.
type headerPicker struct {
	mw       *MainWindow
	source   *widget.RadioGroup
	template *widget.Select
	custom   *widget.Entry
	save     *widget.Button
	remove   *widget.Button
	browse   *widget.Button
	fileName *widget.Label
	filePath string
}

func newHeaderPicker(mw *MainWindow) *headerPicker {
	h := &headerPicker{mw: mw}

	h.template = widget.NewSelect(mw.savedTemplates, func(s string) {
		h.custom.SetText(s)
	})
	h.template.PlaceHolder = "Saved templates"

	h.custom = widget.NewEntry()
	h.custom.SetPlaceHolder(strings.Join(export.DefaultHeader, ","))

	h.save = widget.NewButton("Save", h.saveTemplate)
	h.remove = widget.NewButton("Delete", h.removeTemplate)

	h.fileName = widget.NewLabel("No file selected")
	h.browse = widget.NewButton("Browse...", h.pickFile)

	h.source = widget.NewRadioGroup([]string{headerDefault, headerTemplate, headerCustom, headerFile}, h.sourceChanged)
	h.source.Horizontal = true
	h.source.SetSelected(headerDefault)
	return h
}

func (h *headerPicker) formItems() []*widget.FormItem {
	return []*widget.FormItem{
		widget.NewFormItem("Header", h.source),
		widget.NewFormItem("Template", container.NewHBox(h.template, h.remove)),
		widget.NewFormItem("Columns", container.NewBorder(nil, nil, nil, h.save, h.custom)),
		widget.NewFormItem("Header File", container.NewHBox(h.fileName, h.browse)),
	}
}

func (h *headerPicker) sourceChanged(source string) {
	setEnabled(h.template, source == headerTemplate)
	setEnabled(h.remove, source == headerTemplate)
	setEnabled(h.custom, source == headerCustom)
	setEnabled(h.save, source == headerCustom)
	setEnabled(h.browse, source == headerFile)
}

// header returns the selected header row, nil for the default one.
func (h *headerPicker) header() ([]string, error) {
	var header []string
	switch h.source.Selected {
	case headerTemplate, headerCustom:
		header = export.SplitHeader(h.custom.Text)
	case headerFile:
		if h.filePath == "" {
			return nil, nil
		}
		var err error
		if header, err = export.ParseCustomHeader(h.filePath); err != nil {
			return nil, err
		}
	}
	return header, export.CheckHeader(header)
}

func (h *headerPicker) saveTemplate() {
	fields := export.SplitHeader(h.custom.Text)
	if err := export.CheckHeader(fields); err != nil {
		dialog.ShowError(err, h.mw.window)
		return
	}
	text := strings.Join(fields, ",")
	templates, added := config.AddTemplate(h.mw.savedTemplates, text)
	if !added {
		dialog.ShowInformation("Template", "Enter a new header first.", h.mw.window)
		return
	}
	h.setTemplates(templates)
	h.mw.notes.Push("Saved header template " + text)
}

func (h *headerPicker) removeTemplate() {
	sel := h.template.Selected
	if sel == "" {
		return
	}
	h.setTemplates(config.RemoveTemplate(h.mw.savedTemplates, sel))
	h.template.ClearSelected()
	h.custom.SetText("")
}

func (h *headerPicker) setTemplates(templates []string) {
	h.mw.savedTemplates = templates
	h.mw.saveTemplates()
	h.template.Options = templates
	h.template.Refresh()
}

func (h *headerPicker) pickFile() {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		defer reader.Close()
		h.filePath = localPath(reader.URI().Path())
		h.fileName.SetText(reader.URI().Name())
	}, h.mw.window)
	fd.Show()
}
