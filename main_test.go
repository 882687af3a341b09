package main

import (
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linescale-gui/internal/comm"
	"linescale-gui/internal/protocol"
)

func TestPlotPoints(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 10 * time.Second
	size := fyne.NewSize(100, 100)
	at := func(d time.Duration, v float64) protocol.Reading {
		return protocol.Reading{At: now.Add(-window + d), Value: v}
	}

	tests := []struct {
		name     string
		readings []protocol.Reading
		window   time.Duration
		want     []fyne.Position
	}{
		{name: "empty", window: window},
		{name: "no window", readings: []protocol.Reading{at(0, 1)}},
		{
			name:     "flat at zero",
			readings: []protocol.Reading{at(0, 0), at(window, 0)},
			window:   window,
			want:     []fyne.Position{{X: 0, Y: 95.45}, {X: 100, Y: 95.45}},
		},
		{
			name:     "negative",
			readings: []protocol.Reading{at(0, -2), at(window/2, 2)},
			window:   window,
			want:     []fyne.Position{{X: 0, Y: 95.45}, {X: 50, Y: 4.55}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plotPoints(tt.readings, now, tt.window, size)
			require.Len(t, got, len(tt.want))
			for i, p := range got {
				assert.InDelta(t, tt.want[i].X, p.X, 0.01, "x[%d]", i)
				assert.InDelta(t, tt.want[i].Y, p.Y, 0.01, "y[%d]", i)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

	got, err := parseClock(" 08:30:15 ", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 30, 15, 0, time.Local), got)

	got, err = parseClock("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseClock("8h30", now)
	assert.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/C:/Users/me/run.csv", "C:/Users/me/run.csv"},
		{"/home/me/run.csv", "/home/me/run.csv"},
		{"/C", "/C"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, localPath(tt.in), tt.in)
	}
}

func TestPlotTickerStopsOnClose(t *testing.T) {
	mw := &MainWindow{comm: comm.NewMaster(nil, nil), done: make(chan struct{})}

	exited := make(chan struct{})
	go func() {
		mw.runPlotTicker(mw.done)
		close(exited)
	}()

	mw.Close()
	mw.Close()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("plot ticker still running after close")
	}
}
