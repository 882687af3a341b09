package main

import (
	"flag"
	"net/http"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"linescale-gui/internal/comm"
	"linescale-gui/internal/config"
	"linescale-gui/internal/metrics"
)

var version = "dev"

// CLI args
var (
	configDirFlag = flag.String("config-dir", "", "directory for settings and templates (default: user config dir)")
	metricsAddr   = flag.String("metrics-addr", "", "address to serve Prometheus metrics on, empty disables")
	logLevel      = flag.String("log-level", "", "log level (debug, info, warn, error)")
)

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		log.WithError(err).Warn("ignoring .env")
	}

	dir := *configDirFlag
	if dir == "" {
		var err error
		if dir, err = config.Dir(); err != nil {
			log.WithError(err).Fatal("no config dir")
		}
	}
	settings, err := config.Load(dir)
	if err != nil {
		log.WithError(err).Warn("using default settings")
	}
	settings = config.ApplyEnv(settings, os.Getenv)
	if *metricsAddr != "" {
		settings.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		settings.LogLevel = *logLevel
	}

	if level, err := log.ParseLevel(settings.LogLevel); err == nil {
		log.SetLevel(level)
	} else {
		log.WithError(err).Warn("bad log level")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewBuildInfoCollector())
	col := metrics.New(reg)
	if settings.MetricsAddr != "" {
		go serveMetrics(settings.MetricsAddr, reg)
	}

	a := app.NewWithID("com.github.linescalegui.linescale-gui")
	w := a.NewWindow("LineScale GUI")
	w.Resize(fyne.NewSize(900, 600))
	w.SetMaster()

	master := comm.NewMaster(col, log.WithField("component", "comm"))
	mw := NewMainWindow(a, w, master, col, dir, settings)
	w.SetOnClosed(mw.Close)

	log.WithField("version", version).Info("started")
	w.ShowAndRun()
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}
