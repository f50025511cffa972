package metric

import (
	"errors"
	"log/slog"
	"time"

	"confdesk/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// register adds c to the default registry. When an equal collector is
// already registered, that one is returned so Init can run more than once.
func register[T prometheus.Collector](name string, c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		slog.Error("can't register metric", "metric", name, "error", err)
		return c
	}
	slog.Debug("metric registered", "metric", name)
	return c
}

func unregister(name string, c prometheus.Collector) {
	switch prometheus.Unregister(c) {
	case true:
		slog.Debug("metric unregistered", "metric", name)
	case false:
		slog.Warn("metric not registered", "metric", name)
	}
}

func databaseEmptyRead(as *utils.AppState, tickerInterval time.Duration) prometheus.Gauge {
	const name = "confdesk_database_empty_read_microsec"
	gauge := register(name, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: "The latency of an empty database read in microseconds",
	}))
	gauge.Set(0)
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(name, gauge)
				return
			case <-ticker.C:
				latency, err := database(as)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				gauge.Set(float64(latency.Microseconds()))
			}
		}
	}()
	return gauge
}

func databaseWrite(as *utils.AppState, clearTickerInterval time.Duration) prometheus.Gauge {
	const name = "confdesk_database_write_microsec"
	gauge := register(name, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: name,
		Help: "The latency of the last database write in microseconds",
	}))
	gauge.Set(0)
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(name, gauge)
				return
			case latency := <-as.MetricChans.DatabaseWrite:
				gauge.Set(latency)
				clearTicker.Reset(clearTickerInterval)
			case <-clearTicker.C:
				gauge.Set(0)
			}
		}
	}()
	return gauge
}

// Init registers every collector and starts the goroutines feeding them.
// They stop and unregister on graceful shutdown.
func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, tickerInterval)
	databaseWrite(as, clearTickerInterval)
	httpRequests(as)
	messageSends(as)
	breakerState(as)
}
