package metric

import (
	"strconv"

	"confdesk/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func httpRequests(as *utils.AppState) httpCollectors {
	const (
		requestsName = "confdesk_http_requests_total"
		durationName = "confdesk_http_request_duration_seconds"
	)
	c := httpCollectors{
		requests: register(requestsName, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: requestsName,
			Help: "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"})),
		duration: register(durationName, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    durationName,
			Help:    "HTTP request duration in seconds by method and route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(requestsName, c.requests)
				unregister(durationName, c.duration)
				return
			case o := <-as.MetricChans.HTTPRequest:
				route := o.Pattern
				if route == "" {
					route = "unmatched"
				}
				c.requests.WithLabelValues(o.Method, route, strconv.Itoa(o.Status)).Inc()
				c.duration.WithLabelValues(o.Method, route).Observe(o.Duration.Seconds())
			}
		}
	}()
	return c
}

type messageCollectors struct {
	sends   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func messageSends(as *utils.AppState) messageCollectors {
	const (
		sendsName   = "confdesk_messages_total"
		latencyName = "confdesk_message_send_seconds"
	)
	c := messageCollectors{
		sends: register(sendsName, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sendsName,
			Help: "Outbound messages by channel, provider and result",
		}, []string{"channel", "provider", "status"})),
		latency: register(latencyName, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    latencyName,
			Help:    "Provider send latency in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"channel", "provider"})),
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(sendsName, c.sends)
				unregister(latencyName, c.latency)
				return
			case o := <-as.MetricChans.MessageSend:
				c.sends.WithLabelValues(o.Channel, o.Provider, o.Status).Inc()
				c.latency.WithLabelValues(o.Channel, o.Provider).Observe(o.Latency.Seconds())
			}
		}
	}()
	return c
}

// breakerState exports 0 closed, 1 half-open, 2 open per provider.
func breakerState(as *utils.AppState) *prometheus.GaugeVec {
	const name = "confdesk_circuit_breaker_state"
	gauge := register(name, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: "Messaging circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"provider"}))
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		for {
			select {
			case <-*gracefulShutdownCh:
				unregister(name, gauge)
				return
			case o := <-as.MetricChans.BreakerState:
				gauge.WithLabelValues(o.Provider).Set(float64(o.State))
			}
		}
	}()
	return gauge
}
