package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codeboard"

var (
	CodesDisplayed   prometheus.Counter
	CodesRejected    *prometheus.CounterVec
	QueueLength      prometheus.Gauge
	NarrationFaults  prometheus.Counter
	Polls            *prometheus.CounterVec
	PollDuration     prometheus.Histogram
	Watermark        prometheus.Gauge
	MessagesDropped  *prometheus.CounterVec
	EndpointUp       *prometheus.GaugeVec
	EndpointFailures *prometheus.GaugeVec
	AdvisoriesRaised *prometheus.CounterVec
	StoreMessages    prometheus.Gauge
	StoreAppends     *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec

	once sync.Once
)

func init() {
	build("terminal")
}

func build(subsystem string) {
	CodesDisplayed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "codes_displayed_total",
		Help:      "Display cycles started",
	})
	CodesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "codes_rejected_total",
		Help:      "Codes refused by the presentation queue",
	}, []string{"reason"})
	QueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "queue_length",
		Help:      "Codes waiting to be displayed",
	})
	NarrationFaults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "narration_faults_total",
		Help:      "Narrations that ended with an engine error",
	})
	Polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "polls_total",
		Help:      "Store polls by result",
	}, []string{"result"})
	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "poll_duration_seconds",
		Help:      "Store poll latency",
		Buckets:   prometheus.DefBuckets,
	})
	Watermark = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "watermark",
		Help:      "Highest message id seen",
	})
	MessagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "messages_dropped_total",
		Help:      "Messages dropped before reaching the queue",
	}, []string{"reason"})
	EndpointUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "endpoint_up",
		Help:      "1 if the last probe of the endpoint succeeded",
	}, []string{"endpoint"})
	EndpointFailures = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "endpoint_consecutive_failures",
		Help:      "Consecutive failed probes per endpoint",
	}, []string{"endpoint"})
	AdvisoriesRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "advisories_raised_total",
		Help:      "Reload advisories shown to the viewer",
	}, []string{"reason"})
	StoreMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_messages",
		Help:      "Messages retained by the store",
	})
	StoreAppends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "store_appends_total",
		Help:      "Append requests by result",
	}, []string{"result"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      fmt.Sprintf("HTTP request duration in %s", subsystem),
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "status"})
}

// Init rebuilds the collectors under subsystem and registers them. Only the
// first call has an effect.
func Init(subsystem string) {
	once.Do(func() {
		build(subsystem)
		prometheus.MustRegister(
			CodesDisplayed, CodesRejected, QueueLength, NarrationFaults,
			Polls, PollDuration, Watermark, MessagesDropped,
			EndpointUp, EndpointFailures, AdvisoriesRaised,
			StoreMessages, StoreAppends, RequestDuration,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// Gin records RequestDuration for every route.
func Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestDuration.WithLabelValues(route, fmt.Sprint(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
