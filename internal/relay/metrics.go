package relay

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// metricsNamespace はメトリクス名の接頭辞。
const metricsNamespace = "relay"

// unmatchedRoute はルートに一致しなかったリクエストのラベル値。
// 任意のパスをラベルにするとカーディナリティが際限なく増えるため、まとめて扱う。
const unmatchedRoute = "unmatched"

// 上流呼び出しの結果を表すラベル値。
const (
	upstreamResultOK           = "ok"
	upstreamResultTransport    = "transport_error"
	upstreamResultInvalidJSON  = "invalid_json"
	upstreamResultTooLarge     = "too_large"
	upstreamResultOtherFailure = "error"
)

// metrics はリレーサーバーのPrometheusメトリクス。
type metrics struct {
	// registry はこのサーバー専用のレジストリ。
	registry *prometheus.Registry
	// requests はHTTPリクエスト数。
	requests *prometheus.CounterVec
	// requestDuration はHTTPリクエストの処理時間。
	requestDuration *prometheus.HistogramVec
	// upstreamRequests は上流APIの呼び出し数。
	upstreamRequests *prometheus.CounterVec
	// upstreamDuration は上流APIの応答時間。
	upstreamDuration prometheus.Histogram
}

// newMetrics はメトリクスを生成し、専用のレジストリに登録する。
// グローバルなDefaultRegistererを使わないため、テストで複数のサーバーを生成できる。
func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Number of HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_requests_total",
				Help:      "Number of calls to the upstream API by result",
			},
			[]string{"result"},
		),
		upstreamDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream API latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.upstreamRequests,
		m.upstreamDuration,
	)
	return m
}

// middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// observeUpstream は上流APIの呼び出し結果を記録する。
func (m *metrics) observeUpstream(result string, elapsed time.Duration) {
	m.upstreamRequests.WithLabelValues(result).Inc()
	m.upstreamDuration.Observe(elapsed.Seconds())
}
