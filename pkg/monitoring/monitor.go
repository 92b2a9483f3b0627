package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AttemptsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "online_test_attempts_started_total",
		Help: "Number of online test attempts started",
	})

	AttemptsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "online_test_attempts_completed_total",
		Help: "Number of online test attempts completed",
	})

	AnswersRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "online_test_answers_recorded_total",
			Help: "Number of answers recorded, by question type",
		},
		[]string{"question_type"},
	)
)

var once sync.Once

// Init 注册指标，可重复调用
func Init() {
	once.Do(func() {
		prometheus.MustRegister(RequestCounter, RequestDuration)
		prometheus.MustRegister(AttemptsStarted, AttemptsCompleted, AnswersRecorded)
	})
}

// MetricsMiddleware 以路由模板为 endpoint 标签，未匹配的路径归为一类避免标签爆炸
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
