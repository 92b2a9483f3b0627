package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func TestMetricsMiddlewareLabels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()
	Init()

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/attempts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := counterValue(t, RequestCounter.WithLabelValues(http.MethodGet, "/api/attempts/:id", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/attempts/7", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, before+1, counterValue(t, RequestCounter.WithLabelValues(http.MethodGet, "/api/attempts/:id", "200")))
	assert.Equal(t, 1.0, counterValue(t, RequestCounter.WithLabelValues(http.MethodGet, "unmatched", "404")))
}
