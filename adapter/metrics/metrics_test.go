package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/vinicius-lino-figueiredo/godm/domain"
)

var _ domain.CacheObserver = (*Metrics)(nil)

type MetricsTestSuite struct {
	suite.Suite
	reg     *prometheus.Registry
	metrics *Metrics
}

func (s *MetricsTestSuite) SetupTest() {
	s.reg = prometheus.NewRegistry()
	s.metrics = NewMetrics(s.reg)
}

func (s *MetricsTestSuite) TestOperations() {
	start := time.Now()
	s.metrics.ObserveOperation("cars", "insert", start, nil)
	s.metrics.ObserveOperation("cars", "insert", start, nil)
	s.metrics.ObserveOperation("cars", "insert", start, errors.New("duplicate"))

	s.Equal(2.0, testutil.ToFloat64(s.metrics.operationsTotal.WithLabelValues("cars", "insert", "success")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.operationsTotal.WithLabelValues("cars", "insert", "error")))
	s.Equal(1, testutil.CollectAndCount(s.metrics.operationSeconds))
}

func (s *MetricsTestSuite) TestCache() {
	s.metrics.CacheHit("Integer")
	s.metrics.CacheMiss("Integer")
	s.metrics.CacheMiss("String")

	expected := `
		# HELP godm_cache_misses_total The total number of deserialization cache misses.
		# TYPE godm_cache_misses_total counter
		godm_cache_misses_total{kind="Integer"} 1
		godm_cache_misses_total{kind="String"} 1
	`
	s.NoError(testutil.CollectAndCompare(s.metrics.cacheMissesTotal, strings.NewReader(expected)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.cacheHitsTotal.WithLabelValues("Integer")))
}

func (s *MetricsTestSuite) TestRegistry() {
	s.Same(s.reg, s.metrics.Registry())
	s.NotNil(NewMetrics(nil).Registry())

	families, err := s.reg.Gather()
	s.NoError(err)
	s.Empty(families)

	s.metrics.CacheHit("Integer")
	families, err = s.reg.Gather()
	s.NoError(err)
	s.Len(families, 1)
}

func TestMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}
