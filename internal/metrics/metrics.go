package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal 生命周期操作计数
	// operation: create, replace, patch, delete, get, list
	// result: ok, validation_error, parse_error, not_found, conflict, in_use, error
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alarm_rules_operations_total",
			Help: "Total number of alarm definition operations",
		},
		[]string{"operation", "result"},
	)

	// ParseDuration 表达式解析+规范化耗时
	ParseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alarm_rules_expression_parse_duration_seconds",
			Help:    "Time spent parsing and normalizing threshold expressions",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
	)

	// CacheHitsTotal 定义缓存命中/未命中
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alarm_rules_cache_hits_total",
			Help: "Definition cache lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, error
	)
)
