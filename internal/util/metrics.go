package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_completed_total",
		Help: "Total number of orders completed by payment settlement",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	TokensIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "download_tokens_issued_total",
		Help: "Total number of download tokens minted",
	})

	TokenResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "download_token_resolutions_total",
		Help: "Total number of token resolution attempts",
	}, []string{"outcome"})

	FilesDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "files_delivered_total",
		Help: "Total number of files returned in download listings",
	})

	PresignLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "presign_latency_seconds",
		Help:    "Latency of presigned URL minting per resolution",
		Buckets: prometheus.DefBuckets,
	})

	ExpiredTokensSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expired_tokens_swept_total",
		Help: "Total number of expired token rows deleted by the sweeper",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
