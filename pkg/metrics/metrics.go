package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 任务执行耗时（毫秒）
	TaskInvocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_invocation_latency_ms",
			Help:    "Task handler invocation latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12), // 5ms to ~10s
		},
		[]string{"task"},
	)

	// 任务执行结果计数
	TaskResultCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_result_total",
			Help: "Total number of executed tasks by result",
		},
		[]string{"task", "result"},
	)

	// 调度计数
	TaskScheduledCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_scheduled_total",
			Help: "Total number of tasks written to the task store",
		},
		[]string{"task", "source"}, // source: api, driver, interval, rerun, cron
	)

	SchedulerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler loop iterations",
		},
	)

	SchedulerLastExecution = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_last_execution_timestamp_seconds",
			Help: "Unix time of the last scheduler loop iteration",
		},
	)

	// 周期任务下一次写入失败计数
	TaskRescheduleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_reschedule_failures_total",
			Help: "Failed inserts of the next occurrence of an interval task",
		},
		[]string{"task"},
	)

	// 发布事件的通道投递结果
	PublicationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publication_deliveries_total",
			Help: "Channel deliveries attempted by the publication fanout",
		},
		[]string{"type", "channel", "outcome"}, // outcome: scheduled, skipped, failed
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 外部发送通道调用延迟（毫秒）
	SenderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sender_latency_ms",
			Help:    "Outbound send API latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(50, 2, 10), // 50ms to ~25s
		},
		[]string{"channel", "status"},
	)
)

// RecordTaskInvocation 记录任务执行耗时与结果
func RecordTaskInvocation(task, result string, duration time.Duration) {
	TaskInvocationLatency.WithLabelValues(task).Observe(float64(duration.Milliseconds()))
	TaskResultCount.WithLabelValues(task, result).Inc()
}

// IncrementTaskScheduled 增加任务调度计数
func IncrementTaskScheduled(task, source string) {
	TaskScheduledCount.WithLabelValues(task, source).Inc()
}

// IncrementRescheduleFailure 增加周期任务重排失败计数
func IncrementRescheduleFailure(task string) {
	TaskRescheduleFailures.WithLabelValues(task).Inc()
}

// RecordSchedulerTick 记录一次调度循环
func RecordSchedulerTick(at time.Time) {
	SchedulerTicks.Inc()
	SchedulerLastExecution.Set(float64(at.Unix()))
}

// IncrementPublicationDelivery 记录一次通道投递结果
func IncrementPublicationDelivery(subscriptionType, channel, outcome string) {
	PublicationDeliveries.WithLabelValues(subscriptionType, channel, outcome).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery() {
	SlowQueryCount.Inc()
}

// RecordSenderLatency 记录外部发送 API 延迟
func RecordSenderLatency(channel, status string, duration time.Duration) {
	SenderLatency.WithLabelValues(channel, status).Observe(float64(duration.Milliseconds()))
}
