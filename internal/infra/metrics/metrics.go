package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ScanTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_scan_ticks_total",
		Help: "Проходы сканера по результату: ok, skipped, store_error",
	}, []string{"result"})
	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reminder_scan_duration_seconds",
		Help:    "Длительность прохода сканера",
		Buckets: prometheus.DefBuckets,
	})
	DueOccurrences = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminder_due_occurrences_total",
		Help: "Срабатывания, найденные сканером в окне",
	})

	ChannelSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_channel_sends_total",
		Help: "Отправки по каналам и статусам",
	}, []string{"channel", "status"})
	ChannelSendDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reminder_channel_send_duration_seconds",
		Help:    "Длительность отправки в канал",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
	}, []string{"channel"})
	DispatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_dispatch_outcomes_total",
		Help: "Итоги рассылки срабатываний",
	}, []string{"outcome"})

	OccurrencesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminder_occurrences_generated_total",
		Help: "Сгенерированные срабатывания",
	})
	InvalidSchedules = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reminder_invalid_schedules_total",
		Help: "Правила повторения без единого срабатывания в горизонте",
	})
	ScheduleJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_schedule_jobs_total",
		Help: "Обработанные задачи планирования по причине и статусу",
	}, []string{"cause", "status"})

	AdherenceReports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "adherence_reports_total",
		Help: "Отчёты о приёме по периоду и статусу доставки",
	}, []string{"period", "status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScanTicks,
		ScanDuration,
		DueOccurrences,
		ChannelSends,
		ChannelSendDuration,
		DispatchOutcomes,
		OccurrencesGenerated,
		InvalidSchedules,
		ScheduleJobs,
		AdherenceReports,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveChannelSend записывает результат отправки в канал.
func ObserveChannelSend(channel, status string, duration time.Duration) {
	ChannelSends.WithLabelValues(channel, status).Inc()
	ChannelSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}
