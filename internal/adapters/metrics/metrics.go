package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

var (
	MenuGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_generations_total",
			Help: "Total number of menu generation runs",
		},
		[]string{"mode", "outcome"},
	)

	MenuGenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menu_generation_duration_seconds",
			Help:    "Duration of menu generation runs",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)

	SlotsUnderfilledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_slots_underfilled_total",
			Help: "Total number of meal slots left under-filled by generation",
		},
		[]string{"slot"},
	)

	CriticalFactsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "critical_facts_total",
			Help: "Total number of critical facts emitted",
		},
		[]string{"breach_type", "severity"},
	)

	BreachesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaches_published_total",
			Help: "Total number of breach events published to RabbitMQ",
		},
		[]string{"status"},
	)

	GenerationRequestsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_requests_consumed_total",
			Help: "Total number of generation requests consumed from RabbitMQ",
		},
		[]string{"status"},
	)

	RabbitMQConsumeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rabbitmq_consume_duration_seconds",
			Help:    "Duration of RabbitMQ message consumption",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
)

// Register registers all menu service metrics with the given registerer
func Register(reg prometheus.Registerer) {
	reg.MustRegister(MenuGenerationsTotal)
	reg.MustRegister(MenuGenerationDuration)
	reg.MustRegister(SlotsUnderfilledTotal)
	reg.MustRegister(CriticalFactsTotal)
	reg.MustRegister(BreachesPublishedTotal)
	reg.MustRegister(GenerationRequestsConsumedTotal)
	reg.MustRegister(RabbitMQConsumeDuration)
}

// Recorder forwards service measurements to the Prometheus vectors
type Recorder struct{}

// NewRecorder creates a new Prometheus-backed recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) ObserveGeneration(mode, outcome string, duration time.Duration) {
	MenuGenerationsTotal.WithLabelValues(mode, outcome).Inc()
	MenuGenerationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func (Recorder) SlotUnderfilled(slot string) {
	SlotsUnderfilledTotal.WithLabelValues(slot).Inc()
}

func (Recorder) CriticalFactEmitted(breachType, severity string) {
	CriticalFactsTotal.WithLabelValues(breachType, severity).Inc()
}

func (Recorder) BreachPublished(outcome string) {
	BreachesPublishedTotal.WithLabelValues(outcome).Inc()
}

var _ ports.MenuMetrics = Recorder{}
