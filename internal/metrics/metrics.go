// Package metrics exposes Prometheus counters for the background schedulers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the schedulers report through.
type Recorder interface {
	ReminderSent()
	ReminderFailed()
	DigestSent()
	PomodoroPhase(phase string)
	PomodoroCompleted()
	TasksCleaned(count int64)
}

type Collector struct {
	remindersSent     prometheus.Counter
	remindersFailed   prometheus.Counter
	digestsSent       prometheus.Counter
	pomodoroPhases    *prometheus.CounterVec
	pomodoroCompleted prometheus.Counter
	tasksCleaned      prometheus.Counter
}

var _ Recorder = &Collector{}

// NewCollector creates the counters and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbot_reminders_sent_total",
			Help: "Event reminders delivered.",
		}),
		remindersFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbot_reminders_failed_total",
			Help: "Event reminders the notification channel rejected.",
		}),
		digestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbot_digests_sent_total",
			Help: "Daily digests delivered.",
		}),
		pomodoroPhases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "focusbot_pomodoro_phases_total",
			Help: "Pomodoro phases entered, by phase.",
		}, []string{"phase"}),
		pomodoroCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbot_pomodoro_completed_total",
			Help: "Pomodoro sessions that ran all their cycles.",
		}),
		tasksCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "focusbot_tasks_cleaned_total",
			Help: "Completed tasks removed by the weekly cleanup.",
		}),
	}

	reg.MustRegister(
		c.remindersSent,
		c.remindersFailed,
		c.digestsSent,
		c.pomodoroPhases,
		c.pomodoroCompleted,
		c.tasksCleaned,
	)

	return c
}

func (c *Collector) ReminderSent()   { c.remindersSent.Inc() }
func (c *Collector) ReminderFailed() { c.remindersFailed.Inc() }
func (c *Collector) DigestSent()     { c.digestsSent.Inc() }

func (c *Collector) PomodoroPhase(phase string) {
	c.pomodoroPhases.WithLabelValues(phase).Inc()
}

func (c *Collector) PomodoroCompleted() { c.pomodoroCompleted.Inc() }

func (c *Collector) TasksCleaned(count int64) {
	c.tasksCleaned.Add(float64(count))
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) ReminderSent()        {}
func (Nop) ReminderFailed()      {}
func (Nop) DigestSent()          {}
func (Nop) PomodoroPhase(string) {}
func (Nop) PomodoroCompleted()   {}
func (Nop) TasksCleaned(int64)   {}
