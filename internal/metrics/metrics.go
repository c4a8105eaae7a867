package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	UpdatesTotal    prometheus.Counter
	WizardFinalized prometheus.Counter
	WizardAborted   prometheus.Counter
	TicketsOpened   prometheus.Counter
	NotifyEnqueued  prometheus.Counter
	NotifyProcessed prometheus.Counter
	NotifyFailed    prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "telegram_updates_total",
				Help:      "Total telegram updates received",
			}),
			WizardFinalized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "wizard_finalized_total",
				Help:      "Total wizard sessions persisted successfully",
			}),
			WizardAborted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "wizard_aborted_total",
				Help:      "Total wizard sessions cancelled or dropped on error",
			}),
			TicketsOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "tickets_opened_total",
				Help:      "Total support tickets created",
			}),
			NotifyEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "notify_enqueued_total",
				Help:      "Total admin notification jobs enqueued",
			}),
			NotifyProcessed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "notify_processed_total",
				Help:      "Total admin notification jobs delivered",
			}),
			NotifyFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gakshop",
				Name:      "notify_failed_total",
				Help:      "Total admin notification jobs that failed delivery",
			}),
		}
		prometheus.MustRegister(
			global.UpdatesTotal,
			global.WizardFinalized,
			global.WizardAborted,
			global.TicketsOpened,
			global.NotifyEnqueued,
			global.NotifyProcessed,
			global.NotifyFailed,
		)
	})
	return global
}
