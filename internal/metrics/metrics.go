package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lossledger_events_appended_total",
		Help: "Ledger events accepted, by ledger instance.",
	}, []string{"ledger"})

	DuplicatesPrevented = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lossledger_duplicates_prevented_total",
		Help: "Replayed reference ids rejected without a write, by ledger instance.",
	}, []string{"ledger"})

	IntentsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lossledger_intents_finalized_total",
		Help: "Payment intents finalized, by terminal status.",
	}, []string{"status"})

	DriftRepaired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lossledger_drift_repaired_total",
		Help: "Aggregate repairs performed by reconciliation.",
	})

	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lossledger_gate_decisions_total",
		Help: "Access-gate decisions recorded, by decision.",
	}, []string{"decision"})
)
