package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK          = "ok"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
	outcomePaid        = "paid"
	outcomeAlreadyPaid = "already_paid"
	outcomeConflict    = "conflict"
	outcomeSent        = "sent"
	outcomeFailed      = "failed"
	outcomeDropped     = "dropped"
	outcomeSkipped     = "skipped"
)

var (
	reservationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_reservation_attempts_total",
		Help: "Buyer-facing reservation attempts by rail and outcome.",
	}, []string{"rail", "outcome"})

	settlementAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_settlement_attempts_total",
		Help: "Settlement attempts by rail and outcome.",
	}, []string{"rail", "outcome"})

	settlementConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_settlement_conflicts_total",
		Help: "Settlements that lost the local race after a remote charge; each one needs operator reconciliation.",
	}, []string{"rail"})

	notifierMails = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_notifier_mails_total",
		Help: "Notifier dispatch results.",
	}, []string{"outcome"})
)
