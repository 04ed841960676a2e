// Package metrics registers the Prometheus instruments for the core
// subsystems. Counters are package-level promauto values so the service
// layer can increment them without plumbing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts successful job admissions.
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "jobs",
		Name:      "created_total",
		Help:      "Total number of jobs admitted and created.",
	})

	// JobsRejected counts admission rejections by reason.
	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "jobs",
		Name:      "rejected_total",
		Help:      "Total number of job creations rejected, by reason.",
	}, []string{"reason"}) // reason: quota, not_found, archived

	// JobTransitions counts terminal transitions by final status.
	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "jobs",
		Name:      "transitions_total",
		Help:      "Total number of terminal job transitions, by status.",
	}, []string{"status"}) // status: completed, failed

	// WebhookDeliveries counts webhook ingestion outcomes.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Total number of webhook deliveries, by outcome.",
	}, []string{"outcome"}) // outcome: applied, duplicate, invalid, not_found, auth_failed, error

	// UploadCompensations counts compensating blob deletes issued after a
	// failed metadata insert.
	UploadCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "storage",
		Name:      "upload_compensations_total",
		Help:      "Total number of compensating blob deletes after failed uploads.",
	})

	// CleanupPurged counts organizations permanently deleted by the sweep.
	CleanupPurged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "cleanup",
		Name:      "organizations_purged_total",
		Help:      "Total number of organizations purged by the cleanup sweep.",
	})

	// CleanupErrors counts per-organization failures during the sweep.
	CleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scribed",
		Subsystem: "cleanup",
		Name:      "errors_total",
		Help:      "Total number of organization purge failures during cleanup sweeps.",
	})
)
