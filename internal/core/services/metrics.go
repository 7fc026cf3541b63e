// Package services composes the proxy verification pipeline.
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authorization decision outcomes
	decisionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_sub_proxy_decisions_total",
		Help: "Total number of payload authorization decisions",
	}, []string{"result"}) // result: authorized, denied

	// Signature verification outcomes
	verificationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_sub_proxy_verifications_total",
		Help: "Total number of payload-by-pilot signature verifications",
	}, []string{"verdict"})

	// Credential sink failures
	publicationFailuresCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pilot_sub_proxy_publication_failures_total",
		Help: "Total number of failed credential publications",
	})

	// Pilot proxy file reads
	pilotReadCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pilot_sub_proxy_pilot_reads_total",
		Help: "Total number of pilot proxy file reads",
	}, []string{"outcome"}) // outcome: ok, error
)
