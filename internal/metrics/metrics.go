package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistrationsTotal counts successfully registered students.
var RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "faceattend_registrations_total",
	Help: "Number of students registered.",
})

// RecognitionsTotal counts mark-attendance outcomes by result.
var RecognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "faceattend_recognitions_total",
	Help: "Mark-attendance attempts by outcome.",
}, []string{"outcome"})

const (
	OutcomeMarked        = "marked"
	OutcomeAlreadyMarked = "already_marked"
	OutcomeNoMatch       = "no_match"
	OutcomeRejected      = "rejected"
	OutcomeUnavailable   = "unavailable"
)
