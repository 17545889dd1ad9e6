package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deploysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phassets_deploys_total",
		Help: "Deploy requests by outcome.",
	}, []string{"outcome"})

	lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phassets_lookups_total",
		Help: "Already-deployed lookups by result.",
	}, []string{"result"})
)
