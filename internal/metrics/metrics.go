/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package metrics holds the prometheus collectors updated by the kitchen.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for cook outcomes.
const (
	ResultCooked     = "cooked"
	ResultFresh      = "fresh"
	ResultShared     = "shared"
	ResultSuperseded = "superseded"
	ResultError      = "error"
)

// Metrics groups the kitchen collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	CooksTotal           *prometheus.CounterVec
	StageDurationSeconds *prometheus.HistogramVec
	StageErrorsTotal     *prometheus.CounterVec
	DereferencedTotal    prometheus.Counter
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sous_cooks_total",
				Help: "Total number of cook requests per content kind and outcome",
			},
			[]string{"kind", "result"},
		),
		StageDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sous_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sous_stage_errors_total",
				Help: "Total number of pipeline stage errors per stage and reason",
			},
			[]string{"stage", "reason"},
		),
		DereferencedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sous_dereferenced_total",
				Help: "Total number of nodes that lost their last strong reference",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.CooksTotal, m.StageDurationSeconds, m.StageErrorsTotal, m.DereferencedTotal)
	}
	return m
}

// Cook counts one cook request.
func (m *Metrics) Cook(kind, result string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.CooksTotal.WithLabelValues(kind, result).Inc()
}

// ObserveStage records how long a stage took since start.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// StageError counts one stage failure.
func (m *Metrics) StageError(stage, reason string) {
	if m == nil {
		return
	}
	m.StageErrorsTotal.WithLabelValues(stage, reason).Inc()
}

// Dereferenced counts one dereferenced node.
func (m *Metrics) Dereferenced() {
	if m == nil {
		return
	}
	m.DereferencedTotal.Inc()
}
