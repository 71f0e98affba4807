// Package metrics holds the Prometheus collectors of the scanner daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesConfirmed counts debounced code confirmations.
	CodesConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanner_codes_confirmed_total",
		Help: "Total number of codes confirmed by the detection loop.",
	})

	// Resolutions counts resolved artifacts by the path that produced them.
	Resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_resolutions_total",
		Help: "Total number of code resolutions, by source (url/product-db/frame/failed).",
	}, []string{"source"})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_captures_total",
		Help: "Total number of still captures, by outcome.",
	}, []string{"outcome"})

	Recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_recordings_total",
		Help: "Total number of recordings, by outcome (finalized/empty/aborted/failed).",
	}, []string{"outcome"})

	FocusTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_focus_triggers_total",
		Help: "Total number of accepted focus passes, by trigger (manual/auto).",
	}, []string{"trigger"})

	FlashToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_flash_toggles_total",
		Help: "Total number of torch switches, by cause (manual/auto).",
	}, []string{"cause"})

	// Notices counts errors surfaced to the user.
	Notices = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanner_notices_total",
		Help: "Total number of errors surfaced to the user.",
	})

	// State is 1 for the current session state and 0 for the others.
	State = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scanner_state",
		Help: "Current scanner state, one series per state.",
	}, []string{"state"})

	Luminance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_luminance",
		Help: "Last sampled average scene luminance, 0-255.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_uploads_total",
		Help: "Total number of uploaded files, by outcome (accepted/rejected).",
	}, []string{"outcome"})

	Analyses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_analyses_total",
		Help: "Total number of analysis requests, by outcome.",
	}, []string{"outcome"})
)

// SetState marks current as the only active state among all.
func SetState(all []string, current string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		State.WithLabelValues(s).Set(v)
	}
}
