// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	recorderRecordingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openbag_recorder_recording",
		Help: "1 if a recording session is currently active, 0 otherwise.",
	})

	recorderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "openbag_recorder_errors",
		Help: "Count of recorder errors encountered, by type.",
	}, []string{"type"})

	recorderEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openbag_recorder_events",
		Help: "Count of messages successfully buffered for recording.",
	})

	recorderDroppedPushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openbag_recorder_dropped_pushes",
		Help: "Count of inbound messages dropped because the buffer was full.",
	})

	playerPlayingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openbag_player_playing",
		Help: "1 if a playback session is currently active, 0 otherwise.",
	})

	playerPausedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openbag_player_paused",
		Help: "1 if the active playback session is paused, 0 otherwise.",
	})

	playerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openbag_player_error_count",
		Help: "Count of player errors encountered during playback.",
	})

	playerCyclesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "openbag_player_cycles",
		Help: "Count of discrete loop_playback rewinds in the current playback.",
	})

	playerSentBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openbag_player_sent_bytes",
		Help: "Count of payload bytes published by the player.",
	})

	playerSentMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "openbag_player_sent_messages",
		Help: "Count of messages published by the player.",
	})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		recorderRecordingGauge,
		recorderErrors,
		recorderEvents,
		recorderDroppedPushes,

		playerPlayingGauge,
		playerPausedGauge,
		playerErrors,
		playerCyclesGauge,
		playerSentBytes,
		playerSentMessages,
	)
}
