package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Volume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_volume_level",
		Help: "Most recently published bot volume level in [0,1]",
	})

	AnalysisGraphs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_analysis_graphs_active",
		Help: "Spectral analysis graphs currently attached to a track",
	})

	AnalysisTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_analysis_ticks_total",
		Help: "Analysis frames processed",
	})

	AnalysisSetupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_analysis_setup_failures_total",
		Help: "Analysis graphs that could not be built for a track",
	})

	TranscriptMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcript_messages_total",
		Help: "Transcript messages created, by role",
	}, []string{"role"})

	TranscriptDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_transcript_events_ignored_total",
		Help: "Events absorbed as no-ops, by reason",
	}, []string{"reason"})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_session_transitions_total",
		Help: "Connection state transitions, by target state",
	}, []string{"state"})

	SenderReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_rtcp_sender_reports_total",
		Help: "RTCP sender reports received on remote tracks",
	})

	ConnectDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_connect_duration_seconds",
		Help:    "Time from connect request to connected state",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})
)

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
