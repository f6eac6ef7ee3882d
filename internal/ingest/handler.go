package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/stationgroups/internal/metrics"
	"github.com/lox/stationgroups/internal/models"
)

// Recorder is satisfied by *orchestrator.Orchestrator.
type Recorder interface {
	RecordMeasurement(ctx context.Context, stationID string, r models.Reading) (*models.Station, error)
}

// Archive is satisfied by *store.Store.
type Archive interface {
	StoreTelemetryPayload(ctx context.Context, topic, stationID string, payload []byte) (int64, error)
}

// Handler turns telemetry messages into recorded measurements. Only aborted
// transactions are retried; every other failure is final for the message.
type Handler struct {
	recorder   Recorder
	archive    Archive
	log        *slog.Logger
	newBackOff func() backoff.BackOff
}

func NewHandler(recorder Recorder, archive Archive, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		recorder: recorder,
		archive:  archive,
		log:      log,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 30 * time.Second
			return bo
		},
	}
}

// SetBackOff replaces the retry policy used for aborted transactions.
func (h *Handler) SetBackOff(fn func() backoff.BackOff) {
	h.newBackOff = fn
}

func (h *Handler) Handle(ctx context.Context, topic string, payload []byte) error {
	t, err := ParseTelemetry(topic, payload)
	if err != nil {
		metrics.TelemetryMessages.WithLabelValues("malformed").Inc()
		return err
	}

	if h.archive != nil {
		id, err := h.archive.StoreTelemetryPayload(ctx, topic, t.StationID, payload)
		switch {
		case err != nil:
			h.log.Warn("archive telemetry payload failed", "station_id", t.StationID, "error", err)
		case id == 0:
			h.log.Debug("telemetry payload already archived", "station_id", t.StationID)
		}
	}

	if flags := QualityFlags(t); len(flags) > 0 {
		h.log.Warn("telemetry quality flags", "station_id", t.StationID, "flags", flags)
	}

	op := func() error {
		_, err := h.recorder.RecordMeasurement(ctx, t.StationID, t.Reading())
		if err == nil || errors.Is(err, models.ErrTransactionAborted) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		metrics.TelemetryRetries.Inc()
		h.log.Warn("retrying telemetry measurement", "station_id", t.StationID, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(h.newBackOff(), ctx), notify); err != nil {
		metrics.TelemetryMessages.WithLabelValues(resultLabel(err)).Inc()
		return err
	}
	metrics.TelemetryMessages.WithLabelValues("ok").Inc()
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidMeasurement):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "unknown_station"
	case errors.Is(err, models.ErrTransactionAborted):
		return "aborted"
	default:
		return "error"
	}
}
