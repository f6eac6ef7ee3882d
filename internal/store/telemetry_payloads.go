package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// TelemetryPayload is a raw MQTT message body as received.
type TelemetryPayload struct {
	ID                int64
	ReceivedAt        time.Time
	Topic             string
	StationID         sql.NullString
	PayloadCompressed []byte
	PayloadHash       string
}

// StoreTelemetryPayload stores a compressed telemetry payload.
// Returns the payload ID, or 0 if the payload was a duplicate (same hash).
func (s *Store) StoreTelemetryPayload(ctx context.Context, topic, stationID string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	var stationIDNull sql.NullString
	if stationID != "" {
		stationIDNull = sql.NullString{String: stationID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO telemetry_payloads (received_at, topic, station_id, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, toMillis(time.Now().UTC()), topic, stationIDNull, buf.Bytes(), hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert telemetry payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetTelemetryPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetTelemetryPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM telemetry_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// CountTelemetryPayloads returns how many payloads were archived for stationID.
func (s *Store) CountTelemetryPayloads(ctx context.Context, stationID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_payloads WHERE station_id = ?`, stationID).Scan(&n)
	return n, err
}
