package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anpr-gate-service/internal/domain/detection"
	"anpr-gate-service/internal/repository"
	"anpr-gate-service/internal/utils"
)

// IngestService turns decoded camera events into persisted detections.
type IngestService struct {
	repo *repository.DetectionRepository
	log  zerolog.Logger
}

func NewIngestService(repo *repository.DetectionRepository, log zerolog.Logger) *IngestService {
	return &IngestService{
		repo: repo,
		log:  log.With().Str("component", "ingest").Logger(),
	}
}

// ProcessTollgate decodes one detection event and persists it together
// with its image. Each call creates an independent record under a fresh
// identity; a device-side network retry therefore produces a second
// record rather than corrupted state, and deduplication stays with the
// delivery pipeline.
func (s *IngestService) ProcessTollgate(ctx context.Context, payload *detection.TollgatePayload, rawImage []byte) (*detection.Record, error) {
	rec, image, err := detection.FromTollgate(payload, rawImage)
	if err != nil {
		return nil, err
	}

	rec.ID = uuid.NewString()
	rec.NormalizedPlate = utils.NormalizePlate(rec.PlateNumber)
	rec.RawPayload = payloadForAudit(payload)

	if err := s.repo.CreateDetection(ctx, rec, image); err != nil {
		s.log.Error().
			Err(err).
			Str("plate", rec.NormalizedPlate).
			Str("direction", rec.Direction).
			Msg("failed to persist detection")
		return nil, fmt.Errorf("persist detection: %w", err)
	}

	s.log.Info().
		Str("detection_id", rec.ID).
		Str("plate", rec.NormalizedPlate).
		Str("direction", rec.Direction).
		Time("detected_at", rec.DetectedAt).
		Str("image_path", rec.ImagePath).
		Msg("saved detection")

	return rec, nil
}

// ProcessHeartbeat acknowledges a keep-alive. Heartbeats are logged and
// discarded, never persisted.
func (s *IngestService) ProcessHeartbeat(payload *detection.HeartbeatPayload) time.Time {
	s.log.Info().
		Str("device_id", payload.DeviceID).
		Str("device_time", payload.Time).
		Str("status", payload.Status).
		Msg("heartbeat received")
	return time.Now()
}

// payloadForAudit keeps the device payload for forensics, minus the
// image body which already lives on disk.
func payloadForAudit(payload *detection.TollgatePayload) map[string]interface{} {
	stripped := *payload
	stripped.Picture.NormalPic.Content = ""

	raw, err := json.Marshal(&stripped)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
