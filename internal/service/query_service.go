package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"anpr-gate-service/internal/domain/detection"
	"anpr-gate-service/internal/repository"
	"anpr-gate-service/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// QueryService backs the operator read API.
type QueryService struct {
	repo *repository.DetectionRepository
	log  zerolog.Logger
}

func NewQueryService(repo *repository.DetectionRepository, log zerolog.Logger) *QueryService {
	return &QueryService{
		repo: repo,
		log:  log.With().Str("component", "query").Logger(),
	}
}

func (s *QueryService) FindDetections(ctx context.Context, plateQuery *string, from, to *string, limit, offset int) ([]DetectionInfo, error) {
	var normalizedPlate *string
	if plateQuery != nil {
		normalized := utils.NormalizePlate(*plateQuery)
		if normalized != "" {
			normalizedPlate = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.FindDetections(ctx, normalizedPlate, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find detections: %w", err)
	}

	result := make([]DetectionInfo, 0, len(records))
	for i := range records {
		result = append(result, toDetectionInfo(&records[i]))
	}
	return result, nil
}

func (s *QueryService) GetDetection(ctx context.Context, id string) (*DetectionInfo, error) {
	rec, err := s.repo.GetDetection(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: detection %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get detection: %w", err)
	}
	info := toDetectionInfo(rec)
	return &info, nil
}

type DetectionInfo struct {
	ID              string                 `json:"id"`
	DetectedAt      time.Time              `json:"detected_at"`
	Direction       string                 `json:"direction"`
	PlateNumber     string                 `json:"plate_number,omitempty"`
	NormalizedPlate string                 `json:"normalized_plate,omitempty"`
	PlateConfidence *float64               `json:"plate_confidence,omitempty"`
	PlateBBox       *detection.BoundingBox `json:"plate_bbox,omitempty"`
	VehicleBBox     *detection.BoundingBox `json:"vehicle_bbox,omitempty"`
	VehicleColor    string                 `json:"vehicle_color,omitempty"`
	VehicleType     string                 `json:"vehicle_type,omitempty"`
	ImagePath       string                 `json:"image_path"`
	DeliveryState   string                 `json:"delivery_state"`
	FailureReason   string                 `json:"failure_reason,omitempty"`
	SentAt          *time.Time             `json:"sent_at,omitempty"`
}

func toDetectionInfo(rec *detection.Record) DetectionInfo {
	return DetectionInfo{
		ID:              rec.ID,
		DetectedAt:      rec.DetectedAt,
		Direction:       rec.Direction,
		PlateNumber:     rec.PlateNumber,
		NormalizedPlate: rec.NormalizedPlate,
		PlateConfidence: rec.PlateConfidence,
		PlateBBox:       rec.PlateBBox,
		VehicleBBox:     rec.VehicleBBox,
		VehicleColor:    rec.VehicleColor,
		VehicleType:     rec.VehicleType,
		ImagePath:       rec.ImagePath,
		DeliveryState:   string(rec.DeliveryState),
		FailureReason:   rec.FailureReason,
		SentAt:          rec.SentAt,
	}
}
