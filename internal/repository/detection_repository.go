package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"anpr-gate-service/internal/domain/detection"
)

// ErrStorage wraps database and filesystem failures. The inbound
// handler surfaces it to the camera as a 500 so the device retries.
var ErrStorage = errors.New("storage failure")

// ErrNotFound is returned when a detection id does not exist.
var ErrNotFound = errors.New("detection not found")

type DetectionRepository struct {
	db        *gorm.DB
	imagesDir string
}

func NewDetectionRepository(db *gorm.DB, imagesDir string) *DetectionRepository {
	return &DetectionRepository{db: db, imagesDir: imagesDir}
}

type Detection struct {
	ID              string    `gorm:"primaryKey;type:uuid"`
	DetectedAt      time.Time `gorm:"not null"`
	Direction       string    `gorm:"not null"`
	PlateNumber     *string
	NormalizedPlate *string
	PlateConfidence *float64
	PlateBBox       datatypes.JSON
	PlateColor      *string
	PlateType       *string
	PlateRegion     *string
	VehicleBBox     datatypes.JSON
	VehicleColor    *string
	VehicleType     *string
	VehicleSeries   *string
	ImagePath       string `gorm:"not null"`
	DeliveryState   string `gorm:"not null;default:PENDING"`
	FailureReason   *string
	RawPayload      datatypes.JSON
	CreatedAt       time.Time
	SentAt          *time.Time
}

type Delivery struct {
	DetectionID string    `gorm:"primaryKey;type:uuid"`
	ChatID      int64     `gorm:"primaryKey"`
	DeliveredAt time.Time `gorm:"not null"`
}

// CreateDetection persists the image bytes and the record. The image is
// written to a temporary file and renamed into place before the row is
// inserted; if the insert fails the file is removed, so readers never
// see one half of the pair.
func (r *DetectionRepository) CreateDetection(ctx context.Context, rec *detection.Record, image []byte) error {
	path, err := r.writeImage(rec, image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	rec.ImagePath = path

	model, err := toModel(rec)
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		os.Remove(path)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	rec.CreatedAt = model.CreatedAt
	return nil
}

func (r *DetectionRepository) writeImage(rec *detection.Record, image []byte) (string, error) {
	dateDir := filepath.Join(r.imagesDir, rec.DetectedAt.Format("2006-01-02"))
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", err
	}

	plate := rec.NormalizedPlate
	if plate == "" {
		plate = "unknown"
	}
	name := fmt.Sprintf("%s_%s_%s.jpg",
		rec.DetectedAt.Format("15-04-05.000000"), rec.Direction, plate)
	path := filepath.Join(dateDir, name)

	tmp, err := os.CreateTemp(dateDir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// ListUndelivered returns every record still owed a notification,
// oldest first so backlog latency stays bounded. Failed records remain
// eligible indefinitely.
func (r *DetectionRepository) ListUndelivered(ctx context.Context) ([]detection.Record, error) {
	var models []Detection
	err := r.db.WithContext(ctx).
		Where("delivery_state IN ?", []string{string(detection.StatePending), string(detection.StateFailed)}).
		Order("detected_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return fromModels(models)
}

// MarkSent transitions a record to SENT. Repeated calls are no-ops: a
// record already SENT is never touched again.
func (r *DetectionRepository) MarkSent(ctx context.Context, id string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&Detection{}).
		Where("id = ? AND delivery_state <> ?", id, string(detection.StateSent)).
		Updates(map[string]interface{}{
			"delivery_state": string(detection.StateSent),
			"failure_reason": nil,
			"sent_at":        now,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// MarkFailed records a delivery failure. A SENT record stays SENT.
func (r *DetectionRepository) MarkFailed(ctx context.Context, id, reason string) error {
	err := r.db.WithContext(ctx).Model(&Detection{}).
		Where("id = ? AND delivery_state <> ?", id, string(detection.StateSent)).
		Updates(map[string]interface{}{
			"delivery_state": string(detection.StateFailed),
			"failure_reason": reason,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// RecordDelivery marks one recipient as having received the record.
// Replays are ignored so retried cycles cannot double-count.
func (r *DetectionRepository) RecordDelivery(ctx context.Context, id string, chatID int64) error {
	delivery := Delivery{DetectionID: id, ChatID: chatID, DeliveredAt: time.Now()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&delivery).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// DeliveredRecipients lists the chat IDs already sent this record.
func (r *DetectionRepository) DeliveredRecipients(ctx context.Context, id string) ([]int64, error) {
	var chatIDs []int64
	err := r.db.WithContext(ctx).Model(&Delivery{}).
		Where("detection_id = ?", id).
		Pluck("chat_id", &chatIDs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return chatIDs, nil
}

func (r *DetectionRepository) GetDetection(ctx context.Context, id string) (*detection.Record, error) {
	var model Detection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return fromModel(&model)
}

func (r *DetectionRepository) FindDetections(ctx context.Context, normalizedPlate *string, from, to *time.Time, limit, offset int) ([]detection.Record, error) {
	query := r.db.WithContext(ctx).Model(&Detection{})

	if normalizedPlate != nil {
		query = query.Where("normalized_plate = ?", *normalizedPlate)
	}
	if from != nil {
		query = query.Where("detected_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("detected_at <= ?", *to)
	}

	query = query.Order("detected_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var models []Detection
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return fromModels(models)
}

func toModel(rec *detection.Record) (*Detection, error) {
	model := &Detection{
		ID:              rec.ID,
		DetectedAt:      rec.DetectedAt,
		Direction:       rec.Direction,
		PlateConfidence: rec.PlateConfidence,
		ImagePath:       rec.ImagePath,
		DeliveryState:   string(rec.DeliveryState),
		CreatedAt:       time.Now(),
		SentAt:          rec.SentAt,
	}

	if rec.PlateNumber != "" {
		model.PlateNumber = &rec.PlateNumber
	}
	if rec.NormalizedPlate != "" {
		model.NormalizedPlate = &rec.NormalizedPlate
	}
	if rec.PlateColor != "" {
		model.PlateColor = &rec.PlateColor
	}
	if rec.PlateType != "" {
		model.PlateType = &rec.PlateType
	}
	if rec.PlateRegion != "" {
		model.PlateRegion = &rec.PlateRegion
	}
	if rec.VehicleColor != "" {
		model.VehicleColor = &rec.VehicleColor
	}
	if rec.VehicleType != "" {
		model.VehicleType = &rec.VehicleType
	}
	if rec.VehicleSeries != "" {
		model.VehicleSeries = &rec.VehicleSeries
	}
	if rec.FailureReason != "" {
		model.FailureReason = &rec.FailureReason
	}

	var err error
	if model.PlateBBox, err = marshalBBox(rec.PlateBBox); err != nil {
		return nil, err
	}
	if model.VehicleBBox, err = marshalBBox(rec.VehicleBBox); err != nil {
		return nil, err
	}
	if len(rec.RawPayload) > 0 {
		raw, err := json.Marshal(rec.RawPayload)
		if err != nil {
			return nil, err
		}
		model.RawPayload = datatypes.JSON(raw)
	}
	return model, nil
}

func fromModel(model *Detection) (*detection.Record, error) {
	rec := &detection.Record{
		ID:              model.ID,
		DetectedAt:      model.DetectedAt,
		Direction:       model.Direction,
		PlateConfidence: model.PlateConfidence,
		ImagePath:       model.ImagePath,
		DeliveryState:   detection.DeliveryState(model.DeliveryState),
		CreatedAt:       model.CreatedAt,
		SentAt:          model.SentAt,
	}

	rec.PlateNumber = deref(model.PlateNumber)
	rec.NormalizedPlate = deref(model.NormalizedPlate)
	rec.PlateColor = deref(model.PlateColor)
	rec.PlateType = deref(model.PlateType)
	rec.PlateRegion = deref(model.PlateRegion)
	rec.VehicleColor = deref(model.VehicleColor)
	rec.VehicleType = deref(model.VehicleType)
	rec.VehicleSeries = deref(model.VehicleSeries)
	rec.FailureReason = deref(model.FailureReason)

	var err error
	if rec.PlateBBox, err = unmarshalBBox(model.PlateBBox); err != nil {
		return nil, err
	}
	if rec.VehicleBBox, err = unmarshalBBox(model.VehicleBBox); err != nil {
		return nil, err
	}
	if len(model.RawPayload) > 0 {
		if err := json.Unmarshal(model.RawPayload, &rec.RawPayload); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func fromModels(models []Detection) ([]detection.Record, error) {
	records := make([]detection.Record, 0, len(models))
	for i := range models {
		rec, err := fromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		records = append(records, *rec)
	}
	return records, nil
}

func marshalBBox(box *detection.BoundingBox) (datatypes.JSON, error) {
	if box == nil {
		return nil, nil
	}
	raw, err := json.Marshal(box)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func unmarshalBBox(raw datatypes.JSON) (*detection.BoundingBox, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var box detection.BoundingBox
	if err := json.Unmarshal(raw, &box); err != nil {
		return nil, err
	}
	return &box, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
