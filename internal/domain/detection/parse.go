package detection

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedPayload marks a detection event missing one of the fields
// the pipeline cannot proceed without: capture time, direction, image.
// Every other field degrades to absent.
var ErrMalformedPayload = errors.New("malformed payload")

// The camera timestamps with microsecond precision; some firmware
// revisions drop the fraction entirely.
var snapTimeLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
}

// FromTollgate decodes one detection event into a Record plus the raw
// image bytes. rawImage, when non-nil, is the image from a binary
// (multipart) transport and takes precedence over the base64 Content.
func FromTollgate(p *TollgatePayload, rawImage []byte) (*Record, []byte, error) {
	snap := p.Picture.SnapInfo

	if snap.AccurateTime == "" {
		return nil, nil, fmt.Errorf("%w: SnapInfo.AccurateTime is required", ErrMalformedPayload)
	}
	detectedAt, err := parseSnapTime(snap.AccurateTime)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid SnapInfo.AccurateTime %q", ErrMalformedPayload, snap.AccurateTime)
	}

	if snap.Direction == "" {
		return nil, nil, fmt.Errorf("%w: SnapInfo.Direction is required", ErrMalformedPayload)
	}

	image := rawImage
	if image == nil {
		if p.Picture.NormalPic.Content == "" {
			return nil, nil, fmt.Errorf("%w: image payload is required", ErrMalformedPayload)
		}
		image, err = base64.StdEncoding.DecodeString(p.Picture.NormalPic.Content)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: image payload is not valid base64", ErrMalformedPayload)
		}
	}
	if len(image) == 0 {
		return nil, nil, fmt.Errorf("%w: image payload is empty", ErrMalformedPayload)
	}

	rec := &Record{
		DetectedAt:    detectedAt,
		Direction:     normalizeDirection(snap.Direction),
		PlateNumber:   p.Picture.Plate.PlateNumber,
		PlateColor:    p.Picture.Plate.PlateColor,
		PlateType:     p.Picture.Plate.PlateType,
		PlateRegion:   p.Picture.Plate.Region,
		VehicleColor:  p.Picture.Vehicle.Color,
		VehicleType:   p.Picture.Vehicle.Type,
		VehicleSeries: p.Picture.Vehicle.Series,
		DeliveryState: StatePending,
	}
	rec.PlateConfidence = normalizeConfidence(p.Picture.Plate.Confidence)
	rec.PlateBBox = decodeBBox(p.Picture.Plate.BoundingBox)
	rec.VehicleBBox = decodeBBox(p.Picture.Vehicle.BoundingBox)

	return rec, image, nil
}

func parseSnapTime(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range snapTimeLayouts {
		t, err := time.ParseInLocation(layout, raw, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// normalizeDirection maps the device vocabulary onto in/out. Values
// outside the known set pass through untouched: newer firmware may
// report directions this build has never seen.
func normalizeDirection(raw string) string {
	switch strings.ToLower(raw) {
	case "obverse":
		return "in"
	case "reverse":
		return "out"
	default:
		return raw
	}
}

// normalizeConfidence converts the device's 0-100 integer scale to the
// 0.0-1.0 scale used everywhere downstream.
func normalizeConfidence(raw *float64) *float64 {
	if raw == nil {
		return nil
	}
	c := *raw
	if c > 1 {
		c = c / 100
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return &c
}

// decodeBBox tolerates absent or unrecognized encodings: anything that
// is not a four-coordinate array degrades to nil rather than failing
// the whole event.
func decodeBBox(raw json.RawMessage) *BoundingBox {
	if len(raw) == 0 {
		return nil
	}
	var box BoundingBox
	if err := json.Unmarshal(raw, &box); err != nil {
		return nil
	}
	return &box
}
