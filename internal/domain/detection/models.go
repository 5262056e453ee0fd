package detection

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeliveryState is the outbound-notification lifecycle of a detection.
type DeliveryState string

const (
	StatePending DeliveryState = "PENDING"
	StateSent    DeliveryState = "SENT"
	StateFailed  DeliveryState = "FAILED"
)

// BoundingBox is a rectangle in source-image pixel space. The device
// encodes it as a four-element [x1, y1, x2, y2] array.
type BoundingBox struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{b.X1, b.Y1, b.X2, b.Y2})
}

func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return err
	}
	if len(coords) != 4 {
		return fmt.Errorf("bounding box: expected 4 coordinates, got %d", len(coords))
	}
	b.X1, b.Y1, b.X2, b.Y2 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// Record is one persisted vehicle detection. Optional fields stay at
// their zero/nil value when the device did not report them.
type Record struct {
	ID              string
	DetectedAt      time.Time
	Direction       string
	PlateNumber     string
	NormalizedPlate string
	PlateConfidence *float64
	PlateBBox       *BoundingBox
	PlateColor      string
	PlateType       string
	PlateRegion     string
	VehicleBBox     *BoundingBox
	VehicleColor    string
	VehicleType     string
	VehicleSeries   string
	ImagePath       string
	DeliveryState   DeliveryState
	FailureReason   string
	RawPayload      map[string]interface{}
	CreatedAt       time.Time
	SentAt          *time.Time
}

// HasPlate reports whether the plate text may be shown to operators:
// the OCR produced text and its confidence clears the threshold.
func (r *Record) HasPlate(threshold float64) bool {
	if r.PlateNumber == "" {
		return false
	}
	if r.PlateConfidence == nil {
		return false
	}
	return *r.PlateConfidence >= threshold
}

// TollgatePayload is the ITSAPI detection-event body.
type TollgatePayload struct {
	Picture Picture `json:"Picture"`
}

type Picture struct {
	NormalPic NormalPic   `json:"NormalPic"`
	Plate     PlateInfo   `json:"Plate"`
	Vehicle   VehicleInfo `json:"Vehicle"`
	SnapInfo  SnapInfo    `json:"SnapInfo"`
}

type NormalPic struct {
	// Content carries the JPEG base64-encoded when the camera runs in
	// text transport mode; in binary mode the image arrives as a
	// separate multipart part and Content is empty.
	Content string `json:"Content"`
	PicName string `json:"PicName"`
}

type PlateInfo struct {
	BoundingBox json.RawMessage `json:"BoundingBox,omitempty"`
	Channel     *int            `json:"Channel,omitempty"`
	Confidence  *float64        `json:"Confidence,omitempty"`
	IsExist     *bool           `json:"IsExist,omitempty"`
	PlateColor  string          `json:"PlateColor,omitempty"`
	PlateNumber string          `json:"PlateNumber,omitempty"`
	PlateType   string          `json:"PlateType,omitempty"`
	Region      string          `json:"Region,omitempty"`
	UploadNum   *int            `json:"UploadNum,omitempty"`
}

type VehicleInfo struct {
	BoundingBox json.RawMessage `json:"VehicleBoundingBox,omitempty"`
	Color       string          `json:"VehicleColor,omitempty"`
	Series      string          `json:"VehicleSeries,omitempty"`
	Sign        string          `json:"VehicleSign,omitempty"`
	Type        string          `json:"VehicleType,omitempty"`
}

type SnapInfo struct {
	AccurateTime string `json:"AccurateTime,omitempty"`
	Direction    string `json:"Direction,omitempty"`
	TimeZone     *int   `json:"TimeZone,omitempty"`
	AllowUser    *bool  `json:"AllowUser,omitempty"`
	BlockUser    *bool  `json:"BlockUser,omitempty"`
}

// HeartbeatPayload is the ITSAPI keep-alive body.
type HeartbeatPayload struct {
	DeviceID string `json:"DeviceID,omitempty"`
	Time     string `json:"Time,omitempty"`
	Status   string `json:"Status,omitempty"`
}
