package detection

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testImage = base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff\xe0fake-jpeg"))

func fullPayload() *TollgatePayload {
	confidence := 92.0
	return &TollgatePayload{
		Picture: Picture{
			NormalPic: NormalPic{Content: testImage, PicName: "snap.jpg"},
			Plate: PlateInfo{
				BoundingBox: json.RawMessage(`[100, 200, 300, 250]`),
				Confidence:  &confidence,
				PlateNumber: "ABC123",
				PlateColor:  "White",
				Region:      "EU",
			},
			Vehicle: VehicleInfo{
				BoundingBox: json.RawMessage(`[50, 50, 800, 600]`),
				Color:       "Black",
				Type:        "SUV",
			},
			SnapInfo: SnapInfo{
				AccurateTime: "2026-08-25 14:30:01.123456",
				Direction:    "Obverse",
			},
		},
	}
}

func TestFromTollgate_FullPayload(t *testing.T) {
	rec, image, err := FromTollgate(fullPayload(), nil)
	if err != nil {
		t.Fatalf("FromTollgate failed: %v", err)
	}

	if len(image) == 0 {
		t.Error("image bytes empty")
	}
	want := time.Date(2026, 8, 25, 14, 30, 1, 123456000, time.Local)
	if !rec.DetectedAt.Equal(want) {
		t.Errorf("DetectedAt = %v, want %v", rec.DetectedAt, want)
	}
	if rec.Direction != "in" {
		t.Errorf("Direction = %q, want %q", rec.Direction, "in")
	}
	if rec.PlateNumber != "ABC123" {
		t.Errorf("PlateNumber = %q, want %q", rec.PlateNumber, "ABC123")
	}
	if rec.PlateConfidence == nil || *rec.PlateConfidence != 0.92 {
		t.Errorf("PlateConfidence = %v, want 0.92", rec.PlateConfidence)
	}
	if rec.PlateBBox == nil || *rec.PlateBBox != (BoundingBox{100, 200, 300, 250}) {
		t.Errorf("PlateBBox = %+v, want [100 200 300 250]", rec.PlateBBox)
	}
	if rec.VehicleBBox == nil || *rec.VehicleBBox != (BoundingBox{50, 50, 800, 600}) {
		t.Errorf("VehicleBBox = %+v, want [50 50 800 600]", rec.VehicleBBox)
	}
	if rec.DeliveryState != StatePending {
		t.Errorf("DeliveryState = %q, want %q", rec.DeliveryState, StatePending)
	}
}

func TestFromTollgate_OptionalFieldsAbsent(t *testing.T) {
	p := &TollgatePayload{
		Picture: Picture{
			NormalPic: NormalPic{Content: testImage},
			SnapInfo: SnapInfo{
				AccurateTime: "2026-08-25 14:30:01.123456",
				Direction:    "Reverse",
			},
		},
	}

	rec, _, err := FromTollgate(p, nil)
	if err != nil {
		t.Fatalf("FromTollgate failed: %v", err)
	}

	if rec.PlateNumber != "" {
		t.Errorf("PlateNumber = %q, want empty", rec.PlateNumber)
	}
	if rec.PlateConfidence != nil {
		t.Errorf("PlateConfidence = %v, want nil", rec.PlateConfidence)
	}
	if rec.PlateBBox != nil {
		t.Errorf("PlateBBox = %+v, want nil", rec.PlateBBox)
	}
	if rec.VehicleBBox != nil {
		t.Errorf("VehicleBBox = %+v, want nil", rec.VehicleBBox)
	}
	if rec.VehicleColor != "" {
		t.Errorf("VehicleColor = %q, want empty", rec.VehicleColor)
	}
	if rec.Direction != "out" {
		t.Errorf("Direction = %q, want %q", rec.Direction, "out")
	}
}

func TestFromTollgate_MissingMandatoryFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TollgatePayload)
	}{
		{
			name:   "missing timestamp",
			mutate: func(p *TollgatePayload) { p.Picture.SnapInfo.AccurateTime = "" },
		},
		{
			name:   "unparseable timestamp",
			mutate: func(p *TollgatePayload) { p.Picture.SnapInfo.AccurateTime = "not-a-time" },
		},
		{
			name:   "missing direction",
			mutate: func(p *TollgatePayload) { p.Picture.SnapInfo.Direction = "" },
		},
		{
			name:   "missing image",
			mutate: func(p *TollgatePayload) { p.Picture.NormalPic.Content = "" },
		},
		{
			name:   "image not base64",
			mutate: func(p *TollgatePayload) { p.Picture.NormalPic.Content = "%%%not-base64%%%" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullPayload()
			tt.mutate(p)
			_, _, err := FromTollgate(p, nil)
			if err == nil {
				t.Fatal("FromTollgate succeeded, want error")
			}
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestFromTollgate_RawImageOverridesContent(t *testing.T) {
	p := fullPayload()
	p.Picture.NormalPic.Content = ""
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	_, image, err := FromTollgate(p, raw)
	if err != nil {
		t.Fatalf("FromTollgate failed: %v", err)
	}
	if string(image) != string(raw) {
		t.Errorf("image = %v, want raw bytes", image)
	}
}

func TestFromTollgate_TimestampWithoutFraction(t *testing.T) {
	p := fullPayload()
	p.Picture.SnapInfo.AccurateTime = "2026-08-25 14:30:01"

	rec, _, err := FromTollgate(p, nil)
	if err != nil {
		t.Fatalf("FromTollgate failed: %v", err)
	}
	want := time.Date(2026, 8, 25, 14, 30, 1, 0, time.Local)
	if !rec.DetectedAt.Equal(want) {
		t.Errorf("DetectedAt = %v, want %v", rec.DetectedAt, want)
	}
}

func TestFromTollgate_UnknownDirectionPassesThrough(t *testing.T) {
	p := fullPayload()
	p.Picture.SnapInfo.Direction = "Sideways"

	rec, _, err := FromTollgate(p, nil)
	if err != nil {
		t.Fatalf("FromTollgate failed: %v", err)
	}
	if rec.Direction != "Sideways" {
		t.Errorf("Direction = %q, want pass-through %q", rec.Direction, "Sideways")
	}
}

func TestFromTollgate_MalformedBBoxDegrades(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
	}{
		{"wrong length", json.RawMessage(`[1, 2, 3]`)},
		{"not an array", json.RawMessage(`{"x": 1}`)},
		{"non numeric", json.RawMessage(`["a", "b", "c", "d"]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := fullPayload()
			p.Picture.Plate.BoundingBox = tt.raw
			rec, _, err := FromTollgate(p, nil)
			if err != nil {
				t.Fatalf("FromTollgate failed: %v", err)
			}
			if rec.PlateBBox != nil {
				t.Errorf("PlateBBox = %+v, want nil", rec.PlateBBox)
			}
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"device percent scale", 92, 0.92},
		{"already fractional", 0.5, 0.5},
		{"boundary one", 1, 1},
		{"clamped above", 150, 1},
		{"clamped below", -5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeConfidence(&tt.in)
			if got == nil || *got != tt.want {
				t.Errorf("normalizeConfidence(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}

	if got := normalizeConfidence(nil); got != nil {
		t.Errorf("normalizeConfidence(nil) = %v, want nil", got)
	}
}

func TestRecord_HasPlate(t *testing.T) {
	conf := func(v float64) *float64 { return &v }

	tests := []struct {
		name       string
		plate      string
		confidence *float64
		threshold  float64
		want       bool
	}{
		{"above threshold", "ABC123", conf(0.92), 0.7, true},
		{"at threshold", "ABC123", conf(0.7), 0.7, true},
		{"below threshold", "ABC123", conf(0.5), 0.7, false},
		{"no confidence", "ABC123", nil, 0.7, false},
		{"no plate", "", conf(0.99), 0.7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{PlateNumber: tt.plate, PlateConfidence: tt.confidence}
			if got := rec.HasPlate(tt.threshold); got != tt.want {
				t.Errorf("HasPlate(%v) = %v, want %v", tt.threshold, got, tt.want)
			}
		})
	}
}
