package notifier

import (
	"strings"
	"testing"
	"time"

	"anpr-gate-service/internal/domain/detection"
)

func TestRenderCaption(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	detectedAt := time.Date(2026, 8, 25, 14, 30, 1, 0, time.Local)
	box := &detection.BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 50}

	tests := []struct {
		name        string
		rec         detection.Record
		threshold   float64
		wantPlate   bool
		wantMarker  string
		wantMissing string
	}{
		{
			name: "confident plate is shown",
			rec: detection.Record{
				PlateNumber:     "ABC123",
				PlateConfidence: conf(0.92),
				Direction:       "in",
				DetectedAt:      detectedAt,
			},
			threshold: 0.7,
			wantPlate: true,
		},
		{
			name: "low confidence shows not-recognized, never the guess",
			rec: detection.Record{
				PlateNumber:     "ABC123",
				PlateConfidence: conf(0.5),
				Direction:       "in",
				DetectedAt:      detectedAt,
			},
			threshold:   0.7,
			wantMarker:  PlateNotRecognized,
			wantMissing: "ABC123",
		},
		{
			name: "plate box without text shows not-recognized",
			rec: detection.Record{
				PlateBBox:  box,
				Direction:  "out",
				DetectedAt: detectedAt,
			},
			threshold:  0.7,
			wantMarker: PlateNotRecognized,
		},
		{
			name: "no plate at all shows not-detected",
			rec: detection.Record{
				Direction:  "out",
				DetectedAt: detectedAt,
			},
			threshold:  0.7,
			wantMarker: PlateNotDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caption := RenderCaption(&tt.rec, tt.threshold)

			if tt.wantPlate && !strings.Contains(caption, tt.rec.PlateNumber) {
				t.Errorf("caption %q does not contain plate %q", caption, tt.rec.PlateNumber)
			}
			if tt.wantMarker != "" && !strings.Contains(caption, tt.wantMarker) {
				t.Errorf("caption %q does not contain marker %q", caption, tt.wantMarker)
			}
			if tt.wantMissing != "" && strings.Contains(caption, tt.wantMissing) {
				t.Errorf("caption %q leaks %q", caption, tt.wantMissing)
			}
			if !strings.Contains(caption, "2026-08-25 14:30:01") {
				t.Errorf("caption %q does not contain the timestamp", caption)
			}
			if !strings.Contains(caption, tt.rec.Direction) {
				t.Errorf("caption %q does not contain direction %q", caption, tt.rec.Direction)
			}
		})
	}
}
