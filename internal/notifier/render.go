package notifier

import (
	"fmt"
	"strings"

	"anpr-gate-service/internal/domain/detection"
)

// PlateNotRecognized is shown when the OCR produced no usable plate. A
// below-threshold guess must never leak into the message, so the
// marker replaces the plate text entirely.
const PlateNotRecognized = "⚠️ License plate not recognized"

// PlateNotDetected is shown when the camera saw no plate at all.
const PlateNotDetected = "🚨 No license plate detected"

// RenderCaption builds the operator-facing message for one detection.
func RenderCaption(rec *detection.Record, threshold float64) string {
	var b strings.Builder
	b.WriteString("🚗 Vehicle detected\n")
	b.WriteString(fmt.Sprintf("📏 Direction: %s\n", directionMarker(rec.Direction)))

	switch {
	case rec.HasPlate(threshold):
		b.WriteString(fmt.Sprintf("📝 License plate: %s\n", rec.PlateNumber))
	case rec.PlateNumber != "" || rec.PlateBBox != nil:
		b.WriteString(PlateNotRecognized + "\n")
	default:
		b.WriteString(PlateNotDetected + "\n")
	}

	b.WriteString(fmt.Sprintf("⏱️ Time: %s", rec.DetectedAt.Format("2006-01-02 15:04:05")))
	return b.String()
}

func directionMarker(direction string) string {
	switch direction {
	case "in":
		return "⬇️ in"
	case "out":
		return "⬆️ out"
	default:
		return "❓ " + direction
	}
}
