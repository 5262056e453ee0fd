// Package imaging renders the notification image: the plate bounding
// box drawn on the frame, cropped down to the vehicle when its box is
// known. Device-reported boxes are not guaranteed in-bounds, so every
// rectangle is clamped to the frame instead of failing.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"anpr-gate-service/internal/domain/detection"
)

var plateBoxColor = color.RGBA{G: 255}

// Compose annotates and crops one frame. Missing boxes degrade: no
// plate box means no annotation, no vehicle box means the full frame.
func Compose(src []byte, plateBox, vehicleBox *detection.BoundingBox) ([]byte, error) {
	img, err := gocv.IMDecode(src, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("decode image: empty frame")
	}

	frame := image.Rect(0, 0, img.Cols(), img.Rows())

	if plateBox != nil {
		if r := clamp(plateBox, frame); !r.Empty() {
			gocv.Rectangle(&img, r, plateBoxColor, 2)
		}
	}

	region := frame
	if vehicleBox != nil {
		if r := clamp(vehicleBox, frame); !r.Empty() {
			region = r
		}
	}

	var buf *gocv.NativeByteBuffer
	if region == frame {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, img)
	} else {
		crop := img.Region(region)
		defer crop.Close()
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, crop)
	}
	if err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func clamp(box *detection.BoundingBox, frame image.Rectangle) image.Rectangle {
	return image.Rect(box.X1, box.Y1, box.X2, box.Y2).Intersect(frame)
}
