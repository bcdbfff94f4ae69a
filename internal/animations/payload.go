// Package animations validates pixel-grid animation payloads.
package animations

import (
	"errors"
	"fmt"

	"github.com/minii/backend/internal/models"
)

// GridSize is the fixed width and height of every frame.
const GridSize = 8

// Frame duration bounds in milliseconds.
const (
	MinFrameDuration = 50
	MaxFrameDuration = 5000
)

var (
	// ErrNoFrames indicates the payload carries no frames.
	ErrNoFrames = errors.New("animation must have at least one frame")
	// ErrBadDuration indicates the frame duration is out of range.
	ErrBadDuration = fmt.Errorf("frame duration must be between %d and %d milliseconds", MinFrameDuration, MaxFrameDuration)
)

// Validate checks that the payload is a well-formed pixel-grid animation:
// at least one frame, every frame an 8x8 matrix of binary cells, and a frame
// duration within bounds.
func Validate(animation models.Animation) error {
	if len(animation.Frames) == 0 {
		return ErrNoFrames
	}

	if animation.FrameDuration < MinFrameDuration || animation.FrameDuration > MaxFrameDuration {
		return ErrBadDuration
	}

	for i, frame := range animation.Frames {
		if len(frame) != GridSize {
			return fmt.Errorf("frame %d: expected %d rows, got %d", i, GridSize, len(frame))
		}
		for j, row := range frame {
			if len(row) != GridSize {
				return fmt.Errorf("frame %d row %d: expected %d cells, got %d", i, j, GridSize, len(row))
			}
			for _, cell := range row {
				if cell != 0 && cell != 1 {
					return fmt.Errorf("frame %d row %d: cells must be 0 or 1", i, j)
				}
			}
		}
	}

	return nil
}
