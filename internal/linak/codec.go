package linak

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Unit constants of the height/speed frame. The controller reports position
// as tenths of millimeters above the lowest mechanical stop; the speed scale
// is the commonly used empirical factor (the desk's maximum travel speed is
// roughly 38 mm/s).
const (
	// FrameSize is the fixed length of a height/speed notification frame:
	// little-endian uint16 position followed by little-endian int16 speed.
	FrameSize = 4

	// BaseHeightMM is the floor-to-desktop height at the lowest stop.
	BaseHeightMM = 620.0
	// TravelRangeMM is the mechanical travel above BaseHeightMM.
	TravelRangeMM = 650.0

	// MinHeightMM and MaxHeightMM bound valid absolute target heights.
	MinHeightMM = BaseHeightMM
	MaxHeightMM = BaseHeightMM + TravelRangeMM

	// SpeedScaleMMS converts a raw signed speed count to mm/s.
	SpeedScaleMMS = 0.00614

	tenthsPerMM = 10
)

// FrameError reports a notification frame of unexpected length. Devices
// occasionally emit truncated frames during busy periods; callers are
// expected to drop the frame and keep reading.
type FrameError struct {
	Length int
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed frame: %d bytes, want %d", e.Length, FrameSize)
}

// RangeError reports a requested target height outside the mechanical
// travel range.
type RangeError struct {
	HeightMM float64
	MinMM    float64
	MaxMM    float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("height %.1fmm out of range [%.0fmm, %.0fmm]", e.HeightMM, e.MinMM, e.MaxMM)
}

// DecodeHeight converts a height/speed frame to the absolute desk height in
// millimeters (floor to desktop).
func DecodeHeight(frame []byte) (float64, error) {
	if len(frame) != FrameSize {
		return 0, &FrameError{Length: len(frame)}
	}
	raw := binary.LittleEndian.Uint16(frame[0:2])
	return BaseHeightMM + float64(raw)/tenthsPerMM, nil
}

// DecodeSpeed converts a height/speed frame to the current travel speed in
// mm/s. Positive is up, negative is down, zero means the desk is at rest.
func DecodeSpeed(frame []byte) (float64, error) {
	if len(frame) != FrameSize {
		return 0, &FrameError{Length: len(frame)}
	}
	raw := int16(binary.LittleEndian.Uint16(frame[2:4]))
	return float64(raw) * SpeedScaleMMS, nil
}

// DecodeState decodes both fields of a height/speed frame.
func DecodeState(frame []byte) (heightMM, speedMMS float64, err error) {
	if heightMM, err = DecodeHeight(frame); err != nil {
		return 0, 0, err
	}
	if speedMMS, err = DecodeSpeed(frame); err != nil {
		return 0, 0, err
	}
	return heightMM, speedMMS, nil
}

// EncodeTarget converts an absolute height in millimeters to the
// little-endian reference-input frame. The inverse of DecodeHeight, accurate
// to one raw unit (0.1 mm). Heights outside [MinHeightMM, MaxHeightMM] are
// rejected with a RangeError.
func EncodeTarget(heightMM float64) ([]byte, error) {
	if heightMM < MinHeightMM || heightMM > MaxHeightMM {
		return nil, &RangeError{HeightMM: heightMM, MinMM: MinHeightMM, MaxMM: MaxHeightMM}
	}
	raw := uint16(math.Round((heightMM - BaseHeightMM) * tenthsPerMM))
	frame := make([]byte, 2)
	binary.LittleEndian.PutUint16(frame, raw)
	return frame, nil
}
