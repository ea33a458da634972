package linak

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFrame(posTenthsMM uint16, speedCounts int16) []byte {
	frame := make([]byte, FrameSize)
	binary.LittleEndian.PutUint16(frame[0:2], posTenthsMM)
	binary.LittleEndian.PutUint16(frame[2:4], uint16(speedCounts))
	return frame
}

func TestDecodeState_KnownFrames(t *testing.T) {
	tests := []struct {
		name        string
		posTenths   uint16
		speedCounts int16
		wantHeight  float64
		wantSpeed   float64
	}{
		{
			name:        "lowest position at rest",
			posTenths:   0,
			speedCounts: 0,
			wantHeight:  620,
			wantSpeed:   0,
		},
		{
			name:        "mid travel moving up",
			posTenths:   1000,
			speedCounts: 1000,
			wantHeight:  720,
			wantSpeed:   6.14,
		},
		{
			name:        "moving down reports negative speed",
			posTenths:   2550,
			speedCounts: -1000,
			wantHeight:  875,
			wantSpeed:   -6.14,
		},
		{
			name:        "highest position",
			posTenths:   6500,
			speedCounts: 0,
			wantHeight:  1270,
			wantSpeed:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			heightMM, speedMMS, err := DecodeState(rawFrame(tt.posTenths, tt.speedCounts))
			require.NoError(t, err)
			assert.InDelta(t, tt.wantHeight, heightMM, 1e-9)
			assert.InDelta(t, tt.wantSpeed, speedMMS, 1e-9)
		})
	}
}

func TestDecodeState_MalformedFrames(t *testing.T) {
	for _, length := range []int{0, 1, 2, 3, 5, 20} {
		_, _, err := DecodeState(make([]byte, length))
		require.Error(t, err, "frame of length %d must be rejected", length)

		var frameErr *FrameError
		require.ErrorAs(t, err, &frameErr)
		assert.Equal(t, length, frameErr.Length)
	}
}

func TestDecodeHeight_MatchesDecodeState(t *testing.T) {
	frame := rawFrame(1234, 42)

	heightMM, err := DecodeHeight(frame)
	require.NoError(t, err)

	stateHeight, _, err := DecodeState(frame)
	require.NoError(t, err)
	assert.Equal(t, stateHeight, heightMM)
}

func TestEncodeTarget_RoundTrip(t *testing.T) {
	for _, heightMM := range []float64{620, 650.5, 900, 1100, 1270} {
		encoded, err := EncodeTarget(heightMM)
		require.NoError(t, err)
		require.Len(t, encoded, 2)

		// Reconstruct a full frame around the encoded position and decode it.
		frame := append(encoded, 0, 0)
		decoded, err := DecodeHeight(frame)
		require.NoError(t, err)
		assert.InDelta(t, heightMM, decoded, 0.05, "round trip must preserve height within encoding resolution")
	}
}

func TestEncodeTarget_Bounds(t *testing.T) {
	low, err := EncodeTarget(MinHeightMM)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, low)

	high, err := EncodeTarget(MaxHeightMM)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x64, 0x19}, high) // 6500 tenths of a millimetre
}

func TestEncodeTarget_OutOfRange(t *testing.T) {
	for _, heightMM := range []float64{0, 500, 619, 1271, 2000, -100} {
		_, err := EncodeTarget(heightMM)
		require.Error(t, err, "height %.0f must be rejected", heightMM)

		var rangeErr *RangeError
		require.True(t, errors.As(err, &rangeErr))
		assert.Equal(t, heightMM, rangeErr.HeightMM)
		assert.Equal(t, MinHeightMM, rangeErr.MinMM)
		assert.Equal(t, MaxHeightMM, rangeErr.MaxMM)
	}
}

func TestCommandOpcodes(t *testing.T) {
	assert.Equal(t, []byte{0x47, 0x00}, CommandUp)
	assert.Equal(t, []byte{0x46, 0x00}, CommandDown)
	assert.Equal(t, []byte{0xFF, 0x00}, CommandStop)
	assert.Equal(t, []byte{0x01, 0x80}, ReferenceInputStop)
}
