package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/srg/deskctl/internal/desk"
	"github.com/srg/deskctl/internal/linak"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "out of range target",
			err: &linak.RangeError{
				HeightMM: 1500,
				MinMM:    linak.MinHeightMM,
				MaxMM:    linak.MaxHeightMM,
			},
			want: "target height 1500 mm is outside the desk's range (620-1270 mm)",
		},
		{
			name: "stalled move",
			err: &desk.StallError{
				TargetMM: 900,
				HeightMM: 651,
				Elapsed:  5 * time.Second,
			},
			want: "the desk stopped making progress at 651 mm; is something blocking it?",
		},
		{
			name: "unreachable device",
			err:  fmt.Errorf("%w: dial tcp: host down", desk.ErrDeviceUnreachable),
			want: "cannot reach the desk: check that it is powered, in range, and that the address is correct",
		},
		{
			name: "lost connection",
			err:  fmt.Errorf("%w: write failed twice", desk.ErrConnectionLost),
			want: "the connection to the desk was lost",
		},
		{
			name: "timeout",
			err:  context.DeadlineExceeded,
			want: "operation timed out",
		},
		{
			name: "anything else passes through",
			err:  errors.New("boom"),
			want: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
