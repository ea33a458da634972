package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/deskctl/internal/desk"
	"github.com/srg/deskctl/internal/linak"
)

// FormatUserError maps internal errors onto actionable one-line messages
// for the terminal.
func FormatUserError(err error) string {
	var rangeErr *linak.RangeError
	var stallErr *desk.StallError

	switch {
	case errors.As(err, &rangeErr):
		return fmt.Sprintf("target height %.0f mm is outside the desk's range (%.0f-%.0f mm)",
			rangeErr.HeightMM, rangeErr.MinMM, rangeErr.MaxMM)
	case errors.As(err, &stallErr):
		return fmt.Sprintf("the desk stopped making progress at %.0f mm; is something blocking it?",
			stallErr.HeightMM)
	case errors.Is(err, desk.ErrDeviceUnreachable):
		return "cannot reach the desk: check that it is powered, in range, and that the address is correct"
	case errors.Is(err, desk.ErrConnectionLost):
		return "the connection to the desk was lost"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	default:
		return err.Error()
	}
}
