package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/deskctl/internal/desk"
)

var moveToTimeout time.Duration

// moveToCmd represents the move-to command
var moveToCmd = &cobra.Command{
	Use:   "move-to <height-mm>",
	Short: "Move the desk to an absolute height",
	Long: `Moves the desk to the given absolute height in millimetres and waits
until it settles within the configured tolerance.

A move that makes no progress (something blocking the desk, or its
collision protection tripping) is stopped and reported as an error.

Examples:
  # Standing height
  deskctl move-to -a F0:11:22:33:44:55 1100

  # Sitting height
  deskctl move-to -a F0:11:22:33:44:55 720`,
	Args: cobra.ExactArgs(1),
	RunE: runMoveTo,
}

func init() {
	moveToCmd.Flags().DurationVar(&moveToTimeout, "timeout", 60*time.Second, "Give up if the target is not reached within this duration")
}

func runMoveTo(cmd *cobra.Command, args []string) error {
	heightMM, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid height %q: %w", args[0], err)
	}

	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	d, err := openDriver(ctx, cmd, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	// Surface a stall as the command's error.
	stallCh := make(chan error, 1)
	unsubscribe := d.Subscribe(func(ev desk.Event) {
		if ev.Kind == desk.EventMoveStalled {
			select {
			case stallCh <- ev.Err:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := d.MoveTo(heightMM); err != nil {
		return err
	}

	// Give the controller a beat to pick the request up before polling for
	// the settled state.
	select {
	case <-time.After(150 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}

	deadline := time.After(moveToTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.Stop()
			waitIdle(context.Background(), d, 2*time.Second)
			return ctx.Err()
		case err := <-stallCh:
			return err
		case <-deadline:
			_ = d.Stop()
			waitIdle(context.Background(), d, 2*time.Second)
			return fmt.Errorf("timed out waiting for the desk to reach %.0f mm", heightMM)
		case <-ticker.C:
			if d.MoveState() != desk.Idle {
				continue
			}
			// A stall publishes just after the controller settles; give the
			// event a beat to arrive before declaring success.
			select {
			case err := <-stallCh:
				return err
			case <-time.After(50 * time.Millisecond):
			}
			st := d.CurrentState()
			if !st.Connected {
				return desk.ErrConnectionLost
			}
			fmt.Printf("Height: %.1f mm\n", st.HeightMM)
			return nil
		}
	}
}
