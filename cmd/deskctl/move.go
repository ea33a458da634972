package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
)

var moveDuration time.Duration

// upCmd represents the up command
var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Drive the desk upwards",
	Long: `Drives the desk upwards for the given duration, then stops.

The desk only keeps moving while drive commands flow, so the move always
ends when this command exits. Ctrl+C stops the desk immediately.

Examples:
  # Nudge the desk up for one second
  deskctl up -a F0:11:22:33:44:55

  # Longer move
  deskctl up -a F0:11:22:33:44:55 --duration 3s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelativeMove(cmd, dirUp)
	},
}

// downCmd represents the down command
var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drive the desk downwards",
	Long: `Drives the desk downwards for the given duration, then stops.

See "deskctl up --help" for details and examples.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelativeMove(cmd, dirDown)
	},
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop any desk movement",
	Long: `Stops the desk immediately. Safe to run when the desk is already
stationary.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

type moveDirection int

const (
	dirUp moveDirection = iota
	dirDown
)

func init() {
	upCmd.Flags().DurationVar(&moveDuration, "duration", time.Second, "How long to drive the desk")
	downCmd.Flags().DurationVar(&moveDuration, "duration", time.Second, "How long to drive the desk")
}

func runRelativeMove(cmd *cobra.Command, dir moveDirection) error {
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

	if dir == dirUp {
		err = d.MoveUp()
	} else {
		err = d.MoveDown()
	}
	if err != nil {
		return err
	}

	select {
	case <-time.After(moveDuration):
	case <-ctx.Done():
	}

	if err := d.Stop(); err != nil {
		return err
	}
	waitIdle(context.Background(), d, 2*time.Second)

	if st := d.CurrentState(); st.Connected {
		fmt.Printf("Height: %.1f mm\n", st.HeightMM)
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	d, err := openDriver(ctx, cmd, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Stop(); err != nil {
		return err
	}
	waitIdle(ctx, d, 2*time.Second)

	fmt.Println("Stopped")
	return nil
}
