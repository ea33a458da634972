package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the desk's current height and speed",
	Long: `Connects to the desk, reads the height characteristic directly and
prints the current state.

Example:
  deskctl status -a F0:11:22:33:44:55`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if err := d.Refresh(); err != nil {
		return err
	}

	st := d.CurrentState()
	heightColor := color.New(color.FgCyan, color.Bold)
	fmt.Printf("Height: %s\n", heightColor.Sprintf("%.1f mm", st.HeightMM))
	fmt.Printf("Speed:  %.2f mm/s\n", st.SpeedMMS)
	fmt.Printf("State:  %s\n", d.MoveState())
	return nil
}
