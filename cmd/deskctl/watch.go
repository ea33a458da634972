package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/deskctl/internal/desk"
)

var watchInteractive bool

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live height updates",
	Long: `Streams height and speed updates until interrupted with Ctrl+C.

With --interactive the keyboard drives the desk while watching:
  u  move up      d  move down
  s  stop         q  quit

Examples:
  # Watch height updates
  deskctl watch -a F0:11:22:33:44:55

  # Drive the desk from the keyboard
  deskctl watch -a F0:11:22:33:44:55 --interactive`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVarP(&watchInteractive, "interactive", "i", false, "Control the desk with the keyboard while watching")
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	lineEnd := "\n"
	if watchInteractive {
		// Raw mode needs explicit carriage returns.
		lineEnd = "\r\n"
	}

	unsubscribe := d.Subscribe(func(ev desk.Event) {
		switch ev.Kind {
		case desk.EventState:
			fmt.Printf("\r\033[K%s  %+.2f mm/s",
				color.CyanString("%.1f mm", ev.State.HeightMM), ev.State.SpeedMMS)
		case desk.EventConnected:
			fmt.Printf("%s%s", color.GreenString("connected"), lineEnd)
		case desk.EventDisconnected:
			fmt.Printf("%s%s%s", lineEnd, color.YellowString("disconnected, reconnecting..."), lineEnd)
		case desk.EventMoveStalled:
			fmt.Printf("%s%s%s", lineEnd, color.RedString("move stalled: %v", ev.Err), lineEnd)
		}
	})
	defer unsubscribe()

	if !watchInteractive {
		<-ctx.Done()
		fmt.Println()
		return nil
	}
	return runInteractive(ctx, d)
}

// runInteractive puts the terminal into raw mode and maps single keys onto
// move commands until q or Ctrl+C.
func runInteractive(ctx context.Context, d *desk.Driver) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to enter raw terminal mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, oldState) }()

	fmt.Print("u: up  d: down  s: stop  q: quit\r\n")

	keys := make(chan byte, 8)
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				close(keys)
				return
			}
			if n > 0 {
				keys <- buf[0]
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-keys:
			if !ok {
				return nil
			}
			switch key {
			case 'u':
				if err := d.MoveUp(); err != nil {
					return err
				}
			case 'd':
				if err := d.MoveDown(); err != nil {
					return err
				}
			case 's':
				if err := d.Stop(); err != nil {
					return err
				}
			case 'q', 0x03: // q or Ctrl+C
				return nil
			}
		}
	}
}
