// Package interactive provides the interactive command-line interface
// for the slit console.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/photon-controls/slits-go/pkg/gateway"
	"github.com/photon-controls/slits-go/pkg/positioner"
	"github.com/photon-controls/slits-go/pkg/slits"
	"github.com/photon-controls/slits-go/pkg/status"
)

// Options configures the interactive console.
type Options struct {
	// Timeout is the per-move timeout. Zero selects the device default.
	Timeout time.Duration
}

// Console handles interactive mode for slit-console.
type Console struct {
	device  *slits.Slits
	client  *gateway.Client
	timeout time.Duration
	rl      *readline.Instance

	closeOnce sync.Once

	// Watch state, touched only from the command loop.
	watching bool
	watchID  int
}

// New creates a new interactive console handler.
func New(device *slits.Slits, client *gateway.Client, opts Options) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "slits> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		device:  device,
		client:  client,
		timeout: opts.Timeout,
		rl:      rl,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline
// input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Close releases the terminal. Safe to call more than once.
func (c *Console) Close() {
	c.closeOnce.Do(func() { c.rl.Close() })
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status", "st":
			c.cmdStatus()

		case "move", "m":
			c.cmdMove(args)

		case "remove":
			c.cmdRemove(args)

		case "open":
			c.cmdCommand("open", c.device.Open)

		case "close":
			c.cmdCommand("close", c.device.Close)

		case "block":
			c.cmdCommand("block", c.device.Block)

		case "stop":
			c.device.Stop()
			fmt.Fprintln(c.rl.Stdout(), "All axes stopped")

		case "aperture", "ap":
			c.cmdAperture()

		case "transmission", "tr":
			c.cmdTransmission()

		case "watch", "w":
			c.cmdWatch(args)

		case "stage":
			c.cmdStage()

		case "restore":
			c.cmdRestore()

		case "pvs":
			c.cmdPVs()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Slit Console Commands:
  Motion:
    move <w> [h]       - Move to aperture w x h (height defaults to width)
    remove [size]      - Retract to the nominal (or square) aperture
    stop               - Halt all four axes
    open               - Drive both blades to the open width
    close              - Drive both blades to zero
    block              - Overlap the blades to cut the beam

  Readout:
    status             - Show device and axis state
    aperture           - Show the current opening
    transmission       - Show the estimated beam transmission
    watch on|off       - Stream aperture changes to the console
    pvs                - List the channels the gateway serves

  Scan support:
    stage              - Snapshot the current opening
    restore            - Return to the staged opening

  General:
    help               - Show this help
    quit               - Exit console`)
}

// cmdStatus shows the device status.
func (c *Console) cmdStatus() {
	out := c.rl.Stdout()

	fmt.Fprintln(out, "\nSlit Status")
	fmt.Fprintln(out, "-------------------------------------------")
	fmt.Fprintf(out, "  Device:        %s\n", c.device.Name())
	fmt.Fprintf(out, "  Prefix:        %s\n", c.device.Prefix())
	nominal := c.device.Nominal()
	fmt.Fprintf(out, "  Nominal:       %.3f x %.3f\n", nominal.Width, nominal.Height)
	if c.client != nil {
		fmt.Fprintf(out, "  Gateway:       protocol %s\n", c.client.ServerVersion())
	}

	fmt.Fprintln(out)
	for _, p := range []*positioner.Positioner{
		c.device.XWidth(), c.device.YWidth(), c.device.XCenter(), c.device.YCenter(),
	} {
		state := "?"
		if done, err := p.Done(); err == nil {
			state = "moving"
			if done {
				state = "idle"
			}
		}
		fmt.Fprintf(out, "  %-9s %s -> %s %s [%s]\n",
			p.Kind().String()+":", readFloat(p.Setpoint), readFloat(p.Position), p.EGU(), state)
	}
	fmt.Fprintln(out)

	if blocked, err := c.device.Blocked(); err == nil && blocked {
		fmt.Fprintln(out, "  Blocked:       yes")
	}
	if t, err := c.device.Transmission(); err == nil {
		fmt.Fprintf(out, "  Transmission:  %.3f\n", t)
	}
	if inserted, err := c.device.Inserted(); err == nil {
		state := "removed"
		if inserted {
			state = "inserted"
		}
		fmt.Fprintf(out, "  Beam state:    %s\n", state)
	}
	if staged := c.device.Staged(); staged != nil {
		w := staged[c.device.XWidth().SetpointName()]
		h := staged[c.device.YWidth().SetpointName()]
		fmt.Fprintf(out, "  Staged:        %.3f x %.3f\n", w, h)
	}
	watch := "off"
	if c.watching {
		watch = "on"
	}
	fmt.Fprintf(out, "  Watch:         %s\n", watch)
	fmt.Fprintln(out)
}

// cmdMove handles the move command.
func (c *Console) cmdMove(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: move <width> [height]")
		fmt.Fprintln(c.rl.Stdout(), "  Example: move 2.5 1.0")
		return
	}

	w, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Invalid width: %v\n", err)
		return
	}
	h := w
	if len(args) >= 2 {
		h, err = strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid height: %v\n", err)
			return
		}
	}

	c.dispatchMove(slits.Aperture{Width: w, Height: h})
}

// cmdRemove handles the remove command.
func (c *Console) cmdRemove(args []string) {
	opts := slits.MoveOptions{Timeout: c.timeout}
	target := c.device.Nominal()

	var st *status.MoveStatus
	var err error
	if len(args) >= 1 {
		size, perr := strconv.ParseFloat(args[0], 64)
		if perr != nil {
			fmt.Fprintf(c.rl.Stdout(), "Invalid size: %v\n", perr)
			return
		}
		target = slits.Square(size)
		st, err = c.device.RemoveTo(target, opts)
	} else {
		st, err = c.device.Remove(opts)
	}
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Remove failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "Retracting to %.3f x %.3f\n", target.Width, target.Height)
	st.AddCallback(func() { c.moveSettled(target, st) })
}

// dispatchMove starts a move and reports its completion asynchronously,
// so the prompt stays live while the blades travel.
func (c *Console) dispatchMove(ap slits.Aperture) {
	st, err := c.device.Move(ap, slits.MoveOptions{Timeout: c.timeout})
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Move failed: %v\n", err)
		return
	}

	fmt.Fprintf(c.rl.Stdout(), "Moving to %.3f x %.3f\n", ap.Width, ap.Height)
	st.AddCallback(func() {
		c.moveSettled(ap, st)
	})
}

// moveSettled prints the outcome of an asynchronous move.
func (c *Console) moveSettled(ap slits.Aperture, st *status.MoveStatus) {
	stamp := time.Now().Format("15:04:05")
	if err := st.Err(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "\n[%s] Move to %.3f x %.3f failed: %v\n",
			stamp, ap.Width, ap.Height, err)
	} else {
		fmt.Fprintf(c.rl.Stdout(), "\n[%s] Move to %.3f x %.3f complete\n",
			stamp, ap.Width, ap.Height)
	}
	c.rl.Refresh()
}

// cmdCommand triggers one of the discrete blade commands.
func (c *Console) cmdCommand(name string, fn func() error) {
	if err := fn(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Command %s failed: %v\n", name, err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "OK")
}

// cmdAperture shows the current opening.
func (c *Console) cmdAperture() {
	ap, err := c.device.CurrentAperture()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%.3f x %.3f %s\n", ap.Width, ap.Height, c.device.XWidth().EGU())
}

// cmdTransmission shows the estimated transmission.
func (c *Console) cmdTransmission() {
	t, err := c.device.Transmission()
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%.3f (%.1f%%)\n", t, t*100)
}

// cmdWatch turns the aperture change stream on or off.
func (c *Console) cmdWatch(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: watch on|off")
		return
	}

	switch strings.ToLower(args[0]) {
	case "on":
		if c.watching {
			fmt.Fprintln(c.rl.Stdout(), "Already watching")
			return
		}
		id, err := c.device.Subscribe(c.watchEvent, slits.SubscribeOptions{Run: true})
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Watch failed: %v\n", err)
			return
		}
		c.watchID = id
		c.watching = true

	case "off":
		if !c.watching {
			fmt.Fprintln(c.rl.Stdout(), "Not watching")
			return
		}
		if err := c.device.Unsubscribe(c.watchID); err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Unwatch failed: %v\n", err)
			return
		}
		c.watching = false
		fmt.Fprintln(c.rl.Stdout(), "Watch off")

	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: watch on|off")
	}
}

// watchEvent displays one aperture change.
func (c *Console) watchEvent(ev slits.Event) {
	fmt.Fprintf(c.rl.Stdout(), "\n[%s] %s: aperture %.3f x %.3f\n",
		ev.Timestamp.Format("15:04:05"), ev.Device, ev.Aperture.Width, ev.Aperture.Height)
	c.rl.Refresh()
}

// cmdStage snapshots the current opening.
func (c *Console) cmdStage() {
	if err := c.device.Stage(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Stage failed: %v\n", err)
		return
	}
	staged := c.device.Staged()
	w := staged[c.device.XWidth().SetpointName()]
	h := staged[c.device.YWidth().SetpointName()]
	fmt.Fprintf(c.rl.Stdout(), "Staged at %.3f x %.3f\n", w, h)
}

// cmdRestore returns to the staged opening.
func (c *Console) cmdRestore() {
	if c.device.Staged() == nil {
		fmt.Fprintln(c.rl.Stdout(), "Not staged")
		return
	}
	if err := c.device.Unstage(); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Restore failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.rl.Stdout(), "Restoring staged aperture")
}

// cmdPVs lists the channels the gateway serves.
func (c *Console) cmdPVs() {
	if c.client == nil {
		fmt.Fprintln(c.rl.Stdout(), "No gateway connection")
		return
	}
	names, err := c.client.ListPVs(context.Background())
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	for _, name := range names {
		fmt.Fprintf(c.rl.Stdout(), "  %s\n", name)
	}
	fmt.Fprintf(c.rl.Stdout(), "%d channels\n", len(names))
}

func readFloat(get func() (float64, error)) string {
	v, err := get()
	if err != nil {
		return "?"
	}
	return fmt.Sprintf("%.3f", v)
}
