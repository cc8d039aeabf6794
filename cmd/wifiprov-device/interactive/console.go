// Package interactive provides the interactive command-line interface
// for the simulated provisioning device.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/wifiprov/wifiprov-go/internal/simstack"
	"github.com/wifiprov/wifiprov-go/pkg/discovery"
	"github.com/wifiprov/wifiprov-go/pkg/wifi"
)

// Target is the device the console drives.
type Target struct {
	Sim    *simstack.Sim
	Module *wifi.Module

	// Announcer is the device's mDNS announcement. Optional.
	Announcer *discovery.Announcer
}

// Console handles interactive mode for wifiprov-device.
type Console struct {
	rl *readline.Instance
}

// New creates a new interactive console. The console owns the terminal from
// here on, so loggers should write to Stdout before the device is built.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "wifiprov> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop against the given device.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc, target Target) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
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
		if !Execute(c.rl.Stdout(), target, strings.Fields(input)) {
			cancel()
			return
		}
	}
}

func (c *Console) printHelp() {
	printHelp(c.rl.Stdout())
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `
Commands:
  provision <ssid> [pass] [pop]  - Answer the open provisioning session
  disconnect [reason]            - Drop the station association (default reason 8)
  lose-ip                        - Drop the station's addresses
  renew                          - Reassign addresses
  fail <n>                       - Fail the next n connect attempts
  status                         - Show module and stack status
  reset                          - Erase stored credentials
  firmware <version>             - Re-announce with a new firmware version
  help                           - Show this help
  quit                           - Exit

`)
}

// Execute runs one console command. It returns false when the console
// should exit.
func Execute(w io.Writer, t Target, args []string) bool {
	sim, mod := t.Sim, t.Module
	switch strings.ToLower(args[0]) {
	case "help", "?":
		printHelp(w)

	case "provision":
		cmdProvision(w, sim, mod, args[1:])

	case "disconnect":
		reason := simstack.ReasonAssocLeave
		if len(args) > 1 {
			n, err := strconv.ParseUint(args[1], 10, 8)
			if err != nil {
				fmt.Fprintf(w, "Invalid reason %q: must be 0-255\n", args[1])
				return true
			}
			reason = uint8(n)
		}
		report(w, sim.Disconnect(reason), "Disconnected with reason %d", reason)

	case "lose-ip":
		report(w, sim.LoseIP(), "Addresses dropped")

	case "renew":
		report(w, sim.RenewIP(), "Addresses renewed")

	case "fail":
		if len(args) < 2 {
			fmt.Fprintln(w, "Usage: fail <n>")
			return true
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			fmt.Fprintf(w, "Invalid count %q\n", args[1])
			return true
		}
		sim.SetConnectFailures(n)
		fmt.Fprintf(w, "Next %d connect attempts will fail\n", n)

	case "status":
		printStatus(w, t)

	case "reset":
		report(w, sim.Reset(), "Credentials erased, the device provisions on next start")

	case "firmware":
		cmdFirmware(w, t.Announcer, args[1:])

	case "quit", "exit", "q":
		fmt.Fprintln(w, "Exiting...")
		return false

	default:
		fmt.Fprintf(w, "Unknown command: %s (type 'help' for commands)\n", args[0])
	}
	return true
}

func cmdProvision(w io.Writer, sim *simstack.Sim, mod *wifi.Module, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(w, "Usage: provision <ssid> [pass] [pop]")
		return
	}
	ssid := args[0]
	pass := ""
	if len(args) > 1 {
		pass = args[1]
	}
	pop := mod.Identity().ProofOfPossession()
	if len(args) > 2 {
		pop = args[2]
	}
	report(w, sim.ProvideCredentials(pop, ssid, pass), "Credentials for %q accepted", ssid)
}

// cmdFirmware changes the firmware version carried in the announcement, as
// after an over-the-air update.
func cmdFirmware(w io.Writer, announcer *discovery.Announcer, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(w, "Usage: firmware <version>")
		return
	}
	if announcer == nil {
		fmt.Fprintln(w, "Announcements are disabled")
		return
	}
	info, ok := announcer.Announced()
	if !ok {
		fmt.Fprintln(w, "Error: device is not announced yet")
		return
	}
	info.Firmware = args[0]
	report(w, announcer.Update(info), "Announcing firmware %s", info.Firmware)
}

func printStatus(w io.Writer, t Target) {
	sim, mod := t.Sim, t.Module
	st := sim.Status()
	id := mod.Identity()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Device:      %s\n", id.DeviceName())
	fmt.Fprintf(w, "PoP:         %s\n", id.ProofOfPossession())
	fmt.Fprintf(w, "Session:     %s\n", mod.SessionID())
	fmt.Fprintf(w, "State:       %s\n", mod.State())
	fmt.Fprintf(w, "Connected:   %v\n", mod.Connected())
	fmt.Fprintf(w, "Attempts:    %d\n", mod.Attempts())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Mode:        %s\n", st.Mode)
	fmt.Fprintf(w, "Started:     %v\n", st.Started)
	fmt.Fprintf(w, "Associated:  %v\n", st.Associated)
	fmt.Fprintf(w, "Address:     %v\n", st.HasAddr)
	if st.SSID != "" {
		fmt.Fprintf(w, "SSID:        %s\n", st.SSID)
	}
	fmt.Fprintf(w, "Provisioned: %v\n", st.Provisioned)
	if info, ok := sim.Session(); ok {
		fmt.Fprintf(w, "Prov open:   %s (%s)\n", info.ServiceName, info.Security)
	}
	if err := mod.Err(); err != nil {
		fmt.Fprintf(w, "Fault:       %v\n", err)
	}
	if t.Announcer != nil {
		if info, ok := t.Announcer.Announced(); ok {
			fmt.Fprintf(w, "Announced:   %s (fw %s)\n", info.Name, info.Firmware)
		} else {
			fmt.Fprintln(w, "Announced:   no")
		}
	}
	fmt.Fprintln(w)
}

func report(w io.Writer, err error, format string, args ...any) {
	if err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}
