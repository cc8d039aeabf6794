// Command wifiprov-device runs a simulated device through the station
// network identity lifecycle.
//
// On first start the device has no stored credentials: it opens a
// provisioning session, prints the provisioning QR code and waits for a
// client to hand over credentials. Afterwards it starts the station with the
// stored credentials, reconnects on every disconnect and, once it has an
// address, announces itself over mDNS.
//
// Usage:
//
//	wifiprov-device [flags]
//
// Flags:
//
//	-config string        YAML configuration file; flags given override it
//	-name string          Service name prefix of the device name (default "PROV")
//	-transport string     Provisioning transport: ble, softap (default "ble")
//	-security uint        Provisioning security level 0-2 (default 1)
//	-mac string           Simulated station MAC address
//	-state-dir string     Directory for stored credentials (default "wifiprov-state")
//	-event-log string     Write lifecycle events to this CBOR log file
//	-event-log-max int    Rotate the event log past this many bytes (0 disables)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-fail int             Number of connect attempts that fail first
//	-ipv4 string          Simulated IPv4 address, "none" to disable
//	-ipv6 string          Simulated IPv6 address, "none" to disable
//	-announce             Announce the device over mDNS once connected (default true)
//	-iface string         Network interface for mDNS
//	-auto-ssid string     Provision automatically with this SSID
//	-auto-pass string     Passphrase for -auto-ssid
//	-timeout duration     Give up waiting for a connection after this long (0 waits forever)
//	-interactive          Enable the interactive console
//	-browse duration      List announced devices for this long and exit
//
// Examples:
//
//	# Provision interactively, then answer with "provision home secret"
//	wifiprov-device -name Lamp -interactive
//
//	# Provision unattended, fail the first two connects, record the lifecycle
//	wifiprov-device -auto-ssid home -auto-pass secret -fail 2 -event-log lamp.log
//
//	# List provisioned devices on the local network
//	wifiprov-device -browse 5s
//
//	# Start from a configuration file
//	wifiprov-device -config /etc/wifiprov/lamp.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/wifiprov/wifiprov-go/cmd/wifiprov-device/interactive"
	"github.com/wifiprov/wifiprov-go/internal/simstack"
	"github.com/wifiprov/wifiprov-go/pkg/connection"
	"github.com/wifiprov/wifiprov-go/pkg/discovery"
	plog "github.com/wifiprov/wifiprov-go/pkg/log"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
	"github.com/wifiprov/wifiprov-go/pkg/provisioning"
	"github.com/wifiprov/wifiprov-go/pkg/wifi"
)

var (
	config     = DefaultConfig()
	configPath string
	browseFor  time.Duration
)

func init() {
	flag.StringVar(&configPath, "config", "", "YAML configuration file")
	flag.StringVar(&config.ServiceName, "name", config.ServiceName, "Service name prefix of the device name")
	flag.StringVar(&config.Transport, "transport", config.Transport, "Provisioning transport: ble, softap")
	flag.UintVar(&config.Security, "security", config.Security, "Provisioning security level 0-2")
	flag.StringVar(&config.MAC, "mac", config.MAC, "Simulated station MAC address")
	flag.StringVar(&config.StateDir, "state-dir", config.StateDir, "Directory for stored credentials")
	flag.StringVar(&config.EventLog, "event-log", config.EventLog, "Write lifecycle events to this CBOR log file")
	flag.Int64Var(&config.EventLogMaxSize, "event-log-max", config.EventLogMaxSize, "Rotate the event log past this many bytes (0 disables)")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.IntVar(&config.ConnectFailures, "fail", config.ConnectFailures, "Number of connect attempts that fail first")
	flag.StringVar(&config.IPv4, "ipv4", config.IPv4, `Simulated IPv4 address, "none" to disable`)
	flag.StringVar(&config.IPv6, "ipv6", config.IPv6, `Simulated IPv6 address, "none" to disable`)
	flag.BoolVar(&config.Announce, "announce", config.Announce, "Announce the device over mDNS once connected")
	flag.StringVar(&config.Interface, "iface", config.Interface, "Network interface for mDNS")
	flag.StringVar(&config.AutoProvision.SSID, "auto-ssid", "", "Provision automatically with this SSID")
	flag.StringVar(&config.AutoProvision.Passphrase, "auto-pass", "", "Passphrase for -auto-ssid")
	flag.DurationVar(&config.StartTimeout, "timeout", 0, "Give up waiting for a connection after this long (0 waits forever)")
	flag.BoolVar(&config.Interactive, "interactive", false, "Enable the interactive console")
	flag.BoolVar(&config.InvertQR, "invert-qr", false, "Invert the QR code for light terminals")
	flag.DurationVar(&browseFor, "browse", 0, "List announced devices for this long and exit")
}

func main() {
	flag.Parse()
	if configPath != "" {
		if err := LoadConfigFile(configPath, &config); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		// Flags given on the command line take precedence over the file.
		if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
			log.Fatalf("Failed to parse flags: %v", err)
		}
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if browseFor > 0 {
		if err := runBrowse(browseFor); err != nil {
			log.Fatalf("Browse failed: %v", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The console owns the terminal, so everything else writes through it.
	var out io.Writer = os.Stdout
	var console *interactive.Console
	if config.Interactive {
		c, err := interactive.New()
		if err != nil {
			log.Fatalf("Failed to start interactive mode: %v", err)
		}
		console = c
		out = console.Stdout()
		log.SetOutput(console.Stderr())
	}

	logger := setupLogging(config.LogLevel, out)

	log.Println("WiFi Provisioning Device")
	log.Println("========================")
	log.Printf("Service name: %s", config.ServiceName)
	log.Printf("Transport: %s", config.Transport)
	log.Printf("Security: %s", netstack.Security(config.Security))

	protoLogger, closeLog := setupEventLog(config.EventLog, config.EventLogMaxSize, logger)
	defer closeLog()

	store := persistence.NewCredentialStore(filepath.Join(config.StateDir, "wifi.json"))

	mac, err := config.HardwareAddr()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	v4, v6 := config.Addrs()
	simCfg := simstack.DefaultConfig(store)
	simCfg.HardwareAddr = mac
	simCfg.ConnectFailures = config.ConnectFailures
	simCfg.IPv4 = v4
	simCfg.IPv6 = v6
	simCfg.Logger = logger
	sim, err := simstack.New(simCfg)
	if err != nil {
		log.Fatalf("Failed to create network stack: %v", err)
	}
	defer sim.Close()

	renderer := provisioning.NewQRRenderer(out)
	renderer.SetInverted(config.InvertQR)

	modCfg := wifi.DefaultConfig()
	modCfg.ServiceName = config.ServiceName
	modCfg.Transport = provisioning.Transport(config.Transport)
	modCfg.Security = netstack.Security(config.Security)
	if modCfg.Transport == provisioning.TransportSoftAP {
		modCfg.SchemeEventHandler = netstack.HandlerNone
	}
	modCfg.Renderer = renderer
	modCfg.Logger = logger
	modCfg.ProtocolLogger = protoLogger

	mod, err := wifi.New(modCfg, sim, sim, sim, sim)
	if err != nil {
		log.Fatalf("Failed to create WiFi module: %v", err)
	}
	log.Printf("Device name: %s", mod.Identity().DeviceName())
	log.Printf("Session: %s", mod.SessionID())

	mod.OnStateChange(func(oldState, newState connection.State) {
		logger.Debug("Connection state changed",
			slog.String("from", oldState.String()),
			slog.String("to", newState.String()))
	})

	if err := mod.Initialize(); err != nil {
		log.Fatalf("Failed to initialize WiFi module: %v", err)
	}

	if config.AutoProvision.SSID != "" {
		go autoProvision(ctx, sim, mod, logger)
	}

	announcer := discovery.NewAnnouncer(discovery.AnnouncerConfig{
		Interface: config.Interface,
		Logger:    logger,
	})

	started := make(chan error, 1)
	go func() {
		startCtx := ctx
		if config.StartTimeout > 0 {
			var stop context.CancelFunc
			startCtx, stop = context.WithTimeout(ctx, config.StartTimeout)
			defer stop()
		}
		started <- mod.StartContext(startCtx)
	}()

	if console != nil {
		go console.Run(ctx, cancel, interactive.Target{Sim: sim, Module: mod, Announcer: announcer})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	failed := mod.Failed()
	for done := false; !done; {
		select {
		case err := <-started:
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Printf("Failed to start WiFi module: %v", err)
				}
				cancel()
				continue
			}
			log.Printf("Connected after %d connect attempt(s)", mod.Attempts())
			if config.Announce {
				announce(announcer, mod)
			}
		case <-failed:
			failed = nil
			log.Printf("WiFi module fault: %v", mod.Err())
			cancel()
		case sig := <-sigCh:
			log.Printf("Received signal: %v", sig)
			cancel()
		case <-ctx.Done():
			done = true
		}
	}

	log.Println("Shutting down...")
	announcer.Stop()
	if err := mod.Close(); err != nil {
		log.Printf("Error closing WiFi module: %v", err)
	}
	log.Println("Goodbye!")
}

func setupLogging(level string, w io.Writer) *slog.Logger {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		log.SetFlags(log.Ltime | log.Lmicroseconds | log.Lshortfile)
		lvl = slog.LevelDebug
	case "warn":
		log.SetFlags(log.Ltime)
		lvl = slog.LevelWarn
	case "error":
		log.SetFlags(log.Ltime)
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// setupEventLog combines the optional CBOR event log with debug output of
// every lifecycle event.
func setupEventLog(path string, maxSize int64, logger *slog.Logger) (plog.Logger, func()) {
	adapter := plog.NewSlogAdapter(logger)
	if path == "" {
		return adapter, func() {}
	}

	fl, err := plog.NewFileLogger(path, plog.WithMaxSize(maxSize))
	if err != nil {
		log.Fatalf("Failed to open event log: %v", err)
	}
	log.Printf("Event log: %s", path)
	return plog.NewMultiLogger(fl, adapter), func() {
		if n := fl.Dropped(); n > 0 {
			log.Printf("Warning: %d lifecycle event(s) were not written", n)
		}
		if err := fl.Close(); err != nil {
			log.Printf("Error closing event log: %v", err)
		}
	}
}

// autoProvision plays the provisioning client once a session opens.
func autoProvision(ctx context.Context, sim *simstack.Sim, mod *wifi.Module, logger *slog.Logger) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mod.Done():
			return
		case <-ticker.C:
		}

		if _, ok := sim.Session(); !ok {
			continue
		}
		pop := mod.Identity().ProofOfPossession()
		if err := sim.ProvideCredentials(pop, config.AutoProvision.SSID, config.AutoProvision.Passphrase); err != nil {
			logger.Error("Auto-provisioning failed", slog.Any("error", err))
			return
		}
		logger.Info("Auto-provisioned credentials", slog.String("ssid", config.AutoProvision.SSID))
		return
	}
}

func announce(announcer *discovery.Announcer, mod *wifi.Module) {
	id := mod.Identity()
	info := discovery.DeviceInfo{
		Name:      id.DeviceName(),
		Suffix:    strings.ToLower(id.Suffix()),
		Firmware:  config.Firmware,
		Transport: config.Transport,
		Port:      config.Port,
	}
	if err := announcer.Announce(info); err != nil {
		log.Printf("Warning: Failed to announce device: %v", err)
		return
	}
	log.Printf("Announced %s on %s", info.Name, discovery.ServiceType)
}

// runBrowse prints every device announcement seen within d.
func runBrowse(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	services, err := discovery.Browse(ctx, discovery.BrowserConfig{Interface: config.Interface})
	if err != nil {
		return err
	}

	log.Printf("Browsing %s for %s...", discovery.ServiceType, d)
	found := 0
	for svc := range services {
		found++
		fmt.Printf("%-24s suffix=%s fw=%s transport=%s %s:%d %s\n",
			svc.Name, svc.Suffix, svc.Firmware, svc.Transport,
			svc.Host, svc.Port, strings.Join(svc.Addresses, ","))
	}
	log.Printf("Found %d device(s)", found)
	return nil
}
