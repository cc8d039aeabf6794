package simstack

import (
	"bytes"
	"context"
	"net/netip"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wifiprov/wifiprov-go/pkg/connection"
	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/netstack"
	"github.com/wifiprov/wifiprov-go/pkg/persistence"
	"github.com/wifiprov/wifiprov-go/pkg/provisioning"
	"github.com/wifiprov/wifiprov-go/pkg/wifi"
)

func newSim(t *testing.T, mutate func(*Config)) (*Sim, *persistence.CredentialStore) {
	t.Helper()
	store := persistence.NewCredentialStore(filepath.Join(t.TempDir(), "wifi.json"))
	cfg := DefaultConfig(store)
	if mutate != nil {
		mutate(&cfg)
	}
	sim, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(sim.Close)
	return sim, store
}

// recorder collects delivered events in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.String()
	}
	return out
}

func bringUp(t *testing.T, sim *Sim) {
	t.Helper()
	require.NoError(t, sim.InitNetif())
	require.NoError(t, sim.CreateDefaultStation())
	require.NoError(t, sim.InitWiFi(netstack.DefaultInitConfig()))
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoCredentialPath)
}

func TestStackOrdering(t *testing.T) {
	sim, _ := newSim(t, nil)

	assert.ErrorIs(t, sim.CreateDefaultStation(), ErrNetifNotReady)
	require.NoError(t, sim.InitNetif())
	assert.ErrorIs(t, sim.InitNetif(), ErrAlreadyInit)
	assert.ErrorIs(t, sim.InitWiFi(netstack.DefaultInitConfig()), ErrNoStation)
	require.NoError(t, sim.CreateDefaultStation())
	assert.ErrorIs(t, sim.SetMode(netstack.ModeStation), ErrWiFiNotInit)
	require.NoError(t, sim.InitWiFi(netstack.DefaultInitConfig()))
	assert.ErrorIs(t, sim.SetMode(netstack.ModeAP), ErrUnsupportedMode)
	assert.ErrorIs(t, sim.Connect(), ErrWiFiNotStarted)

	require.NoError(t, sim.DeinitWiFi())
	require.NoError(t, sim.DeinitNetif())
	assert.ErrorIs(t, sim.DeinitNetif(), ErrNetifNotReady)
}

func TestConnectOutcomes(t *testing.T) {
	t.Run("Unprovisioned", func(t *testing.T) {
		sim, _ := newSim(t, nil)
		rec := &recorder{}
		_, err := sim.Register(event.BaseWiFi, event.AnyID, rec.handle)
		require.NoError(t, err)
		bringUp(t, sim)
		require.NoError(t, sim.Start())
		require.NoError(t, sim.Connect())
		require.NoError(t, sim.Flush())

		assert.Equal(t, []string{"WIFI_EVENT/WIFI_READY", "WIFI_EVENT/STA_START", "WIFI_EVENT/STA_DISCONNECTED"}, rec.names())
		d := rec.events[2].Data.(*event.StaDisconnected)
		assert.Equal(t, ReasonNoAPFound, d.Reason)
	})

	t.Run("FailuresThenAddresses", func(t *testing.T) {
		sim, store := newSim(t, func(c *Config) { c.ConnectFailures = 2 })
		require.NoError(t, store.Save(&persistence.Credentials{SSID: "home"}))
		rec := &recorder{}
		_, err := sim.Register(event.BaseWiFi, event.WiFiStaDisconnected, rec.handle)
		require.NoError(t, err)
		_, err = sim.Register(event.BaseIP, event.AnyID, rec.handle)
		require.NoError(t, err)
		bringUp(t, sim)
		require.NoError(t, sim.Start())

		for i := 0; i < 3; i++ {
			require.NoError(t, sim.Connect())
		}
		require.NoError(t, sim.Flush())

		assert.Equal(t, []string{
			"WIFI_EVENT/STA_DISCONNECTED",
			"WIFI_EVENT/STA_DISCONNECTED",
			"IP_EVENT/STA_GOT_IP",
			"IP_EVENT/GOT_IP6",
		}, rec.names())
		got := rec.events[2].Data.(*event.GotIPv4)
		assert.Equal(t, netip.MustParseAddr("192.168.4.1"), got.Gateway)

		st := sim.Status()
		assert.Equal(t, 3, st.Connects)
		assert.True(t, st.Associated)
		assert.True(t, st.Provisioned)
		assert.Equal(t, "home", st.SSID)
	})

	t.Run("IPv6Only", func(t *testing.T) {
		sim, store := newSim(t, func(c *Config) { c.IPv4 = netip.Addr{} })
		require.NoError(t, store.Save(&persistence.Credentials{SSID: "home"}))
		rec := &recorder{}
		_, err := sim.Register(event.BaseIP, event.AnyID, rec.handle)
		require.NoError(t, err)
		bringUp(t, sim)
		require.NoError(t, sim.Start())
		require.NoError(t, sim.Connect())
		require.NoError(t, sim.Flush())

		assert.Equal(t, []string{"IP_EVENT/GOT_IP6"}, rec.names())
	})
}

func TestSerialDelivery(t *testing.T) {
	sim, store := newSim(t, nil)
	require.NoError(t, store.Save(&persistence.Credentials{SSID: "home"}))

	var mu sync.Mutex
	inHandler := 0
	overlap := false
	var seen []string
	_, err := sim.Register(event.BaseWiFi, event.AnyID, func(ev event.Event) {
		mu.Lock()
		inHandler++
		if inHandler > 1 {
			overlap = true
		}
		seen = append(seen, ev.String())
		mu.Unlock()

		// Commands from the delivery goroutine queue behind this event.
		if ev.Is(event.BaseWiFi, event.WiFiStaStart) {
			assert.NoError(t, sim.Connect())
		}
		time.Sleep(time.Millisecond)

		mu.Lock()
		inHandler--
		mu.Unlock()
	})
	require.NoError(t, err)

	bringUp(t, sim)
	require.NoError(t, sim.Start())
	require.NoError(t, sim.Flush())
	require.NoError(t, sim.Flush())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap)
	assert.Equal(t, []string{"WIFI_EVENT/WIFI_READY", "WIFI_EVENT/STA_START", "WIFI_EVENT/STA_CONNECTED"}, seen)
}

func TestRegistration(t *testing.T) {
	sim, _ := newSim(t, nil)
	rec := &recorder{}
	reg, err := sim.Register(event.BaseWiFi, event.AnyID, rec.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, sim.Handlers())

	require.NoError(t, reg.Unregister())
	assert.ErrorIs(t, reg.Unregister(), event.ErrNotRegistered)
	assert.Zero(t, sim.Handlers())

	bringUp(t, sim)
	require.NoError(t, sim.Flush())
	assert.Empty(t, rec.names())
}

func TestLinkControls(t *testing.T) {
	sim, store := newSim(t, nil)
	require.NoError(t, store.Save(&persistence.Credentials{SSID: "home"}))
	rec := &recorder{}
	_, err := sim.Register(event.BaseIP, event.AnyID, rec.handle)
	require.NoError(t, err)
	_, err = sim.Register(event.BaseWiFi, event.WiFiStaDisconnected, rec.handle)
	require.NoError(t, err)

	assert.Error(t, sim.LoseIP())
	assert.ErrorIs(t, sim.Disconnect(ReasonBeaconTimeout), ErrWiFiNotStarted)

	bringUp(t, sim)
	require.NoError(t, sim.Start())
	require.NoError(t, sim.Connect())
	require.NoError(t, sim.LoseIP())
	require.NoError(t, sim.RenewIP())
	require.NoError(t, sim.Disconnect(ReasonBeaconTimeout))
	require.NoError(t, sim.Flush())

	assert.Equal(t, []string{
		"IP_EVENT/STA_GOT_IP", "IP_EVENT/GOT_IP6",
		"IP_EVENT/STA_LOST_IP",
		"IP_EVENT/STA_GOT_IP", "IP_EVENT/GOT_IP6",
		"WIFI_EVENT/STA_DISCONNECTED", "IP_EVENT/STA_LOST_IP",
	}, rec.names())
}

func TestProvisioningSession(t *testing.T) {
	sim, store := newSim(t, nil)
	bringUp(t, sim)

	_, err := sim.IsProvisioned()
	assert.ErrorIs(t, err, ErrManagerNotInit)
	assert.ErrorIs(t, sim.ProvideCredentials("x", "home", ""), ErrNoSession)

	require.NoError(t, sim.Init(netstack.ManagerConfig{Scheme: netstack.SchemeBLE}))
	ok, err := sim.IsProvisioned()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, sim.StartProvisioning(netstack.Security1, "000abcde", "Lamp 0007", ""))
	assert.ErrorIs(t, sim.StartProvisioning(netstack.Security1, "000abcde", "Lamp 0007", ""), ErrSessionActive)

	info, open := sim.Session()
	require.True(t, open)
	assert.Equal(t, "Lamp 0007", info.ServiceName)

	waited := make(chan struct{})
	go func() {
		sim.Wait()
		close(waited)
	}()

	assert.ErrorIs(t, sim.ProvideCredentials("deadbeef", "home", "pw"), ErrPoPMismatch)
	select {
	case <-waited:
		t.Fatal("Wait returned after failed proof of possession")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, sim.ProvideCredentials("000abcde", "home", "pw"))
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after credentials")
	}

	creds, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "home", creds.SSID)
	_, open = sim.Session()
	assert.False(t, open)
	assert.True(t, sim.Status().Started)

	require.NoError(t, sim.Reset())
	ok, err = sim.IsProvisioned()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeinitAbandonsSession(t *testing.T) {
	sim, _ := newSim(t, nil)
	bringUp(t, sim)
	require.NoError(t, sim.Init(netstack.ManagerConfig{}))
	require.NoError(t, sim.StartProvisioning(netstack.Security0, "", "Lamp 0007", ""))

	waited := make(chan struct{})
	go func() {
		sim.Wait()
		close(waited)
	}()
	sim.Deinit()

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Deinit")
	}
	sim.Deinit()
}

// ============================================================================
// Lifecycle module end to end
// ============================================================================

func newModule(t *testing.T, sim *Sim, renderer provisioning.Renderer) *wifi.Module {
	t.Helper()
	cfg := wifi.DefaultConfig()
	cfg.ServiceName = "Lamp"
	cfg.Random = bytes.NewReader([]byte{0x00, 0x0a, 0xbc, 0xde})
	cfg.Renderer = renderer
	m, err := wifi.New(cfg, sim, sim, sim, sim)
	require.NoError(t, err)
	return m
}

func TestModuleProvisionsThenReconnects(t *testing.T) {
	store := persistence.NewCredentialStore(filepath.Join(t.TempDir(), "wifi.json"))

	// First boot: provisioning.
	cfg := DefaultConfig(store)
	cfg.ConnectFailures = 1
	sim, err := New(cfg)
	require.NoError(t, err)

	payloads := make(chan string, 1)
	m := newModule(t, sim, provisioning.RendererFunc(func(content string) error {
		payloads <- content
		return nil
	}))
	assert.Equal(t, "Lamp 6389", m.Identity().DeviceName())
	require.NoError(t, m.Initialize())

	started := make(chan error, 1)
	go func() { started <- m.Start() }()

	var content string
	select {
	case content = <-payloads:
	case <-time.After(time.Second):
		t.Fatal("payload not rendered")
	}
	p, err := provisioning.ParsePayload([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, "Lamp 6389", p.Name)

	require.NoError(t, sim.ProvideCredentials(p.PoP, "home", "correct horse"))

	select {
	case err := <-started:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return")
	}
	assert.True(t, m.Connected())
	assert.Equal(t, 2, m.Attempts(), "one handshake failure, one success")

	require.NoError(t, m.Close())
	assert.Zero(t, sim.Handlers())
	sim.Close()

	// Second boot: stored credentials, no payload.
	sim2, err := New(DefaultConfig(store))
	require.NoError(t, err)
	defer sim2.Close()

	m2 := newModule(t, sim2, provisioning.RendererFunc(func(string) error {
		t.Error("payload rendered for a provisioned device")
		return nil
	}))
	require.NoError(t, m2.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m2.StartContext(ctx))
	assert.Equal(t, 1, m2.Attempts())

	// Address loss keeps the module connected; disconnect retries.
	require.NoError(t, sim2.LoseIP())
	require.NoError(t, sim2.Disconnect(ReasonBeaconTimeout))
	require.NoError(t, sim2.Flush())
	require.NoError(t, sim2.Flush())
	assert.True(t, m2.Connected())
	assert.Equal(t, connection.StateConnected, m2.State())
	assert.Equal(t, 2, m2.Attempts())

	require.NoError(t, m2.Close())
}

func TestModuleNoAddressFamilies(t *testing.T) {
	sim, store := newSim(t, func(c *Config) {
		c.IPv4 = netip.Addr{}
		c.IPv6 = netip.Addr{}
	})
	require.NoError(t, store.Save(&persistence.Credentials{SSID: "home"}))

	m := newModule(t, sim, nil)
	require.NoError(t, m.Initialize())
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.StartContext(ctx), context.DeadlineExceeded)
	assert.Equal(t, connection.StateConnecting, m.State())
}

func TestModuleCloseAfterFailedInitialize(t *testing.T) {
	sim, _ := newSim(t, nil)

	// Occupy the provisioning manager so the last init step fails after the
	// driver is already up.
	require.NoError(t, sim.InitNetif())
	require.NoError(t, sim.CreateDefaultStation())
	require.NoError(t, sim.InitWiFi(netstack.DefaultInitConfig()))
	require.NoError(t, sim.Init(netstack.ManagerConfig{}))
	require.NoError(t, sim.DeinitWiFi())
	require.NoError(t, sim.DeinitNetif())

	m := newModule(t, sim, nil)
	err := m.Initialize()
	require.ErrorIs(t, err, wifi.ErrInitFailed)
	require.ErrorIs(t, err, ErrAlreadyInit)

	require.NoError(t, m.Close(), "Close releases exactly what Initialize acquired")
	assert.Zero(t, sim.Handlers())

	// Driver and interface layer were released: both can be brought up again.
	require.NoError(t, sim.InitNetif())
	require.NoError(t, sim.CreateDefaultStation())
	require.NoError(t, sim.InitWiFi(netstack.DefaultInitConfig()))
}

func TestModuleCloseWithoutInitialize(t *testing.T) {
	sim, _ := newSim(t, nil)
	m := newModule(t, sim, nil)

	require.NoError(t, m.Close())
	require.NoError(t, sim.InitNetif(), "nothing was acquired, nothing released")
}
