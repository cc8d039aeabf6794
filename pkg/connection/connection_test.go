package connection

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// stubCommander counts connect commands and fails on request.
type stubCommander struct {
	mu    sync.Mutex
	calls int
	err   error

	// onConnect observes machine state at the moment of the command.
	onConnect func()
}

func (c *stubCommander) Connect() error {
	c.mu.Lock()
	c.calls++
	err := c.err
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
	return err
}

func (c *stubCommander) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (r *recordingLogger) Log(ev log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingLogger) byCategory(c log.Category) []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []log.Event
	for _, ev := range r.events {
		if ev.Category == c {
			out = append(out, ev)
		}
	}
	return out
}

var (
	staStart     = event.Event{Base: event.BaseWiFi, ID: event.WiFiStaStart}
	staConnected = event.Event{Base: event.BaseWiFi, ID: event.WiFiStaConnected, Data: &event.StaConnected{SSID: "home"}}
	staDisc      = event.Event{Base: event.BaseWiFi, ID: event.WiFiStaDisconnected, Data: &event.StaDisconnected{SSID: "home", Reason: 201}}
	gotIPv4      = event.Event{Base: event.BaseIP, ID: event.IPStaGotIP, Data: &event.GotIPv4{Addr: netip.MustParseAddr("192.168.4.2")}}
	gotIPv6      = event.Event{Base: event.BaseIP, ID: event.IPGotIP6, Data: &event.GotIPv6{Addr: netip.MustParseAddr("fe80::1")}}
	lostIP       = event.Event{Base: event.BaseIP, ID: event.IPStaLostIP}
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "IDLE", StateIdle.String())
	assert.Equal(t, "PROVISIONING", StateProvisioning.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestMachineRetryUntilAddress(t *testing.T) {
	cmd := &stubCommander{}
	m := NewMachine(cmd, Config{})

	sequence := []event.Event{staStart, staDisc, staDisc}
	for i, ev := range sequence {
		m.HandleEvent(ev)
		assert.Equal(t, i+1, cmd.Calls(), "connect after %s", ev)
		assert.False(t, m.Signal().IsSet(), "signal set early after %s", ev)
		assert.Equal(t, StateConnecting, m.State())
	}

	m.HandleEvent(gotIPv4)
	assert.True(t, m.Signal().IsSet())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 3, cmd.Calls())
	assert.Equal(t, 3, m.Attempts())
}

func TestMachineConnectIssuedInConnectingState(t *testing.T) {
	cmd := &stubCommander{}
	m := NewMachine(cmd, Config{})
	var seen State
	cmd.onConnect = func() { seen = m.State() }

	m.HandleEvent(staStart)
	assert.Equal(t, StateConnecting, seen)
}

func TestMachineAssociationIsLogOnly(t *testing.T) {
	cmd := &stubCommander{}
	m := NewMachine(cmd, Config{})

	m.HandleEvent(staStart)
	m.HandleEvent(staConnected)

	assert.Equal(t, StateConnecting, m.State())
	assert.False(t, m.Signal().IsSet())
	assert.Equal(t, 1, cmd.Calls())
}

func TestMachineFirstAddressWins(t *testing.T) {
	orders := map[string][]event.Event{
		"IPv4First": {gotIPv4, gotIPv6},
		"IPv6First": {gotIPv6, gotIPv4},
	}
	for name, evs := range orders {
		t.Run(name, func(t *testing.T) {
			m := NewMachine(&stubCommander{}, Config{})
			m.HandleEvent(staStart)

			var transitions []State
			m.OnStateChange(func(_, newState State) { transitions = append(transitions, newState) })

			m.HandleEvent(evs[0])
			require.True(t, m.Signal().IsSet())
			assert.Equal(t, []State{StateConnected}, transitions)

			m.HandleEvent(evs[1])
			assert.Equal(t, []State{StateConnected}, transitions, "second address changed state")
			assert.Equal(t, StateConnected, m.State())
		})
	}
}

func TestMachineLostAddressKeepsSignal(t *testing.T) {
	cmd := &stubCommander{}
	m := NewMachine(cmd, Config{})
	m.HandleEvent(staStart)
	m.HandleEvent(gotIPv4)

	m.HandleEvent(lostIP)

	assert.True(t, m.Signal().IsSet())
	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 1, cmd.Calls())
	select {
	case <-m.Signal().Done():
	default:
		t.Fatal("Done() not closed after address loss")
	}
}

func TestMachineReconnectAfterConnected(t *testing.T) {
	cmd := &stubCommander{}
	m := NewMachine(cmd, Config{})
	m.HandleEvent(staStart)
	m.HandleEvent(gotIPv4)

	m.HandleEvent(staDisc)
	assert.Equal(t, StateConnecting, m.State())
	assert.True(t, m.Signal().IsSet(), "signal is never cleared")
	assert.Equal(t, 2, cmd.Calls())

	m.HandleEvent(gotIPv6)
	assert.Equal(t, StateConnected, m.State())
}

func TestMachineEnterProvisioning(t *testing.T) {
	m := NewMachine(&stubCommander{}, Config{})

	assert.True(t, m.EnterProvisioning())
	assert.Equal(t, StateProvisioning, m.State())
	assert.False(t, m.EnterProvisioning())

	m.HandleEvent(event.Event{Base: event.BaseProvisioning, ID: event.ProvCredRecv, Data: &event.ProvCredentials{SSID: "home"}})
	assert.Equal(t, StateProvisioning, m.State(), "provisioning events are log only")

	m.HandleEvent(staStart)
	assert.Equal(t, StateConnecting, m.State())
}

func TestMachineCommandFault(t *testing.T) {
	cause := errors.New("wifi not started")
	cmd := &stubCommander{err: cause}
	m := NewMachine(cmd, Config{})

	m.HandleEvent(staStart)

	select {
	case <-m.Failed():
	case <-time.After(time.Second):
		t.Fatal("no fault published")
	}
	assert.ErrorIs(t, m.Err(), ErrCommandFailed)
	assert.ErrorIs(t, m.Err(), cause)

	// Every observer sees the fault, not only the first one.
	for i := 0; i < 2; i++ {
		select {
		case <-m.Failed():
		default:
			t.Fatalf("observer %d missed the fault", i)
		}
	}

	// A second fault must not block the delivery goroutine.
	done := make(chan struct{})
	go func() {
		m.HandleEvent(staDisc)
		m.HandleEvent(staDisc)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleEvent blocked on repeated fault")
	}
	assert.Equal(t, 3, cmd.Calls(), "no local retry beyond one connect per event")
}

func TestMachineProtocolLog(t *testing.T) {
	rec := &recordingLogger{}
	m := NewMachine(&stubCommander{}, Config{
		ProtocolLogger: rec,
		SessionID:      "sess",
		DeviceName:     "Lamp 0007",
	})

	m.HandleEvent(staStart)
	m.HandleEvent(staDisc)
	m.HandleEvent(gotIPv4)

	network := rec.byCategory(log.CategoryNetwork)
	require.Len(t, network, 3)
	assert.Equal(t, "192.168.4.2", network[2].Network.Addr)
	require.NotNil(t, network[1].Network.Reason)
	assert.Equal(t, uint8(201), *network[1].Network.Reason)
	assert.Equal(t, "sess", network[0].SessionID)
	assert.Equal(t, "Lamp 0007", network[0].DeviceName)

	commands := rec.byCategory(log.CategoryCommand)
	assert.Len(t, commands, 2)

	states := rec.byCategory(log.CategoryState)
	require.Len(t, states, 2)
	assert.Equal(t, "IDLE", states[0].StateChange.OldState)
	assert.Equal(t, "CONNECTING", states[0].StateChange.NewState)
	assert.Equal(t, "CONNECTED", states[1].StateChange.NewState)
	assert.Equal(t, "STA_GOT_IP", states[1].StateChange.Reason)
}

func TestSignal(t *testing.T) {
	t.Run("SetBeforeWait", func(t *testing.T) {
		s := NewSignal()
		assert.True(t, s.Set())
		require.NoError(t, s.WaitContext(context.Background()))
		assert.True(t, s.IsSet())
	})

	t.Run("Idempotent", func(t *testing.T) {
		s := NewSignal()
		assert.True(t, s.Set())
		assert.False(t, s.Set())
		assert.False(t, s.Set())
	})

	t.Run("ConcurrentSetters", func(t *testing.T) {
		s := NewSignal()
		var wg sync.WaitGroup
		var mu sync.Mutex
		firsts := 0
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Set() {
					mu.Lock()
					firsts++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, firsts)
	})

	t.Run("WaiterWakes", func(t *testing.T) {
		s := NewSignal()
		woke := make(chan struct{})
		go func() {
			_ = s.WaitContext(context.Background())
			close(woke)
		}()

		select {
		case <-woke:
			t.Fatal("Wait returned before Set")
		case <-time.After(20 * time.Millisecond):
		}

		s.Set()
		select {
		case <-woke:
		case <-time.After(time.Second):
			t.Fatal("Wait did not return after Set")
		}
	})

	t.Run("WaitContext", func(t *testing.T) {
		s := NewSignal()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, s.WaitContext(ctx), context.DeadlineExceeded)

		s.Set()
		assert.NoError(t, s.WaitContext(ctx), "set signal wins over a done context")
	})
}
