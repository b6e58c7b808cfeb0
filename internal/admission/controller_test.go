package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/oakmere/conductor-core/internal/action"
	"github.com/oakmere/conductor-core/internal/device"
)

type fakeDriver struct {
	caps []string
}

func (f *fakeDriver) Capabilities() []string { return f.caps }

func (f *fakeDriver) Execute(ctx context.Context, goal *action.Goal, emit device.EmitFunc) (map[string]any, error) {
	return nil, nil
}

func newTestController(t *testing.T, maxDepth int) (*Controller, *device.Registry) {
	t.Helper()
	reg := device.NewRegistry()
	if err := reg.Register("pump-01", "Pump", &fakeDriver{caps: []string{"pump.transfer"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("agv-01", "AGV", &fakeDriver{caps: []string{"agv.move"}}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return NewController(reg, maxDepth, nil), reg
}

func TestSubmitGrantsIdleDevice(t *testing.T) {
	c, _ := newTestController(t, 0)

	granted, err := c.Submit("pump-01", "act-1", "pump.transfer")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !granted {
		t.Error("Submit() granted = false for idle device")
	}
	if got := c.Holder("pump-01"); got != "act-1" {
		t.Errorf("Holder() = %q, want act-1", got)
	}
}

func TestSubmitQueuesBusyDevice(t *testing.T) {
	c, _ := newTestController(t, 0)

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	granted, err := c.Submit("pump-01", "act-2", "pump.transfer")
	if err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}
	if granted {
		t.Error("second Submit() granted = true on busy device")
	}
	if got := c.QueueDepth("pump-01"); got != 1 {
		t.Errorf("QueueDepth() = %d, want 1", got)
	}
}

func TestReleaseGrantsFIFO(t *testing.T) {
	c, _ := newTestController(t, 0)

	var grants []string
	c.SetOnGrant(func(deviceID, requestID string) {
		grants = append(grants, requestID)
	})

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"act-2", "act-3", "act-4"} {
		if _, err := c.Submit("pump-01", id, "pump.transfer"); err != nil {
			t.Fatalf("Submit(%q) error = %v", id, err)
		}
	}

	holder := "act-1"
	for i := 0; i < 3; i++ {
		if err := c.Release("pump-01", holder); err != nil {
			t.Fatalf("Release(%q) error = %v", holder, err)
		}
		holder = c.Holder("pump-01")
	}

	want := []string{"act-2", "act-3", "act-4"}
	if len(grants) != len(want) {
		t.Fatalf("grants = %v, want %v", grants, want)
	}
	for i := range want {
		if grants[i] != want[i] {
			t.Errorf("grants[%d] = %q, want %q", i, grants[i], want[i])
		}
	}
}

func TestSubmitUnsupportedAction(t *testing.T) {
	c, _ := newTestController(t, 0)

	_, err := c.Submit("pump-01", "act-1", "agv.move")
	if !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("Submit() error = %v, want ErrUnsupportedAction", err)
	}
	if c.Holder("pump-01") != "" {
		t.Error("failed submit should leave no holder")
	}
}

func TestSubmitUnknownDevice(t *testing.T) {
	c, _ := newTestController(t, 0)

	_, err := c.Submit("ghost", "act-1", "pump.transfer")
	if !errors.Is(err, device.ErrUnknownDevice) {
		t.Errorf("Submit() error = %v, want device.ErrUnknownDevice", err)
	}
}

func TestSubmitUnavailableDevice(t *testing.T) {
	c, _ := newTestController(t, 0)

	if _, err := c.MarkUnavailable("pump-01"); err != nil {
		t.Fatalf("MarkUnavailable() error = %v", err)
	}
	_, err := c.Submit("pump-01", "act-1", "pump.transfer")
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Submit() error = %v, want ErrDeviceUnavailable", err)
	}

	if err := c.MarkAvailable("pump-01"); err != nil {
		t.Fatalf("MarkAvailable() error = %v", err)
	}
	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Errorf("Submit() after MarkAvailable error = %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	c, _ := newTestController(t, 2)

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"act-2", "act-3"} {
		if _, err := c.Submit("pump-01", id, "pump.transfer"); err != nil {
			t.Fatalf("Submit(%q) error = %v", id, err)
		}
	}

	_, err := c.Submit("pump-01", "act-4", "pump.transfer")
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}
}

func TestSubmitDuplicateRequest(t *testing.T) {
	c, _ := newTestController(t, 0)

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("Submit() error = %v, want ErrDuplicateRequest", err)
	}
}

func TestMarkUnavailableDrainsQueue(t *testing.T) {
	c, _ := newTestController(t, 0)

	var evicted []string
	c.SetOnEvict(func(deviceID, requestID string) {
		evicted = append(evicted, requestID)
	})

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"act-2", "act-3"} {
		if _, err := c.Submit("pump-01", id, "pump.transfer"); err != nil {
			t.Fatal(err)
		}
	}

	holder, err := c.MarkUnavailable("pump-01")
	if err != nil {
		t.Fatalf("MarkUnavailable() error = %v", err)
	}
	if holder != "act-1" {
		t.Errorf("holder = %q, want act-1", holder)
	}
	if len(evicted) != 2 || evicted[0] != "act-2" || evicted[1] != "act-3" {
		t.Errorf("evicted = %v, want [act-2 act-3]", evicted)
	}
	if c.QueueDepth("pump-01") != 0 {
		t.Errorf("QueueDepth() = %d after drain", c.QueueDepth("pump-01"))
	}
}

// A submission racing MarkUnavailable must either land before the
// drain, in which case the drain reports it as the holder to abort, or
// fail with ErrDeviceUnavailable. It must never be admitted to a device
// the drain has already swept.
func TestSubmitRacingMarkUnavailable(t *testing.T) {
	c, _ := newTestController(t, 0)

	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("act-%d", i)

		done := make(chan struct{})
		var submitErr error
		go func() {
			_, submitErr = c.Submit("pump-01", id, "pump.transfer")
			close(done)
		}()

		holder, err := c.MarkUnavailable("pump-01")
		if err != nil {
			t.Fatalf("MarkUnavailable() error = %v", err)
		}
		<-done

		if submitErr == nil && holder != id {
			t.Fatalf("iteration %d: request admitted after drain (holder=%q depth=%d)",
				i, c.Holder("pump-01"), c.QueueDepth("pump-01"))
		}
		if submitErr != nil && !errors.Is(submitErr, ErrDeviceUnavailable) {
			t.Fatalf("iteration %d: Submit() error = %v", i, submitErr)
		}

		if holder != "" {
			if err := c.Release("pump-01", holder); err != nil {
				t.Fatalf("Release(%q) error = %v", holder, err)
			}
		}
		if err := c.MarkAvailable("pump-01"); err != nil {
			t.Fatalf("MarkAvailable() error = %v", err)
		}
	}
}

func TestWithdrawQueuedRequest(t *testing.T) {
	c, _ := newTestController(t, 0)

	if _, err := c.Submit("pump-01", "act-1", "pump.transfer"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Submit("pump-01", "act-2", "pump.transfer"); err != nil {
		t.Fatal(err)
	}

	if !c.Withdraw("pump-01", "act-2") {
		t.Error("Withdraw() = false for queued request")
	}
	if c.Withdraw("pump-01", "act-1") {
		t.Error("Withdraw() = true for the holder")
	}
	if c.QueueDepth("pump-01") != 0 {
		t.Errorf("QueueDepth() = %d after withdraw", c.QueueDepth("pump-01"))
	}
}

func TestReleaseNotHolder(t *testing.T) {
	c, _ := newTestController(t, 0)

	if err := c.Release("pump-01", "act-1"); !errors.Is(err, ErrNotHolder) {
		t.Errorf("Release() error = %v, want ErrNotHolder", err)
	}
}

func TestDisjointDevicesIndependent(t *testing.T) {
	c, _ := newTestController(t, 0)

	g1, err := c.Submit("pump-01", "act-1", "pump.transfer")
	if err != nil || !g1 {
		t.Fatalf("Submit(pump) = %v, %v", g1, err)
	}
	g2, err := c.Submit("agv-01", "act-2", "agv.move")
	if err != nil || !g2 {
		t.Fatalf("Submit(agv) = %v, %v", g2, err)
	}
}

func TestSingleHolderUnderContention(t *testing.T) {
	c, _ := newTestController(t, 0)

	const n = 32
	var wg sync.WaitGroup
	granted := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "act-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
			ok, err := c.Submit("pump-01", id, "pump.transfer")
			if err != nil {
				t.Errorf("Submit(%q) error = %v", id, err)
				return
			}
			if ok {
				granted <- id
			}
		}(i)
	}
	wg.Wait()
	close(granted)

	var winners []string
	for id := range granted {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("immediate grants = %d, want exactly 1", len(winners))
	}
	if c.Holder("pump-01") != winners[0] {
		t.Errorf("Holder() = %q, want %q", c.Holder("pump-01"), winners[0])
	}
	if c.QueueDepth("pump-01") != n-1 {
		t.Errorf("QueueDepth() = %d, want %d", c.QueueDepth("pump-01"), n-1)
	}
}
