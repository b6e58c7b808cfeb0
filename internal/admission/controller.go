package admission

import (
	"fmt"
	"sync"

	"github.com/oakmere/conductor-core/internal/device"
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// GrantFunc is called when a queued request acquires its device. It is
// always invoked outside the controller's locks, on the goroutine that
// triggered the grant.
type GrantFunc func(deviceID, requestID string)

// EvictFunc is called for each queued request drained because its
// device became unavailable. Invoked outside the controller's locks.
type EvictFunc func(deviceID, requestID string)

// resource is the admission state for one device. holder is the
// request currently executing; queue holds waiting request IDs in
// arrival order.
type resource struct {
	holder string
	queue  []string
}

// Controller serializes command admission per device.
//
// Each device runs at most one command at a time. A submitted request
// is granted immediately if the device is idle, otherwise it joins the
// device's FIFO queue. Requests on distinct devices never interact.
type Controller struct {
	devices       *device.Registry
	maxQueueDepth int
	logger        Logger

	onGrant GrantFunc
	onEvict EvictFunc

	resources map[string]*resource
	mu        sync.Mutex
}

// NewController creates an admission controller over the given device
// registry. maxQueueDepth bounds the per-device waiting queue; zero
// means unbounded.
func NewController(devices *device.Registry, maxQueueDepth int, logger Logger) *Controller {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		devices:       devices,
		maxQueueDepth: maxQueueDepth,
		logger:        logger,
		resources:     make(map[string]*resource),
	}
}

// SetOnGrant installs the grant callback. Must be called before the
// first Submit.
func (c *Controller) SetOnGrant(fn GrantFunc) {
	c.onGrant = fn
}

// SetOnEvict installs the eviction callback. Must be called before the
// first Submit.
func (c *Controller) SetOnEvict(fn EvictFunc) {
	c.onEvict = fn
}

// Submit asks for the device on behalf of a request. Returns true if
// the device was granted immediately; false if the request was queued.
//
// Fails with device.ErrUnknownDevice, ErrDeviceUnavailable,
// ErrUnsupportedAction, ErrQueueFull, or ErrDuplicateRequest. A failed
// submit leaves no admission state behind.
func (c *Controller) Submit(deviceID, requestID, kind string) (bool, error) {
	dev, err := c.devices.Get(deviceID)
	if err != nil {
		return false, err
	}
	if !dev.Supports(kind) {
		return false, fmt.Errorf("%w: device %q does not support %q", ErrUnsupportedAction, deviceID, kind)
	}

	c.mu.Lock()
	// Availability must be read under c.mu: a MarkUnavailable that has
	// already drained this device must not see a later grant or enqueue.
	// The registry read here is ordered against SetAvailable, which
	// MarkUnavailable completes before it takes c.mu to drain.
	available, err := c.devices.Available(deviceID)
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	if !available {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrDeviceUnavailable, deviceID)
	}

	res := c.resources[deviceID]
	if res == nil {
		res = &resource{}
		c.resources[deviceID] = res
	}

	if res.holder == requestID {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrDuplicateRequest, requestID)
	}
	for _, queued := range res.queue {
		if queued == requestID {
			c.mu.Unlock()
			return false, fmt.Errorf("%w: %q", ErrDuplicateRequest, requestID)
		}
	}

	if res.holder == "" {
		res.holder = requestID
		c.mu.Unlock()
		c.logger.Debug("device granted", "device_id", deviceID, "request_id", requestID)
		return true, nil
	}

	if c.maxQueueDepth > 0 && len(res.queue) >= c.maxQueueDepth {
		c.mu.Unlock()
		return false, fmt.Errorf("%w: %q depth %d", ErrQueueFull, deviceID, c.maxQueueDepth)
	}

	res.queue = append(res.queue, requestID)
	depth := len(res.queue)
	c.mu.Unlock()

	c.logger.Debug("request queued", "device_id", deviceID, "request_id", requestID, "depth", depth)
	return false, nil
}

// Release gives the device up on behalf of the holding request and
// grants it to the next queued request, if any. Returns ErrNotHolder
// when the request does not hold the device.
func (c *Controller) Release(deviceID, requestID string) error {
	c.mu.Lock()
	res := c.resources[deviceID]
	if res == nil || res.holder != requestID {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q on %q", ErrNotHolder, requestID, deviceID)
	}

	res.holder = ""
	var next string
	if len(res.queue) > 0 {
		next = res.queue[0]
		res.queue = res.queue[1:]
		res.holder = next
	}
	c.mu.Unlock()

	c.logger.Debug("device released", "device_id", deviceID, "request_id", requestID)
	if next != "" && c.onGrant != nil {
		c.onGrant(deviceID, next)
	}
	return nil
}

// Withdraw removes a queued request that has not been granted yet.
// Returns true if the request was found and removed. A request that
// already holds the device cannot be withdrawn; cancel its execution
// instead.
func (c *Controller) Withdraw(deviceID, requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.resources[deviceID]
	if res == nil {
		return false
	}
	for i, queued := range res.queue {
		if queued == requestID {
			res.queue = append(res.queue[:i], res.queue[i+1:]...)
			return true
		}
	}
	return false
}

// MarkUnavailable withdraws a device from service. All queued requests
// are drained through the eviction callback; the current holder, if
// any, is returned so the caller can abort it. New submissions fail
// with ErrDeviceUnavailable until MarkAvailable.
func (c *Controller) MarkUnavailable(deviceID string) (holder string, err error) {
	if err := c.devices.SetAvailable(deviceID, false); err != nil {
		return "", err
	}

	c.mu.Lock()
	res := c.resources[deviceID]
	var drained []string
	if res != nil {
		drained = res.queue
		res.queue = nil
		holder = res.holder
	}
	c.mu.Unlock()

	if len(drained) > 0 {
		c.logger.Info("draining device queue", "device_id", deviceID, "count", len(drained))
	}
	if c.onEvict != nil {
		for _, requestID := range drained {
			c.onEvict(deviceID, requestID)
		}
	}
	return holder, nil
}

// MarkAvailable returns a device to service.
func (c *Controller) MarkAvailable(deviceID string) error {
	return c.devices.SetAvailable(deviceID, true)
}

// Holder returns the request currently holding the device, or "".
func (c *Controller) Holder(deviceID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res := c.resources[deviceID]; res != nil {
		return res.holder
	}
	return ""
}

// QueueDepth returns the number of requests waiting on the device.
func (c *Controller) QueueDepth(deviceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if res := c.resources[deviceID]; res != nil {
		return len(res.queue)
	}
	return 0
}
