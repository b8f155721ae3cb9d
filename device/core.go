package device

import (
	"github.com/ardnew/usbcore/hal"
	"github.com/ardnew/usbcore/pkg"
)

// Core is the top-level device engine: it owns the enumeration state
// machine, the endpoint-0 control engine, the handler registry, and the
// per-endpoint status blocks for every non-zero endpoint. There is
// exactly one Core per physical USB peripheral, and exactly one logical
// executor drives it — the platform's USB interrupt handler, calling
// HandleIRQ. No method on Core blocks or spawns a goroutine; all of its
// state transitions happen synchronously inside that one call.
type Core struct {
	Control  ControlEngine
	registry HandlerRegistry

	state               DeviceState
	previousState       DeviceState
	activeConfig        uint8
	suspended           bool
	remoteWakeupEnabled bool

	epIn  [MaxEndpoints]EndpointStatus
	epOut [MaxEndpoints]EndpointStatus

	onStateChange func(from, to DeviceState)
}

// NewCore constructs a Core in the detached state with every endpoint
// status block addressed and zeroed.
func NewCore() *Core {
	c := &Core{state: StateDetached}
	c.Control.ep0In.addr = hal.NewEndpointAddr(0, true)
	for i := 0; i < MaxEndpoints; i++ {
		c.epIn[i] = EndpointStatus{addr: hal.NewEndpointAddr(uint8(i+1), true)}
		c.epOut[i] = EndpointStatus{addr: hal.NewEndpointAddr(uint8(i+1), false)}
	}
	return c
}

// State returns the device's current enumeration state.
func (c *Core) State() DeviceState { return c.state }

// ActiveConfiguration returns the bConfigurationValue of the active
// configuration, or 0 if unconfigured.
func (c *Core) ActiveConfiguration() uint8 { return c.activeConfig }

// IsConfigured reports whether the device has a non-zero active
// configuration.
func (c *Core) IsConfigured() bool { return c.activeConfig != 0 }

// Registry returns the handler registry so user firmware can register
// class control, data, alt-mode, and SOF handlers before Attach.
func (c *Core) Registry() *HandlerRegistry { return &c.registry }

// SetOnStateChange installs a callback fired whenever the enumeration
// state changes.
func (c *Core) SetOnStateChange(fn func(from, to DeviceState)) { c.onStateChange = fn }

func (c *Core) setState(s DeviceState) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	if c.onStateChange != nil {
		c.onStateChange(from, s)
	}
}

// Attach arms the bus interrupts and asserts the pull-up, starting
// enumeration.
func (c *Core) Attach(h hal.EndpointHAL) {
	h.Attach()
	c.setState(StateAttached)
}

// Detach removes the pull-up and returns the device to the detached
// state.
func (c *Core) Detach(h hal.EndpointHAL) {
	h.Detach()
	c.setState(StateDetached)
}

// resetEndpoints clears every non-zero endpoint status block. When
// includeControl is true, endpoint 0's control engine is reset as well
// (a bus reset); SET_CONFIGURATION passes false so endpoint 0 is spared.
func (c *Core) resetEndpoints(includeControl bool) {
	if includeControl {
		c.Control.reset()
	}
	for i := range c.epIn {
		c.epIn[i].Reset()
		c.epOut[i].Reset()
	}
}

func (c *Core) onReset(h hal.EndpointHAL) {
	pkg.LogDebug(pkg.ComponentCore, "bus reset")
	c.resetEndpoints(true)
	c.activeConfig = 0
	c.remoteWakeupEnabled = false
	c.suspended = false
	h.SetAddress(0)
	c.setState(StateWaiting)
}

func (c *Core) suspend() {
	if c.suspended {
		return
	}
	c.suspended = true
	c.previousState = c.state
}

func (c *Core) wakeup() {
	if !c.suspended {
		return
	}
	c.suspended = false
	c.setState(c.previousState)
}

// HandleIRQ is the single entrypoint the platform ISR calls on every USB
// interrupt. ev is a platform-decoded snapshot of what woke the
// interrupt; HandleIRQ never blocks and performs no I/O beyond the calls
// it makes through h.
func (c *Core) HandleIRQ(h hal.EndpointHAL, ev hal.IRQEvent) {
	if c.state == StateAttached {
		c.setState(StatePowered)
	}

	if ev.Wakeup {
		c.wakeup()
	} else if c.suspended {
		return
	}

	if ev.Reset {
		c.onReset(h)
		return
	}

	if ev.Suspend {
		c.suspend()
	}

	if c.state == StateDetached || c.state == StateAttached || c.state == StatePowered {
		return
	}

	if ev.SOF {
		for _, fn := range c.registry.sofHandlers {
			if fn != nil {
				fn()
			}
		}
	}

	for _, addr := range ev.Endpoints {
		c.handleEndpointEvent(h, addr, ev.Setup && addr.IsControl() && addr.IsOut())
	}
}

func (c *Core) handleEndpointEvent(h hal.EndpointHAL, addr hal.EndpointAddr, isSetup bool) {
	if addr.IsControl() {
		switch {
		case isSetup:
			c.Control.HandleSetupPacket(h, c)
		case addr.IsOut():
			c.Control.HandleControllerOutPacket(h, c)
		default:
			c.Control.HandleControllerInPacket(h, c)
		}
		return
	}

	handler := c.registry.HandlerFor(addr, c.activeConfig)
	if handler.HandlePacket != nil {
		handler.HandlePacket(addr)
	}
}

// EndpointStatusFor returns the status block for the given non-zero
// endpoint address, or nil if the address is out of range. User firmware
// and class drivers use this from within a registered Handler to arm the
// next transfer.
func (c *Core) EndpointStatusFor(addr hal.EndpointAddr) *EndpointStatus {
	if addr.Num() < 1 || int(addr.Num()) > MaxEndpoints {
		return nil
	}
	if addr.IsIn() {
		return &c.epIn[addr.Num()-1]
	}
	return &c.epOut[addr.Num()-1]
}
