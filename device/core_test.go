package device

import (
	"testing"

	"github.com/ardnew/usbcore/device/halfake"
	"github.com/ardnew/usbcore/hal"
)

func setupPacketBytes(requestType, request uint8, value, index, length uint16) [8]byte {
	var buf [8]byte
	buf[0] = requestType
	buf[1] = request
	buf[2] = byte(value)
	buf[3] = byte(value >> 8)
	buf[4] = byte(index)
	buf[5] = byte(index >> 8)
	buf[6] = byte(length)
	buf[7] = byte(length >> 8)
	return buf
}

// newEnumeratedCore builds a core with a device descriptor, attaches it and
// delivers a bus reset so it sits in the waiting state, and returns it with
// the fake HAL for inspection.
func newEnumeratedCore(t *testing.T) (*Core, *halfake.HAL) {
	t.Helper()
	h := halfake.New()
	c := NewCore()
	c.Control.Descriptors.Device = DeviceDescriptor{
		USBVersion:     0x0200,
		MaxPacketSize0: 64,
		VendorID:       0xCAFE,
		ProductID:      0xBABE,
	}

	c.Attach(h)
	c.HandleIRQ(h, hal.IRQEvent{Reset: true})
	if got := c.State(); got != StateWaiting {
		t.Fatalf("state after reset = %v, want waiting", got)
	}
	return c, h
}

func deliverSetup(c *Core, h *halfake.HAL, raw [8]byte) {
	ep0In := hal.NewEndpointAddr(0, true)
	ep0Out := hal.NewEndpointAddr(0, false)
	h.ResetTx(ep0In)
	h.QueueSetup(raw)
	c.HandleIRQ(h, hal.IRQEvent{Setup: true, Endpoints: []hal.EndpointAddr{ep0Out}})
}

func TestScenarioS1GetDeviceDescriptor(t *testing.T) {
	c, h := newEnumeratedCore(t)
	raw := setupPacketBytes(0x80, RequestGetDescriptor, 0x0100, 0, 18)
	deliverSetup(c, h, raw)

	ep0In := hal.NewEndpointAddr(0, true)
	tx := h.TxData(ep0In)
	if len(tx) != 18 {
		t.Fatalf("tx length = %d, want 18", len(tx))
	}
	if tx[0] != 18 || tx[1] != DescriptorTypeDevice {
		t.Errorf("tx[0:2] = %v, want [18 %d]", tx[0:2], DescriptorTypeDevice)
	}
	if got := c.Control.State(); got != CtrlStatusRX {
		t.Errorf("ctrl state after IN data phase = %v, want statusRX", got)
	}

	ep0Out := hal.NewEndpointAddr(0, false)
	c.HandleIRQ(h, hal.IRQEvent{Endpoints: []hal.EndpointAddr{ep0Out}})
	if got := c.Control.State(); got != CtrlIdle {
		t.Errorf("ctrl state after status OUT = %v, want idle", got)
	}
}

func TestScenarioS2SetAddress(t *testing.T) {
	c, h := newEnumeratedCore(t)
	raw := setupPacketBytes(0x00, RequestSetAddress, 7, 0, 0)
	deliverSetup(c, h, raw)

	if got := c.State(); got != StateAddressing {
		t.Fatalf("state before status completion = %v, want addressing", got)
	}

	ep0In := hal.NewEndpointAddr(0, true)
	c.HandleIRQ(h, hal.IRQEvent{Endpoints: []hal.EndpointAddr{ep0In}})

	if got := h.Address(); got != 7 {
		t.Errorf("hardware address = %d, want 7", got)
	}
	if got := c.State(); got != StateAddressed {
		t.Errorf("state = %v, want addressed", got)
	}
}

func TestScenarioS3SetConfiguration(t *testing.T) {
	c, h := newEnumeratedCore(t)
	// Drive through SET_ADDRESS first so the device is addressed.
	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetAddress, 7, 0, 0))
	c.HandleIRQ(h, hal.IRQEvent{Endpoints: []hal.EndpointAddr{hal.NewEndpointAddr(0, true)}})

	initialized := false
	c.Registry().RegisterHandler(hal.NewEndpointAddr(1, true), 1, Handler{
		Init: func(hal.EndpointAddr) { initialized = true },
	})

	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetConfiguration, 1, 0, 0))

	if got := c.ActiveConfiguration(); got != 1 {
		t.Errorf("ActiveConfiguration() = %d, want 1", got)
	}
	if got := c.State(); got != StateConfigured {
		t.Errorf("state = %v, want configured", got)
	}
	if !initialized {
		t.Error("handlers were not initialized on SET_CONFIGURATION")
	}
}

func TestScenarioS4GetStatus(t *testing.T) {
	c, h := newEnumeratedCore(t)
	raw := setupPacketBytes(0x80, RequestGetStatus, 0, 0, 2)
	deliverSetup(c, h, raw)

	ep0In := hal.NewEndpointAddr(0, true)
	tx := h.TxData(ep0In)
	if len(tx) != 2 || tx[0] != 0 || tx[1] != 0 {
		t.Errorf("tx = %v, want [0 0]", tx)
	}
}

func TestScenarioS5UnknownVendorRequestStalls(t *testing.T) {
	c, h := newEnumeratedCore(t)
	raw := setupPacketBytes(0x41, 0x99, 0, 0, 0)
	deliverSetup(c, h, raw)

	ep0In := hal.NewEndpointAddr(0, true)
	if !h.Stalled(ep0In) {
		t.Error("unknown vendor request with no handler should stall EP0")
	}
}

func TestSetConfigurationZeroReturnsToAddressed(t *testing.T) {
	c, h := newEnumeratedCore(t)
	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetAddress, 5, 0, 0))
	c.HandleIRQ(h, hal.IRQEvent{Endpoints: []hal.EndpointAddr{hal.NewEndpointAddr(0, true)}})
	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetConfiguration, 1, 0, 0))

	if c.State() != StateConfigured {
		t.Fatalf("precondition: state = %v, want configured", c.State())
	}

	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetConfiguration, 0, 0, 0))
	if got := c.State(); got != StateAddressed {
		t.Errorf("state after SET_CONFIGURATION(0) = %v, want addressed", got)
	}
	if got := c.ActiveConfiguration(); got != 0 {
		t.Errorf("ActiveConfiguration() = %d, want 0", got)
	}
}

func TestBusResetClearsConfiguration(t *testing.T) {
	c, h := newEnumeratedCore(t)
	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetAddress, 5, 0, 0))
	c.HandleIRQ(h, hal.IRQEvent{Endpoints: []hal.EndpointAddr{hal.NewEndpointAddr(0, true)}})
	deliverSetup(c, h, setupPacketBytes(0x00, RequestSetConfiguration, 1, 0, 0))

	c.HandleIRQ(h, hal.IRQEvent{Reset: true})

	if got := c.ActiveConfiguration(); got != 0 {
		t.Errorf("ActiveConfiguration() after reset = %d, want 0", got)
	}
	if got := c.State(); got != StateWaiting {
		t.Errorf("state after reset = %v, want waiting", got)
	}
}

func TestHandleIRQSuspendAndWakeup(t *testing.T) {
	c, h := newEnumeratedCore(t)
	before := c.State()

	c.HandleIRQ(h, hal.IRQEvent{Suspend: true})
	c.HandleIRQ(h, hal.IRQEvent{Wakeup: true})

	if got := c.State(); got != before {
		t.Errorf("state after suspend/wakeup round trip = %v, want %v", got, before)
	}
}
