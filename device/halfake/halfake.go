// Package halfake implements hal.EndpointHAL entirely in memory, the way
// softusb's device/hal/fifo package stood in for real hardware over named
// pipes. There is no transport here at all: tests arm a SETUP packet or
// OUT bytes directly with QueueRx/QueueSetup and inspect what the engine
// wrote with TxData, rather than driving the fake through a wire protocol.
package halfake

import "github.com/ardnew/usbcore/hal"

// MaxEndpoints is the largest endpoint number the fake tracks per
// direction, generous enough for every configuration in the test suite.
const MaxEndpoints = 16

type endpointState struct {
	rxFIFO []byte
	txFIFO []byte

	stalled      bool
	armRxCount   int
	armTxCount   int
	configured   bool
	transferType uint8
	bufAddr      uintptr
	bufLen       uint16
}

// HAL is a software hal.EndpointHAL. The zero value is not ready for use;
// construct one with New.
type HAL struct {
	attached bool
	address  uint8
	speed    hal.Speed

	epIn  [MaxEndpoints]endpointState
	epOut [MaxEndpoints]endpointState
}

// New constructs a HAL reporting full-speed once attached.
func New() *HAL {
	return &HAL{speed: hal.SpeedFull}
}

func (h *HAL) slot(ep hal.EndpointAddr) *endpointState {
	if ep.IsIn() {
		return &h.epIn[ep.Num()]
	}
	return &h.epOut[ep.Num()]
}

// Attach implements hal.EndpointHAL.
func (h *HAL) Attach() { h.attached = true }

// Detach implements hal.EndpointHAL.
func (h *HAL) Detach() { h.attached = false }

// Attached reports whether Attach has been called more recently than Detach.
func (h *HAL) Attached() bool { return h.attached }

// SetAddress implements hal.EndpointHAL.
func (h *HAL) SetAddress(addr uint8) { h.address = addr }

// Address implements hal.EndpointHAL.
func (h *HAL) Address() uint8 { return h.address }

// Speed implements hal.EndpointHAL.
func (h *HAL) Speed() hal.Speed { return h.speed }

// ConfigureEndpoint implements hal.EndpointHAL.
func (h *HAL) ConfigureEndpoint(ep hal.EndpointAddr, transferType uint8, bufAddr uintptr, bufLen uint16) {
	st := h.slot(ep)
	st.configured = true
	st.transferType = transferType
	st.bufAddr = bufAddr
	st.bufLen = bufLen
}

// ArmRx implements hal.EndpointHAL.
func (h *HAL) ArmRx(ep hal.EndpointAddr) { h.slot(ep).armRxCount++ }

// ArmTx implements hal.EndpointHAL.
func (h *HAL) ArmTx(ep hal.EndpointAddr) { h.slot(ep).armTxCount++ }

// Stall implements hal.EndpointHAL.
func (h *HAL) Stall(ep hal.EndpointAddr) { h.slot(ep).stalled = true }

// ClearStall implements hal.EndpointHAL.
func (h *HAL) ClearStall(ep hal.EndpointAddr) { h.slot(ep).stalled = false }

// ReadFIFO implements hal.EndpointHAL, draining from bytes queued by
// QueueRx/QueueSetup.
func (h *HAL) ReadFIFO(ep hal.EndpointAddr, dst []byte) int {
	st := h.slot(ep)
	n := copy(dst, st.rxFIFO)
	st.rxFIFO = st.rxFIFO[n:]
	return n
}

// WriteFIFO implements hal.EndpointHAL, appending the requested span to
// the endpoint's outgoing byte record for later inspection via TxData.
func (h *HAL) WriteFIFO(ep hal.EndpointAddr, src hal.ByteSource, off, n int) int {
	buf := make([]byte, n)
	got := src.ReadAt(buf, off)
	st := h.slot(ep)
	st.txFIFO = append(st.txFIFO, buf[:got]...)
	return got
}

// RxAvailable implements hal.EndpointHAL.
func (h *HAL) RxAvailable(ep hal.EndpointAddr) uint16 {
	return uint16(len(h.slot(ep).rxFIFO))
}

// TxBusy implements hal.EndpointHAL. The fake never defers a write, so a
// transmission is never still in flight when this is checked.
func (h *HAL) TxBusy(hal.EndpointAddr) bool { return false }

// QueueRx appends data to ep's receive FIFO, as if the host had just sent
// an OUT packet.
func (h *HAL) QueueRx(ep hal.EndpointAddr, data []byte) {
	st := h.slot(ep)
	st.rxFIFO = append(st.rxFIFO, data...)
}

// QueueSetup queues an 8-byte SETUP packet on EP0 OUT, ready for
// HandleSetupPacket's ReadFIFO call.
func (h *HAL) QueueSetup(raw [8]byte) {
	h.QueueRx(hal.NewEndpointAddr(0, false), raw[:])
}

// TxData returns everything written to ep's transmit FIFO since the last
// ResetTx, in write order.
func (h *HAL) TxData(ep hal.EndpointAddr) []byte { return h.slot(ep).txFIFO }

// ResetTx clears ep's recorded transmit bytes.
func (h *HAL) ResetTx(ep hal.EndpointAddr) { h.slot(ep).txFIFO = nil }

// Stalled reports whether ep is currently held in a stall condition.
func (h *HAL) Stalled(ep hal.EndpointAddr) bool { return h.slot(ep).stalled }

// ArmRxCount returns the number of times ArmRx has been called for ep,
// for tests asserting a rearm happened.
func (h *HAL) ArmRxCount(ep hal.EndpointAddr) int { return h.slot(ep).armRxCount }

// ArmTxCount returns the number of times ArmTx has been called for ep.
func (h *HAL) ArmTxCount(ep hal.EndpointAddr) int { return h.slot(ep).armTxCount }

var _ hal.EndpointHAL = (*HAL)(nil)
