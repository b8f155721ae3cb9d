package device

import (
	"github.com/ardnew/usbcore/hal"
	"github.com/ardnew/usbcore/pkg"
)

// EndpointStatus tracks one direction of one endpoint's in-flight
// transfer. The zero value is a valid, idle status block.
//
// A transfer is armed in one of three shapes: a plain SRAM destination
// (ArmRx, for OUT transfers), a single read-only hal.ByteSource (ArmTxSource,
// for IN transfers whose reply is one contiguous span, flash or SRAM),
// or an explicit hal.MultiPartTable (ArmTxParts, for configuration
// descriptors assembled from several independently-compiled tables). The
// three are mutually exclusive; arming one clears the others.
type EndpointStatus struct {
	addr hal.EndpointAddr

	rx []byte

	src     hal.ByteSource
	parts   hal.MultiPartTable
	isMulti bool

	pos        int // cursor into rx or src
	partNumber int // cursor into parts
	partOffset int

	transferCount uint16

	terminated  bool
	needsArming bool
	stall       bool
}

// Addr returns the endpoint address this status block belongs to.
func (s *EndpointStatus) Addr() hal.EndpointAddr { return s.addr }

// Reset clears the status block back to idle, ready for a new transfer.
func (s *EndpointStatus) Reset() {
	*s = EndpointStatus{addr: s.addr}
}

// ArmRx arms the status block to receive length bytes into dst.
func (s *EndpointStatus) ArmRx(dst []byte, length uint16) {
	s.rx = dst
	s.src = nil
	s.parts = nil
	s.isMulti = false
	s.pos = 0
	s.transferCount = length
	s.needsArming = true
	s.terminated = false
}

// ArmData arms a plain SRAM buffer as the source of an IN transfer.
func (s *EndpointStatus) ArmData(data []byte, length uint16) {
	s.ArmTxSource(hal.SRAM(data), length)
}

// ArmTxSource arms an arbitrary read-only hal.ByteSource (SRAM or flash)
// as a single-span IN transfer.
func (s *EndpointStatus) ArmTxSource(src hal.ByteSource, length uint16) {
	s.rx = nil
	s.src = src
	s.parts = nil
	s.isMulti = false
	s.pos = 0
	s.transferCount = length
	s.needsArming = true
	s.terminated = false
}

// ArmTxParts arms an explicit multi-part descriptor table, up to length
// bytes of its total content, as an IN transfer.
func (s *EndpointStatus) ArmTxParts(parts hal.MultiPartTable, length uint16) {
	s.rx = nil
	s.src = nil
	s.parts = parts
	s.isMulti = true
	s.partNumber = 0
	s.partOffset = 0
	s.transferCount = length
	s.needsArming = true
	s.terminated = false
}

// NeedsArming reports whether hardware still needs to be told about this
// transfer.
func (s *EndpointStatus) NeedsArming() bool { return s.needsArming }

// Stalled reports whether the endpoint is held in a stall condition.
func (s *EndpointStatus) Stalled() bool { return s.stall }

// SetStall marks the endpoint as stalled.
func (s *EndpointStatus) SetStall() { s.stall = true; s.needsArming = false }

// Remaining returns the number of bytes left to transfer.
func (s *EndpointStatus) Remaining() uint16 { return s.transferCount }

// EndpointEngine drives the byte-level FIFO traffic for one endpoint
// direction against a hal.EndpointHAL, operating on an EndpointStatus
// block. It never allocates: every buffer it touches is supplied by the
// caller ahead of time via one of EndpointStatus's Arm* methods.
type EndpointEngine struct{}

// ReadEP drains available RX bytes from the hardware FIFO into the
// status block's buffer. It returns true once the transfer is complete
// (transferCount reaches zero).
func (EndpointEngine) ReadEP(h hal.EndpointHAL, s *EndpointStatus) bool {
	avail := h.RxAvailable(s.addr)
	n := s.transferCount
	if avail < n {
		n = avail
	}
	if int(s.pos)+int(n) > len(s.rx) {
		n = uint16(len(s.rx) - s.pos)
	}
	if n > 0 {
		got := h.ReadFIFO(s.addr, s.rx[s.pos:s.pos+int(n)])
		s.pos += got
		s.transferCount -= uint16(got)
	}
	if s.transferCount > 0 {
		h.ArmRx(s.addr)
	} else {
		s.terminated = true
	}
	return s.transferCount == 0
}

// WriteEP stages and arms the next outbound packet for the endpoint,
// advancing through a multi-part table when the status block holds one.
// It returns true once the transfer is complete.
func (EndpointEngine) WriteEP(h hal.EndpointHAL, s *EndpointStatus) bool {
	n := s.transferCount
	if n > EPBufferSize {
		n = EPBufferSize
	}
	s.transferCount -= n

	switch {
	case s.isMulti:
		writeMultiPart(h, s, int(n))
	case s.src != nil:
		h.WriteFIFO(s.addr, s.src, s.pos, int(n))
		s.pos += int(n)
	}

	h.ArmTx(s.addr)
	if s.transferCount == 0 {
		s.terminated = true
		return true
	}
	return false
}

// writeMultiPart walks the status block's part table, writing sendAmount
// bytes from one or more consecutive parts to the FIFO. Each part is
// handed to the HAL as its own hal.ByteSource plus offset, so a flash
// part is fetched straight from program memory with no intermediate
// SRAM copy.
func writeMultiPart(h hal.EndpointHAL, s *EndpointStatus, sendAmount int) {
	for sendAmount > 0 {
		if s.partNumber >= len(s.parts) {
			pkg.LogWarn(pkg.ComponentEndpoint, "multi-part table exhausted", "ep", s.addr.String())
			return
		}
		part := s.parts[s.partNumber]
		partRemain := int(part.Length) - s.partOffset
		n := sendAmount
		if n > partRemain {
			n = partRemain
		}

		h.WriteFIFO(s.addr, part.Source, s.partOffset, n)

		s.partOffset += n
		sendAmount -= n

		if s.partOffset == int(part.Length) {
			s.partNumber++
			s.partOffset = 0
		}
	}
}
