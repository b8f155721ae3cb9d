package dfu

import (
	"github.com/ardnew/usbcore/device"
	"github.com/ardnew/usbcore/hal"
	"github.com/ardnew/usbcore/pkg"
)

// BlockSize is the maximum number of bytes carried in a single
// DFU_DNLOAD or DFU_UPLOAD transfer, matching the wTransferSize this
// driver advertises in its functional descriptor.
const BlockSize = 256

// Flash geometry configuration parameters. FlashPageSize bounds both the
// erase unit and the SRAM staging buffer a block is copied into;
// FlashBufferSize bounds any single call to Write, so a multi-page block
// is committed to flash in several chunks rather than one; FlashEraseSize
// is the address stride one Erase call advances.
const (
	FlashPageSize   = BlockSize
	FlashBufferSize = 64
	FlashEraseSize  = FlashPageSize
)

// flashOp names the phase of the erase-then-write loop tickDownload
// drives.
type flashOp uint8

const (
	flashOpNone flashOp = iota
	flashOpErase
	flashOpWrite
)

// flashState tracks one DFU_DNLOAD block's progress through the
// erase-then-write loop, and the read cursor an in-progress DFU_UPLOAD
// walks forward. eraseAddr and writeAddr both start at the block's base
// address; the erase phase advances eraseAddr in FlashEraseSize strides
// ahead of writeAddr until the whole block is covered, then the write
// phase advances writeAddr (and offset, its position within buf) in
// FlashBufferSize chunks until offset reaches byteCount.
type flashState struct {
	op        flashOp
	readAddr  uint32
	eraseAddr uint32
	writeAddr uint32
	endAddr   uint32
	offset    uint32
	byteCount uint32
}

// Driver implements one DFU class interface. It is registered against a
// specific interface number and configuration via RegisterHandlers, and
// is driven entirely from within Core.HandleIRQ: HandleDFURequest as a
// registered control handler, and tick as a registered SOF handler.
type Driver struct {
	// Reboot performs a device reset. DFU 1.1 expects the device to
	// reset into the newly programmed image after a manifestation-
	// tolerant download completes; this field is never nil-checked
	// before being called from tickManifest, so firmware must supply it.
	Reboot func()
	// Erase begins erasing the flash page containing addr. The driver
	// polls FlashBusy before issuing the following Write.
	Erase func(addr uint32)
	// Write begins writing count bytes from src to addr. count is
	// always <= FlashBufferSize.
	Write func(addr uint32, count uint16, src []byte)
	// FlashBusy reports whether a prior Erase or Write is still in
	// progress. Polled once per SOF.
	FlashBusy func() bool
	// Read fetches the bytes DFU_UPLOAD serves directly out of program
	// memory. Flash is ordinarily readable through a plain memory
	// access on these platforms, unlike Erase/Write which must go
	// through the flash controller, so this reuses hal.FlashReader
	// rather than inventing a second read primitive.
	Read hal.FlashReader

	zones []Zone
	iface uint8

	inBootloader bool

	cfg Config

	buf       [FlashPageSize]byte
	blockNum  uint16
	zoneIndex int

	flash flashState
}

// NewDriver constructs a Driver in the appIDLE state.
func NewDriver() *Driver {
	d := &Driver{}
	d.cfg.State = StateAppIdle
	d.cfg.Status = StatusOK
	return d
}

// RegisterHandlers installs the driver's control and alt-mode handlers
// on core for the given interface within config, and records the flash
// zones a download may target. zones[i] is selected by alternate setting
// i: a host issues SET_INTERFACE to choose which region of flash
// subsequent DFU_DNLOAD blocks are written to.
func (d *Driver) RegisterHandlers(core *device.Core, zones []Zone, iface, config uint8) {
	d.zones = zones
	d.iface = iface
	d.zoneIndex = 0

	reg := core.Registry()
	reg.RegisterControlHandler(iface, config, d.handleDFURequest)
	reg.RegisterControlDataHandler(iface, config, d.handleDownloadData)
	reg.RegisterAltModeHandler(iface, config, d.setAlternate)
	reg.RegisterSOFHandler(iface, d.tick)
}

// Detached reports, or sets, whether the driver believes it is running
// inside the DFU-mode bootloader (true) as opposed to the runtime
// application (false). Runtime firmware that exposes only DFU_DETACH
// should leave this false and flip it after reboot; a dedicated
// DFU-mode image should set it true at startup.
func (d *Driver) Detached(state bool) { d.inBootloader = state }

// IsDetached reports the value last set via Detached.
func (d *Driver) IsDetached() bool { return d.inBootloader }

// FunctionalDescriptor returns the DFU functional descriptor this driver
// advertises as part of its interface's configuration descriptor. The
// host reads wTransferSize from it to size its DFU_DNLOAD/DFU_UPLOAD
// blocks, which is why it is always BlockSize here.
func (d *Driver) FunctionalDescriptor() device.DFUFunctionalDescriptor {
	return device.DFUFunctionalDescriptor{
		Attributes:    device.DFUAttrCanDownload | device.DFUAttrCanUpload | device.DFUAttrManifestationTolerant,
		DetachTimeout: 255,
		TransferSize:  BlockSize,
		DFUVersion:    0x0110,
	}
}

func (d *Driver) setAlternate(alternate uint8) bool {
	if int(alternate) >= len(d.zones) {
		return false
	}
	d.zoneIndex = int(alternate)
	d.cfg.State = StateDfuIdle
	return true
}

// handleDFURequest is registered as the interface's class control
// handler. It validates the request per DFU 1.1 section 3 (class
// request, addressed to the registered interface) before dispatching.
func (d *Driver) handleDFURequest(iface uint8, pkt *device.SetupPacket) device.Answer {
	if !pkt.IsClass() || !pkt.IsInterfaceRecipient() || pkt.InterfaceNumber() != d.iface {
		return device.Answer{}
	}

	switch Request(pkt.Request) {
	case RequestGetStatus:
		return d.getStatus()
	case RequestClearStatus:
		return d.clearStatus()
	case RequestGetState:
		return d.getState()
	case RequestAbort:
		return d.abort()
	case RequestDNLoad:
		return d.download(pkt)
	case RequestUPLoad:
		return d.upload(pkt)
	case RequestDetach:
		return d.detach()
	default:
		return device.Answer{Response: device.ResponseStall}
	}
}

func (d *Driver) getStatus() device.Answer {
	n := d.cfg.MarshalTo(d.buf[:6])
	return device.Answer{Response: device.ResponseData, Data: hal.SRAM(d.buf[:n]), Length: uint16(n)}
}

func (d *Driver) clearStatus() device.Answer {
	if d.cfg.State == StateError {
		d.cfg.State = StateDfuIdle
		d.cfg.Status = StatusOK
	}
	return device.Answer{Response: device.ResponseZeroLength}
}

func (d *Driver) getState() device.Answer {
	d.buf[0] = uint8(d.cfg.State)
	return device.Answer{Response: device.ResponseData, Data: hal.SRAM(d.buf[:1]), Length: 1}
}

func (d *Driver) abort() device.Answer {
	d.cfg.State = StateDfuIdle
	d.flash.op = flashOpNone
	return device.Answer{Response: device.ResponseZeroLength}
}

func (d *Driver) detach() device.Answer {
	if d.cfg.State != StateAppIdle {
		return device.Answer{Response: device.ResponseStall}
	}
	d.cfg.State = StateAppDetach
	return device.Answer{Response: device.ResponseZeroLength}
}

// download implements the SETUP phase of DFU_DNLOAD (4.1 Download).
// Block 0 of a download sequence establishes the target address: this
// driver's convention, in the absence of a DfuSe-style extended
// addressing layer, is that wValue carries the low 16 bits of a block
// counter and the zone selected by the active alternate setting supplies
// the base address. A zero-length DNLOAD carries no data stage and
// signals end of download, so it starts manifestation immediately.
// A non-empty DNLOAD only computes and arms the erase phase here; the
// block's bytes have not arrived yet at SETUP time, and the write phase
// only begins once handleDownloadData has copied them into buf.
func (d *Driver) download(pkt *device.SetupPacket) device.Answer {
	switch d.cfg.State {
	case StateDfuIdle, StateDownloadIdle:
	default:
		d.cfg.State = StateError
		d.cfg.Status = StatusErrStalledPkt
		return device.Answer{Response: device.ResponseStall}
	}

	if pkt.Length == 0 {
		d.cfg.State = StateManifestSync
		return device.Answer{Response: device.ResponseZeroLength}
	}

	if d.zoneIndex >= len(d.zones) {
		d.cfg.State = StateError
		d.cfg.Status = StatusErrAddress
		return device.Answer{Response: device.ResponseStall}
	}
	if pkt.Length > FlashPageSize {
		d.cfg.State = StateError
		d.cfg.Status = StatusErrFile
		return device.Answer{Response: device.ResponseStall}
	}

	zone := d.zones[d.zoneIndex]
	target := uint32(zone.Start) + uint32(pkt.Value)*BlockSize
	if uint64(target)+uint64(pkt.Length) > uint64(zone.End) {
		d.cfg.State = StateError
		d.cfg.Status = StatusErrAddress
		return device.Answer{Response: device.ResponseStall}
	}

	d.blockNum = pkt.Value
	d.flash = flashState{
		op:        flashOpErase,
		eraseAddr: target,
		writeAddr: target,
		endAddr:   uint32(zone.End),
		byteCount: uint32(pkt.Length),
		readAddr:  d.flash.readAddr,
	}
	d.cfg.State = StateDownloadSync
	d.cfg.PollTimeout = 1

	return device.Answer{Response: device.ResponseZeroLength}
}

// handleDownloadData is registered as the interface's OUT-data-stage
// handler. It runs once the DFU_DNLOAD block this driver accepted in
// download has fully arrived, copies it into buf, and moves the state
// machine into downloadBusy so tickDownload's write phase is allowed to
// start once the erase phase has drained.
func (d *Driver) handleDownloadData(iface uint8, pkt *device.SetupPacket, data []byte) {
	n := copy(d.buf[:], data)
	d.flash.byteCount = uint32(n)
	d.cfg.State = StateDownloadBusy

	pkg.LogDebug(pkg.ComponentDFU, "download block", "block", d.blockNum, "len", n, "target", d.flash.writeAddr)
}

// upload implements DFU_UPLOAD (4.2 Upload): copy up to packet.length
// bytes from the read cursor into buf, advance the cursor, and reply
// with whatever was actually read. Block 0 resets the cursor to the
// active zone's base address the same way block 0 of a download
// establishes its target.
func (d *Driver) upload(pkt *device.SetupPacket) device.Answer {
	switch d.cfg.State {
	case StateDfuIdle, StateUploadIdle:
	default:
		d.cfg.State = StateError
		d.cfg.Status = StatusErrStalledPkt
		return device.Answer{Response: device.ResponseStall}
	}

	if d.zoneIndex >= len(d.zones) {
		d.cfg.State = StateError
		d.cfg.Status = StatusErrAddress
		return device.Answer{Response: device.ResponseStall}
	}
	zone := d.zones[d.zoneIndex]
	if pkt.Value == 0 {
		d.flash.readAddr = uint32(zone.Start)
	}

	length := pkt.Length
	if int(length) > len(d.buf) {
		length = uint16(len(d.buf))
	}
	if uint64(d.flash.readAddr)+uint64(length) > uint64(zone.End) {
		d.cfg.State = StateError
		d.cfg.Status = StatusErrAddress
		return device.Answer{Response: device.ResponseStall}
	}

	n := d.Read(uintptr(d.flash.readAddr), d.buf[:length])
	d.flash.readAddr += uint32(n)
	d.cfg.State = StateUploadIdle

	return device.Answer{Response: device.ResponseData, Data: hal.SRAM(d.buf[:n]), Length: uint16(n)}
}

// tick is registered as the interface's SOF handler. It drives the
// erase-then-write flash programming loop and the manifestation
// handshake, both of which must progress without blocking the one
// interrupt context this entire stack runs in.
func (d *Driver) tick() {
	switch d.cfg.State {
	case StateDownloadSync, StateDownloadBusy:
		d.tickDownload()
	case StateManifestSync, StateManifest:
		d.tickManifest()
	}
}

// tickDownload advances one step of the erase-then-write loop per call.
// The erase phase walks eraseAddr forward across the whole block in
// FlashEraseSize strides before the write phase begins; the write phase
// only runs once downloadBusy (the block has actually landed in buf),
// and commits it to flash in FlashBufferSize chunks rather than one call
// covering the whole block.
func (d *Driver) tickDownload() {
	if d.FlashBusy() {
		return
	}

	switch d.flash.op {
	case flashOpErase:
		if d.flash.eraseAddr < d.flash.writeAddr+d.flash.byteCount {
			d.Erase(d.flash.eraseAddr)
			d.flash.eraseAddr += FlashEraseSize
			return
		}
		if d.flash.writeAddr+d.flash.byteCount > d.flash.endAddr {
			d.cfg.State = StateError
			d.cfg.Status = StatusErrAddress
			d.flash.op = flashOpNone
			return
		}
		d.flash.op = flashOpWrite
		fallthrough
	case flashOpWrite:
		if d.cfg.State != StateDownloadBusy {
			return
		}
		if d.flash.offset == d.flash.byteCount {
			d.flash.op = flashOpNone
			d.cfg.State = StateDownloadIdle
			d.cfg.PollTimeout = 0
			return
		}
		n := d.flash.byteCount - d.flash.offset
		if n > FlashBufferSize {
			n = FlashBufferSize
		}
		d.Write(d.flash.writeAddr, uint16(n), d.buf[d.flash.offset:d.flash.offset+n])
		d.flash.writeAddr += n
		d.flash.offset += n
	}
}

func (d *Driver) tickManifest() {
	if d.cfg.State == StateManifestSync {
		d.cfg.State = StateManifest
		return
	}
	if d.FlashBusy() {
		return
	}
	d.cfg.State = StateManifestWaitReset
	d.Reboot()
}
