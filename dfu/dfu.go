// Package dfu implements the USB Device Firmware Upgrade class, revision
// 1.1: the DFU state machine, the class-specific control requests, and
// the SOF-clocked erase/write loop that streams a firmware image into
// flash one block at a time.
//
// The driver never touches flash itself. It is given five callbacks
// supplied by the host firmware (Erase, Write, FlashBusy, Reboot, and
// Read for DFU_UPLOAD) and calls them at the points the DFU 1.1 state diagram
// specifies; everything else — page geometry, erase timing, the actual
// register writes — is the firmware's concern.
package dfu

import "fmt"

// Request holds the DFU class-specific request codes (DFU 1.1 Table 3.2).
type Request uint8

// DFU class requests.
const (
	RequestDetach Request = iota
	RequestDNLoad
	RequestUPLoad
	RequestGetStatus
	RequestClearStatus
	RequestGetState
	RequestAbort
)

// State is the device's position in the DFU 1.1 state diagram (Table
// A.1). appIDLE/appDETACH belong to the runtime (non-DFU) protocol; a
// device that only ever runs the DFU-mode driver starts in dfuIDLE.
type State uint8

// DFU states.
const (
	StateAppIdle State = iota
	StateAppDetach
	StateDfuIdle
	StateDownloadSync
	StateDownloadBusy
	StateDownloadIdle
	StateManifestSync
	StateManifest
	StateManifestWaitReset
	StateUploadIdle
	StateError
)

func (s State) String() string {
	switch s {
	case StateAppIdle:
		return "appIDLE"
	case StateAppDetach:
		return "appDETACH"
	case StateDfuIdle:
		return "dfuIDLE"
	case StateDownloadSync:
		return "dfuDNLOAD-SYNC"
	case StateDownloadBusy:
		return "dfuDNBUSY"
	case StateDownloadIdle:
		return "dfuDNLOAD-IDLE"
	case StateManifestSync:
		return "dfuMANIFEST-SYNC"
	case StateManifest:
		return "dfuMANIFEST"
	case StateManifestWaitReset:
		return "dfuMANIFEST-WAIT-RESET"
	case StateUploadIdle:
		return "dfuUPLOAD-IDLE"
	case StateError:
		return "dfuERROR"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Status is the error/status code reported in a DFU_GETSTATUS reply
// (DFU 1.1 Table A.2). ok is the only non-error status.
type Status uint8

// DFU status codes.
const (
	StatusOK Status = iota
	StatusErrTarget
	StatusErrFile
	StatusErrWrite
	StatusErrErase
	StatusErrCheckErased
	StatusErrProg
	StatusErrVerify
	StatusErrAddress
	StatusErrNotDone
	StatusErrFirmware
	StatusErrVendor
	StatusErrUSBReset
	StatusErrPOR
	StatusErrUnknown
	StatusErrStalledPkt
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusErrTarget:
		return "errTARGET"
	case StatusErrFile:
		return "errFILE"
	case StatusErrWrite:
		return "errWRITE"
	case StatusErrErase:
		return "errERASE"
	case StatusErrCheckErased:
		return "errCHECK_ERASED"
	case StatusErrProg:
		return "errPROG"
	case StatusErrVerify:
		return "errVERIFY"
	case StatusErrAddress:
		return "errADDRESS"
	case StatusErrNotDone:
		return "errNOTDONE"
	case StatusErrFirmware:
		return "errFIRMWARE"
	case StatusErrVendor:
		return "errVENDOR"
	case StatusErrUSBReset:
		return "errUSBR"
	case StatusErrPOR:
		return "errPOR"
	case StatusErrUnknown:
		return "errUNKNOWN"
	case StatusErrStalledPkt:
		return "errSTALLEDPKT"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Config is the 6-byte DFU_GETSTATUS reply body (DFU 1.1 Table 3.2):
// status, poll timeout (24-bit, little endian), state, string index.
type Config struct {
	Status      Status
	PollTimeout uint32 // only the low 24 bits are transmitted
	State       State
	StringIndex uint8
}

// MarshalTo encodes cfg as the 6-byte wire representation a
// DFU_GETSTATUS request expects. Returns the number of bytes written.
func (cfg *Config) MarshalTo(buf []byte) int {
	if len(buf) < 6 {
		return 0
	}
	buf[0] = uint8(cfg.Status)
	buf[1] = uint8(cfg.PollTimeout)
	buf[2] = uint8(cfg.PollTimeout >> 8)
	buf[3] = uint8(cfg.PollTimeout >> 16)
	buf[4] = uint8(cfg.State)
	buf[5] = cfg.StringIndex
	return 6
}

// Zone describes one contiguous flash address range a DFU download is
// permitted to target, selected by the host via SET_INTERFACE's
// alternate setting. A device with a bootloader and an application
// region typically registers one zone per region.
type Zone struct {
	Start uintptr
	End   uintptr
}

// Contains reports whether addr falls within the zone, inclusive of
// Start and exclusive of End.
func (z Zone) Contains(addr uintptr) bool {
	return addr >= z.Start && addr < z.End
}
