package device

import "fmt"

// Fixed capacities sized for the target firmware. These are compile-time
// constants rather than configurable fields: every table they bound is a
// fixed-size array, matching the zero-allocation style the rest of this
// package follows.
const (
	// MaxConfigurations is the maximum number of configurations a device
	// descriptor may declare.
	MaxConfigurations = 2

	// MaxInterfaces is the maximum number of interfaces across all
	// configurations. Handler tables are indexed by interface number
	// directly, so this bounds interface numbers as well as count.
	MaxInterfaces = 4

	// MaxEndpoints is the maximum number of non-zero endpoint numbers
	// (1..MaxEndpoints); endpoint 0 is handled separately by the
	// control engine and does not consume a registry slot.
	MaxEndpoints = 7

	// EPBufferSize is the size in bytes of the staging buffer behind
	// each endpoint, and therefore the largest single packet this stack
	// will ever hand to hal.EndpointHAL.WriteFIFO/ReadFIFO in one call.
	EPBufferSize = 64

	// MaxStrings is the maximum number of string descriptor indices a
	// device may register, index 0 (language IDs) included.
	MaxStrings = 8

	// MaxControlDataSize is the largest OUT data stage this stack will
	// stage for a host-to-device control request, sized for a DFU
	// DFU_DNLOAD block.
	MaxControlDataSize = 256
)

// CtrlState is the phase of the endpoint-0 control-transfer state
// machine, tracked independently of the device's overall enumeration
// state.
type CtrlState uint8

// Control endpoint phases.
const (
	CtrlIdle CtrlState = iota
	CtrlWait
	CtrlDataTX
	CtrlDataRX
	CtrlStatusTX
	CtrlStatusRX
)

func (s CtrlState) String() string {
	switch s {
	case CtrlIdle:
		return "idle"
	case CtrlWait:
		return "wait"
	case CtrlDataTX:
		return "dataTX"
	case CtrlDataRX:
		return "dataRX"
	case CtrlStatusTX:
		return "statusTX"
	case CtrlStatusRX:
		return "statusRX"
	default:
		return fmt.Sprintf("CtrlState(%d)", uint8(s))
	}
}

// DeviceState is the device's position in the USB 2.0 chapter 9
// enumeration state machine (section 9.1), extended with the waiting
// and addressing sub-states this stack tracks internally while servicing
// SET_ADDRESS.
type DeviceState uint8

// Enumeration states, in the order a device normally passes through them.
const (
	StateDetached DeviceState = iota
	StateAttached
	StatePowered
	StateWaiting
	StateAddressing
	StateAddressed
	StateConfigured
)

func (s DeviceState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttached:
		return "attached"
	case StatePowered:
		return "powered"
	case StateWaiting:
		return "waiting"
	case StateAddressing:
		return "addressing"
	case StateAddressed:
		return "addressed"
	case StateConfigured:
		return "configured"
	default:
		return fmt.Sprintf("DeviceState(%d)", uint8(s))
	}
}
