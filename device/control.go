package device

import (
	"github.com/ardnew/usbcore/hal"
	"github.com/ardnew/usbcore/pkg"
)

// ResponseKind classifies how a control request was answered.
type ResponseKind uint8

const (
	// ResponseUnhandled means the handler did not recognize the request;
	// the engine should either try the next handler or stall.
	ResponseUnhandled ResponseKind = iota
	// ResponseData means Data/Length hold a reply to transmit.
	ResponseData
	// ResponseZeroLength means a zero-length status-only reply.
	ResponseZeroLength
	// ResponseStall means the request is invalid and EP0 should stall.
	ResponseStall
)

// Answer is the result of dispatching a SETUP packet to a standard or
// class control handler. The zero value is ResponseUnhandled, so a
// handler that returns early with `return Answer{}` behaves correctly
// without needing to spell out the unhandled case.
type Answer struct {
	Response ResponseKind
	Data     hal.ByteSource
	Parts    hal.MultiPartTable
	Length   uint16
}

func unhandled() Answer { return Answer{Response: ResponseUnhandled} }
func stallAnswer() Answer { return Answer{Response: ResponseStall} }
func zeroLength() Answer { return Answer{Response: ResponseZeroLength} }
func dataAnswer(src hal.ByteSource, length uint16) Answer {
	return Answer{Response: ResponseData, Data: src, Length: length}
}

// multiPartAnswer replies with a hal.MultiPartTable assembled on the wire as
// one contiguous stream, routed through EndpointStatus.ArmTxParts rather
// than wrapped in a second hal.ByteSource adapter.
func multiPartAnswer(parts hal.MultiPartTable, length uint16) Answer {
	return Answer{Response: ResponseData, Parts: parts, Length: length}
}

// DescriptorSource supplies the descriptor tables a ControlEngine serves
// in response to GET_DESCRIPTOR. Every table is read-only and may be
// SRAM- or flash-backed; user firmware builds it once at startup.
type DescriptorSource struct {
	Device            DeviceDescriptor
	DeviceQualifier   *DeviceDescriptor // nil if the device is full-speed only
	Configurations    [MaxConfigurations]hal.MultiPartTable
	OtherSpeedConfigs [MaxConfigurations]hal.MultiPartTable
	Strings           [MaxStrings]hal.MultiPartTable
}

// ControlEngine implements the endpoint-0 control-transfer protocol: it
// parses SETUP packets, answers standard requests directly, and offers
// anything else to the active configuration's registered control
// handlers before falling back to a stall.
type ControlEngine struct {
	Descriptors DescriptorSource

	setup     SetupPacket
	ctrlState CtrlState

	ep0In  EndpointStatus
	ep0Out EndpointStatus

	respBuf [DeviceDescriptorSize]byte
	outBuf  [MaxControlDataSize]byte

	pendingDataIface uint8

	engine EndpointEngine
}

// State returns the current control-transfer phase.
func (c *ControlEngine) State() CtrlState { return c.ctrlState }

// Setup returns the most recently parsed SETUP packet.
func (c *ControlEngine) Setup() *SetupPacket { return &c.setup }

// reset returns EP0 to idle, clearing any in-flight data or status phase.
// Called on bus reset.
func (c *ControlEngine) reset() {
	c.ep0In.Reset()
	c.ep0Out.Reset()
	c.ctrlState = CtrlIdle
}

// HandleSetupPacket is called when the HAL reports a fresh SETUP token
// waiting in EP0's OUT FIFO. It parses the packet, dispatches it, and
// begins the data or status phase.
func (c *ControlEngine) HandleSetupPacket(h hal.EndpointHAL, core *Core) {
	var buf [SetupPacketSize]byte
	n := h.ReadFIFO(hal.NewEndpointAddr(0, false), buf[:])
	if n < SetupPacketSize {
		pkg.LogWarn(pkg.ComponentControl, "short setup packet", "n", n)
		h.Stall(hal.NewEndpointAddr(0, true))
		return
	}
	if err := ParseSetupPacket(buf[:], &c.setup); err != nil {
		h.Stall(hal.NewEndpointAddr(0, true))
		return
	}

	c.ep0In.Reset()
	c.ep0Out.Reset()
	c.ctrlState = CtrlWait
	c.pendingDataIface = 0

	answer := c.handleStandardRequest(core)
	if answer.Response == ResponseUnhandled && core.activeConfig != 0 {
		for iface := uint8(1); iface <= MaxInterfaces; iface++ {
			ch := core.registry.ControlHandlerFor(iface, core.activeConfig)
			if ch == nil {
				continue
			}
			if a := ch(iface, &c.setup); a.Response != ResponseUnhandled {
				answer = a
				if a.Response != ResponseStall {
					c.pendingDataIface = iface
				}
				break
			}
		}
	}

	// A host-to-device request carrying a data stage (DFU_DNLOAD and
	// similar) is accepted here but its payload has not arrived yet; EP0
	// IN stays unarmed so completeSetupPacket starts the OUT data phase
	// instead of a premature status reply. The accepting handler's
	// ControlDataHandlerFunc runs once that data phase completes.
	awaitingOutData := c.setup.IsHostToDevice() && c.setup.Length > 0 &&
		(answer.Response == ResponseZeroLength || answer.Response == ResponseData)

	switch answer.Response {
	case ResponseStall:
		c.ep0In.SetStall()
	case ResponseUnhandled:
		c.ep0In.SetStall()
	case ResponseZeroLength:
		if !awaitingOutData {
			c.ep0In.ArmData(nil, 0)
		}
	case ResponseData:
		if awaitingOutData {
			break
		}
		length := answer.Length
		if length > c.setup.Length {
			length = c.setup.Length
		}
		switch {
		case answer.Parts != nil:
			c.ep0In.ArmTxParts(answer.Parts, length)
		case answer.Data != nil:
			c.ep0In.ArmTxSource(answer.Data, length)
		default:
			c.ep0In.ArmData(nil, 0)
		}
	}

	c.completeSetupPacket(h, core)
}

// completeSetupPacket drives EP0 into its next phase after a SETUP
// packet has been dispatched.
func (c *ControlEngine) completeSetupPacket(h hal.EndpointHAL, core *Core) {
	ep0In := hal.NewEndpointAddr(0, true)
	ep0Out := hal.NewEndpointAddr(0, false)

	if !c.ep0In.NeedsArming() {
		switch {
		case c.ep0In.Stalled():
			h.Stall(ep0In)
			c.ctrlState = CtrlIdle
		case c.setup.IsHostToDevice() && c.setup.Length > 0:
			c.ep0Out.ArmRx(c.outBuf[:], c.setup.Length)
			c.ctrlState = CtrlDataRX
			h.ArmRx(ep0Out)
		default:
			c.ctrlState = CtrlIdle
		}
		return
	}

	if c.setup.IsDeviceToHost() {
		c.ctrlState = CtrlDataTX
	} else {
		c.ctrlState = CtrlStatusTX
	}
	if c.engine.WriteEP(h, &c.ep0In) {
		if c.ctrlState == CtrlDataTX {
			c.ctrlState = CtrlStatusRX
			h.ArmRx(ep0Out)
		} else {
			c.ctrlState = CtrlIdle
		}
	}
}

// HandleControllerOutPacket services an EP0 OUT completion during the
// data or status-out phase. Once a pending host-to-device data stage
// finishes arriving, the accepting interface's ControlDataHandlerFunc
// runs with the received bytes before the status reply is armed.
func (c *ControlEngine) HandleControllerOutPacket(h hal.EndpointHAL, core *Core) {
	switch c.ctrlState {
	case CtrlDataRX:
		if c.engine.ReadEP(h, &c.ep0Out) {
			if c.pendingDataIface != 0 {
				if dh := core.registry.ControlDataHandlerFor(c.pendingDataIface, core.activeConfig); dh != nil {
					dh(c.pendingDataIface, &c.setup, c.outBuf[:c.setup.Length])
				}
				c.pendingDataIface = 0
			}
			c.ctrlState = CtrlStatusTX
			c.ep0In.ArmData(nil, 0)
			c.engine.WriteEP(h, &c.ep0In)
		}
	default:
		c.ctrlState = CtrlIdle
	}
}

// HandleControllerInPacket services an EP0 IN completion during the data
// or status-in phase, and latches a pending SET_ADDRESS once the status
// stage for it completes.
func (c *ControlEngine) HandleControllerInPacket(h hal.EndpointHAL, core *Core) {
	if core.state == StateAddressing {
		if c.setup.IsStandard() && c.setup.Request == RequestSetAddress && c.setup.Value>>8 == 0 {
			h.SetAddress(uint8(c.setup.Value & 0x7f))
			core.state = StateAddressed
		} else {
			h.SetAddress(0)
			core.state = StateWaiting
		}
	}

	switch c.ctrlState {
	case CtrlDataTX:
		if c.engine.WriteEP(h, &c.ep0In) {
			c.ctrlState = CtrlIdle
		}
	default:
		c.ctrlState = CtrlIdle
	}
}

// handleStandardRequest dispatches a parsed SETUP packet against the
// chapter-9 standard requests this stack implements at the device level.
func (c *ControlEngine) handleStandardRequest(core *Core) Answer {
	if !c.setup.IsStandard() {
		return unhandled()
	}
	switch c.setup.Request {
	case RequestSetAddress:
		core.state = StateAddressing
		return zeroLength()
	case RequestGetDescriptor:
		return c.getDescriptor()
	case RequestSetDescriptor:
		return stallAnswer()
	case RequestGetConfiguration:
		c.respBuf[0] = core.activeConfig
		return dataAnswer(hal.SRAM(c.respBuf[:1]), 1)
	case RequestSetConfiguration:
		return c.setConfiguration(core, uint8(c.setup.Value))
	case RequestGetStatus:
		c.respBuf[0], c.respBuf[1] = 0, 0
		if c.setup.IsDeviceRecipient() && core.remoteWakeupEnabled {
			c.respBuf[0] = 0x02
		}
		return dataAnswer(hal.SRAM(c.respBuf[:2]), 2)
	case RequestGetInterface:
		c.respBuf[0] = 0
		return dataAnswer(hal.SRAM(c.respBuf[:1]), 1)
	case RequestSetInterface:
		iface := uint8(c.setup.Index)
		alt := uint8(c.setup.Value)
		if fn := core.registry.AltModeHandlerFor(iface, core.activeConfig); fn != nil {
			if !fn(alt) {
				return stallAnswer()
			}
		}
		return zeroLength()
	case RequestSynchFrame:
		return stallAnswer()
	case RequestClearFeature, RequestSetFeature:
		return c.handleFeature(core)
	default:
		return unhandled()
	}
}

func (c *ControlEngine) handleFeature(core *Core) Answer {
	set := c.setup.Request == RequestSetFeature
	switch {
	case c.setup.IsDeviceRecipient() && c.setup.Value == FeatureDeviceRemoteWakeup:
		core.remoteWakeupEnabled = set
		return zeroLength()
	case c.setup.IsEndpointRecipient() && c.setup.Value == FeatureEndpointHalt:
		return zeroLength()
	default:
		return stallAnswer()
	}
}

// getDescriptor implements GET_DESCRIPTOR dispatch by descriptor type.
func (c *ControlEngine) getDescriptor() Answer {
	descType := c.setup.DescriptorType()
	idx := c.setup.DescriptorIndex()

	switch descType {
	case DescriptorTypeDevice:
		n := c.Descriptors.Device.MarshalTo(c.respBuf[:])
		return dataAnswer(hal.SRAM(c.respBuf[:n]), uint16(n))

	case DescriptorTypeConfiguration:
		if int(idx) >= MaxConfigurations {
			return stallAnswer()
		}
		table := c.Descriptors.Configurations[idx]
		return multiPartAnswer(table, uint16(table.TotalLength()))

	case DescriptorTypeOtherSpeedConfig:
		if int(idx) >= MaxConfigurations {
			return stallAnswer()
		}
		table := c.Descriptors.OtherSpeedConfigs[idx]
		return multiPartAnswer(table, uint16(table.TotalLength()))

	case DescriptorTypeString:
		if int(idx) >= MaxStrings {
			return stallAnswer()
		}
		table := c.Descriptors.Strings[idx]
		return multiPartAnswer(table, uint16(table.TotalLength()))

	case DescriptorTypeDeviceQualifier:
		if c.Descriptors.DeviceQualifier == nil {
			return stallAnswer()
		}
		n := c.Descriptors.DeviceQualifier.MarshalTo(c.respBuf[:])
		return dataAnswer(hal.SRAM(c.respBuf[:n]), uint16(n))

	default:
		return stallAnswer()
	}
}

// setConfiguration implements SET_CONFIGURATION: it deinitializes the
// previous configuration's handlers, clears the non-zero endpoints'
// status blocks, records the new configuration, and initializes its
// handlers. It does not configure endpoint hardware:
// hal.EndpointHAL.ConfigureEndpoint is not called here.
func (c *ControlEngine) setConfiguration(core *Core, config uint8) Answer {
	if config != 0 && int(config) > MaxConfigurations {
		return stallAnswer()
	}
	if core.activeConfig != 0 {
		core.registry.DeinitHandlers(core.activeConfig)
	}
	core.resetEndpoints(false)
	core.activeConfig = config
	if config == 0 {
		core.state = StateAddressed
		return zeroLength()
	}
	core.state = StateConfigured
	core.registry.InitHandlers(config)
	return zeroLength()
}
