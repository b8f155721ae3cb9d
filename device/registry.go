package device

import "github.com/ardnew/usbcore/hal"

// Handler is a set of lifecycle callbacks a class driver registers
// against an endpoint. The zero value is the empty handler: every field
// nil, which HandlerFor returns for any slot nothing has registered —
// callers never need to check for a missing registration separately from
// checking for nil fields.
type Handler struct {
	Init         func(ep hal.EndpointAddr)
	Deinit       func(ep hal.EndpointAddr)
	HandlePacket func(ep hal.EndpointAddr)
}

// empty reports whether every field of h is nil.
func (h Handler) empty() bool {
	return h.Init == nil && h.Deinit == nil && h.HandlePacket == nil
}

// ControlHandlerFunc handles a class or vendor control request addressed
// to an interface. It returns the "unhandled" answer (the zero Answer)
// to let the engine try the next registered handler or fall through to a
// stall.
type ControlHandlerFunc func(iface uint8, pkt *SetupPacket) Answer

// ControlDataHandlerFunc receives the OUT data stage of a host-to-device
// class or vendor request once it has fully arrived. It is called after
// ControlHandlerFunc has already accepted the request at SETUP time
// (returning a non-stall answer); register one alongside the
// ControlHandlerFunc for any request whose payload the handler needs,
// such as DFU_DNLOAD.
type ControlDataHandlerFunc func(iface uint8, pkt *SetupPacket, data []byte)

// AltModeHandlerFunc is invoked when the host selects an alternate
// setting on an interface via SET_INTERFACE. It returns false to reject
// the alternate setting (causing a stall).
type AltModeHandlerFunc func(alternate uint8) bool

// SOFHandlerFunc is invoked once per start-of-frame.
type SOFHandlerFunc func()

// HandlerRegistry holds the per-configuration, per-interface, and
// per-endpoint handler tables a configured device dispatches through.
// Every table is a fixed-size array sized from the package's Max*
// constants; registration outside those bounds silently no-ops, since
// the indices are compile-time constants of the user firmware and not
// values that arrive over the wire.
type HandlerRegistry struct {
	inHandlers  [MaxConfigurations][MaxEndpoints]Handler
	outHandlers [MaxConfigurations][MaxEndpoints]Handler

	controlHandlers     [MaxConfigurations][MaxInterfaces]ControlHandlerFunc
	controlDataHandlers [MaxConfigurations][MaxInterfaces]ControlDataHandlerFunc
	altModeHandlers     [MaxConfigurations][MaxInterfaces]AltModeHandlerFunc
	sofHandlers         [MaxInterfaces]SOFHandlerFunc
}

// RegisterHandler installs h for the given endpoint within config. ep's
// direction selects the IN or OUT table.
func (r *HandlerRegistry) RegisterHandler(ep hal.EndpointAddr, config uint8, h Handler) {
	if !validEndpointSlot(ep, config) {
		return
	}
	if ep.IsIn() {
		r.inHandlers[config-1][ep.Num()-1] = h
	} else {
		r.outHandlers[config-1][ep.Num()-1] = h
	}
}

// UnregisterHandler clears any handler installed for ep within config.
func (r *HandlerRegistry) UnregisterHandler(ep hal.EndpointAddr, config uint8) {
	r.RegisterHandler(ep, config, Handler{})
}

// RegisterControlHandler installs h as the class/vendor control handler
// for iface within config.
func (r *HandlerRegistry) RegisterControlHandler(iface, config uint8, h ControlHandlerFunc) {
	if !validInterfaceSlot(iface, config) {
		return
	}
	r.controlHandlers[config-1][iface-1] = h
}

// UnregisterControlHandler clears the control handler for iface within
// config.
func (r *HandlerRegistry) UnregisterControlHandler(iface, config uint8) {
	r.RegisterControlHandler(iface, config, nil)
}

// RegisterControlDataHandler installs h as the OUT-data-stage handler
// for iface within config.
func (r *HandlerRegistry) RegisterControlDataHandler(iface, config uint8, h ControlDataHandlerFunc) {
	if !validInterfaceSlot(iface, config) {
		return
	}
	r.controlDataHandlers[config-1][iface-1] = h
}

// UnregisterControlDataHandler clears the OUT-data-stage handler for
// iface within config.
func (r *HandlerRegistry) UnregisterControlDataHandler(iface, config uint8) {
	r.RegisterControlDataHandler(iface, config, nil)
}

// ControlDataHandlerFor returns the registered OUT-data-stage handler
// for iface within config, or nil.
func (r *HandlerRegistry) ControlDataHandlerFor(iface, config uint8) ControlDataHandlerFunc {
	if !validInterfaceSlot(iface, config) {
		return nil
	}
	return r.controlDataHandlers[config-1][iface-1]
}

// RegisterAltModeHandler installs h as the SET_INTERFACE handler for
// iface within config.
func (r *HandlerRegistry) RegisterAltModeHandler(iface, config uint8, h AltModeHandlerFunc) {
	if !validInterfaceSlot(iface, config) {
		return
	}
	r.altModeHandlers[config-1][iface-1] = h
}

// UnregisterAltModeHandler clears the alt-mode handler for iface within
// config.
func (r *HandlerRegistry) UnregisterAltModeHandler(iface, config uint8) {
	r.RegisterAltModeHandler(iface, config, nil)
}

// RegisterSOFHandler installs h to be called on every start-of-frame,
// regardless of the active configuration.
func (r *HandlerRegistry) RegisterSOFHandler(iface uint8, h SOFHandlerFunc) {
	if iface >= MaxInterfaces {
		return
	}
	r.sofHandlers[iface] = h
}

// UnregisterSOFHandler clears the SOF handler for iface.
func (r *HandlerRegistry) UnregisterSOFHandler(iface uint8) {
	r.RegisterSOFHandler(iface, nil)
}

// HandlerFor returns the registered Handler for ep within config, or the
// zero-value empty handler if nothing has been registered or the indices
// are out of range.
func (r *HandlerRegistry) HandlerFor(ep hal.EndpointAddr, config uint8) Handler {
	if !validEndpointSlot(ep, config) {
		return Handler{}
	}
	if ep.IsIn() {
		return r.inHandlers[config-1][ep.Num()-1]
	}
	return r.outHandlers[config-1][ep.Num()-1]
}

// ControlHandlerFor returns the registered control handler for iface
// within config, or nil.
func (r *HandlerRegistry) ControlHandlerFor(iface, config uint8) ControlHandlerFunc {
	if !validInterfaceSlot(iface, config) {
		return nil
	}
	return r.controlHandlers[config-1][iface-1]
}

// AltModeHandlerFor returns the registered alt-mode handler for iface
// within config, or nil.
func (r *HandlerRegistry) AltModeHandlerFor(iface, config uint8) AltModeHandlerFunc {
	if !validInterfaceSlot(iface, config) {
		return nil
	}
	return r.altModeHandlers[config-1][iface-1]
}

// InitHandlers calls Init on every registered endpoint handler of
// config. It is a no-op if config is 0 (unconfigured).
func (r *HandlerRegistry) InitHandlers(config uint8) {
	r.forEachEndpointHandler(config, func(ep hal.EndpointAddr, h Handler) {
		if h.Init != nil {
			h.Init(ep)
		}
	})
}

// DeinitHandlers calls Deinit on every registered endpoint handler of
// config. It is a no-op if config is 0 (unconfigured).
func (r *HandlerRegistry) DeinitHandlers(config uint8) {
	r.forEachEndpointHandler(config, func(ep hal.EndpointAddr, h Handler) {
		if h.Deinit != nil {
			h.Deinit(ep)
		}
	})
}

func (r *HandlerRegistry) forEachEndpointHandler(config uint8, fn func(ep hal.EndpointAddr, h Handler)) {
	if config == 0 || config > MaxConfigurations {
		return
	}
	for i := 0; i < MaxEndpoints; i++ {
		num := uint8(i + 1)
		if h := r.inHandlers[config-1][i]; !h.empty() {
			fn(hal.NewEndpointAddr(num, true), h)
		}
		if h := r.outHandlers[config-1][i]; !h.empty() {
			fn(hal.NewEndpointAddr(num, false), h)
		}
	}
}

func validEndpointSlot(ep hal.EndpointAddr, config uint8) bool {
	return config >= 1 && config <= MaxConfigurations &&
		ep.Num() >= 1 && ep.Num() <= MaxEndpoints
}

func validInterfaceSlot(iface, config uint8) bool {
	return config >= 1 && config <= MaxConfigurations &&
		iface >= 1 && iface <= MaxInterfaces
}
