// Package device implements a single-threaded USB 2.0 full-speed device
// stack: the chapter-9 enumeration state machine, the endpoint-0 control-
// transfer engine, the endpoint I/O engine, and the handler registry a
// class driver (such as [github.com/ardnew/usbcore/dfu]) registers
// against.
//
// The stack talks to hardware through the [github.com/ardnew/usbcore/hal]
// package's [hal.EndpointHAL] interface. There is no goroutine, channel,
// or context.Context anywhere in this package: exactly one logical
// executor drives the whole stack, a platform ISR calling [Core.HandleIRQ]
// once per USB interrupt. Every method this package exports either runs
// to completion synchronously or is explicitly documented as deferring
// work to a later HandleIRQ call.
//
// # Architecture
//
//   - [Core] owns the enumeration state machine and dispatches IRQ events
//   - [ControlEngine] implements the EP0 SETUP/data/status phases
//   - [EndpointEngine] drains and fills non-zero endpoint FIFOs
//   - [HandlerRegistry] holds the per-configuration handler tables a
//     class driver installs before [Core.Attach]
//
// # Device States
//
// Core tracks the USB 2.0 chapter 9 enumeration state machine, with two
// internal sub-states (waiting, addressing) inserted around SET_ADDRESS:
//
//	Detached → Attached → Powered → Waiting → Addressing → Addressed → Configured
//
// # Zero-Allocation Design
//
// The stack targets bare-metal firmware and allocates nothing on its hot
// path:
//
//   - Serialization via MarshalTo(buf) rather than allocating Bytes()
//   - Parse functions take output parameters rather than returning pointers
//   - Fixed-size arrays, not maps, back every endpoint/interface/config table
//   - hal.ByteSource lets a descriptor answer stream straight out of flash
//     without an intermediate SRAM copy
//
// # Class Drivers
//
// A class driver registers against [HandlerRegistry] rather than
// implementing a shared interface: [ControlHandlerFunc] for class/vendor
// SETUP requests, [ControlDataHandlerFunc] for their OUT data stage,
// [AltModeHandlerFunc] for SET_INTERFACE, and a plain endpoint [Handler]
// for bulk/interrupt I/O. See [github.com/ardnew/usbcore/dfu] for a
// complete example.
package device
