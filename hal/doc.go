// Package hal isolates every detail that changes from one microcontroller
// to the next behind [EndpointHAL]. Everything in device and dfu is
// written against this interface only; a physical back-end (AVR XMEGA,
// STM32 USBFS, Synopsys DWC2, ...) is not part of this module.
//
// # Implementer pitfalls
//
// [EndpointHAL.Address] must be a pure read of the programmed device
// address register. At least one AVR USB peripheral's endpoint-select
// register reads back the currently selected endpoint rather than the
// device address, and a naive read-modify-write against it will
// silently reselect the wrong endpoint on the next FIFO access. Keep
// address storage and endpoint selection in separate registers, or
// cache the address in SRAM if the hardware does not provide one.
package hal
