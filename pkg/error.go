package pkg

import "errors"

// Descriptor and setup-packet parsing errors. This stack runs entirely
// inside one ISR context and reports everything else (stalls, invalid
// requests, endpoint faults) through Answer/bool return values rather
// than the error interface, to keep the hot path free of the boxing an
// error allocation requires; these three sentinels are the exception,
// returned by the handful of host-facing parsing helpers in device that
// decode descriptor and setup-packet bytes into their typed form.
var (
	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)
