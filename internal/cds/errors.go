package cds

import "errors"

// Sentinel errors for the cds package. Decode errors are never fatal —
// callers drop the frame and increment an observability counter — but
// tests and the codec fuzz property (P3) need to distinguish them.
var (
	// ErrInvalidMACLength indicates a MAC text value did not decode to
	// exactly MACSize bytes.
	ErrInvalidMACLength = errors.New("mac: invalid length")

	// ErrTruncatedHeader indicates a frame shorter than the minimum
	// header (tag + sender MAC).
	ErrTruncatedHeader = errors.New("packet: truncated header")

	// ErrUnknownTag indicates a frame's first byte is not one of the
	// recognized packet type tags.
	ErrUnknownTag = errors.New("packet: unknown type tag")

	// ErrMisalignedPayload indicates a NEIGHBOR_SET/UPD_NEIGHBOR_SET
	// payload whose length past the header is not a multiple of 7.
	ErrMisalignedPayload = errors.New("packet: payload not a multiple of 7 bytes")
)
