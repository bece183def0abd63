package ai

import (
	"errors"
	"fmt"
)

// ErrUnknownVendor marks a provider string outside the supported set.
var ErrUnknownVendor = errors.New("unknown ai vendor")

// ProviderError wraps any transport failure, non-2xx status or malformed
// body from a vendor call. Adapters never retry; they surface exactly one
// of these per failed call.
type ProviderError struct {
	Vendor Vendor
	Status int // 0 when the request never got a response
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Vendor, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Vendor, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(vendor Vendor, status int, err error) *ProviderError {
	return &ProviderError{Vendor: vendor, Status: status, Err: err}
}
