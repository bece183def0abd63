package ai

import "time"

// Options carries the process-wide adapter settings. One value is built from
// config at startup and shared read-only.
type Options struct {
	// Timeout bounds every vendor HTTP call.
	Timeout time.Duration
	// OllamaBaseURL points at the local daemon.
	OllamaBaseURL string
}

const defaultTimeout = 30 * time.Second

// Registry holds one adapter per vendor for a given credential set. It is
// built per completion request from the single resolved credential, so
// decrypted keys never outlive the request.
type Registry struct {
	providers map[Vendor]Provider
}

// NewRegistry builds adapters for exactly the vendors present in keys.
func NewRegistry(keys map[Vendor]string, opts Options) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	providers := make(map[Vendor]Provider, len(keys))
	for vendor, key := range keys {
		switch vendor {
		case VendorOpenAI:
			providers[vendor] = NewOpenAIProvider(key, opts.Timeout)
		case VendorAnthropic:
			providers[vendor] = NewAnthropicProvider(key, opts.Timeout)
		case VendorGoogle:
			providers[vendor] = NewGoogleProvider(key, opts.Timeout)
		case VendorDeepSeek:
			providers[vendor] = NewDeepSeekProvider(key, opts.Timeout)
		case VendorOllama:
			providers[vendor] = NewOllamaProvider(opts.OllamaBaseURL, opts.Timeout)
		}
	}
	return &Registry{providers: providers}
}

// Get returns the adapter for vendor, or false if no credential was
// supplied for it.
func (r *Registry) Get(vendor Vendor) (Provider, bool) {
	p, ok := r.providers[vendor]
	return p, ok
}
