package ai

import "fmt"

// Vendor identifies an external LLM API. The set is closed; ParseVendor is
// the only way in from user input.
type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
	VendorGoogle    Vendor = "google"
	VendorDeepSeek  Vendor = "deepseek"
	VendorOllama    Vendor = "ollama"
)

func (v Vendor) String() string { return string(v) }

// Vendors lists every supported vendor in a stable order.
func Vendors() []Vendor {
	return []Vendor{VendorOpenAI, VendorAnthropic, VendorGoogle, VendorDeepSeek, VendorOllama}
}

// ParseVendor maps the case-sensitive lowercase wire string to a Vendor.
func ParseVendor(s string) (Vendor, error) {
	switch Vendor(s) {
	case VendorOpenAI, VendorAnthropic, VendorGoogle, VendorDeepSeek, VendorOllama:
		return Vendor(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownVendor, s)
	}
}
