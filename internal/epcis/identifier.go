package epcis

import (
	"regexp"
	"strings"
)

// EPCScheme is one of the five GS1 identifier schemes this engine
// recognizes in EPC URNs.
type EPCScheme string

const (
	SchemeSGTIN EPCScheme = "sgtin"
	SchemeSSCC  EPCScheme = "sscc"
	SchemeSGLN  EPCScheme = "sgln"
	SchemeGRAI  EPCScheme = "grai"
	SchemeGIAI  EPCScheme = "giai"
)

// epcPattern pairs a scheme's anchored regex with its post-match check.
// Precompiled once per process and tabulated rather than branched on, so
// adding a scheme means adding a row, not a new if/else arm.
type epcPattern struct {
	scheme    EPCScheme
	re        *regexp.Regexp
	postCheck func(groups []string) bool
}

var epcPatterns = []epcPattern{
	{
		scheme: SchemeSGTIN,
		re:     regexp.MustCompile(`^urn:epc:id:sgtin:(\d+)\.(\d+)\.([A-Za-z0-9]{1,20})$`),
		// Pattern anchors already bound the serial to 1-20 alphanumerics;
		// no further scheme-specific check is required for SGTIN.
		postCheck: func(groups []string) bool { return true },
	},
	{
		scheme: SchemeSSCC,
		re:     regexp.MustCompile(`^urn:epc:id:sscc:(\d+)\.(\d+)$`),
		postCheck: func(groups []string) bool {
			return len(groups[0])+len(groups[1]) == 17
		},
	},
	{
		scheme: SchemeSGLN,
		re:     regexp.MustCompile(`^urn:epc:id:sgln:(\d+)\.(\d+)$`),
		postCheck: func(groups []string) bool {
			return ValidateGS1CheckDigit(groups[0] + groups[1])
		},
	},
	{
		scheme: SchemeGRAI,
		re:     regexp.MustCompile(`^urn:epc:id:grai:(\d+)\.(\d+)$`),
		// Both capture groups are already constrained to digits by the
		// pattern; GRAI has no further post-check.
		postCheck: func(groups []string) bool { return true },
	},
	{
		scheme: SchemeGIAI,
		re:     regexp.MustCompile(`^urn:epc:id:giai:(\d+)\.(\d+)$`),
		postCheck: func(groups []string) bool { return true },
	},
}

// CalculateGS1CheckDigit computes the GS1 mod-10 check digit for a numeric
// string: iterating from the rightmost digit, digits at even positions
// (0-indexed from the right) are weighted ×3, odd positions ×1; the check
// digit is (10 - sum mod 10) mod 10.
func CalculateGS1CheckDigit(s string) int {
	sum := 0
	n := len(s)
	for i := 0; i < n; i++ {
		c := s[n-1-i]
		if c < '0' || c > '9' {
			continue
		}
		digit := int(c - '0')
		if i%2 == 0 {
			sum += digit * 3
		} else {
			sum += digit
		}
	}
	return (10 - sum%10) % 10
}

// ValidateGS1CheckDigit splits s into (body, last digit) and reports
// whether the last digit matches the check digit computed over body. It
// is idempotent: repeating the computation over the same input always
// yields the same verdict.
func ValidateGS1CheckDigit(s string) bool {
	if len(s) < 2 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	body := s[:len(s)-1]
	last := int(s[len(s)-1] - '0')
	return CalculateGS1CheckDigit(body) == last
}

// ValidateEPCFormat reports whether epc matches one of the anchored EPC
// patterns AND passes that scheme's post-check.
func ValidateEPCFormat(epc string) bool {
	for _, p := range epcPatterns {
		if m := p.re.FindStringSubmatch(epc); m != nil {
			return p.postCheck(m[1:])
		}
	}
	return false
}

// GetEPCType returns the scheme name epc matches (format only, no
// post-check), or ("", false) if no pattern matches.
func GetEPCType(epc string) (EPCScheme, bool) {
	for _, p := range epcPatterns {
		if p.re.MatchString(epc) {
			return p.scheme, true
		}
	}
	return "", false
}

// ExtractCompanyPrefix extracts the company prefix from an EPC URN: split
// on ':'; if at least 5 segments result, the prefix is the leftmost
// dot-segment of the 5th segment. Returns ("", false) otherwise.
func ExtractCompanyPrefix(epc string) (string, bool) {
	segments := strings.Split(epc, ":")
	if len(segments) < 5 {
		return "", false
	}
	prefix := segments[4]
	if idx := strings.Index(prefix, "."); idx >= 0 {
		prefix = prefix[:idx]
	}
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

// ValidateCompanyPrefix reports whether epc's company prefix is present
// in the authorized set.
func ValidateCompanyPrefix(epc string, authorized map[string]bool) bool {
	prefix, ok := ExtractCompanyPrefix(epc)
	if !ok {
		return false
	}
	return authorized[prefix]
}
