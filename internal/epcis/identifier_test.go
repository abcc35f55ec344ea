package epcis

import "testing"

func TestCalculateGS1CheckDigit(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		expected int
	}{
		{"GTIN-14 base (13 digits)", "0036846205016", 3},
		{"GLN base (12 digits)", "030001111111", 6},
		{"SSCC base (17 digits)", "03000112345678901", 8},
		{"All zeros", "0000000000000", 0},
		{"Known GTIN-13 (EAN-13)", "590123412345", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateGS1CheckDigit(tt.base); got != tt.expected {
				t.Errorf("CalculateGS1CheckDigit(%q) = %d, want %d", tt.base, got, tt.expected)
			}
		})
	}
}

func TestValidateGS1CheckDigit(t *testing.T) {
	tests := []struct {
		name     string
		s        string
		expected bool
	}{
		{"valid GTIN-14", "00368462050163", true},
		{"invalid check digit", "00368462050169", false},
		{"single digit", "5", false},
		{"non-numeric", "abc123", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateGS1CheckDigit(tt.s); got != tt.expected {
				t.Errorf("ValidateGS1CheckDigit(%q) = %v, want %v", tt.s, got, tt.expected)
			}
		})
	}
}

func TestValidateGS1CheckDigitIdempotent(t *testing.T) {
	// Repeating the computation over the same input yields the same
	// verdict.
	s := "00368462050163"
	first := ValidateGS1CheckDigit(s)
	second := ValidateGS1CheckDigit(s)
	if first != second {
		t.Fatalf("ValidateGS1CheckDigit is not idempotent: %v != %v", first, second)
	}
}

func TestValidateEPCFormat(t *testing.T) {
	tests := []struct {
		name     string
		epc      string
		expected bool
	}{
		{"valid sgtin", "urn:epc:id:sgtin:0614141.107346.2017", true},
		{"sgtin serial length 1", "urn:epc:id:sgtin:0614141.107346.A", true},
		{"sgtin serial length 20", "urn:epc:id:sgtin:0614141.107346.12345678901234567890", true},
		{"sgtin serial length 21 invalid", "urn:epc:id:sgtin:0614141.107346.123456789012345678901", false},
		{"sgtin serial length 0 invalid", "urn:epc:id:sgtin:0614141.107346.", false},
		{"sscc with 17 total digits", "urn:epc:id:sscc:0614141.1234567890", true},
		{"sscc with wrong digit total", "urn:epc:id:sscc:0614141.123", false},
		{"sgln with correct check digit", "urn:epc:id:sgln:030001.1111116", true},
		{"sgln with wrong check digit", "urn:epc:id:sgln:030001.1111115", false},
		{"grai", "urn:epc:id:grai:0614141.12345", true},
		{"giai", "urn:epc:id:giai:0614141.12345", true},
		{"unknown scheme", "urn:epc:id:foo:0614141.12345", false},
		{"not a urn", "hello world", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateEPCFormat(tt.epc); got != tt.expected {
				t.Errorf("ValidateEPCFormat(%q) = %v, want %v", tt.epc, got, tt.expected)
			}
		})
	}
}

func TestGetEPCType(t *testing.T) {
	scheme, ok := GetEPCType("urn:epc:id:sgtin:0614141.107346.2017")
	if !ok || scheme != SchemeSGTIN {
		t.Fatalf("GetEPCType = (%v, %v), want (sgtin, true)", scheme, ok)
	}
	if _, ok := GetEPCType("not-a-urn"); ok {
		t.Fatalf("GetEPCType should not match garbage input")
	}
}

func TestExtractCompanyPrefix(t *testing.T) {
	tests := []struct {
		name     string
		epc      string
		expected string
		ok       bool
	}{
		{"sgtin", "urn:epc:id:sgtin:0614141.107346.2017", "0614141", true},
		{"sscc", "urn:epc:id:sscc:0614141.1234567890", "0614141", true},
		{"too few segments", "urn:epc:sgtin", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCompanyPrefix(tt.epc)
			if got != tt.expected || ok != tt.ok {
				t.Errorf("ExtractCompanyPrefix(%q) = (%q, %v), want (%q, %v)", tt.epc, got, ok, tt.expected, tt.ok)
			}
		})
	}
}

func TestValidateCompanyPrefix(t *testing.T) {
	authorized := map[string]bool{"0614141": true}
	if !ValidateCompanyPrefix("urn:epc:id:sgtin:0614141.107346.2017", authorized) {
		t.Fatal("expected authorized prefix to validate")
	}
	if ValidateCompanyPrefix("urn:epc:id:sgtin:9999999.107346.2017", authorized) {
		t.Fatal("expected unauthorized prefix to fail")
	}
}
