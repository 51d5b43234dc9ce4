package logging

import "testing"

func TestMaskField(t *testing.T) {
	if got := MaskField("authorization", "Bearer abc").Value.String(); got != RedactedValue {
		t.Fatalf("expected redaction, got %q", got)
	}
	if got := MaskField("method", "pool_contribute").Value.String(); got != "pool_contribute" {
		t.Fatalf("allowlisted key must pass through, got %q", got)
	}
	if got := MaskField("token", "").Value.String(); got != "" {
		t.Fatalf("empty value must pass through, got %q", got)
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("expected placeholder, got %q", got)
	}
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("whitespace value must pass through, got %q", got)
	}
}
