package epcis

import (
	"strings"
	"testing"
)

func ve(etype ErrType, sev Severity, line int, msg string) ValidationError {
	return ValidationError{Type: etype, Severity: sev, Message: msg, LineNumber: lineNumberPtr(line)}
}

func TestAggregatePassesThroughSingletons(t *testing.T) {
	errs := []ValidationError{
		ve(ErrField, SeverityError, 5, "Missing required field: eventTime"),
		ve(ErrField, SeverityError, 9, "Invalid bizStep: foo"),
	}
	out := Aggregate(errs)
	if len(out) != 2 {
		t.Fatalf("expected 2 untouched errors, got %+v", out)
	}
	if out[0].Count != 0 || out[1].Count != 0 {
		t.Errorf("singleton errors should not carry a count, got %+v", out)
	}
}

func TestAggregateMergesSameBaseAndLine(t *testing.T) {
	errs := []ValidationError{
		ve(ErrField, SeverityError, 10, "Unauthorized company prefix in EPC for urn:epc:id:sgtin:1111111.100000.1"),
		ve(ErrField, SeverityError, 10, "Unauthorized company prefix in EPC for urn:epc:id:sgtin:1111111.100000.2"),
		ve(ErrField, SeverityError, 10, "Unauthorized company prefix in EPC for urn:epc:id:sgtin:1111111.100000.3"),
	}
	out := Aggregate(errs)
	if len(out) != 1 {
		t.Fatalf("expected the three errors to merge into one, got %+v", out)
	}
	merged := out[0]
	if merged.Count != 3 {
		t.Errorf("expected Count=3, got %d", merged.Count)
	}
	if !strings.Contains(merged.Message, "(3 items)") {
		t.Errorf("expected item count in message, got %q", merged.Message)
	}
	if !strings.Contains(merged.Message, "Examples:") {
		t.Errorf("expected examples list in message, got %q", merged.Message)
	}
}

func TestAggregateDoesNotMergeAcrossLines(t *testing.T) {
	errs := []ValidationError{
		ve(ErrField, SeverityError, 10, "Invalid EPC format for urn:epc:id:sgtin:1111111.100000.1"),
		ve(ErrField, SeverityError, 20, "Invalid EPC format for urn:epc:id:sgtin:1111111.100000.2"),
	}
	out := Aggregate(errs)
	if len(out) != 2 {
		t.Fatalf("errors on different lines must not merge, got %+v", out)
	}
}

func TestAggregateDoesNotMergeAcrossSeverity(t *testing.T) {
	errs := []ValidationError{
		ve(ErrField, SeverityError, 10, "x for urn:epc:id:sgtin:1111111.100000.1"),
		ve(ErrField, SeverityWarning, 10, "x for urn:epc:id:sgtin:1111111.100000.2"),
	}
	out := Aggregate(errs)
	if len(out) != 2 {
		t.Fatalf("errors of different severity must not merge, got %+v", out)
	}
}

func TestAggregateCapsExamplesAtThreeAndNotesRemainder(t *testing.T) {
	errs := make([]ValidationError, 0, 5)
	epcs := []string{"1", "2", "3", "4", "5"}
	for _, n := range epcs {
		errs = append(errs, ve(ErrField, SeverityError, 7, "Invalid EPC format for urn:epc:id:sgtin:1111111.100000."+n))
	}
	out := Aggregate(errs)
	if len(out) != 1 {
		t.Fatalf("expected a single merged error, got %+v", out)
	}
	if out[0].Count != 5 {
		t.Errorf("expected Count=5, got %d", out[0].Count)
	}
	if !strings.Contains(out[0].Message, "...and 2 more") {
		t.Errorf("expected remainder note for the 2 examples beyond the cap, got %q", out[0].Message)
	}
}

func TestAggregateIsOrderPreserving(t *testing.T) {
	errs := []ValidationError{
		ve(ErrStructure, SeverityError, 0, "first distinct error"),
		ve(ErrField, SeverityError, 1, "second distinct error"),
		ve(ErrSequence, SeverityWarning, 2, "third distinct error"),
	}
	out := Aggregate(errs)
	if len(out) != 3 {
		t.Fatalf("expected 3 distinct groups, got %+v", out)
	}
	if out[0].Message != "first distinct error" || out[2].Message != "third distinct error" {
		t.Errorf("expected first-seen order preserved, got %+v", out)
	}
}
