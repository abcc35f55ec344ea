package epcis

import (
	"fmt"
	"strings"
)

const aggregationMarker = " for urn:epc:"

type aggregationKey struct {
	etype ErrType
	sev   Severity
	base  string
	line  int
}

// Aggregate groups raw errors by (type, severity, base_message,
// line_number) and merges groups of size 2 or more into a single entry
// carrying a count and up to three example identifiers, so identical
// errors that share a line (or, as with JSON input, carry no line)
// collapse into one readable entry.
func Aggregate(errs []ValidationError) []ValidationError {
	groups := map[aggregationKey][]ValidationError{}
	var order []aggregationKey

	for _, e := range errs {
		line := 0
		if e.LineNumber != nil {
			line = *e.LineNumber
		}
		k := aggregationKey{etype: e.Type, sev: e.Severity, base: baseMessage(e.Message), line: line}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e)
	}

	result := make([]ValidationError, 0, len(order))
	for _, k := range order {
		members := groups[k]
		if len(members) == 1 {
			result = append(result, members[0])
			continue
		}

		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, identifierOf(m.Message))
		}

		examples := ids
		if len(examples) > 3 {
			examples = examples[:3]
		}

		msg := fmt.Sprintf("%s (%d items)", k.base, len(members))
		if len(examples) > 0 {
			msg += "\nExamples: " + strings.Join(examples, ", ")
		}
		if len(ids) > 3 {
			msg += fmt.Sprintf("\n...and %d more", len(ids)-3)
		}

		merged := ValidationError{Type: k.etype, Severity: k.sev, Message: msg, Count: len(members)}
		if k.line > 0 {
			merged.LineNumber = lineNumberPtr(k.line)
		}
		result = append(result, merged)
	}

	return result
}

func baseMessage(msg string) string {
	if idx := strings.Index(msg, aggregationMarker); idx >= 0 {
		return msg[:idx]
	}
	return msg
}

func identifierOf(msg string) string {
	if idx := strings.Index(msg, aggregationMarker); idx >= 0 {
		return "urn:epc:" + msg[idx+len(aggregationMarker):]
	}
	return msg
}
