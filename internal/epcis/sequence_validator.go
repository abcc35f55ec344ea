package epcis

import (
	"fmt"
	"sort"
	"time"
)

type stepInstant struct {
	step    dscsaStep
	instant time.Time
}

// SequenceValidator is a single-document, single-threaded stateful
// validator. A fresh instance must be used per document: its state never
// survives across documents.
type SequenceValidator struct {
	commissioned  map[EPCScheme]map[string]bool
	aggregated    map[string]string
	eventTimes    map[string]map[dscsaStep]time.Time
	eventSequence map[string][]stepInstant
}

// NewSequenceValidator constructs a validator with empty per-document
// state.
func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		commissioned: map[EPCScheme]map[string]bool{
			SchemeSGTIN: {},
			SchemeSSCC:  {},
		},
		aggregated:    map[string]string{},
		eventTimes:    map[string]map[dscsaStep]time.Time{},
		eventSequence: map[string][]stepInstant{},
	}
}

func sequenceErr(line int, sev Severity, msg string) ValidationError {
	return ValidationError{Type: ErrSequence, Severity: sev, Message: msg, LineNumber: lineNumberPtr(line)}
}

// ValidateSequence runs a three-pass DSCSA chain-of-custody check: a
// commissioning sweep, a per-event ordering and predecessor check, then
// a closure pass over each EPC's full step history.
func (sv *SequenceValidator) ValidateSequence(events []Event) []ValidationError {
	var errs []ValidationError

	// Pass 1: commissioning sweep.
	for _, ev := range events {
		if dscsaStep(lastSegment(ev.BizStep)) != stepCommissioning {
			continue
		}
		for _, ref := range ev.EPCList {
			scheme, ok := GetEPCType(ref.Value)
			if !ok {
				continue
			}
			if bucket, tracked := sv.commissioned[scheme]; tracked {
				bucket[ref.Value] = true
			}
		}
	}

	// Pass 2: per-event.
	var epcOrder []string
	seenEPC := map[string]bool{}
	noteEPC := func(epc string) {
		if !seenEPC[epc] {
			seenEPC[epc] = true
			epcOrder = append(epcOrder, epc)
		}
	}

	for _, ev := range events {
		step := dscsaStep(lastSegment(ev.BizStep))
		instant, timeErr := parseInstant(ev.EventTime)
		hasInstant := timeErr == nil

		refs := make([]EPCRef, 0, len(ev.EPCList)+len(ev.ChildEPCs))
		refs = append(refs, ev.EPCList...)
		refs = append(refs, ev.ChildEPCs...)

		for _, ref := range refs {
			epc := ref.Value
			noteEPC(epc)

			if hasInstant {
				if times, ok := sv.eventTimes[epc]; ok && len(times) > 0 {
					if instant.Before(maxTime(times)) {
						errs = append(errs, sequenceErr(ref.LineNumber, SeverityError,
							fmt.Sprintf("Event for %s is out of order", epc)))
					}
				}
			}

			if scheme, ok := GetEPCType(epc); ok {
				if (scheme == SchemeSGTIN || scheme == SchemeSSCC) && !sv.commissioned[scheme][epc] {
					errs = append(errs, sequenceErr(ref.LineNumber, SeverityError,
						fmt.Sprintf("Item %s not commissioned before %s", epc, step)))
				}
			}

			if rule, ok := predecessorRules[step]; ok && len(rule.predecessors) > 0 {
				found := false
				for _, si := range sv.eventSequence[epc] {
					if rule.predecessors[si.step] {
						found = true
						break
					}
				}
				if !found {
					errs = append(errs, sequenceErr(ref.LineNumber, SeverityError,
						fmt.Sprintf("Item %s at step %s without required predecessor(s)", epc, step)))
				}
			}

			if hasInstant {
				sv.eventSequence[epc] = append(sv.eventSequence[epc], stepInstant{step: step, instant: instant})
				if sv.eventTimes[epc] == nil {
					sv.eventTimes[epc] = map[dscsaStep]time.Time{}
				}
				sv.eventTimes[epc][step] = instant
			}

			if ev.Disposition != "" {
				if rule, ok := predecessorRules[step]; ok {
					disp := lastSegment(ev.Disposition)
					if !rule.allowedDispositions[disp] {
						errs = append(errs, sequenceErr(ref.LineNumber, SeverityError,
							fmt.Sprintf("Invalid disposition %s for step %s on %s", disp, step, epc)))
					}
				}
			}
		}
	}

	// Pass 3: closure, in first-seen EPC order for deterministic output.
	for _, epc := range epcOrder {
		seq := append([]stepInstant{}, sv.eventSequence[epc]...)
		sort.SliceStable(seq, func(i, j int) bool { return seq[i].instant.Before(seq[j].instant) })

		maxOrdinalSeen := -1
		for _, si := range seq {
			ord, tracked := dscsaOrdinal[si.step]
			if !tracked {
				continue
			}
			if ord < maxOrdinalSeen {
				errs = append(errs, sequenceErr(0, SeverityError,
					fmt.Sprintf("Item %s: step %s is out of order", epc, si.step)))
			}
			if ord > maxOrdinalSeen {
				maxOrdinalSeen = ord
			}
		}

		if len(seq) > 0 {
			last := seq[len(seq)-1]
			if !terminalSteps[last.step] {
				errs = append(errs, sequenceErr(0, SeverityWarning,
					fmt.Sprintf("Incomplete sequence: ends with %s", last.step)))
			}
		}
	}

	return errs
}

// ValidatePackagingHierarchy is the independent aggregation/disaggregation
// consistency pass over AggregationEvents, in document order.
func (sv *SequenceValidator) ValidatePackagingHierarchy(events []Event) []ValidationError {
	var errs []ValidationError

	for _, ev := range events {
		if ev.EventType != AggregationEventType {
			continue
		}
		switch ev.Action {
		case ActionAdd:
			for _, ref := range ev.ChildEPCs {
				if existing, ok := sv.aggregated[ref.Value]; ok {
					errs = append(errs, ValidationError{
						Type: ErrHierarchy, Severity: SeverityError, LineNumber: lineNumberPtr(ref.LineNumber),
						Message: fmt.Sprintf("Item %s already aggregated to %s", ref.Value, existing),
					})
					continue
				}
				sv.aggregated[ref.Value] = ev.ParentID
			}
		case ActionDelete:
			for _, ref := range ev.ChildEPCs {
				actual, ok := sv.aggregated[ref.Value]
				if !ok {
					errs = append(errs, ValidationError{
						Type: ErrHierarchy, Severity: SeverityError, LineNumber: lineNumberPtr(ref.LineNumber),
						Message: fmt.Sprintf("Item %s not previously aggregated", ref.Value),
					})
					continue
				}
				if actual != ev.ParentID {
					errs = append(errs, ValidationError{
						Type: ErrHierarchy, Severity: SeverityError, LineNumber: lineNumberPtr(ref.LineNumber),
						Message: fmt.Sprintf("cannot disaggregate %s from %s, was aggregated to %s", ref.Value, ev.ParentID, actual),
					})
					continue
				}
				delete(sv.aggregated, ref.Value)
			}
		}
	}

	return errs
}

func maxTime(times map[dscsaStep]time.Time) time.Time {
	var max time.Time
	for _, t := range times {
		if t.After(max) {
			max = t
		}
	}
	return max
}
