package epcis

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var requiredFieldsByType = map[EventType][]string{
	ObjectEventType:         {"eventTime", "eventTimeZoneOffset", "epcList", "action"},
	AggregationEventType:    {"eventTime", "eventTimeZoneOffset", "childEPCs", "action"},
	TransactionEventType:    {"eventTime", "eventTimeZoneOffset", "bizTransactionList", "epcList", "action"},
	TransformationEventType: {"eventTime", "eventTimeZoneOffset", "inputEPCList", "outputEPCList"},
}

// ValidateEvent applies per-event field, type, format, and cross-field
// rules. authorizedCompanies gates EPC ownership checks.
func ValidateEvent(ev Event, authorizedCompanies map[string]bool) []ValidationError {
	var errs []ValidationError
	add := func(etype ErrType, sev Severity, line int, msg string) {
		errs = append(errs, ValidationError{Type: etype, Severity: sev, Message: msg, LineNumber: lineNumberPtr(line)})
	}

	// 1. Required fields.
	for _, field := range requiredFieldsByType[ev.EventType] {
		if !eventFieldPresent(ev, field) {
			add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Missing required field: %s", field))
		}
	}

	// 2. eventTime format.
	if ev.EventTime != "" && !validEventTime(ev.EventTime) {
		add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid eventTime format: %s", ev.EventTime))
	}

	// 3. Timezone format.
	if ev.EventTimeZoneOffset != "" && !validTimezoneOffset(ev.EventTimeZoneOffset) {
		add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid eventTimeZoneOffset format: %s", ev.EventTimeZoneOffset))
	}

	// 4. EPC validation, preferring per-EPC line numbers already carried
	// on each EPCRef (populated by the parser's _detailed tracking when
	// available, falling back to the event's own line otherwise).
	for _, list := range [][]EPCRef{ev.EPCList, ev.ChildEPCs, ev.InputEPCList, ev.OutputEPCList} {
		for _, ref := range list {
			if !ValidateEPCFormat(ref.Value) {
				add(ErrField, SeverityError, ref.LineNumber, fmt.Sprintf("Invalid EPC format: %s", ref.Value))
				continue
			}
			if len(authorizedCompanies) > 0 && !ValidateCompanyPrefix(ref.Value, authorizedCompanies) {
				add(ErrField, SeverityError, ref.LineNumber, fmt.Sprintf("Unauthorized company prefix in EPC: %s", ref.Value))
			}
		}
	}

	// 5. bizStep / disposition vocabulary.
	if ev.BizStep != "" {
		if step := lastSegment(ev.BizStep); !validBizSteps[step] {
			add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid bizStep: %s", ev.BizStep))
		}
	}
	if ev.Disposition != "" {
		if disp := lastSegment(ev.Disposition); !validDispositions[disp] {
			add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid disposition: %s", ev.Disposition))
		}
	}

	// 6. readPoint / bizLocation.
	if ev.ReadPoint != nil && !strings.HasPrefix(ev.ReadPoint.ID, "urn:epc:id:sgln:") {
		add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid readPoint id: %s", ev.ReadPoint.ID))
	}
	if ev.BizLocation != nil && !strings.HasPrefix(ev.BizLocation.ID, "urn:epc:id:sgln:") {
		add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid bizLocation id: %s", ev.BizLocation.ID))
	}

	// 7. ILMD, only enforced at commissioning.
	if lastSegment(ev.BizStep) == string(stepCommissioning) && ev.ILMD != nil {
		if ev.ILMD.LotNumber == "" {
			add(ErrField, SeverityError, ev.LineNumber, "Missing lotNumber for SGTIN commissioning")
		}
		if ev.ILMD.ItemExpirationDate == "" {
			add(ErrField, SeverityError, ev.LineNumber, "Missing itemExpirationDate for SGTIN commissioning")
		} else if _, err := time.Parse("2006-01-02", ev.ILMD.ItemExpirationDate); err != nil {
			add(ErrField, SeverityError, ev.LineNumber, fmt.Sprintf("Invalid itemExpirationDate format: %s", ev.ILMD.ItemExpirationDate))
		}
	}

	// 8. AggregationEvent parentID requirement.
	if ev.EventType == AggregationEventType && ev.Action == ActionAdd && len(ev.ChildEPCs) > 0 && ev.ParentID == "" {
		add(ErrField, SeverityError, ev.LineNumber, "Missing parentID for AggregationEvent with action=ADD")
	}

	// 9. Shipping event requirements.
	if lastSegment(ev.BizStep) == string(stepShipping) {
		if !hasBizTransactionTypes(ev.BizTransactionList, "urn:epcglobal:cbv:btt:po", "urn:epcglobal:cbv:btt:desadv") {
			add(ErrField, SeverityError, ev.LineNumber, "Missing required business transaction types (po, desadv) for shipping event")
		}
		if !hasPartyTypeSuffix(ev.SourceList, "owning_party") || !hasPartyTypeSuffix(ev.DestinationList, "location") {
			add(ErrField, SeverityError, ev.LineNumber, "Missing required source/destination party types (owning_party, location) for shipping event")
		}
	}

	// 10. Date order.
	if ev.RecordTime != "" && ev.EventTime != "" {
		recordTime, errR := parseInstant(ev.RecordTime)
		eventTime, errE := parseInstant(ev.EventTime)
		if errR == nil && errE == nil && recordTime.After(eventTime) {
			add(ErrField, SeverityError, ev.LineNumber, "recordTime must not be later than eventTime")
		}
	}

	return errs
}

func eventFieldPresent(ev Event, field string) bool {
	switch field {
	case "eventTime":
		return ev.EventTime != ""
	case "eventTimeZoneOffset":
		return ev.EventTimeZoneOffset != ""
	case "epcList":
		return len(ev.EPCList) > 0
	case "childEPCs":
		return len(ev.ChildEPCs) > 0
	case "action":
		return ev.Action != ""
	case "bizTransactionList":
		return len(ev.BizTransactionList) > 0
	case "inputEPCList":
		return len(ev.InputEPCList) > 0
	case "outputEPCList":
		return len(ev.OutputEPCList) > 0
	default:
		return true
	}
}

func lastSegment(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.Split(value, ":")
	return strings.ToLower(parts[len(parts)-1])
}

// validEventTime tries the fractional-seconds form first, then the plain
// form; both require a literal trailing "Z" — an explicit numeric offset
// on eventTime itself is rejected (timezone is carried separately by
// eventTimeZoneOffset).
func validEventTime(s string) bool {
	_, err := parseInstant(s)
	return err == nil
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05.999999999Z", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z", s)
}

func validTimezoneOffset(s string) bool {
	if len(s) != 6 || (s[0] != '+' && s[0] != '-') || s[3] != ':' {
		return false
	}
	hours, err := strconv.Atoi(s[1:3])
	if err != nil || hours < 0 || hours > 14 {
		return false
	}
	minutes, err := strconv.Atoi(s[4:6])
	if err != nil {
		return false
	}
	switch minutes {
	case 0, 15, 30, 45:
		return true
	default:
		return false
	}
}

func hasBizTransactionTypes(list []BizTransaction, types ...string) bool {
	for _, required := range types {
		found := false
		for _, txn := range list {
			if strings.Contains(txn.Type, required) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasPartyTypeSuffix(list []Party, suffix string) bool {
	for _, p := range list {
		if strings.HasSuffix(p.Type, suffix) {
			return true
		}
	}
	return false
}
