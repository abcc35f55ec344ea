// Package epcis implements the EPCIS validation engine: a pure,
// stateless-per-call pipeline that decodes an EPCIS XML or JSON document
// and checks it against DSCSA chain-of-custody rules.
package epcis

// EventType distinguishes the four EPCIS event shapes this engine handles.
type EventType string

const (
	ObjectEventType        EventType = "ObjectEvent"
	AggregationEventType   EventType = "AggregationEvent"
	TransactionEventType   EventType = "TransactionEvent"
	TransformationEventType EventType = "TransformationEvent"
)

// Action is the EPCIS action verb carried by most event types.
type Action string

const (
	ActionAdd     Action = "ADD"
	ActionObserve Action = "OBSERVE"
	ActionDelete  Action = "DELETE"
)

// EPCRef is a single EPC URN together with the source line it was found
// on, when that provenance is known (XML input only; see ParseDocument).
type EPCRef struct {
	Value      string
	LineNumber int // 0 when no line is known
}

// Party is a source or destination entry from an event's party lists.
type Party struct {
	Type  string
	Value string
}

// BizTransaction is one entry of a bizTransactionList.
type BizTransaction struct {
	Type           string
	BizTransaction string
}

// LocationRef models readPoint/bizLocation, both of which are objects
// carrying only an SGLN-URN id in practice.
type LocationRef struct {
	ID string
}

// ILMD carries the instance/lot master data an event's extension may
// attach at commissioning time.
type ILMD struct {
	LotNumber          string
	ItemExpirationDate string
	ProductionDate     string
}

// Event is the engine's single typed representation of an EPCIS event,
// regardless of whether it was decoded from XML or JSON. Fields that a
// given EventType does not use are left at their zero value; validators
// branch on EventType, never on the presence/absence of a raw field.
type Event struct {
	EventType EventType
	Action    Action

	EventTime           string
	EventTimeZoneOffset string
	RecordTime          string

	BizStep     string
	Disposition string

	EPCList       []EPCRef
	ChildEPCs     []EPCRef
	InputEPCList  []EPCRef
	OutputEPCList []EPCRef

	ParentID string

	ReadPoint   *LocationRef
	BizLocation *LocationRef

	BizTransactionList []BizTransaction

	// SourceList/DestinationList hold whichever location (root-level or
	// extension-nested) the parser actually found.
	SourceList      []Party
	DestinationList []Party

	ILMD *ILMD

	// LineNumber is the 1-based source line the event element started
	// on. Zero when the document was JSON or the element could not be
	// located.
	LineNumber int
}

// Severity is whether a ValidationError blocks document validity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ErrType is the closed taxonomy of validation error kinds.
type ErrType string

const (
	ErrFormat    ErrType = "format"
	ErrStructure ErrType = "structure"
	ErrField     ErrType = "field"
	ErrSequence  ErrType = "sequence"
	ErrHierarchy ErrType = "hierarchy"
	ErrSystem    ErrType = "system"
)

// ValidationError is one finding against the document, either raw (as
// produced by the parser or one of the validators) or merged (as
// produced by the aggregator).
type ValidationError struct {
	Type       ErrType  `json:"type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	LineNumber *int     `json:"line_number,omitempty"`
	Count      int      `json:"count,omitempty"`
}

// ValidationReport is the engine's sole output shape.
type ValidationReport struct {
	Valid      bool                   `json:"valid"`
	Header     map[string]interface{} `json:"header,omitempty"`
	EventCount int                    `json:"eventCount"`
	Companies  []string               `json:"companies"`
	Errors     []ValidationError      `json:"errors"`
}

func lineNumberPtr(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
