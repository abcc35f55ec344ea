package epcis

// validBizSteps and validDispositions are the closed CBV vocabularies
// events are checked against.
var validBizSteps = map[string]bool{
	"accepting": true, "arriving": true, "collecting": true,
	"commissioning": true, "consigning": true, "creating_class_instance": true,
	"cycle_counting": true, "decommissioning": true, "departing": true,
	"destroying": true, "dispensing": true, "encoding": true,
	"entering_exiting": true, "holding": true, "inspecting": true,
	"installing": true, "killing": true, "loading": true, "other": true,
	"packing": true, "picking": true, "receiving": true, "removing": true,
	"repackaging": true, "repairing": true, "replacing": true,
	"reserving": true, "retail_selling": true, "shipping": true,
	"staging_outbound": true, "stock_taking": true, "stocking": true,
	"storing": true, "transporting": true, "unloading": true,
	"void_shipping": true,
}

var validDispositions = map[string]bool{
	"active": true, "container_closed": true, "damaged": true,
	"destroyed": true, "dispensed": true, "disposed": true, "encoded": true,
	"expired": true, "in_progress": true, "in_transit": true,
	"inactive": true, "no_pedigree_match": true, "non_sellable_other": true,
	"partially_dispensed": true, "recalled": true, "reserved": true,
	"retail_sold": true, "returned": true, "sellable_accessible": true,
	"sellable_not_accessible": true, "stolen": true, "unknown": true,
	"available": true, "unavailable": true,
}

// dscsaStep is one of the eight chain-of-custody steps the Sequence
// Validator tracks. Ordinal position matters for Pass 3's closure check.
type dscsaStep string

const (
	stepCommissioning   dscsaStep = "commissioning"
	stepPacking         dscsaStep = "packing"
	stepShipping        dscsaStep = "shipping"
	stepReceiving       dscsaStep = "receiving"
	stepStoring         dscsaStep = "storing"
	stepDispensing      dscsaStep = "dispensing"
	stepDecommissioning dscsaStep = "decommissioning"
	stepReturns         dscsaStep = "returns"
)

// dscsaOrdinal gives each tracked step its ordinal for the closure pass's
// ordering check; steps not in this table (anything outside the eight
// DSCSA steps) are skipped by the predecessor and ordering checks, but
// still count as an EPC's last step for the terminal check.
var dscsaOrdinal = map[dscsaStep]int{
	stepCommissioning:   0,
	stepPacking:         1,
	stepShipping:        2,
	stepReceiving:       3,
	stepStoring:         4,
	stepDispensing:      5,
	stepDecommissioning: 6,
	stepReturns:         7,
}

// predecessorRule is one row of the DSCSA step predecessor table.
type predecessorRule struct {
	predecessors        map[dscsaStep]bool
	allowedDispositions map[string]bool
}

var predecessorRules = map[dscsaStep]predecessorRule{
	stepCommissioning: {
		predecessors:        map[dscsaStep]bool{},
		allowedDispositions: set("active", "in_progress"),
	},
	stepPacking: {
		predecessors:        map[dscsaStep]bool{stepCommissioning: true},
		allowedDispositions: set("in_progress", "active"),
	},
	stepShipping: {
		predecessors:        map[dscsaStep]bool{stepCommissioning: true, stepPacking: true},
		allowedDispositions: set("in_transit"),
	},
	stepReceiving: {
		predecessors:        map[dscsaStep]bool{stepShipping: true},
		allowedDispositions: set("in_progress", "active"),
	},
	stepStoring: {
		predecessors:        map[dscsaStep]bool{stepReceiving: true, stepCommissioning: true},
		allowedDispositions: set("active", "sellable_accessible"),
	},
	stepDispensing: {
		predecessors:        map[dscsaStep]bool{stepReceiving: true, stepStoring: true},
		allowedDispositions: set("dispensed", "partially_dispensed"),
	},
	stepDecommissioning: {
		predecessors:        map[dscsaStep]bool{stepReceiving: true, stepStoring: true},
		allowedDispositions: set("destroyed", "expired", "recalled"),
	},
	stepReturns: {
		predecessors:        map[dscsaStep]bool{stepDispensing: true, stepStoring: true},
		allowedDispositions: set("returned"),
	},
}

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// terminalSteps are the steps a complete per-EPC sequence is allowed to
// end on; anything else is reported as an incomplete-sequence warning.
var terminalSteps = map[dscsaStep]bool{
	stepDispensing:      true,
	stepDecommissioning: true,
	stepReturns:         true,
}
