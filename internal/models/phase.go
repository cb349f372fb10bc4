package models

// Phase is one of the fixed stages of an extraction run.
type Phase string

const (
	PhaseIngest   Phase = "ingest"
	PhaseAnalyze  Phase = "analyze"
	PhaseDesign   Phase = "design"
	PhaseExtract  Phase = "extract"
	PhaseValidate Phase = "validate"
	PhasePersist  Phase = "persist"
)

// PhaseOrder is the fixed display and execution order of the phases.
var PhaseOrder = []Phase{
	PhaseIngest,
	PhaseAnalyze,
	PhaseDesign,
	PhaseExtract,
	PhaseValidate,
	PhasePersist,
}

type PhaseStatus string

const (
	PhasePending  PhaseStatus = "pending"
	PhaseActive   PhaseStatus = "active"
	PhaseComplete PhaseStatus = "complete"
	PhaseError    PhaseStatus = "error"
)
