package entity

// SimulationFailure carries the human-readable reason a simulation failed and,
// when the dry-run surfaced one, the parsed on-chain revert reason.
type SimulationFailure struct {
	Message      string `json:"message"`
	RevertReason string `json:"revertReason,omitempty"`
}

// SimulationOutcome is the result of one simulation: either a sealed receipt or
// a structured failure, never both and never a partial state.
type SimulationOutcome struct {
	Receipt *Receipt           `json:"receipt,omitempty"`
	Failure *SimulationFailure `json:"failure,omitempty"`
}

// SuccessOutcome wraps a sealed receipt.
func SuccessOutcome(receipt Receipt) SimulationOutcome {
	return SimulationOutcome{Receipt: &receipt}
}

// FailureOutcome wraps a failure message and an optional revert reason.
func FailureOutcome(message, revertReason string) SimulationOutcome {
	return SimulationOutcome{Failure: &SimulationFailure{Message: message, RevertReason: revertReason}}
}

// IsSuccess reports whether the outcome carries a receipt.
func (o SimulationOutcome) IsSuccess() bool {
	return o.Receipt != nil
}
