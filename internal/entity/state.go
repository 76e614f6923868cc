package entity

// TxStatus discriminates the variants of TransactionState.
type TxStatus string

// Transaction statuses. Broadcasted and StatusFailed are terminal; Simulating,
// Signing and Broadcasting are processing states that reject re-entry.
const (
	StatusIdle             TxStatus = "idle"
	StatusSimulating       TxStatus = "simulating"
	StatusSimulationFailed TxStatus = "simulation_failed"
	StatusReadyToSign      TxStatus = "ready_to_sign"
	StatusSigning          TxStatus = "signing"
	StatusBroadcasting     TxStatus = "broadcasting"
	StatusBroadcasted      TxStatus = "broadcasted"
	StatusFailed           TxStatus = "failed"
)

// TransactionState is the tagged union of lifecycle states. Each variant
// carries only the data meaningful in that state: the receipt exists only in
// ReadyToSign, the transaction hash only in Broadcasted, the error only in the
// failure variants. Construct values through the variant constructors; the
// lifecycle controller owns the single current state.
type TransactionState struct {
	Status  TxStatus `json:"status"`
	Receipt *Receipt `json:"receipt,omitempty"`
	Err     string   `json:"error,omitempty"`
	TxHash  string   `json:"txHash,omitempty"`
}

func IdleState() TransactionState {
	return TransactionState{Status: StatusIdle}
}

func SimulatingState() TransactionState {
	return TransactionState{Status: StatusSimulating}
}

func SimulationFailedState(errMsg string) TransactionState {
	return TransactionState{Status: StatusSimulationFailed, Err: errMsg}
}

func ReadyToSignState(receipt Receipt) TransactionState {
	return TransactionState{Status: StatusReadyToSign, Receipt: &receipt}
}

func SigningState() TransactionState {
	return TransactionState{Status: StatusSigning}
}

func BroadcastingState() TransactionState {
	return TransactionState{Status: StatusBroadcasting}
}

func BroadcastedState(txHash string) TransactionState {
	return TransactionState{Status: StatusBroadcasted, TxHash: txHash}
}

func FailedState(errMsg string) TransactionState {
	return TransactionState{Status: StatusFailed, Err: errMsg}
}

// CanConfirm reports whether a confirm is legal right now. True only in
// ReadyToSign.
func (s TransactionState) CanConfirm() bool {
	return s.Status == StatusReadyToSign
}

// IsTerminal reports whether the flow has finished, successfully or not.
func (s TransactionState) IsTerminal() bool {
	return s.Status == StatusBroadcasted || s.Status == StatusFailed
}

// IsProcessing reports whether an operation is in flight. Used to reject
// re-entrant double submission.
func (s TransactionState) IsProcessing() bool {
	switch s.Status {
	case StatusSimulating, StatusSigning, StatusBroadcasting:
		return true
	}
	return false
}

// Label returns the human-readable status string for the UI layer.
func (s TransactionState) Label() string {
	switch s.Status {
	case StatusIdle:
		return "Ready"
	case StatusSimulating:
		return "Simulating transaction..."
	case StatusSimulationFailed:
		return "Simulation failed: " + s.Err
	case StatusReadyToSign:
		return "Simulation verified, ready to sign"
	case StatusSigning:
		return "Signing..."
	case StatusBroadcasting:
		return "Broadcasting..."
	case StatusBroadcasted:
		return "Broadcasted: " + s.TxHash
	case StatusFailed:
		return "Failed: " + s.Err
	}
	return string(s.Status)
}
