package workflow

// Trigger represents a reviewer or owner action that causes a state transition
type Trigger string

const (
	TriggerSubmit  Trigger = "submit"
	TriggerApprove Trigger = "approve"
	TriggerReject  Trigger = "reject"
	TriggerPay     Trigger = "pay"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
