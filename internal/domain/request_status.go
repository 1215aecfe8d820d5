package domain

// RequestStatus tags an outbound request slot of the dispatcher.
type RequestStatus string

const (
	RequestStatusPending RequestStatus = "pending"
	RequestStatusSuccess RequestStatus = "success"
	RequestStatusFailed  RequestStatus = "failed"
	RequestStatusAborted RequestStatus = "aborted"
)
