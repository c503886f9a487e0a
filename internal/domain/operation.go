package domain

import "context"

// TransferKind selects how a consult leg is completed.
type TransferKind string

const (
	TransferWarm       TransferKind = "Warm Transfer"
	TransferConference TransferKind = "Conference Consult"
)

// Operation is a command offered to the operator. Handler captures the
// contact and connection ids it was built for.
type Operation struct {
	Name     string                    `json:"operationName"`
	Title    string                    `json:"title"`
	Icon     string                    `json:"icon"`
	Disabled bool                      `json:"disabled,omitempty"`
	Handler  func(ctx context.Context) `json:"-"`
}

// Invoke runs the handler if one is bound.
func (o Operation) Invoke(ctx context.Context) {
	if o.Handler != nil {
		o.Handler(ctx)
	}
}

// OperationBuilder constructs operations bound to contact and connection ids.
type OperationBuilder interface {
	Answer(contactID string) Operation
	Hangup(contactID, connectionID string) Operation
	DisabledEndCall(contactID, connectionID string) Operation
	Hold(contactID string) Operation
	Resume(contactID string) Operation
	BlindTransfer() Operation
	WarmTransfer() Operation
	Conference() Operation
	ProcessTransfer(contactID string, kind TransferKind) Operation
}
