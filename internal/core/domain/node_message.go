package domain

import (
	"time"
)

// NodeMessageStatus of a message exchanged with a counterpart node
type NodeMessageStatus string

// Node message statuses
const (
	NodeMessageSent     NodeMessageStatus = "sent"
	NodeMessageAccepted NodeMessageStatus = "accepted"
	NodeMessageRejected NodeMessageStatus = "rejected"
)

// Predicates used in the counterpart messaging protocol
const (
	PredicateCoOIssued = "UN.CEFACT.Trade.CertificateOfOrigin.created"
)

// MessagePayload is the wire body of a counterpart node message
type MessagePayload struct {
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Subject   string `json:"subject"`
	Obj       string `json:"obj"`
	Predicate string `json:"predicate"`
	SenderRef string `json:"sender_ref,omitempty"`
	Status    string `json:"status,omitempty"`
}

// NodeMessage is the record of a message exchanged with a counterpart jurisdiction
type NodeMessage struct {
	SenderRef    string
	CredentialID *string
	Subject      string
	Status       NodeMessageStatus
	Body         MessagePayload
	History      []NodeMessageHistory
	CreatedAt    time.Time
}

// NodeMessageHistory is a status change notification received for a message
type NodeMessageHistory struct {
	Status  NodeMessageStatus `json:"status"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}
