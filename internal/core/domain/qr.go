package domain

// QR payload prefixes
const (
	TradeTrustScheme = "tradetrust://"
	QRActionDocument = "DOCUMENT"
	QRPermittedView  = "VIEW"
)

// QRPayload points a holder to an encrypted credential and carries its key
type QRPayload struct {
	URI              string   `json:"uri"`
	Key              string   `json:"key"`
	PermittedActions []string `json:"permittedActions,omitempty"`
	Redirect         string   `json:"redirect,omitempty"`
}

// QRAction is the JSON object carried in the q parameter of verifier links
type QRAction struct {
	Type    string    `json:"type"`
	Payload QRPayload `json:"payload"`
}
