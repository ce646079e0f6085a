package domain

import (
	"errors"
)

var (
	// ErrAlreadyWrapped is returned when wrapping a document that already carries a proof
	ErrAlreadyWrapped = errors.New("document is already wrapped")
	// ErrNotWrapped is returned when unwrapping a document without data and proof sections
	ErrNotWrapped = errors.New("document is not wrapped")
	// ErrUnknownVersion is returned for a schema version this system does not support
	ErrUnknownVersion = errors.New("unknown version")
	// ErrMissingVersion is returned when the document has no version field
	ErrMissingVersion = errors.New("missing version")
	// ErrAlreadyIssued means the proof root is already anchored on the ledger
	ErrAlreadyIssued = errors.New("merkle root already issued")
	// ErrAnchorMismatch means the document declares a different anchor contract
	ErrAnchorMismatch = errors.New("document store address mismatch")
	// ErrNoQRFound is returned by the extractor when the pdf has no supported qr payload
	ErrNoQRFound = errors.New("no supported qr code found")
	// ErrCredentialNotFound credential record not found
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrMessageNotFound node message not found
	ErrMessageNotFound = errors.New("node message not found")
	// ErrBlobNotFound blob store key not found
	ErrBlobNotFound = errors.New("blob not found")
)

// DocumentError reports content that is structurally or semantically invalid.
// It is never retried.
type DocumentError struct {
	Msg string
	Err error
}

// NewDocumentError wraps err in a DocumentError
func NewDocumentError(msg string, err error) error {
	return &DocumentError{Msg: msg, Err: err}
}

func (e *DocumentError) Error() string { return join(e.Msg, e.Err) }

func (e *DocumentError) Unwrap() error { return e.Err }

// TransientError reports an infrastructure failure or a timeout. Callers retry it through
// queue redelivery or scheduled backoff.
type TransientError struct {
	Msg string
	Err error
}

// NewTransientError wraps err in a TransientError
func NewTransientError(msg string, err error) error {
	return &TransientError{Msg: msg, Err: err}
}

func (e *TransientError) Error() string { return join(e.Msg, e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// IntegrityError is a decryption or authentication failure. Always terminal.
type IntegrityError struct {
	Msg string
	Err error
}

// NewIntegrityError wraps err in an IntegrityError
func NewIntegrityError(msg string, err error) error {
	return &IntegrityError{Msg: msg, Err: err}
}

func (e *IntegrityError) Error() string { return join(e.Msg, e.Err) }

func (e *IntegrityError) Unwrap() error { return e.Err }

// ConfigurationError is fatal at startup
type ConfigurationError struct {
	Msg string
	Err error
}

// NewConfigurationError wraps err in a ConfigurationError
func NewConfigurationError(msg string, err error) error {
	return &ConfigurationError{Msg: msg, Err: err}
}

func (e *ConfigurationError) Error() string { return join(e.Msg, e.Err) }

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsDocumentError tells whether err or any error in its chain is a DocumentError
func IsDocumentError(err error) bool {
	var target *DocumentError
	return errors.As(err, &target)
}

// IsTransientError tells whether err or any error in its chain is a TransientError
func IsTransientError(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsIntegrityError tells whether err or any error in its chain is an IntegrityError
func IsIntegrityError(err error) bool {
	var target *IntegrityError
	return errors.As(err, &target)
}

// IsConfigurationError tells whether err or any error in its chain is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func join(msg string, err error) string {
	switch {
	case err == nil:
		return msg
	case msg == "":
		return err.Error()
	default:
		return msg + ": " + err.Error()
	}
}
