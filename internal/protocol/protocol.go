// Package protocol defines the wire-level message envelope exchanged over a
// channel: a discriminated request/response/error record correlated by id.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the three envelope variants.
type MessageType string

const (
	MessageTypeRequest  MessageType = "request"
	MessageTypeResponse MessageType = "response"
	MessageTypeError    MessageType = "error"
)

// Error codes carried in error envelopes.
const (
	CodeBadRequest      = 400
	CodeUnauthenticated = 401
	CodeNotFound        = 404
	CodeInternal        = 500
)

// ErrorDetail is the payload of an error envelope.
type ErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the wire envelope. Exactly one of {Method+Params, Result, Error}
// is populated, according to Type. The id is caller-supplied and echoed back
// unchanged on the matching response or error.
type Message struct {
	Type   MessageType     `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method,omitempty"`
	Params Params          `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// DecodeError reports a frame that could not be decoded into a well-formed
// Message. Callers are expected to drop such frames, never to crash.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Reason
}

// NewRequest builds a request envelope.
func NewRequest(id, method string, params Params) *Message {
	return &Message{Type: MessageTypeRequest, ID: id, Method: method, Params: params}
}

// NewResponse builds a response envelope. The result is marshaled eagerly so
// that a marshal failure surfaces at build time rather than on the wire.
func NewResponse(id string, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Message{Type: MessageTypeResponse, ID: id, Result: raw}, nil
}

// NewError builds an error envelope.
func NewError(id string, code int, message string) *Message {
	return &Message{Type: MessageTypeError, ID: id, Error: &ErrorDetail{Code: code, Message: message}}
}

// Encode serializes a message to a single JSON frame.
func Encode(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a frame and validates the envelope invariant. Any shape
// violation is reported as a *DecodeError.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Reason: err.Error()}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the discriminated-variant invariant: the populated fields
// must match the declared type, and a request always carries a non-empty id
// and method.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeRequest:
		if m.ID == "" {
			return &DecodeError{Reason: "request with empty id"}
		}
		if m.Method == "" {
			return &DecodeError{Reason: "request with empty method"}
		}
		if m.Result != nil || m.Error != nil {
			return &DecodeError{Reason: "request carrying result or error"}
		}
	case MessageTypeResponse:
		if m.Method != "" || m.Params != nil || m.Error != nil {
			return &DecodeError{Reason: "response carrying request or error fields"}
		}
	case MessageTypeError:
		if m.Error == nil {
			return &DecodeError{Reason: "error without error detail"}
		}
		if m.Method != "" || m.Params != nil || m.Result != nil {
			return &DecodeError{Reason: "error carrying request or result fields"}
		}
	default:
		return &DecodeError{Reason: fmt.Sprintf("unknown message type %q", m.Type)}
	}
	return nil
}

// ResponseWriter is the sink a handler uses to answer a request. A channel
// implements it; tests substitute their own.
type ResponseWriter interface {
	// SendResponse sends a response envelope addressed to the given request id.
	SendResponse(id string, result any) error

	// SendError sends an error envelope addressed to the given request id.
	SendError(id string, code int, message string) error
}
