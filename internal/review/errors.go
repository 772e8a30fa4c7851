package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gosuda/auditdesk/internal/domain"
)

// ErrorKind classifies how a request failed.
type ErrorKind int

const (
	// KindServer means the server answered with an error status.
	KindServer ErrorKind = iota + 1
	// KindNoResponse means the request was sent but no response arrived.
	KindNoResponse
	// KindClient means the request could not be built or sent.
	KindClient
)

func (k ErrorKind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindNoResponse:
		return "no_response"
	case KindClient:
		return "client"
	default:
		return "unknown"
	}
}

// RequestError is a failed API call. Payload keeps the raw response body for
// diagnostics.
type RequestError struct {
	Op      string
	Method  string
	Path    string
	Kind    ErrorKind
	Status  int
	Message string
	Payload []byte
	Err     error

	fields domain.ValidationErrors
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("review.%s: %s: %s", e.Op, e.Summary(), e.Details())
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Summary is the one-line message shown to the reviewer.
func (e *RequestError) Summary() string {
	switch e.Kind {
	case KindServer:
		return fmt.Sprintf("Server Error (%d)", e.Status)
	case KindNoResponse:
		return "No response from server"
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Unknown error"
	}
}

// Details expands on Summary.
func (e *RequestError) Details() string {
	switch e.Kind {
	case KindServer:
		if e.Message != "" {
			return e.Message
		}
		return "The server encountered an internal error."
	case KindNoResponse:
		return "The server did not respond to the request."
	default:
		return "An error occurred while preparing the request."
	}
}

// FieldErrors returns the per-field validation failures reported by the
// server, keyed like domain.IssueDraft.Validate. Nil when there are none.
func (e *RequestError) FieldErrors() domain.ValidationErrors {
	if len(e.fields) == 0 {
		return nil
	}
	out := make(domain.ValidationErrors, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// IsStatus reports whether err is a server error with the given status code.
func IsStatus(err error, status int) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == KindServer && re.Status == status
}

// problem is the error body written by the API.
type problem struct {
	Title   string `json:"title"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
	Errors  []struct {
		Message  string `json:"message"`
		Location string `json:"location"`
	} `json:"errors"`
	// Legacy handlers answer {"error": "..."}.
	Error string `json:"error"`
}

// parseProblem extracts the message and field errors from an error body.
// Unparseable bodies yield an empty message.
func parseProblem(body []byte) (string, domain.ValidationErrors) {
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		return "", nil
	}

	msg := p.Detail
	for _, alt := range []string{p.Message, p.Error, p.Title} {
		if msg == "" {
			msg = alt
		}
	}

	var fields domain.ValidationErrors
	for _, fe := range p.Errors {
		if fe.Location == "" {
			continue
		}
		if fields == nil {
			fields = domain.ValidationErrors{}
		}
		fields[fieldName(fe.Location)] = fe.Message
	}
	return msg, fields
}

// fieldName maps an error location such as "body.issue_due_date" to the draft
// field name "due_date".
func fieldName(location string) string {
	name := location
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimPrefix(name, "issue_")
}
