package model

import (
	"fmt"
	"strings"

	"github.com/slok/lendr/internal/task"
)

// TaskResult is the result of every domain task.
type TaskResult[A any] = task.Result[TaskError, A]

// TaskRecorder is the step ledger used by every domain task.
type TaskRecorder = task.Recorder[TaskError]

// NewTaskRecorder returns a new domain task recorder.
func NewTaskRecorder() *TaskRecorder { return task.NewRecorder[TaskError]() }

// ProblemReport is an RFC 7807 problem report returned by a server.
type ProblemReport struct {
	Type   string         `json:"type,omitempty"`
	Title  string         `json:"title,omitempty"`
	Status int            `json:"status,omitempty"`
	Detail string         `json:"detail,omitempty"`
	Raw    map[string]any `json:"-"`
}

// ParseMessage is a parser warning or error.
type ParseMessage struct {
	Source  string
	Line    int
	Message string
}

func (m ParseMessage) String() string {
	if m.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", m.Source, m.Line, m.Message)
	}
	if m.Source != "" {
		return fmt.Sprintf("%s: %s", m.Source, m.Message)
	}
	return m.Message
}

// TaskError is the typed error value recorded on failed task steps.
//
// Families:
//   - Connectivity: ConnectionFailure, ServerError, Timeout.
//   - Authentication: CredentialsIncorrect, LoginNotRequired, ServerParseError, MissingInformation.
//   - DRM: DRMFailure, DRMNotSupported.
//   - Content: UnsupportedAcquisition, AvailabilityInappropriate, BadBorrowFeed,
//     UnacceptableContentType, UnparseableBearerToken, BookDatabaseFailure, Cancelled.
//   - Account lifecycle: UnknownProvider, UnresolvableProvider, CannotDeleteLastAccount.
//   - Catch all: UnexpectedException.
type TaskError interface {
	error
	isTaskError()
}

type (
	ConnectionFailure struct {
		Message string
		Err     error
	}
	ServerError struct {
		Message       string
		URI           string
		Code          int
		Status        string
		ProblemReport *ProblemReport
	}
	Timeout struct {
		Message string
		URI     string
	}
	CredentialsIncorrect struct {
		Message string
	}
	LoginNotRequired struct {
		Message string
	}
	ServerParseError struct {
		Message  string
		Warnings []ParseMessage
		Errors   []ParseMessage
	}
	MissingInformation struct {
		Message string
	}
	DRMFailure struct {
		Message   string
		ErrorCode string
	}
	DRMNotSupported struct {
		Message string
		System  string
	}
	UnsupportedAcquisition struct {
		Message string
		Type    string
	}
	AvailabilityInappropriate struct {
		Message      string
		Availability string
	}
	BadBorrowFeed struct {
		Message string
		Errors  []ParseMessage
	}
	UnacceptableContentType struct {
		Message  string
		Expected []string
		Received string
	}
	UnparseableBearerToken struct {
		Message string
		Err     error
	}
	BookDatabaseFailure struct {
		Message string
		Err     error
	}
	Cancelled struct {
		Message string
	}
	UnknownProvider struct {
		Message    string
		ProviderID string
	}
	UnresolvableProvider struct {
		Message    string
		ProviderID string
		Causes     []TaskError
	}
	CannotDeleteLastAccount struct {
		Message string
	}
	UnexpectedException struct {
		Message string
		Err     error
	}
)

func (ConnectionFailure) isTaskError()         {}
func (ServerError) isTaskError()               {}
func (Timeout) isTaskError()                   {}
func (CredentialsIncorrect) isTaskError()      {}
func (LoginNotRequired) isTaskError()          {}
func (ServerParseError) isTaskError()          {}
func (MissingInformation) isTaskError()        {}
func (DRMFailure) isTaskError()                {}
func (DRMNotSupported) isTaskError()           {}
func (UnsupportedAcquisition) isTaskError()    {}
func (AvailabilityInappropriate) isTaskError() {}
func (BadBorrowFeed) isTaskError()             {}
func (UnacceptableContentType) isTaskError()   {}
func (UnparseableBearerToken) isTaskError()    {}
func (BookDatabaseFailure) isTaskError()       {}
func (Cancelled) isTaskError()                 {}
func (UnknownProvider) isTaskError()           {}
func (UnresolvableProvider) isTaskError()      {}
func (CannotDeleteLastAccount) isTaskError()   {}
func (UnexpectedException) isTaskError()       {}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, err)
}

func (e ConnectionFailure) Error() string { return withCause(e.Message, e.Err) }
func (e ConnectionFailure) Unwrap() error { return e.Err }

func (e ServerError) Error() string {
	return fmt.Sprintf("%s (%s %d %s)", e.Message, e.URI, e.Code, e.Status)
}

func (e Timeout) Error() string              { return e.Message }
func (e CredentialsIncorrect) Error() string { return e.Message }
func (e LoginNotRequired) Error() string     { return e.Message }

func (e ServerParseError) Error() string {
	if len(e.Errors) == 0 {
		return e.Message
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, m := range e.Errors {
		msgs = append(msgs, m.String())
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(msgs, "; "))
}

func (e MissingInformation) Error() string { return e.Message }

func (e DRMFailure) Error() string {
	if e.ErrorCode == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.ErrorCode)
}

func (e DRMNotSupported) Error() string           { return e.Message }
func (e UnsupportedAcquisition) Error() string    { return e.Message }
func (e AvailabilityInappropriate) Error() string { return e.Message }
func (e BadBorrowFeed) Error() string             { return e.Message }

func (e UnacceptableContentType) Error() string {
	return fmt.Sprintf("%s: received %q, expected one of %q", e.Message, e.Received, e.Expected)
}

func (e UnparseableBearerToken) Error() string { return withCause(e.Message, e.Err) }
func (e UnparseableBearerToken) Unwrap() error { return e.Err }
func (e BookDatabaseFailure) Error() string    { return withCause(e.Message, e.Err) }
func (e BookDatabaseFailure) Unwrap() error    { return e.Err }
func (e Cancelled) Error() string              { return e.Message }
func (e UnknownProvider) Error() string        { return fmt.Sprintf("%s: %s", e.Message, e.ProviderID) }

func (e UnresolvableProvider) Error() string {
	if len(e.Causes) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Causes[len(e.Causes)-1])
}

func (e CannotDeleteLastAccount) Error() string { return e.Message }
func (e UnexpectedException) Error() string     { return withCause(e.Message, e.Err) }
func (e UnexpectedException) Unwrap() error     { return e.Err }
