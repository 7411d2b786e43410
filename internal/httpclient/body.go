package httpclient

import (
	"fmt"
	"io"

	"github.com/slok/lendr/internal/model"
)

// MaxDocumentSize is the maximum size of a document read in memory (feeds,
// authentication documents, tokens...).
const MaxDocumentSize = 16 << 20

// ReadBody reads the whole body of an OK result and closes it.
func ReadBody(r OK) ([]byte, error) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("could not read body: %w", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("document of %s is bigger than %d bytes", r.URI, MaxDocumentSize)
	}
	return data, nil
}

// TaskErrorOf maps a non OK result to its task error, message describes the
// failed operation.
func TaskErrorOf(message string, r Result) model.TaskError {
	switch v := r.(type) {
	case Error:
		return model.ServerError{
			Message:       message,
			URI:           v.URI,
			Code:          v.Status,
			Status:        v.StatusText,
			ProblemReport: v.ProblemReport,
		}
	case Exception:
		if v.Timeout() {
			return model.Timeout{Message: message, URI: v.URI}
		}
		return model.ConnectionFailure{Message: message, Err: v.Err}
	}
	return model.UnexpectedException{Message: message, Err: fmt.Errorf("unexpected result %T", r)}
}
