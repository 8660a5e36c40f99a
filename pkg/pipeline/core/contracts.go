package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Getter performs one GET against the cluster. The tag is opaque to the
// implementation and must be echoed back in Response.Tag.
//
// Non-2xx statuses are not errors: err is reserved for transport failures.
type Getter interface {
	Get(ctx context.Context, url string, tag string) (Response, error)
}

// GetFunc adapts a function to the Getter interface.
type GetFunc func(ctx context.Context, url string, tag string) (Response, error)

func (f GetFunc) Get(ctx context.Context, url string, tag string) (Response, error) {
	return f(ctx, url, tag)
}

// Response is the raw result of one GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Tag        string
}

// Request is one unit of work submitted to the batch executor.
type Request struct {
	// ID is the entity identifier, carried as the request tag.
	ID  string
	URL string
}

// Outcome classifies a single response.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeGone
	OutcomeServerError
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeGone:
		return "gone"
	case OutcomeServerError:
		return "server_error"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the classified outcome for one Request.
type Result struct {
	// Index is the position of the originating request in the submitted batch.
	Index int
	// ID is the tag echoed back by the transport.
	ID         string
	URL        string
	Outcome    Outcome
	StatusCode int
	Header     http.Header
	// Payload is set only for OutcomeSuccess and is always valid JSON.
	Payload json.RawMessage
	Err     error
}

// StageOutcome summarises one enrichment stage.
type StageOutcome struct {
	Stage        string `json:"stage"`
	Submitted    int    `json:"submitted"`
	Succeeded    int    `json:"succeeded"`
	Gone         int    `json:"gone"`
	ServerErrors int    `json:"server_errors"`
}

// FatalError reports a response (or transport failure) that aborts the run.
type FatalError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e == nil {
		return "fatal response"
	}
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("GET %s: unexpected status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("GET %s: fatal response", e.URL)
	}
}

func (e *FatalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
