// -----------------------------------------------------------------------
// WorkResult - Tagged completion value submitted by workers
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind discriminates the tagged completion value. Engines dispatch on
// it with an exhaustive switch; unknown kinds are rejected up front.
type ResultKind string

const (
	ResultSuccess         ResultKind = "success"
	ResultError           ResultKind = "error"
	ResultCancelled       ResultKind = "cancelled"
	ResultTryLater        ResultKind = "try-later"
	ResultAddDependencies ResultKind = "add-dependencies"
)

// WorkResult is the completion payload. Exactly one kind applies per call;
// the other fields belong to the kind that uses them.
type WorkResult struct {
	Kind         ResultKind       `json:"kind"`
	ResultBody   json.RawMessage  `json:"result_body,omitempty"`
	Message      string           `json:"message,omitempty"`
	Due          *time.Time       `json:"due,omitempty"`
	Reason       string           `json:"reason,omitempty"`
	Dependencies []*JobSubmission `json:"dependencies,omitempty"`
}

// Validate checks that the kind is known and its required fields are set.
func (r *WorkResult) Validate() error {
	switch r.Kind {
	case ResultSuccess, ResultCancelled:
		return nil
	case ResultError:
		if r.Message == "" {
			return fmt.Errorf("error result requires a message")
		}
		return nil
	case ResultTryLater:
		if r.Due == nil || r.Due.IsZero() {
			return fmt.Errorf("try-later result requires a due timestamp")
		}
		return nil
	case ResultAddDependencies:
		if len(r.Dependencies) == 0 {
			return fmt.Errorf("add-dependencies result requires at least one dependency")
		}
		return nil
	default:
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
}

// ContractOutcome maps the result kind onto the outcome it writes on the
// contract being completed.
func (r *WorkResult) ContractOutcome() Outcome {
	switch r.Kind {
	case ResultSuccess:
		return OutcomeSuccess
	case ResultError:
		return OutcomeError
	case ResultCancelled:
		return OutcomeCancelled
	case ResultTryLater:
		return OutcomeTryLater
	case ResultAddDependencies:
		return OutcomeWaiting
	}
	return ""
}
