package apperr

import (
	"errors"
	"fmt"
	"sort"
)

// Tool error codes. An automated caller branches on these, so they are stable.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeRateLimited  = "rate_limited"
	CodeDatabase     = "database_error"
	CodeMissingSlug  = "missing_slug"
)

// ToolError is the structured failure returned to tool callers.
type ToolError struct {
	Code    string   `json:"code"`
	Message string   `json:"error"`
	Hints   []string `json:"hints,omitempty"`
}

func (e *ToolError) Error() string { return e.Message }

// Is lets tool errors participate in the sentinel taxonomy.
func (e *ToolError) Is(target error) bool {
	switch e.Code {
	case CodeValidation, CodeMissingSlug:
		return target == ErrValidation
	case CodeNotFound:
		return target == ErrNotFound
	case CodeConflict:
		return target == ErrConflict
	}
	return false
}

// ToTool maps any error onto the tool-facing shape. Database failures never
// leak their underlying message.
func ToTool(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}

	var verr *ValidationError
	var rl *RateLimitError
	var dbErr *DatabaseError
	switch {
	case errors.As(err, &verr):
		hints := make([]string, 0, len(verr.Fields))
		for field, msg := range verr.Fields {
			hints = append(hints, fmt.Sprintf("fix %q: %s", field, msg))
		}
		sort.Strings(hints)
		return &ToolError{Code: CodeValidation, Message: verr.Error(), Hints: hints}
	case errors.Is(err, ErrNotFound):
		return &ToolError{
			Code:    CodeNotFound,
			Message: err.Error(),
			Hints:   []string{"check the slug with a search call before retrying"},
		}
	case errors.Is(err, ErrConflict):
		return &ToolError{
			Code:    CodeConflict,
			Message: "the entry changed since it was read",
			Hints:   []string{"read the entry again and reapply the change"},
		}
	case errors.As(err, &rl):
		return &ToolError{
			Code:    CodeRateLimited,
			Message: "too many requests",
			Hints:   []string{fmt.Sprintf("retry after %s", rl.RetryAfter)},
		}
	case errors.Is(err, ErrUnauthorized):
		return &ToolError{Code: CodeUnauthorized, Message: "no user identity could be resolved"}
	case errors.As(err, &dbErr):
		msg := "the archive could not be updated"
		var hints []string
		switch dbErr.Kind {
		case DBUniqueViolation:
			msg = "an entry with that slug already exists"
			hints = []string{"choose a different slug or omit it to auto-suffix"}
		case DBValueTooLong:
			msg = "a value is too long"
			hints = []string{"shorten the body or entity"}
		case DBBusy:
			hints = []string{"retry the call"}
		}
		return &ToolError{Code: CodeDatabase, Message: msg, Hints: hints}
	}
	return &ToolError{Code: CodeDatabase, Message: "internal error"}
}
