package ir

import "fmt"

// Validate checks a prompt's shape.
func (p *Prompt) Validate() []ValidationError {
	var errs []ValidationError
	if !ValidPromptTypes[p.Type] {
		errs = append(errs, ValidationError{Field: "prompt_type", Message: fmt.Sprintf("unknown prompt type %q", p.Type)})
	}
	if len(p.Body) == 0 {
		errs = append(errs, ValidationError{Field: "body", Message: "is required"})
	} else if _, err := MarshalCanonical(p.Body); err != nil {
		errs = append(errs, ValidationError{Field: "body", Message: err.Error()})
	}
	return errs
}
