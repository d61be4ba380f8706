package errors

import (
	"context"
	"errors"
	"strings"
)

// Rule maps a substring of an upstream error message to a Code. A non-empty
// Reason is recorded in Fields["reason"].
type Rule struct {
	Contains string
	Code     Code
	Reason   string
}

// Classifier translates errors from one external collaborator into the
// pipeline taxonomy. Rules are evaluated in order; matching is case-insensitive.
type Classifier struct {
	// Op is stamped on every classified error.
	Op    string
	Rules []Rule
	// Default applies when no rule matches. Zero value means CodeInternal.
	Default Code
}

// Classify returns err translated into an *Error. Already classified errors
// pass through unchanged, context deadlines are Transient, nil stays nil.
func (c Classifier) Classify(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return WrapWithCode(err, CodeTransient, c.Op, "timed out")
	}

	r := c.rule(err.Error())
	out := WrapWithCode(err, r.Code, c.Op, "classified upstream error")
	if r.Reason != "" {
		out.WithField("reason", r.Reason)
	}
	return out
}

// Match returns the code of the first rule contained in msg.
func (c Classifier) Match(msg string) Code {
	return c.rule(msg).Code
}

func (c Classifier) rule(msg string) Rule {
	lower := strings.ToLower(msg)
	for _, r := range c.Rules {
		if strings.Contains(lower, strings.ToLower(r.Contains)) {
			return r
		}
	}
	if c.Default != "" {
		return Rule{Code: c.Default}
	}
	return Rule{Code: CodeInternal}
}
