package policy

import "fmt"

// Strictness controls which violations count against Allow.
type Strictness string

const (
	// StrictnessStrict folds every violation into Allow.
	StrictnessStrict Strictness = "strict"

	// StrictnessLegacy keeps advisory violations (environment-conditional and
	// format rules) out of Allow, matching the original rule split where only
	// the core rules gated the decision.
	StrictnessLegacy Strictness = "legacy"
)

// Valid reports whether s is a known strictness mode.
func (s Strictness) Valid() bool {
	return s == StrictnessStrict || s == StrictnessLegacy
}

// Violation is the failure outcome of a single rule.
type Violation struct {
	Rule     string
	Message  string
	Advisory bool
}

// Verdict is the result of evaluating one policy against one set of facts.
// Allow is true iff no gating rule produced a violation.
type Verdict struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
}

// Rule is a named pure predicate over a fact shape F. Check returns nil when
// the rule is satisfied (or not applicable). Advisory rules report violations
// without flipping Allow under legacy strictness.
type Rule[F any] struct {
	Name     string
	Advisory bool
	Check    func(facts F) *Violation
}

// Policy is an immutable named rule set over one fact shape. Build it once at
// startup; never mutate it mid-evaluation.
type Policy[F any] struct {
	Name       string
	Strictness Strictness
	Rules      []Rule[F]
}

// InputShapeError reports facts that are missing or malformed in a way a rule
// unconditionally requires. It is returned before any rule runs; no partial
// verdict is produced.
type InputShapeError struct {
	Policy string
	Reason string
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("invalid facts for policy %q: %s", e.Policy, e.Reason)
}
