package policy

import "fmt"

// Evaluate runs every rule of p against facts and returns the verdict.
//
// All rules run; there is no short-circuit, so one call surfaces every
// problem at once. Rules are independent and facts are never mutated, so the
// violation set does not depend on rule order. Allow is derived from the
// accumulated violations: under strict mode any violation denies, under
// legacy mode advisory violations are reported but do not deny.
//
// A policy with no rules cannot prove anything satisfied and denies by
// default with a synthesized explanatory violation.
func Evaluate[F any](p Policy[F], facts F) Verdict {
	if len(p.Rules) == 0 {
		return Verdict{
			Allow: false,
			Violations: []string{
				fmt.Sprintf("policy %q has no rules: nothing proven satisfied, denying by default", p.Name),
			},
		}
	}

	allow := true
	messages := make([]string, 0)

	for _, rule := range p.Rules {
		if rule.Check == nil {
			continue
		}
		v := rule.Check(facts)
		if v == nil {
			continue
		}
		if v.Rule == "" {
			v.Rule = rule.Name
		}
		messages = append(messages, v.Message)

		if p.Strictness == StrictnessLegacy && (rule.Advisory || v.Advisory) {
			continue
		}
		allow = false
	}

	return Verdict{Allow: allow, Violations: messages}
}

// Merge unions verdicts into one: Allow is the conjunction, violations are
// concatenated in argument order with duplicates removed.
func Merge(verdicts ...Verdict) Verdict {
	merged := Verdict{Allow: true, Violations: make([]string, 0)}
	seen := make(map[string]struct{})

	for _, v := range verdicts {
		if !v.Allow {
			merged.Allow = false
		}
		for _, msg := range v.Violations {
			if _, ok := seen[msg]; ok {
				continue
			}
			seen[msg] = struct{}{}
			merged.Violations = append(merged.Violations, msg)
		}
	}

	return merged
}
