// Package policy defines the rule evaluation contract shared by all
// governance policy domains.
//
// A Policy is an immutable, named set of Rules over one fact shape. Each Rule
// is a pure predicate that either passes or produces a Violation. Evaluate
// runs every rule, accumulates all violations, and derives the Allow flag
// from the violation set alone, so the flag cannot drift out of sync with
// the reported violations.
//
// Domain fact shapes and their rule sets live in the subpackages budget and
// tags. Policy parameters are loaded from a YAML file by policyfile.
package policy
