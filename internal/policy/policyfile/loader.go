// Package policyfile loads the governance policy configuration from a YAML
// file. Loading happens at process start (or as an explicit whole-file
// reload); a malformed file is fatal and the process must not start with a
// partially loaded policy set.
package policyfile

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/budget"
	"github.com/cloudgov/costguard/internal/policy/tags"
)

// ApprovalRules configures the auto-approval predicate of the approval
// workflow: actions on the allow list with zero violations and an estimated
// impact below the ceiling skip the human step; manual-only actions never do.
type ApprovalRules struct {
	AutoApproveActions   []string `yaml:"auto_approve_actions"`
	ManualOnlyActions    []string `yaml:"manual_only_actions"`
	MaxAutoApproveImpact float64  `yaml:"max_auto_approve_impact"`
}

// File is the parsed policy configuration.
type File struct {
	Strictness policy.Strictness `yaml:"strictness"`
	Tags       tags.Config       `yaml:"tags"`
	Budget     budget.Params     `yaml:"budget"`
	Approval   ApprovalRules     `yaml:"approval"`
}

// LoadError marks a policy file that could not be loaded or validated.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("policy file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Default returns the built-in policy configuration used when no file is
// given: strict mode, the default tag set, default budget parameters, and
// the safe-action auto-approval list.
func Default() *File {
	return &File{
		Strictness: policy.StrictnessStrict,
		Tags:       tags.DefaultConfig(),
		Approval: ApprovalRules{
			AutoApproveActions:   []string{"delete_snapshots", "stop_instances"},
			ManualOnlyActions:    []string{"delete_volumes", "terminate_instances"},
			MaxAutoApproveImpact: 100,
		},
	}
}

// Load reads and validates the policy file at path. Unknown fields are
// rejected so a typo cannot silently disable a rule.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	f := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("parse: %w", err)}
	}

	if err := f.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return f, nil
}

// Validate checks the file's internal consistency.
func (f *File) Validate() error {
	if !f.Strictness.Valid() {
		return fmt.Errorf("strictness must be %q or %q, got %q",
			policy.StrictnessStrict, policy.StrictnessLegacy, f.Strictness)
	}
	if len(f.Tags.RequiredTags) == 0 {
		return fmt.Errorf("tags.required_tags must not be empty")
	}
	seen := make(map[string]struct{}, len(f.Tags.RequiredTags))
	for _, tag := range f.Tags.RequiredTags {
		if tag == "" {
			return fmt.Errorf("tags.required_tags entries must not be blank")
		}
		if _, dup := seen[tag]; dup {
			return fmt.Errorf("tags.required_tags contains %q twice", tag)
		}
		seen[tag] = struct{}{}
	}
	if f.Budget.BurnRateMargin < 0 || f.Budget.ProjectionDays < 0 {
		return fmt.Errorf("budget parameters must not be negative")
	}
	if f.Approval.MaxAutoApproveImpact < 0 {
		return fmt.Errorf("approval.max_auto_approve_impact must not be negative")
	}
	for _, action := range f.Approval.AutoApproveActions {
		for _, manual := range f.Approval.ManualOnlyActions {
			if action == manual {
				return fmt.Errorf("action %q is both auto-approve and manual-only", action)
			}
		}
	}
	return nil
}

// BudgetPolicy builds the immutable budget policy from the file.
func (f *File) BudgetPolicy() policy.Policy[budget.Facts] {
	return budget.NewPolicy(f.Budget, f.Strictness)
}

// TagPolicy builds the immutable tag governance policy from the file.
func (f *File) TagPolicy() policy.Policy[tags.Facts] {
	return tags.NewPolicy(f.Tags, f.Strictness)
}
