// Package tags implements tag governance rules: required-tag presence,
// non-empty values, environment-conditional tags, and value format checks.
package tags

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudgov/costguard/internal/policy"
)

// PolicyName identifies the tag governance policy.
const PolicyName = "tags"

// Facts is the fact shape for one tag evaluation. An empty map is a valid
// fact set (an untagged resource); a nil map means the caller never supplied
// one and must be rejected by ValidateFacts before evaluation.
type Facts struct {
	Tags map[string]string `json:"tags"`
}

// ValidateFacts checks the fact shape before evaluation. A nil tags map is an
// input shape error, not a policy violation.
func ValidateFacts(f Facts) error {
	if f.Tags == nil {
		return &policy.InputShapeError{Policy: PolicyName, Reason: "tags map is required"}
	}
	return nil
}

// Config declares the governed tag set. Order of RequiredTags is preserved in
// violation messages.
type Config struct {
	RequiredTags      []string            `yaml:"required_tags"`
	EnvironmentTags   map[string][]string `yaml:"environment_tags"`
	ValidEnvironments []string            `yaml:"valid_environments"`
}

// DefaultConfig mirrors the governance defaults: three required tags,
// stricter prod/staging requirements, and the known environment names.
func DefaultConfig() Config {
	return Config{
		RequiredTags: []string{"Environment", "Team", "CostCenter"},
		EnvironmentTags: map[string][]string{
			"prod":    {"Owner", "Backup"},
			"staging": {"Owner"},
		},
		ValidEnvironments: []string{"prod", "staging", "dev", "test", "qa"},
	}
}

var costCenterPattern = regexp.MustCompile(`^[0-9]+$`)

// NewPolicy builds the tag governance policy from cfg. The required-presence
// and non-empty rules always gate Allow; conditional and format rules are
// advisory, so they only deny under strict mode.
func NewPolicy(cfg Config, strictness policy.Strictness) policy.Policy[Facts] {
	rules := []policy.Rule[Facts]{
		{Name: "required_tags_present", Check: checkRequiredTags(cfg.RequiredTags)},
		{Name: "non_empty_values", Check: checkNonEmptyValues},
	}

	// One independent rule per environment-conditional tag so that partial
	// failures name each missing tag separately.
	envs := make([]string, 0, len(cfg.EnvironmentTags))
	for env := range cfg.EnvironmentTags {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	for _, env := range envs {
		for _, tag := range cfg.EnvironmentTags[env] {
			rules = append(rules, policy.Rule[Facts]{
				Name:     fmt.Sprintf("%s_requires_%s", env, strings.ToLower(tag)),
				Advisory: true,
				Check:    checkEnvironmentTag(env, tag),
			})
		}
	}

	rules = append(rules,
		policy.Rule[Facts]{Name: "cost_center_numeric", Advisory: true, Check: checkCostCenterFormat},
	)
	if len(cfg.ValidEnvironments) > 0 {
		rules = append(rules, policy.Rule[Facts]{
			Name:     "environment_value_known",
			Advisory: true,
			Check:    checkEnvironmentValue(cfg.ValidEnvironments),
		})
	}

	return policy.Policy[Facts]{Name: PolicyName, Strictness: strictness, Rules: rules}
}

func checkRequiredTags(required []string) func(Facts) *policy.Violation {
	return func(f Facts) *policy.Violation {
		missing := make([]string, 0)
		for _, tag := range required {
			if _, ok := f.Tags[tag]; !ok {
				missing = append(missing, tag)
			}
		}
		if len(missing) == 0 {
			return nil
		}
		return &policy.Violation{
			Message: fmt.Sprintf("Missing required tags: %s", strings.Join(missing, ", ")),
		}
	}
}

func checkNonEmptyValues(f Facts) *policy.Violation {
	empty := make([]string, 0)
	for key, value := range f.Tags {
		if strings.TrimSpace(value) == "" {
			empty = append(empty, key)
		}
	}
	if len(empty) == 0 {
		return nil
	}
	sort.Strings(empty)
	return &policy.Violation{
		Message: fmt.Sprintf("Tags have empty values: %s", strings.Join(empty, ", ")),
	}
}

func checkEnvironmentTag(env, tag string) func(Facts) *policy.Violation {
	return func(f Facts) *policy.Violation {
		if f.Tags["Environment"] != env {
			return nil
		}
		if _, ok := f.Tags[tag]; ok {
			return nil
		}
		return &policy.Violation{
			Message: fmt.Sprintf("Missing %s environment tag: %s", env, tag),
		}
	}
}

func checkCostCenterFormat(f Facts) *policy.Violation {
	value, ok := f.Tags["CostCenter"]
	if !ok {
		return nil
	}
	if costCenterPattern.MatchString(value) {
		return nil
	}
	return &policy.Violation{
		Message: fmt.Sprintf("CostCenter must be numeric, got: %s", value),
	}
}

func checkEnvironmentValue(valid []string) func(Facts) *policy.Violation {
	allowed := make(map[string]struct{}, len(valid))
	for _, env := range valid {
		allowed[strings.ToLower(env)] = struct{}{}
	}
	return func(f Facts) *policy.Violation {
		value, ok := f.Tags["Environment"]
		if !ok {
			return nil
		}
		if _, known := allowed[strings.ToLower(value)]; known {
			return nil
		}
		return &policy.Violation{
			Message: fmt.Sprintf("Invalid Environment value: %s. Must be one of: %s",
				value, strings.Join(valid, ", ")),
		}
	}
}
