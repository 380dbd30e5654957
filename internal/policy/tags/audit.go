package tags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloudgov/costguard/internal/policy"
)

// Resource is a tagged cloud resource with an optional monthly cost, used by
// compliance audits.
type Resource struct {
	ID   string            `json:"id"`
	Tags map[string]string `json:"tags"`
	Cost float64           `json:"cost,omitempty"`
}

// ResourceResult is one resource's compliance outcome.
type ResourceResult struct {
	ID         string            `json:"id"`
	Tags       map[string]string `json:"tags"`
	Cost       float64           `json:"cost"`
	Violations []string          `json:"violations"`
}

// AuditResult summarizes tag compliance across a resource set.
type AuditResult struct {
	TotalResources        int              `json:"total_resources"`
	Compliant             int              `json:"compliant"`
	NonCompliant          int              `json:"non_compliant"`
	ComplianceRate        float64          `json:"compliance_rate"`
	UntaggedCost          float64          `json:"untagged_cost"`
	NonCompliantResources []ResourceResult `json:"non_compliant_resources"`
}

// maxReportedResources caps the per-resource detail in an audit result.
const maxReportedResources = 10

// AuditResources evaluates every resource against p and categorizes the
// outcomes. Evaluation is pure, so resources are processed independently.
func AuditResources(p policy.Policy[Facts], resources []Resource) AuditResult {
	result := AuditResult{NonCompliantResources: make([]ResourceResult, 0)}
	result.TotalResources = len(resources)

	for _, res := range resources {
		verdict := policy.Evaluate(p, Facts{Tags: res.Tags})
		if verdict.Allow && len(verdict.Violations) == 0 {
			result.Compliant++
			continue
		}
		result.NonCompliant++
		result.UntaggedCost += res.Cost
		if len(result.NonCompliantResources) < maxReportedResources {
			result.NonCompliantResources = append(result.NonCompliantResources, ResourceResult{
				ID:         res.ID,
				Tags:       res.Tags,
				Cost:       res.Cost,
				Violations: verdict.Violations,
			})
		}
	}

	if result.TotalResources > 0 {
		result.ComplianceRate = float64(result.Compliant) / float64(result.TotalResources) * 100
	}
	return result
}

// SuggestFixes lists concrete remediation steps for a non-compliant resource.
func SuggestFixes(cfg Config, res Resource) []string {
	suggestions := make([]string, 0)

	for _, tag := range cfg.RequiredTags {
		if _, ok := res.Tags[tag]; !ok {
			suggestions = append(suggestions, fmt.Sprintf("Add required tag: %s", tag))
		}
	}

	empty := make([]string, 0)
	for tag, value := range res.Tags {
		if strings.TrimSpace(value) == "" {
			empty = append(empty, tag)
		}
	}
	sort.Strings(empty)
	for _, tag := range empty {
		suggestions = append(suggestions, fmt.Sprintf("Set value for tag: %s", tag))
	}

	if env, ok := res.Tags["Environment"]; ok {
		for _, tag := range cfg.EnvironmentTags[env] {
			if _, present := res.Tags[tag]; !present {
				suggestions = append(suggestions, fmt.Sprintf("Add %s environment tag: %s", env, tag))
			}
		}
	}

	return suggestions
}
