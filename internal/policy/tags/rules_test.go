package tags

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgov/costguard/internal/policy"
)

func compliantTags() map[string]string {
	return map[string]string{
		"Environment": "dev",
		"Team":        "platform",
		"CostCenter":  "12345",
	}
}

func strictTagPolicy() policy.Policy[Facts] {
	return NewPolicy(DefaultConfig(), policy.StrictnessStrict)
}

func TestValidateFacts(t *testing.T) {
	assert.NoError(t, ValidateFacts(Facts{Tags: compliantTags()}))

	// An untagged resource is a valid fact set; only an absent map is a
	// shape error
	assert.NoError(t, ValidateFacts(Facts{Tags: map[string]string{}}))

	err := ValidateFacts(Facts{})
	var shapeErr *policy.InputShapeError
	require.True(t, errors.As(err, &shapeErr))
	assert.Equal(t, PolicyName, shapeErr.Policy)
	assert.Contains(t, shapeErr.Reason, "tags map is required")
}

func TestCompliantResource(t *testing.T) {
	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: compliantTags()})
	assert.True(t, verdict.Allow)
	assert.Empty(t, verdict.Violations)
}

func TestMissingRequiredTags(t *testing.T) {
	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: map[string]string{
		"Team": "platform",
	}})
	assert.False(t, verdict.Allow)
	// Missing tags are listed in declared order
	assert.Contains(t, verdict.Violations, "Missing required tags: Environment, CostCenter")
}

func TestAllRequiredTagsMissing(t *testing.T) {
	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: map[string]string{}})
	assert.False(t, verdict.Allow)
	assert.Contains(t, verdict.Violations, "Missing required tags: Environment, Team, CostCenter")
}

func TestEmptyTagValues(t *testing.T) {
	tags := compliantTags()
	tags["Team"] = "   "
	tags["Owner"] = ""

	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.False(t, verdict.Allow)
	// Empty keys are sorted for a stable message
	assert.Contains(t, verdict.Violations, "Tags have empty values: Owner, Team")
}

func TestProdEnvironmentTags(t *testing.T) {
	tags := map[string]string{
		"Environment": "prod",
		"Team":        "platform",
		"CostCenter":  "12345",
		"Backup":      "daily",
	}

	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.False(t, verdict.Allow)
	// Only the missing conditional tag is reported; Backup being present
	// does not suppress the Owner requirement
	assert.Equal(t, []string{"Missing prod environment tag: Owner"}, verdict.Violations)

	tags["Owner"] = "alice"
	verdict = policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.True(t, verdict.Allow)
}

func TestStagingEnvironmentTags(t *testing.T) {
	tags := map[string]string{
		"Environment": "staging",
		"Team":        "platform",
		"CostCenter":  "12345",
	}

	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.False(t, verdict.Allow)
	assert.Equal(t, []string{"Missing staging environment tag: Owner"}, verdict.Violations)
}

func TestCostCenterFormat(t *testing.T) {
	tags := compliantTags()
	tags["CostCenter"] = "12A45"

	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.False(t, verdict.Allow)
	assert.Equal(t, []string{"CostCenter must be numeric, got: 12A45"}, verdict.Violations)

	tags["CostCenter"] = "12345"
	verdict = policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.True(t, verdict.Allow)
}

func TestEnvironmentValueKnown(t *testing.T) {
	tags := compliantTags()
	tags["Environment"] = "sandbox"

	verdict := policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.False(t, verdict.Allow)
	assert.Equal(t,
		[]string{"Invalid Environment value: sandbox. Must be one of: prod, staging, dev, test, qa"},
		verdict.Violations)

	// Environment matching is case insensitive
	tags["Environment"] = "DEV"
	verdict = policy.Evaluate(strictTagPolicy(), Facts{Tags: tags})
	assert.True(t, verdict.Allow)
}

func TestLegacyModeAdvisoryRules(t *testing.T) {
	p := NewPolicy(DefaultConfig(), policy.StrictnessLegacy)

	// Format and conditional violations are reported but do not deny
	tags := compliantTags()
	tags["CostCenter"] = "abc"
	verdict := policy.Evaluate(p, Facts{Tags: tags})
	assert.True(t, verdict.Allow)
	assert.Len(t, verdict.Violations, 1)

	// Required-presence rules still gate under legacy mode
	verdict = policy.Evaluate(p, Facts{Tags: map[string]string{}})
	assert.False(t, verdict.Allow)
}

func TestAuditResources(t *testing.T) {
	resources := []Resource{
		{ID: "i-1", Tags: compliantTags(), Cost: 100},
		{ID: "i-2", Tags: map[string]string{"Team": "web"}, Cost: 250},
		{ID: "i-3", Tags: map[string]string{}, Cost: 50},
	}

	result := AuditResources(strictTagPolicy(), resources)
	assert.Equal(t, 3, result.TotalResources)
	assert.Equal(t, 1, result.Compliant)
	assert.Equal(t, 2, result.NonCompliant)
	assert.InDelta(t, 33.333, result.ComplianceRate, 0.01)
	assert.InDelta(t, 300.0, result.UntaggedCost, 0.001)
	require.Len(t, result.NonCompliantResources, 2)
	assert.Equal(t, "i-2", result.NonCompliantResources[0].ID)
}

func TestAuditResourcesCapsDetail(t *testing.T) {
	resources := make([]Resource, 0, 15)
	for i := 0; i < 15; i++ {
		resources = append(resources, Resource{ID: "r", Tags: map[string]string{}})
	}

	result := AuditResources(strictTagPolicy(), resources)
	assert.Equal(t, 15, result.NonCompliant)
	assert.Len(t, result.NonCompliantResources, 10)
}

func TestAuditResourcesEmpty(t *testing.T) {
	result := AuditResources(strictTagPolicy(), nil)
	assert.Equal(t, 0, result.TotalResources)
	assert.Equal(t, 0.0, result.ComplianceRate)
}

func TestSuggestFixes(t *testing.T) {
	cfg := DefaultConfig()

	res := Resource{Tags: map[string]string{
		"Environment": "prod",
		"Team":        "",
	}}

	suggestions := SuggestFixes(cfg, res)
	assert.Contains(t, suggestions, "Add required tag: CostCenter")
	assert.Contains(t, suggestions, "Set value for tag: Team")
	assert.Contains(t, suggestions, "Add prod environment tag: Owner")
	assert.Contains(t, suggestions, "Add prod environment tag: Backup")

	// A compliant resource needs no fixes
	assert.Empty(t, SuggestFixes(cfg, Resource{Tags: compliantTags()}))
}
