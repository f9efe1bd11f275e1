package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCheck_EmptyListMeansEverythingRuns(t *testing.T) {
	assert.True(t, hasCheck(nil, CheckDataIntegrity))
	assert.True(t, hasCheck([]CheckType{}, CheckImageExistence))
}

func TestHasCheck_NonEmptyListFiltersToNamedChecks(t *testing.T) {
	checks := []CheckType{CheckDataIntegrity, CheckFieldValidation}
	assert.True(t, hasCheck(checks, CheckDataIntegrity))
	assert.True(t, hasCheck(checks, CheckFieldValidation))
	assert.False(t, hasCheck(checks, CheckImageExistence))
}

func TestWantsIssue_EmptyListMeansEverythingRepaired(t *testing.T) {
	assert.True(t, wantsIssue(nil, IssueMissingImage))
}

func TestWantsIssue_NonEmptyListFiltersToNamedIssues(t *testing.T) {
	types := []IssueType{IssueInvalidData}
	assert.True(t, wantsIssue(types, IssueInvalidData))
	assert.False(t, wantsIssue(types, IssueMissingImage))
	assert.False(t, wantsIssue(types, IssueDuplicateProducts))
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, ScopeSelective, scopeOf([]string{"p1"}))
	assert.Equal(t, ScopeAll, scopeOf(nil))
	assert.Equal(t, ScopeAll, scopeOf([]string{}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-5, 0, 100))
	assert.Equal(t, 100.0, clamp(500, 0, 100))
	assert.Equal(t, 42.0, clamp(42, 0, 100))
}
