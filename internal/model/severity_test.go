package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeveritySevere.Rank(), SeverityModerate.Rank())
	assert.Greater(t, SeverityModerate.Rank(), SeverityMinor.Rank())
	assert.Equal(t, 0, Severity("BOGUS").Rank())
	assert.Equal(t, 0, Severity("").Rank())
}

func TestSeverityValid(t *testing.T) {
	assert.True(t, SeverityMinor.Valid())
	assert.True(t, SeveritySevere.Valid())
	assert.False(t, Severity("minor").Valid())
	assert.False(t, Severity("").Valid())
}

func TestRiskLevelValid(t *testing.T) {
	assert.True(t, RiskLow.Valid())
	assert.True(t, RiskMedium.Valid())
	assert.True(t, RiskHigh.Valid())
	assert.False(t, RiskLevel("NONE").Valid())
}

func TestPriorityForSeverity(t *testing.T) {
	assert.Equal(t, PriorityHigh, PriorityForSeverity(SeveritySevere))
	assert.Equal(t, PriorityMedium, PriorityForSeverity(SeverityModerate))
	assert.Equal(t, PriorityLow, PriorityForSeverity(SeverityMinor))
	assert.Equal(t, PriorityLow, PriorityForSeverity(Severity("")))
}

func TestClaimDecisionValid(t *testing.T) {
	for _, d := range AllClaimDecisions() {
		assert.True(t, d.Valid(), string(d))
	}
	assert.False(t, ClaimDecision("MAYBE").Valid())
	assert.False(t, ClaimDecision("").Valid())
}

func TestTokenUsageAdd(t *testing.T) {
	var total TokenUsage
	total.Add(TokenUsage{InputTokens: 100, OutputTokens: 20, Cost: 0.05})
	total.Add(TokenUsage{InputTokens: 50, OutputTokens: 10, CacheReadTokens: 30, Cost: 0.01})

	assert.Equal(t, 150, total.InputTokens)
	assert.Equal(t, 30, total.OutputTokens)
	assert.Equal(t, 30, total.CacheReadTokens)
	assert.InDelta(t, 0.06, total.Cost, 1e-9)
}
