package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/messenger-e2e/pkg/models"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-run", "Change avatar, Read status", "-update-snapshots", "missing", "-parallel", "2", "-json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Change avatar", "Read status"}, opts.scenarios)
	assert.Equal(t, "missing", opts.update)
	assert.Equal(t, 2, opts.parallelism)
	assert.True(t, opts.jsonOut)

	opts, err = parseOptions(nil)
	require.NoError(t, err)
	assert.Empty(t, opts.scenarios)

	_, err = parseOptions([]string{"-update-snapshots", "sometimes"})
	assert.Error(t, err)

	_, err = parseOptions([]string{"-parallel", "-1"})
	assert.Error(t, err)

	_, err = parseOptions([]string{"extra"})
	assert.Error(t, err)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	printResults(&buf, []models.ScenarioResult{
		{Scenario: "Read status", Status: models.StatusSuccess, Duration: 1200},
		{Scenario: "Change avatar", Status: models.StatusFailed, ErrorMessage: "waiting 20s and still the screenshot is not right\nmore", Attempts: make([]models.VerificationAttempt, 41)},
	})

	out := buf.String()
	assert.Contains(t, out, "Read status")
	assert.Contains(t, out, "41")
	assert.NotContains(t, out, "more")
	assert.Contains(t, out, "1 passed, 1 failed")
}

func TestPrintScenarios(t *testing.T) {
	var buf bytes.Buffer
	printScenarios(&buf)
	assert.Contains(t, buf.String(), "Block user in conversation list")
	assert.Contains(t, buf.String(), string(models.FixtureAlice1WNoNetwork))
}
