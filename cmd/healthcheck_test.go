package cmd

import (
	"strings"
	"testing"
)

func TestHealthcheckCommand(t *testing.T) {
	dataDir, baselinePath := buildFixtureBaseline(t)
	t.Setenv("MCP_SENTINEL_BASELINE", baselinePath)

	stdout, err := runCommand(t, "", "--data-dir", dataDir, "healthcheck")
	if err != nil {
		t.Fatalf("healthcheck error = %v", err)
	}
	for _, want := range []string{"Data directory is writable", "Found 2 session(s)", "Baseline loaded", "Health check passed!"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q\n%s", want, stdout)
		}
	}
}

func TestHealthcheckCommand_NoSessions(t *testing.T) {
	stdout, err := runCommand(t, "", "--data-dir", t.TempDir(), "healthcheck")
	if err != nil {
		t.Fatalf("healthcheck error = %v", err)
	}
	if !strings.Contains(stdout, "no sessions found") {
		t.Errorf("output should report missing sessions\n%s", stdout)
	}
}

func TestHealthcheckCommandExists(t *testing.T) {
	// Verify healthcheck command is registered
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "healthcheck" {
			found = true
			break
		}
	}

	if !found {
		t.Error("healthcheck command not found in root command")
	}
}
