package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	if v := getVersion(); v == "" {
		t.Error("getVersion() returned empty string")
	}
}

func TestGetCommitAndDate(t *testing.T) {
	t.Parallel()

	if c := getCommit(); c == "" {
		t.Error("getCommit() returned empty string")
	}
	if d := getDate(); d == "" {
		t.Error("getDate() returned empty string")
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	ua := userAgent()
	if !strings.HasPrefix(ua, "doccrawl/") {
		t.Errorf("expected user agent to start with doccrawl/, got %q", ua)
	}
	if !strings.Contains(ua, "+https://github.com/nao1215/doccrawl") {
		t.Errorf("expected project URL in user agent, got %q", ua)
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	t.Run("command has correct use", func(t *testing.T) {
		t.Parallel()
		cmd := NewVersionCmd()
		if cmd.Use != "version" {
			t.Errorf("expected Use to be 'version', got %q", cmd.Use)
		}
	})

	t.Run("command outputs version info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"doccrawl version", "commit:", "built:"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
	})
}
