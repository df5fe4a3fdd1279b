package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootHasSubcommands(t *testing.T) {
	want := []string{"serve", "ingest", "mcp", "version"}

	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("root command is missing subcommand %q", name)
		}
	}
}

func TestVersionOutput(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("executing version: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ragcache " + Version, "commit: " + Commit, "built:  " + BuildDate} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIngestArgsValidation(t *testing.T) {
	original := ingestURL
	t.Cleanup(func() { ingestURL = original })

	ingestURL = ""
	if err := runIngest(nil); err == nil {
		t.Error("expected an error when neither files nor --url is given")
	}

	ingestURL = "https://example.com/article"
	err := runIngest([]string{"docs.csv"})
	if err == nil {
		t.Fatal("expected an error when both files and --url are given")
	}
	if !strings.Contains(err.Error(), "not both") {
		t.Errorf("unexpected error: %v", err)
	}
}
