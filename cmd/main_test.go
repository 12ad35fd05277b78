package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestCommandsValidateArgs(t *testing.T) {
	cases := [][]string{
		{"attest"},
		{"prove", "xrp"},
		{"verify"},
		{"serve", "extra"},
	}
	for _, args := range cases {
		root := newRootCmd()
		root.SetOut(new(bytes.Buffer))
		root.SetErr(new(bytes.Buffer))
		root.SetArgs(args)
		if err := root.Execute(); err == nil {
			t.Fatalf("expected argument error for %v", args)
		}
	}
}

func TestMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"attest", "xrp", "--config", filepath.Join(t.TempDir(), "absent.yaml")})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
