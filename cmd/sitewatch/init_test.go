package main

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sitewatch-dev/sitewatch/internal/config"
	"github.com/sitewatch-dev/sitewatch/internal/errors"
)

func TestRunInit_RefusesExistingProject(t *testing.T) {
	name := filepath.Join(t.TempDir(), "demo")
	if err := os.MkdirAll(name, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(name, config.ConfigFileName)
	if err := os.WriteFile(path, []byte(`{"name": "demo"}`), 0644); err != nil {
		t.Fatal(err)
	}

	err := runInit(name, "minimal", "")
	if err == nil {
		t.Fatal("expected error for a directory that already holds a project")
	}
	var serr *errors.Error
	if !stderrors.As(err, &serr) || serr.Category != errors.CategoryCLI {
		t.Errorf("want a CLI-category error, got %v", err)
	}
}
