package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appctx "github.com/quartoworks/shelfmark/cmd/shelfmark/context"
	"github.com/quartoworks/shelfmark/internal/gemini"
	"github.com/quartoworks/shelfmark/pkg/zotero"
)

func TestNewCommand(t *testing.T) {
	cmd := NewCommand(&appctx.MockContext{})

	if cmd.Name() != "doctor" {
		t.Errorf("Name() = %q, want doctor", cmd.Name())
	}
	if cmd.GroupID != "management" {
		t.Errorf("GroupID = %q, want management", cmd.GroupID)
	}
}

func TestCheckZoteroMissingCredentials(t *testing.T) {
	mock := &appctx.MockContext{
		ZoteroFunc: func() (*zotero.Client, error) {
			return nil, errors.New("ZOTERO_API_KEY is not set")
		},
	}

	c := checkZotero(context.Background(), mock)
	if c.Status != statusFailed {
		t.Errorf("Status = %q, want failed", c.Status)
	}
	if !strings.Contains(c.Detail, "ZOTERO_API_KEY") {
		t.Errorf("Detail = %q, want the env var named", c.Detail)
	}
}

func TestCheckGeminiMissingKeyWarns(t *testing.T) {
	mock := &appctx.MockContext{
		GeminiFunc: func(context.Context) (*gemini.Client, error) {
			return nil, errors.New("GEMINI_API_KEY is not set")
		},
	}

	c := checkGemini(context.Background(), mock)
	if c.Status != statusWarn {
		t.Errorf("Status = %q, want warn (gemini is optional)", c.Status)
	}
	if !strings.Contains(c.Detail, "GEMINI_API_KEY") {
		t.Errorf("Detail = %q, want the env var named", c.Detail)
	}
}

func TestCheckStateMissingFileIsOK(t *testing.T) {
	mock := &appctx.MockContext{
		StatePathFunc: func() string {
			return filepath.Join(t.TempDir(), "research_state.json")
		},
	}

	c := checkState(mock)
	if c.Status != statusOK {
		t.Errorf("Status = %q, want ok for a missing state file", c.Status)
	}
	if !strings.Contains(c.Detail, "0 recorded jobs") {
		t.Errorf("Detail = %q, want an empty job count", c.Detail)
	}
}

func TestCheckStateCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "research_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	mock := &appctx.MockContext{
		StatePathFunc: func() string { return path },
	}

	c := checkState(mock)
	if c.Status != statusFailed {
		t.Errorf("Status = %q, want failed for a corrupt state file", c.Status)
	}
}
