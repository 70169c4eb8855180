package research

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	appctx "github.com/quartoworks/shelfmark/cmd/shelfmark/context"
	"github.com/quartoworks/shelfmark/internal/deepresearch"
)

func findSubcommand(t *testing.T, parent *cobra.Command, name string) *cobra.Command {
	t.Helper()
	for _, sub := range parent.Commands() {
		if sub.Name() == name {
			return sub
		}
	}
	t.Fatalf("subcommand %q not found under %q", name, parent.Name())
	return nil
}

func TestNewCommand(t *testing.T) {
	cmd := NewCommand(&appctx.MockContext{})

	if cmd.Name() != "research" {
		t.Errorf("Name() = %q, want research", cmd.Name())
	}
	if cmd.GroupID != "management" {
		t.Errorf("GroupID = %q, want management", cmd.GroupID)
	}

	for _, name := range []string{"report", "resume", "status", "followup", "purge"} {
		findSubcommand(t, cmd, name)
	}
}

func TestReportFlagDefaults(t *testing.T) {
	mock := &appctx.MockContext{
		CollectionFunc: func() string { return "Q3JK9F2P" },
		DelayFunc:      func() time.Duration { return 3 * time.Second },
	}
	report := findSubcommand(t, NewCommand(mock), "report")

	collection := report.Flags().Lookup("collection")
	if collection == nil || collection.DefValue != "Q3JK9F2P" {
		t.Errorf("collection flag default = %v, want Q3JK9F2P", collection)
	}
	delay := report.Flags().Lookup("delay")
	if delay == nil || delay.DefValue != "3s" {
		t.Errorf("delay flag default = %v, want 3s", delay)
	}
	if report.Flags().Lookup("preflight") == nil {
		t.Error("preflight flag not registered")
	}
}

func TestStatusPropagatesServiceError(t *testing.T) {
	wantErr := errors.New("state file unreadable")
	mock := &appctx.MockContext{
		ResearchFunc: func() (*deepresearch.Service, error) { return nil, wantErr },
	}

	cmd := NewCommand(mock)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})

	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Execute() = %v, want the service error", err)
	}
}

func TestStatusEmptyState(t *testing.T) {
	state, err := deepresearch.LoadState(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("LoadState() failed: %v", err)
	}
	mock := &appctx.MockContext{
		ResearchFunc: func() (*deepresearch.Service, error) {
			return deepresearch.NewService(nil, nil, state), nil
		},
	}

	cmd := NewCommand(mock)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !strings.Contains(out.String(), "No research jobs recorded.") {
		t.Errorf("output = %q, want the empty-state message", out.String())
	}
}

func TestFollowUpRequiresKeyAndQuestion(t *testing.T) {
	cmd := NewCommand(&appctx.MockContext{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"followup", "El reino_Emmanuel Carrère"})

	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("Execute() succeeded without a question argument")
	}
}

func TestResumeRejectsExtraArgs(t *testing.T) {
	cmd := NewCommand(&appctx.MockContext{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"resume", "one", "two"})

	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("Execute() accepted more than one key argument")
	}
}
