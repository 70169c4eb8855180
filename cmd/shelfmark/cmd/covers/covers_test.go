package covers

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"

	appctx "github.com/quartoworks/shelfmark/cmd/shelfmark/context"
	"github.com/quartoworks/shelfmark/internal/covers"
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

	if cmd.Name() != "covers" {
		t.Errorf("Name() = %q, want covers", cmd.Name())
	}
	if cmd.GroupID != "core" {
		t.Errorf("GroupID = %q, want core", cmd.GroupID)
	}

	for _, name := range []string{"fetch", "embed", "purge"} {
		findSubcommand(t, cmd, name)
	}
}

func TestFetchFlagDefaults(t *testing.T) {
	mock := &appctx.MockContext{
		CollectionFunc: func() string { return "Q3JK9F2P" },
		DelayFunc:      func() time.Duration { return time.Second },
	}
	fetch := findSubcommand(t, NewCommand(mock), "fetch")

	collection := fetch.Flags().Lookup("collection")
	if collection == nil || collection.DefValue != "Q3JK9F2P" {
		t.Errorf("collection flag default = %v, want Q3JK9F2P", collection)
	}
	delay := fetch.Flags().Lookup("delay")
	if delay == nil || delay.DefValue != "1s" {
		t.Errorf("delay flag default = %v, want 1s", delay)
	}

	// The cover pipeline always targets books.
	if fetch.Flags().Lookup("item-type") != nil {
		t.Error("fetch should not expose an item-type flag")
	}
}

func TestFetchPropagatesServiceError(t *testing.T) {
	wantErr := errors.New("credentials missing")
	mock := &appctx.MockContext{
		CoversFunc: func() (*covers.Service, error) { return nil, wantErr },
	}

	cmd := NewCommand(mock)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"fetch"})

	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Execute() = %v, want the service error", err)
	}
}

func TestEmbedAndPurgePropagateServiceError(t *testing.T) {
	wantErr := errors.New("credentials missing")
	mock := &appctx.MockContext{
		CoversFunc: func() (*covers.Service, error) { return nil, wantErr },
	}

	for _, sub := range []string{"embed", "purge"} {
		cmd := NewCommand(mock)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{sub})

		if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, wantErr) {
			t.Errorf("Execute(%s) = %v, want the service error", sub, err)
		}
	}
}
