package gemini

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

func TestModelID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"models/gemini-2.0-flash", "gemini-2.0-flash"},
		{"projects/p/locations/l/models/custom", "custom"},
		{"gemini-2.0-flash-lite", "gemini-2.0-flash-lite"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ModelID(tt.name); got != tt.want {
			t.Errorf("ModelID(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), "")
	if err == nil {
		t.Fatal("expected error for empty key")
	}
	if !stderrors.Is(err, errors.ErrAPIKeyRequired) {
		t.Errorf("error = %v, want ErrAPIKeyRequired", err)
	}
}
