package errors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/quartoworks/shelfmark/pkg/errors"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "item",
			ID:       "ABCD2345",
		}
		assert.Equal(t, "item with ID ABCD2345 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("collection", "Reading List")
		assert.Equal(t, "collection with ID Reading List not found", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("note", "X")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestAmbiguousMatchError(t *testing.T) {
	t.Run("title and author", func(t *testing.T) {
		err := pkgerrors.NewAmbiguousMatchError("Pedro Páramo", "Juan Rulfo", []string{"AAAA1111", "BBBB2222"})
		assert.Contains(t, err.Error(), "Pedro Páramo / Juan Rulfo")
		assert.Contains(t, err.Error(), "2 candidates")
		assert.Contains(t, err.Error(), "AAAA1111, BBBB2222")
		assert.True(t, errors.Is(err, pkgerrors.ErrAmbiguous))
		assert.True(t, pkgerrors.IsAmbiguous(err))
	})

	t.Run("title only", func(t *testing.T) {
		err := pkgerrors.NewAmbiguousMatchError("Hamlet", "", []string{"A", "B", "C"})
		assert.Contains(t, err.Error(), `"Hamlet"`)
		assert.Contains(t, err.Error(), "3 candidates")
	})

	t.Run("not confused with not found", func(t *testing.T) {
		err := pkgerrors.NewAmbiguousMatchError("Hamlet", "", []string{"A", "B"})
		assert.False(t, pkgerrors.IsNotFound(err))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "api_key",
			Message: "cannot be empty",
		}
		assert.Equal(t, "validation failed for field api_key: cannot be empty", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Message: "invalid configuration",
		}
		assert.Equal(t, "validation failed: invalid configuration", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})
}

func TestAPIError(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := &pkgerrors.APIError{
			Service:    "zotero",
			StatusCode: 403,
			Message:    "invalid key",
			Endpoint:   "https://api.zotero.org/users/1/items",
		}
		assert.Contains(t, err.Error(), "zotero")
		assert.Contains(t, err.Error(), "403")
		assert.Contains(t, err.Error(), "invalid key")
	})

	t.Run("rate limit maps to sentinel", func(t *testing.T) {
		err := pkgerrors.NewAPIError("ollama", 429, "too many requests")
		assert.True(t, errors.Is(err, pkgerrors.ErrRateLimited))
		assert.True(t, pkgerrors.IsRateLimited(err))
	})

	t.Run("version conflict maps to sentinel", func(t *testing.T) {
		err := pkgerrors.NewAPIError("zotero", 412, "precondition failed")
		assert.True(t, errors.Is(err, pkgerrors.ErrVersionConflict))
		assert.True(t, pkgerrors.IsVersionConflict(err))
	})

	t.Run("not found maps to sentinel", func(t *testing.T) {
		err := pkgerrors.NewAPIError("zotero", 404, "no such item")
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("server error maps to unavailable", func(t *testing.T) {
		err := pkgerrors.NewAPIError("gemini", 503, "overloaded")
		assert.True(t, pkgerrors.IsServiceUnavailable(err))
	})

	t.Run("with wrapped error", func(t *testing.T) {
		baseErr := errors.New("connection timeout")
		err := &pkgerrors.APIError{
			Service: "duckduckgo",
			Message: "request failed",
			Err:     baseErr,
		}
		assert.Equal(t, baseErr, err.Unwrap())
	})
}

func TestEnrichError(t *testing.T) {
	t.Run("with title", func(t *testing.T) {
		base := errors.New("no cover found")
		err := pkgerrors.NewEnrichError("covers", "KEY12345", "The Obscene Bird of Night", base)
		assert.Contains(t, err.Error(), "covers failed for item KEY12345")
		assert.Contains(t, err.Error(), "The Obscene Bird of Night")
		assert.Equal(t, base, err.Unwrap())
	})

	t.Run("without title", func(t *testing.T) {
		err := pkgerrors.NewEnrichError("tags", "KEY12345", "", errors.New("bad model output"))
		assert.Contains(t, err.Error(), "tags failed for item KEY12345")
		assert.NotContains(t, err.Error(), `""`)
	})

	t.Run("wrap helper returns nil on nil", func(t *testing.T) {
		require.NoError(t, pkgerrors.WrapEnrich("dates", "K", "T", nil))
	})

	t.Run("preserves sentinel through unwrap", func(t *testing.T) {
		inner := pkgerrors.NewAPIError("ollama", 429, "busy")
		err := pkgerrors.WrapEnrich("abstracts", "K", "T", inner)
		assert.True(t, pkgerrors.IsRateLimited(err))
	})
}

func TestStreamError(t *testing.T) {
	base := errors.New("connection reset")
	err := pkgerrors.NewStreamError("gemini", "int_abc123", "evt_42", 5, base)
	assert.Contains(t, err.Error(), "gemini")
	assert.Contains(t, err.Error(), "5 attempts")
	assert.Contains(t, err.Error(), "int_abc123")
	assert.Contains(t, err.Error(), "evt_42")
	assert.Equal(t, base, err.Unwrap())
}

func TestAuthenticationError(t *testing.T) {
	err := pkgerrors.NewAuthenticationError("zotero", "api_key", "key rejected", nil)
	assert.Contains(t, err.Error(), "zotero")
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, pkgerrors.IsAPIKeyError(err))
}

func TestWrapHelpers(t *testing.T) {
	t.Run("nil in, nil out", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapIO("read", "/tmp/x", nil))
		assert.NoError(t, pkgerrors.WrapParse("json", "", nil))
		assert.NoError(t, pkgerrors.WrapAPI("zotero", 0, nil))
		assert.NoError(t, pkgerrors.WrapResource("update", "item", "K", nil))
		assert.NoError(t, pkgerrors.WrapValidation("field", nil))
	})

	t.Run("io wrap", func(t *testing.T) {
		err := pkgerrors.WrapIO("write", "research_state.json", errors.New("disk full"))
		var ioErr *pkgerrors.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Equal(t, "write", ioErr.Operation)
		assert.Equal(t, "research_state.json", ioErr.Path)
	})

	t.Run("parse wrap", func(t *testing.T) {
		err := pkgerrors.WrapParse("json", "response", errors.New("unexpected token"))
		var parseErr *pkgerrors.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "json", parseErr.Format)
	})

	t.Run("resource wrap", func(t *testing.T) {
		err := pkgerrors.WrapResource("create", "note", "PARENT01", errors.New("boom"))
		assert.Contains(t, err.Error(), "failed to create note PARENT01")
	})
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("ollama generate", "180s", "model busy")
	assert.Contains(t, err.Error(), "ollama generate")
	assert.Contains(t, err.Error(), "180s")
	assert.True(t, pkgerrors.IsTimeout(err))
}
