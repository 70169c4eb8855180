package errors_test

import (
	"fmt"

	"github.com/quartoworks/shelfmark/pkg/errors"
)

// Example demonstrates basic error creation and checking.
func Example() {
	// Create a not found error
	err := &errors.NotFoundError{
		Resource: "item",
		ID:       "QX7K2PWT",
	}

	// Check error type
	if errors.IsNotFound(err) {
		fmt.Println("Resource not found")
	}

	// Output: Resource not found
}

// Example_aPIError demonstrates API error handling.
func Example_aPIError() {
	// Simulate an API error
	err := &errors.APIError{
		Service:    "zotero",
		Endpoint:   "https://api.zotero.org/users/12345/items",
		StatusCode: 429,
		Message:    "Rate limit exceeded",
	}

	// Check and handle specific error types
	switch err.StatusCode {
	case 429:
		fmt.Println("Rate limited - retry later")
	case 401:
		fmt.Println("Authentication failed")
	case 500:
		fmt.Println("Server error")
	}

	// Output: Rate limited - retry later
}

// Example_ambiguousMatchError shows the unique-match guard on title lookups.
func Example_ambiguousMatchError() {
	err := errors.NewAmbiguousMatchError("Collected Poems", "", []string{"AAAA1111", "BBBB2222"})

	if errors.IsAmbiguous(err) {
		fmt.Println("Skipping: more than one item matched")
	}

	// Output: Skipping: more than one item matched
}

// Example_enrichError demonstrates per-item pipeline error reporting.
func Example_enrichError() {
	err := errors.NewEnrichError("covers", "QX7K2PWT", "Dune", errors.New("no usable image found"))

	fmt.Println(err)

	// Output: covers failed for item QX7K2PWT ("Dune"): no usable image found
}
