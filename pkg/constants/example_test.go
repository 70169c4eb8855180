package constants_test

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/quartoworks/shelfmark/pkg/constants"
)

// Example demonstrates using constants for common operations
func Example() {
	// Create directory with standard permissions
	dir := filepath.Join(".", "data")
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		panic(err)
	}

	// Create file with standard permissions
	file := filepath.Join(dir, "research_state.json")
	data := []byte("{}")
	if err := os.WriteFile(file, data, constants.FilePermissions); err != nil {
		panic(err)
	}

	fmt.Printf("Created dir with %o permissions\n", constants.DirPermissions)
	fmt.Printf("Created file with %o permissions\n", constants.FilePermissions)
	// Output:
	// Created dir with 755 permissions
	// Created file with 644 permissions
}

// Example_timeouts demonstrates timeout constants
func Example_timeouts() {
	// API client with default timeout
	client := &http.Client{
		Timeout: constants.DefaultHTTPTimeout,
	}
	fmt.Printf("API timeout: %v\n", client.Timeout)

	// Image downloads get a shorter budget
	imageClient := &http.Client{
		Timeout: constants.ImageHTTPTimeout,
	}
	fmt.Printf("Image timeout: %v\n", imageClient.Timeout)

	// Local model generation is allowed to take longer
	fmt.Printf("Generation timeout: %v\n", constants.OllamaTimeout)

	// Output:
	// API timeout: 10s
	// Image timeout: 8s
	// Generation timeout: 1m0s
}

// Example_retrySteps demonstrates the fixed-step rate-limit backoff
func Example_retrySteps() {
	// After a 429 response the wait grows by a fixed step each attempt
	for attempt := 1; attempt <= constants.MaxRateLimitRetries; attempt++ {
		wait := constants.RateLimitRetryStep * time.Duration(attempt)
		fmt.Printf("Retry %d/%d after %v\n", attempt, constants.MaxRateLimitRetries, wait)
	}

	// Output:
	// Retry 1/3 after 10s
	// Retry 2/3 after 20s
	// Retry 3/3 after 30s
}

// Example_coverLadder shows the descending JPEG quality ladder used when
// compressing covers under the embed size ceiling
func Example_coverLadder() {
	var qualities []string
	for q := constants.CoverJPEGQuality; q >= constants.MinCoverJPEGQuality; q -= constants.CoverQualityStep {
		qualities = append(qualities, fmt.Sprintf("%d", q))
	}
	fmt.Printf("Qualities: %s\n", strings.Join(qualities, ", "))
	fmt.Printf("Size ceiling: %d base64 characters\n", constants.MaxCoverB64Size)

	// Output:
	// Qualities: 85, 75, 65, 55, 45, 35, 25
	// Size ceiling: 500000 base64 characters
}

// Example_tagPrefix demonstrates marking model-generated tags
func Example_tagPrefix() {
	generated := []string{"epistolary novel", "magical realism"}

	for _, tag := range generated {
		fmt.Println(constants.AITagPrefix + tag)
	}

	// Output:
	// [AI] epistolary novel
	// [AI] magical realism
}
