package output

import "os"

// Write renders data to stdout in the requested format. Batch commands
// use it for their closing counter summary, list commands for rows.
func Write(format Format, data any) error {
	return NewFormatter(format).Format(os.Stdout, data)
}
