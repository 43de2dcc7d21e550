package internal

import "fmt"

var (
	commitVersion string = "v0.1"    // Should be updated during build
	commitDate    string = "0000000" // Should be updated during build
)

// GetVersion - get version and also commitHash and commitDate if inserted via Makefile
func GetVersion() string {
	return fmt.Sprintf("%s, date: %s", commitVersion, commitDate)
}
