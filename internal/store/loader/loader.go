// Package loader registers store drivers via blank imports.
// Import this package to ensure the default store drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/Saivel1/panelsync/internal/store/loader"
package loader

import (
	// Register the sqlite store driver
	_ "github.com/Saivel1/panelsync/internal/store/sqlite"
)
