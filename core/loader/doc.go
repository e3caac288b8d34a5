// Package loader registers HTTP features and mounts the enabled ones.
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// Disabled features are skipped with a log line. The first Load error stops LoadAll.
package loader
