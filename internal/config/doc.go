// Package config loads, normalizes, and validates vellum's TOML
// configuration.
//
// Load resolves the config path (explicit flag, ~/.config/vellum, or a
// project-local vellum.toml), decodes over repository defaults, expands ~
// in every path field, and validates the result. Derived paths for the
// manifest, catalog, and illustration directory hang off Config so callers
// never assemble workspace paths by hand.
package config
