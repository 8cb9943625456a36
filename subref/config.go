package subref

import "strings"

// Config holds configuration for the Engine.
type Config struct {
	// SoftDeleteField is the document field holding the soft-delete flag.
	// Default: "deleted"
	SoftDeleteField string

	// CascadeLimit caps the number of concurrent per-document operations
	// within one cascade fan-out or deferred batch.
	// Default: 8
	// Max: 256
	CascadeLimit int

	// CollectionNamer maps a model name to its collection name.
	// Default: lowercase plus "s" ("Person" -> "persons").
	CollectionNamer func(model string) string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		SoftDeleteField: "deleted",
		CascadeLimit:    8,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.SoftDeleteField == "" {
		c.SoftDeleteField = "deleted"
	}
	if c.CascadeLimit < 1 {
		c.CascadeLimit = 8
	}
	if c.CascadeLimit > 256 {
		c.CascadeLimit = 256
	}
	if c.CollectionNamer == nil {
		c.CollectionNamer = func(model string) string {
			return strings.ToLower(model) + "s"
		}
	}
}
