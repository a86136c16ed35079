package config

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"Level"`      // debug, info, warn, error
	JSONFormat bool            `yaml:"JSONFormat"` // json lines instead of console text
	DebugMode  bool            `yaml:"DebugMode"`  // Master toggle - false = no logging
	Categories map[string]bool `yaml:"Categories"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug mode is off.
// Returns true if debug mode is on and the category is enabled (or not specified).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}
