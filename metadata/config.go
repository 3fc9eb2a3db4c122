package metadata

// Well-known WriteConfig keys
const (
	OptionContentType = "content_type" // string
	OptionVisibility  = "visibility"   // Visibility
)

// WriteConfig carries caller options for write, create, move and copy operations.
// The remote drive honours none of them; the bag is accepted so callers written
// against other backends keep working. The S3 backend reads the well-known keys.
type WriteConfig struct {
	options map[string]any
}

// NewWriteConfig copies opts into a new WriteConfig
func NewWriteConfig(opts map[string]any) WriteConfig {
	if len(opts) == 0 {
		return WriteConfig{}
	}
	copied := make(map[string]any, len(opts))
	for k, v := range opts {
		copied[k] = v
	}
	return WriteConfig{options: copied}
}

// Get returns the option stored under key, or fallback when unset
func (c WriteConfig) Get(key string, fallback any) any {
	if v, ok := c.options[key]; ok {
		return v
	}
	return fallback
}

// With returns a copy of the config with key set to value
func (c WriteConfig) With(key string, value any) WriteConfig {
	copied := make(map[string]any, len(c.options)+1)
	for k, v := range c.options {
		copied[k] = v
	}
	copied[key] = value
	return WriteConfig{options: copied}
}

// Len returns the number of options set
func (c WriteConfig) Len() int {
	return len(c.options)
}
