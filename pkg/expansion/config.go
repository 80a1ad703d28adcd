package expansion

// Config holds the safety limits for the expansion engine and sandbox.
type Config struct {
	// MaxInvokeDepth bounds recursive template invocation through the
	// `invoke` function. Depth 1 is the reference's own script.
	MaxInvokeDepth int `json:"max_invoke_depth"`

	// MaxLoadDepth bounds recursive module loading through the `load`
	// function. File-system depth bounds it naturally, this is a hard stop.
	MaxLoadDepth int `json:"max_load_depth"`

	// MaxOutputBytes caps the rendered output of a single script invocation.
	// A script exceeding the cap fails and is rendered as an inline error
	// marker like any other runtime failure.
	MaxOutputBytes int `json:"max_output_bytes"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		MaxInvokeDepth: 16,
		MaxLoadDepth:   16,
		MaxOutputBytes: 1048576, // 1MB
	}
}
