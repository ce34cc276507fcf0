// Package config defines runtime configuration for modelgate.
package config

// Config holds all settings passed in via CLI flags or environment variables.
type Config struct {
	// Host is the network interface to bind the HTTP server to.
	Host string

	// Port is the HTTP server port.
	Port int

	// LlamaServerPath is the path to the llama.cpp server executable spawned
	// for local inference (spec §4.1 "Spawn arguments").
	LlamaServerPath string

	// ExecVariant overrides the execution variant used to select spawn
	// arguments (spec §4.2 "variant" source). Empty means fall back to
	// settings.DefaultExecVariant's CPU-topology detection.
	ExecVariant string

	// SettingsFile is the path to a file describing setting-level spawn
	// arguments, execution variants, and local/remote aliases. This build
	// does not load it: when set, serve logs a warning and, as when it is
	// empty, boots with an empty catalogue and no setting args.
	SettingsFile string

	// CredentialsFile is the path to a file resolving remote-alias bearer
	// credentials by alias name. This build does not read it.
	CredentialsFile string

	// Debug enables debug-level structured logging.
	Debug bool
}
