// Package config defines configuration structures for the urlfetch CLI.
//
// Configuration can be provided via, in increasing precedence:
//   - YAML configuration file (default: $XDG_CONFIG_HOME/urlfetch/config.yaml)
//   - .env and .env.local files
//   - Environment variables (URLFETCH_ prefix)
//   - Command-line flags
//
// # Structure
//
//	type Config struct {
//	    URLs        []string
//	    Output      string
//	    OutputDir   string
//	    Method      string
//	    Headers     map[string]string
//	    Body        string
//	    Timeout     time.Duration
//	    ChunkSize   int64
//	    Progress    bool
//	    Bucket      string
//	    Prefix      string
//	    MetricsAddr string
//	    Verbose     bool
//	}
package config
