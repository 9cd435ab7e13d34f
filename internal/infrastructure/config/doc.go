// Package config handles loading and validating Lumina Core configuration.
//
// Configuration comes from a YAML file with environment variable
// overrides (LUMINA_SECTION_KEY). Validation runs once at load; a
// malformed configuration is a fatal startup error.
//
// Sensitive values (broker passwords, InfluxDB tokens, SMTP passwords)
// should be supplied via environment variables rather than the file,
// and the file itself should carry restricted permissions (0600).
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Site.Name)
package config
