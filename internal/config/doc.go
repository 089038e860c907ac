// Package config provides loading and environment overlay for remq server
// and client configuration. It exposes a Default() baseline that file values
// (JSON or YAML) and REMQ_* variables override.
//
// Example:
//
//	cfg, err := config.Load("/etc/remq.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Config: cfg})
//	defer rt.Close()
package config
