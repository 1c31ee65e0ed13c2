// Package config provides loading and environment overlay for seglog
// configuration. It exposes a Default() baseline, JSON and YAML file loading,
// a SEGLOG_* environment overlay and validation.
//
// Example:
//
//	cfg, err := config.Load("/etc/seglog.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
package config
