// Package appinfo describes the running binary for startup logs
package appinfo

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"
)

// Info identifies a build
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Revision    string `json:"revision,omitempty"`
	Environment string `json:"environment"`
	GoVersion   string `json:"go_version"`
}

// Read collects build and environment information for name
func Read(name string) Info {
	info := Info{
		Name:        name,
		Version:     "0.0.0-unknown",
		Environment: Environment(),
		GoVersion:   runtime.Version(),
	}

	build, ok := debug.ReadBuildInfo()
	if ok {
		if build.Main.Version != "" && build.Main.Version != "(devel)" {
			info.Version = build.Main.Version
		}
		for _, setting := range build.Settings {
			if setting.Key == "vcs.revision" {
				info.Revision = setting.Value
			}
		}
	}

	// APP_VERSION overrides build info
	if version := os.Getenv("APP_VERSION"); version != "" {
		info.Version = version
	}
	return info
}

// Environment returns the normalized GO_ENV, defaulting to development
func Environment() string {
	switch env := strings.ToLower(strings.TrimSpace(os.Getenv("GO_ENV"))); env {
	case "prod", "production":
		return "production"
	case "stage", "staging":
		return "staging"
	case "test", "testing":
		return "test"
	case "", "dev", "development":
		return "development"
	default:
		return env
	}
}
