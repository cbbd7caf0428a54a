package appinfo

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvironment(t *testing.T) {
	cases := map[string]string{
		"":            "development",
		"dev":         "development",
		"PROD":        "production",
		" staging ":   "staging",
		"testing":     "test",
		"integration": "integration",
	}
	for in, want := range cases {
		t.Setenv("GO_ENV", in)
		assert.Equal(t, want, Environment(), "GO_ENV=%q", in)
	}
}

func TestReadPrefersAppVersion(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("APP_VERSION", "1.4.2")

	info := Read("moodsync")
	assert.Equal(t, "moodsync", info.Name)
	assert.Equal(t, "1.4.2", info.Version)
	assert.Equal(t, "production", info.Environment)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
