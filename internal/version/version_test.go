package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatBuildTime(t *testing.T) {
	orig := BuildTime
	defer func() { BuildTime = orig }()

	BuildTime = "unknown"
	assert.Equal(t, "unknown", formatBuildTime())

	BuildTime = "2024-03-05T06:07:08Z"
	assert.Equal(t, "Tue Mar 5 06:07:08 2024", formatBuildTime())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", formatBuildTime())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
