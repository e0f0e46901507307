package backend

import (
	"strings"
	"sync"

	"github.com/hashicorp/go-version"
	"github.com/shirou/gopsutil/v3/host"
)

var platformVersion = sync.OnceValue(func() string {
	_, _, v, err := host.PlatformInformation()
	if err != nil {
		return ""
	}
	return v
})

// osAtLeast compares the running OS release against min. The release is read
// once per process, so availability probes stay free of side effects.
func osAtLeast(min string) bool {
	return versionAtLeast(platformVersion(), min)
}

// versionAtLeast parses the leading dotted version out of a platform string
// such as "14.2.1" or "10.0.22631 Build 22631".
func versionAtLeast(current, min string) bool {
	fields := strings.Fields(current)
	if len(fields) == 0 {
		return false
	}
	have, err := version.NewVersion(fields[0])
	if err != nil {
		return false
	}
	want, err := version.NewVersion(min)
	if err != nil {
		return false
	}
	return have.GreaterThanOrEqual(want)
}
