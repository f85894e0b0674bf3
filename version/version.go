// Package version holds the release version of mwcd.
package version

import (
	"fmt"
	"regexp"
	"sync"
)

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0
)

// appBuild is set at link time with
// -ldflags "-X github.com/mwcnet/mwcd/version.appBuild=<build>".
// Values that aren't a semver build identifier are ignored.
var appBuild string

var buildRegexp = regexp.MustCompile(`^[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*$`)

var (
	versionOnce sync.Once
	version     string
)

// Version returns the version string, major.minor.patch followed by
// -build when a valid build identifier was linked in.
func Version() string {
	versionOnce.Do(func() {
		version = formatVersion(appBuild)
	})
	return version
}

func formatVersion(build string) string {
	base := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if !buildRegexp.MatchString(build) {
		return base
	}
	return base + "-" + build
}
