package tls

import (
	"runtime"
	"strings"

	"golang.org/x/mod/semver"
)

// Version information for the threadlocal module.
const (
	// Version is the current version of the module.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info provides build information about the module.
type Info struct {
	// Version is the module version string.
	Version string

	// GoVersion is the Go runtime version in canonical semver form
	// ("v1.24.0"), or empty for development toolchains.
	GoVersion string

	// ThreadModel describes how threads are identified.
	ThreadModel string
}

// GetInfo returns information about the module.
//
// Example:
//
//	info := tls.GetInfo()
//	fmt.Printf("threadlocal %s (%s)\n", info.Version, info.ThreadModel)
func GetInfo() Info {
	return Info{
		Version:     Version,
		GoVersion:   goSemver(runtime.Version()),
		ThreadModel: "goroutine (implicit by goroutine ID, explicit by handle)",
	}
}

// goSemver converts a Go release name ("go1.24", "go1.24.3") to canonical
// semver. Anything else yields "".
func goSemver(v string) string {
	if !strings.HasPrefix(v, "go") {
		return ""
	}
	return semver.Canonical("v" + strings.TrimPrefix(v, "go"))
}

// Compatible reports whether code written against version v can use this
// module. Before v1 the minor version must match; from v1 on the major
// version must match. v may omit the leading "v".
func Compatible(v string) bool {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return false
	}

	cur := "v" + Version
	if semver.Major(cur) == "v0" {
		return semver.MajorMinor(v) == semver.MajorMinor(cur)
	}
	return semver.Major(v) == semver.Major(cur)
}
