// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package version houses the version information of psbtanalyze.
package version

import (
	"fmt"
	"strings"
)

// semanticAlphabet defines the allowed characters for the pre-release and
// build metadata portions of a semantic version string.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-"

// These constants define the application version and follow the semantic
// versioning 2.0.0 spec (http://semver.org/).
const (
	Major uint = 0
	Minor uint = 1
	Patch uint = 0
)

var (
	// PreRelease is defined as a variable so it can be overridden during the
	// build process with:
	// '-ldflags "-X github.com/btcsuite/btcd/psbtanalyze/internal/version.PreRelease=foo"'
	// if needed.  Characters outside semanticAlphabet are dropped.
	PreRelease = "beta"

	// BuildMetadata is defined as a variable so it can be overridden during
	// the build process in the same way as PreRelease.
	BuildMetadata = ""
)

// String returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (http://semver.org/).
func String() string {
	version := fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

	if preRelease := normalize(PreRelease, false); preRelease != "" {
		version = fmt.Sprintf("%s-%s", version, preRelease)
	}
	if build := normalize(BuildMetadata, true); build != "" {
		version = fmt.Sprintf("%s+%s", version, build)
	}

	return version
}

// normalize returns str stripped of all characters which are not valid in a
// semantic version identifier.  Dots separating identifiers are kept when
// allowDots is set.
func normalize(str string, allowDots bool) string {
	var result strings.Builder
	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) ||
			(allowDots && r == '.') {

			result.WriteRune(r)
		}
	}
	return result.String()
}
