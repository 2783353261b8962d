/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package version resolves the version of the ProofLens module from the build info.
package version

import (
	"debug/buildinfo"
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const productName = "ProofLens"

const moduleName = "github.com/acronis/go-prooflens"

// PrometheusVersionLabel is the name of the const label with the service version.
const PrometheusVersionLabel = "prooflens_version"

// AddPrometheusVersionLabel returns a copy of labels with the service version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = Get()
	return labelsCopy
}

// UserAgent returns the value of the User-Agent header for outgoing requests ("ProofLens/v1.2.3").
func UserAgent() string {
	return productName + "/" + Get()
}

var version string
var versionOnce sync.Once

// Get returns the module version or "v0.0.0" when the binary is built without module information.
func Get() string {
	versionOnce.Do(func() {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			version = extractVersion(buildInfo, moduleName)
		}
		if version == "" {
			version = "v0.0.0"
		}
	})
	return version
}

// extractVersion looks for the module in the main module first and then in the dependencies.
// Major version suffixes ("/v2") are accepted.
func extractVersion(buildInfo *buildinfo.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
