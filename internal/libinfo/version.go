/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo resolves the version of wireserver from the build info of the running binary.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ModulePath is the path of the wireserver module.
const ModulePath = "github.com/acronis/go-wireserver"

// PrometheusVersionLabel is the label holding the version in the build info metric.
const PrometheusVersionLabel = "version"

const unknownVersion = "v0.0.0"

var version string
var versionOnce sync.Once

// GetVersion returns the module version the binary was built from, "v0.0.0" when it cannot be resolved.
func GetVersion() string {
	versionOnce.Do(initVersion)
	return version
}

func initVersion() {
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		version = extractVersion(buildInfo, ModulePath)
	}
	if version == "" {
		version = unknownVersion
	}
}

// extractVersion looks the module up as the main module first and then among the dependencies.
// The module name may carry a major version suffix ("moduleName/vX").
// Development builds of the main module report "(devel)" which is treated as unknown.
func extractVersion(buildInfo *debug.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re, err := regexp.Compile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if err != nil {
		return "" // should never happen
	}
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

// NewBuildInfoGauge returns a gauge always set to 1 and labeled with the version.
func NewBuildInfoGauge(namespace, version string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Version of the running wireserver binary.",
		ConstLabels: prometheus.Labels{PrometheusVersionLabel: version},
	})
	g.Set(1)
	return g
}
