package artifacts

import (
	"fmt"
	"strings"
)

// Kind distinguishes intermediate artifacts from final results.
type Kind string

const (
	KindRaw             Kind = "raw"
	KindTransformed     Kind = "transformed"
	KindAnalysisResults Kind = "analysis_results"
)

// kinds is ordered so that no entry is a prefix of a later one.
var kinds = []Kind{KindAnalysisResults, KindTransformed, KindRaw}

const extension = ".json"

// Name builds "<kind>_<source>_<runID>.json".
func Name(kind Kind, source, runID string) string {
	return fmt.Sprintf("%s_%s_%s%s", kind, source, runID, extension)
}

// ParseName splits an artifact name produced by Name.
func ParseName(name string) (kind Kind, source, runID string, err error) {
	base, ok := strings.CutSuffix(name, extension)
	if !ok {
		return "", "", "", fmt.Errorf("artifact name %q: missing %s extension", name, extension)
	}
	for _, k := range kinds {
		rest, ok := strings.CutPrefix(base, string(k)+"_")
		if !ok {
			continue
		}
		source, runID, ok = strings.Cut(rest, "_")
		if !ok || source == "" || runID == "" {
			return "", "", "", fmt.Errorf("artifact name %q: want <kind>_<source>_<run id>%s", name, extension)
		}
		return k, source, runID, nil
	}
	return "", "", "", fmt.Errorf("artifact name %q: unknown kind", name)
}
