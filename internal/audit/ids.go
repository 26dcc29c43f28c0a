package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/patchcore/scanengine/internal/canon"
	"github.com/patchcore/scanengine/pkg/models"
)

// DeriveSceneID computes sceneId = SHA-256(sorted(inputPaths) joined by
// '\n'). contentHash and byteSize never participate; path order is
// normalized by the sort so caller-supplied ordering cannot change the
// result.
func DeriveSceneID(inputs []models.TraceInput) string {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.Path
	}
	sort.Strings(paths)
	sum := sha256.Sum256([]byte(strings.Join(paths, "\n")))
	return hex.EncodeToString(sum[:])
}

// DeriveTraceID computes traceId = SHA-256(policyHash | pipelineVersion |
// canonicalJSON(sorted paramsSummary) | canonicalJSON(inputs sorted by
// (path, contentHash))). Any change to the canonical-sorted bytes of any
// component changes the id.
func DeriveTraceID(policyHash, pipelineVersion string, paramsSummary map[string]string, inputs []models.TraceInput) (string, error) {
	paramsJSON, err := canon.CanonicalJSON(paramsSummary)
	if err != nil {
		return "", err
	}

	sorted := make([]models.TraceInput, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].ContentHash < sorted[j].ContentHash
	})

	inputValues := make([]canon.JSONValue, len(sorted))
	for i, in := range sorted {
		inputValues[i] = map[string]canon.JSONValue{
			"path":        in.Path,
			"contentHash": in.ContentHash,
		}
	}
	inputsJSON, err := canon.CanonicalJSON(inputValues)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(policyHash)
	b.WriteByte('|')
	b.WriteString(pipelineVersion)
	b.WriteByte('|')
	b.Write(paramsJSON)
	b.WriteByte('|')
	b.Write(inputsJSON)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}
