package audit

import (
	"testing"

	"github.com/patchcore/scanengine/pkg/models"
)

func TestDeriveSceneIDIgnoresOrderAndExtraFields(t *testing.T) {
	a := []models.TraceInput{
		{Path: "b.bin", ContentHash: "h1", ByteSize: 10},
		{Path: "a.bin", ContentHash: "h2", ByteSize: 20},
	}
	b := []models.TraceInput{
		{Path: "a.bin", ContentHash: "DIFFERENT", ByteSize: 999},
		{Path: "b.bin", ContentHash: "h1", ByteSize: 10},
	}
	if DeriveSceneID(a) != DeriveSceneID(b) {
		t.Fatalf("expected sceneId to ignore input order and contentHash/byteSize")
	}
}

func TestDeriveSceneIDChangesWithDifferentPaths(t *testing.T) {
	a := []models.TraceInput{{Path: "a.bin"}}
	b := []models.TraceInput{{Path: "c.bin"}}
	if DeriveSceneID(a) == DeriveSceneID(b) {
		t.Fatalf("expected different paths to produce different sceneId")
	}
}

func TestDeriveTraceIDDeterministic(t *testing.T) {
	inputs := []models.TraceInput{
		{Path: "a.bin", ContentHash: "h1"},
		{Path: "b.bin", ContentHash: "h2"},
	}
	params := map[string]string{"mode": "standard", "profile": "lab"}

	id1, err := DeriveTraceID(sampleHex, "v1.0.0", params, inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := DeriveTraceID(sampleHex, "v1.0.0", params, inputs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected deterministic traceId, got %q vs %q", id1, id2)
	}
	if len(id1) != 64 {
		t.Fatalf("traceId length = %d, want 64", len(id1))
	}
}

func TestDeriveTraceIDChangesWithParams(t *testing.T) {
	inputs := []models.TraceInput{{Path: "a.bin", ContentHash: "h1"}}
	id1, _ := DeriveTraceID(sampleHex, "v1.0.0", map[string]string{"mode": "standard"}, inputs)
	id2, _ := DeriveTraceID(sampleHex, "v1.0.0", map[string]string{"mode": "extreme"}, inputs)
	if id1 == id2 {
		t.Fatalf("expected different paramsSummary to produce different traceId")
	}
}

func TestDeriveTraceIDInsensitiveToInputOrder(t *testing.T) {
	a := []models.TraceInput{
		{Path: "a.bin", ContentHash: "h1"},
		{Path: "b.bin", ContentHash: "h2"},
	}
	b := []models.TraceInput{
		{Path: "b.bin", ContentHash: "h2"},
		{Path: "a.bin", ContentHash: "h1"},
	}
	params := map[string]string{"mode": "standard"}
	id1, _ := DeriveTraceID(sampleHex, "v1.0.0", params, a)
	id2, _ := DeriveTraceID(sampleHex, "v1.0.0", params, b)
	if id1 != id2 {
		t.Fatalf("expected traceId to be insensitive to caller-supplied input order")
	}
}
