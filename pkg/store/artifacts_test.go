package store

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/policydelta/policydelta/pkg/node"
)

func TestGenerateFileName(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

	got := GenerateFileName("https://manager.example.com", "default", FunctionBaseline, ts, "json")
	want := "manager.example.com_default_20260828T103000Z_pre_update_baseline.json"
	if got != want {
		t.Errorf("GenerateFileName = %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, "_pre_update_baseline.json") {
		t.Error("Expected baseline suffix")
	}

	// Deterministic for the same tuple.
	if again := GenerateFileName("https://manager.example.com", "default", FunctionBaseline, ts, "json"); again != got {
		t.Error("Expected deterministic file names")
	}

	// Distinct functions never collide.
	delta := GenerateFileName("https://manager.example.com", "default", FunctionDelta, ts, "json")
	if delta == got {
		t.Error("Expected distinct names per function")
	}
}

func TestGenerateFileNameOmitsEmptyDomain(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)
	got := GenerateFileName("manager", "", FunctionDelta, ts, ".json")
	if got != "manager_20260828T103000Z_delta.json" {
		t.Errorf("Unexpected name %q", got)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}

	tree, err := node.Parse([]byte(`{
		"resource_type":"Infra","id":"infra",
		"children":[{"resource_type":"ChildDomain","Domain":{
			"resource_type":"Domain","id":"default",
			"children":[{"resource_type":"ChildGroup","Group":{"resource_type":"Group","id":"g1","expression":[{"member_type":"VirtualMachine"}]}}]
		}}]
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	path, err := s.SaveNode(tree, "baseline.json")
	if err != nil {
		t.Fatalf("SaveNode failed: %v", err)
	}

	loaded, err := s.LoadNode(path)
	if err != nil {
		t.Fatalf("LoadNode failed: %v", err)
	}
	if !loaded.Equal(tree) {
		t.Error("Expected loaded tree to equal saved tree")
	}
	// Nesting depth survives the round trip.
	group := loaded.Children()[0].Unwrap().Children()[0].Unwrap()
	if group.ID() != "g1" {
		t.Errorf("Expected nested group to survive, got %q", group.ID())
	}
}

func TestSaveReport(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}

	report := map[string]any{"summary": map[string]int{"matches": 3}}
	if _, err := s.SaveReport(report, "verification.json"); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
}

func TestLoadNodeMissingFile(t *testing.T) {
	s, err := NewArtifactStore(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewArtifactStore failed: %v", err)
	}
	if _, err := s.LoadNode(s.BaseDir() + "/missing.json"); err == nil {
		t.Error("Expected error for missing artifact")
	}
}
