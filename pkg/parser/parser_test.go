package parser_test

import (
	"testing"

	"github.com/plugincraft/forge/pkg/parser"
)

func TestParse_CleanJSON(t *testing.T) {
	raw := `{"createdFiles":[{"path":"Main.java","content":"package x;"}],"modifiedFiles":[],"deletedFiles":[]}`

	result := parser.Parse(raw, "MyPlugin")

	if result.Strategy != "aggressive_cleanup" {
		t.Fatalf("expected aggressive_cleanup strategy, got %q", result.Strategy)
	}
	if len(result.CreatedFiles) != 1 || result.CreatedFiles[0].Path != "Main.java" {
		t.Fatalf("unexpected created files: %+v", result.CreatedFiles)
	}
	if result.Synthesized {
		t.Fatalf("expected Synthesized=false")
	}
}

func TestParse_FencedJSON(t *testing.T) {
	raw := "Here is the plugin:\n```json\n{\"createdFiles\":[{\"path\":\"A.java\",\"content\":\"x\"}]}\n```\nLet me know if you need changes."

	result := parser.Parse(raw, "MyPlugin")

	if len(result.CreatedFiles) != 1 {
		t.Fatalf("expected 1 created file, got %d", len(result.CreatedFiles))
	}
}

func TestParse_BraceBalancedWithNoise(t *testing.T) {
	raw := `some preamble { not json } and then the real payload:
	{"createdFiles": [{"path": "B.java", "content": "package y; // contains a { brace }"}], "modifiedFiles": []}
	trailing commentary`

	result := parser.Parse(raw, "MyPlugin")

	if result.Strategy != "brace_balanced" && result.Strategy != "aggressive_cleanup" {
		t.Fatalf("expected brace_balanced (or cleanup) strategy, got %q", result.Strategy)
	}
	if len(result.CreatedFiles) != 1 || result.CreatedFiles[0].Path != "B.java" {
		t.Fatalf("unexpected created files: %+v", result.CreatedFiles)
	}
}

func TestParse_RegexArrayExtraction(t *testing.T) {
	raw := `The model produced malformed wrapping but valid arrays:
	"createdFiles": [{"path": "C.java", "content": "package z;"}],
	"modifiedFiles": [{"path": "D.java", "content": "package z;"}],
	(rest of the response is prose, not valid JSON { { {)`

	result := parser.Parse(raw, "MyPlugin")

	if result.Strategy != "regex_arrays" {
		t.Fatalf("expected regex_arrays strategy, got %q", result.Strategy)
	}
	if len(result.CreatedFiles) != 1 || len(result.ModifiedFiles) != 1 {
		t.Fatalf("unexpected extraction: %+v", result)
	}
}

func TestParse_ConservativeRepairTrailingCommaAndBareKeys(t *testing.T) {
	raw := `{createdFiles: [{path: "E.java", content: "package w;",},],}`

	result := parser.Parse(raw, "MyPlugin")

	if result.Strategy != "conservative_repair" {
		t.Fatalf("expected conservative_repair strategy, got %q", result.Strategy)
	}
	if len(result.CreatedFiles) != 1 || result.CreatedFiles[0].Path != "E.java" {
		t.Fatalf("unexpected created files: %+v", result.CreatedFiles)
	}
}

func TestParse_TotalFailureSynthesizesMinimalPlugin(t *testing.T) {
	raw := "I'm sorry, I cannot help with that request."

	result := parser.Parse(raw, "Cool Plugin")

	if !result.Synthesized {
		t.Fatalf("expected Synthesized=true")
	}
	if len(result.CreatedFiles) != 3 {
		t.Fatalf("expected a main class + descriptor + config, got %d files", len(result.CreatedFiles))
	}
}

func TestSynthesizeMinimalPlugin_SanitizesName(t *testing.T) {
	result := parser.SynthesizeMinimalPlugin("my cool plugin!!")

	found := false
	for _, f := range result.CreatedFiles {
		if f.Path == "src/main/java/com/forge/mycoolplugin/MyCoolPlugin.java" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a sanitized MyCoolPlugin.java, got %+v", result.CreatedFiles)
	}
}

func TestSynthesizeMinimalPlugin_EmptyNameFallsBack(t *testing.T) {
	result := parser.SynthesizeMinimalPlugin("")

	found := false
	for _, f := range result.CreatedFiles {
		if f.Path == "src/main/resources/plugin.yml" && len(f.Content) > 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a non-empty plugin.yml, got %+v", result.CreatedFiles)
	}
}
