package manifest_test

import (
	"errors"
	"testing"

	"porter/internal/manifest"
	"porter/internal/records"
	"porter/internal/services"
)

func TestParseValidManifest(t *testing.T) {
	payload := []byte(`{
		"projectPath": "/content/acme/launch",
		"experience": "summer-launch",
		"items": [
			{"sourcePath": "/src/index.docx", "destinationPath": "/dst/index.docx"},
			{"sourcePath": "/src/logo.png", "destinationPath": "/dst/logo.png"}
		]
	}`)

	m, err := manifest.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.ProjectPath != "/content/acme/launch" {
		t.Fatalf("unexpected project path %q", m.ProjectPath)
	}
	if len(m.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(m.Items))
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := manifest.Parse([]byte(`{not json`))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateRequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"missing project path", `{"experience": "x", "items": [{"sourcePath": "/a", "destinationPath": "/b"}]}`},
		{"missing experience", `{"projectPath": "/p", "items": [{"sourcePath": "/a", "destinationPath": "/b"}]}`},
		{"empty items", `{"projectPath": "/p", "experience": "x", "items": []}`},
		{"item missing source", `{"projectPath": "/p", "experience": "x", "items": [{"destinationPath": "/b"}]}`},
		{"item missing destination", `{"projectPath": "/p", "experience": "x", "items": [{"sourcePath": "/a"}]}`},
		{"duplicate source", `{"projectPath": "/p", "experience": "x", "items": [{"sourcePath": "/a", "destinationPath": "/b"}, {"sourcePath": "/a", "destinationPath": "/c"}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manifest.Parse([]byte(tc.payload))
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNormalizeTrimsAndDropsBlankItems(t *testing.T) {
	m := manifest.Manifest{
		ProjectPath: "  /content/acme/launch  ",
		Experience:  " summer-launch ",
		Items: []records.WorkItem{
			{SourcePath: " /src/a.docx ", DestinationPath: " /dst/a.docx "},
			{SourcePath: "", DestinationPath: ""},
		},
	}
	m.Normalize()
	if m.ProjectPath != "/content/acme/launch" {
		t.Fatalf("project path not trimmed: %q", m.ProjectPath)
	}
	if len(m.Items) != 1 {
		t.Fatalf("blank item not dropped: %d items", len(m.Items))
	}
	if m.Items[0].SourcePath != "/src/a.docx" {
		t.Fatalf("item path not trimmed: %q", m.Items[0].SourcePath)
	}
}

func TestSplitByProcessingNeed(t *testing.T) {
	items := []records.WorkItem{
		{SourcePath: "/src/doc.docx", DestinationPath: "/dst/doc.docx"},
		{SourcePath: "/src/sheet.xlsx", DestinationPath: "/dst/sheet.xlsx"},
		{SourcePath: "/src/logo.png", DestinationPath: "/dst/logo.png"},
		{SourcePath: "/src/page.html", DestinationPath: "/dst/page.html", MDPath: "/src/page.md"},
	}

	processing, nonProcessing := manifest.Split(items)
	if len(processing) != 3 {
		t.Fatalf("expected 3 processing items, got %d", len(processing))
	}
	if len(nonProcessing) != 1 {
		t.Fatalf("expected 1 non-processing item, got %d", len(nonProcessing))
	}
	if nonProcessing[0].SourcePath != "/src/logo.png" {
		t.Fatalf("unexpected non-processing item %q", nonProcessing[0].SourcePath)
	}
}

func TestFragmentItemsTargetDestinationDir(t *testing.T) {
	item := records.WorkItem{
		SourcePath:      "/src/guide.docx",
		DestinationPath: "/dst/guides/guide.docx",
		Fragments:       []string{"/src/fragments/intro.docx", "/src/fragments/outro.docx"},
	}

	expanded := manifest.FragmentItems(item)
	if len(expanded) != 2 {
		t.Fatalf("expected 2 fragment items, got %d", len(expanded))
	}
	if expanded[0].DestinationPath != "/dst/guides/intro.docx" {
		t.Fatalf("unexpected fragment destination %q", expanded[0].DestinationPath)
	}
	if manifest.FragmentItems(records.WorkItem{SourcePath: "/src/a"}) != nil {
		t.Fatal("expected nil for item without fragments")
	}
}
