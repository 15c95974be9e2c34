package vectorstore

import (
	"strings"
	"testing"
)

func TestBuildDocumentFilter(t *testing.T) {
	got := buildDocumentFilter("springfield_2024")
	want := `document_id == "springfield_2024" or city_name == "springfield_2024"`
	if got != want {
		t.Errorf("buildDocumentFilter() = %q, want %q", got, want)
	}
}

func TestBuildDocumentFilterEscapesQuotes(t *testing.T) {
	got := buildDocumentFilter(`doc"with"quotes`)
	if !strings.Contains(got, `doc\"with\"quotes`) {
		t.Errorf("quotes in the id are not escaped: %q", got)
	}
	if strings.Contains(got, `== "doc"`) {
		t.Errorf("filter value is terminated early by an embedded quote: %q", got)
	}
}

func TestBuildDocumentFilterEscapesBackslashes(t *testing.T) {
	got := buildDocumentFilter(`doc\id`)
	if !strings.Contains(got, `doc\\id`) {
		t.Errorf("backslashes in the id are not escaped: %q", got)
	}
}
