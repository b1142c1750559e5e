package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSources(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, SourcesFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadResolvesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, `
pages:
  - name: runbook
    remoteId: "12345"
`)

	proj, err := Load(dir, DefaultSettings())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(proj.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(proj.Documents))
	}
	doc := proj.Documents[0]
	if doc.RemoteID != "12345" {
		t.Errorf("RemoteID = %q", doc.RemoteID)
	}
	if doc.LocalPath != "runbook.md" {
		t.Errorf("LocalPath = %q, want default runbook.md", doc.LocalPath)
	}
	if doc.AccessMode != ReadOnly {
		t.Errorf("AccessMode = %q, want read-only default", doc.AccessMode)
	}
	if !doc.SyncChildren || !doc.SyncAttachments {
		t.Errorf("recursion defaults = %v/%v, want true/true", doc.SyncChildren, doc.SyncAttachments)
	}
}

func TestLoadPerDocumentOverrides(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, `
pages:
  - name: notes
    url: https://example.atlassian.net/wiki/spaces/ENG/pages/98765/Team+Notes
    localPath: docs/notes.md
    accessMode: read-write
    syncChildren: false
    syncAttachments: false
`)

	proj, err := Load(dir, DefaultSettings())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	doc := proj.Documents[0]
	if doc.RemoteID != "98765" {
		t.Errorf("RemoteID = %q, want 98765 extracted from URL", doc.RemoteID)
	}
	if doc.LocalPath != filepath.FromSlash("docs/notes.md") {
		t.Errorf("LocalPath = %q", doc.LocalPath)
	}
	if doc.AccessMode != ReadWrite {
		t.Errorf("AccessMode = %q", doc.AccessMode)
	}
	if doc.SyncChildren || doc.SyncAttachments {
		t.Errorf("overridden booleans = %v/%v, want false/false", doc.SyncChildren, doc.SyncAttachments)
	}
}

func TestLoadLayersSettings(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, `
pages:
  - name: open
    remoteId: "1"
  - name: locked
    remoteId: "2"
    accessMode: read-only
`)

	settings := DefaultSettings()
	settings.AccessMode = ReadWrite
	settings.SyncChildren = false

	proj, err := Load(dir, settings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	open, _ := proj.Document("open")
	if open.AccessMode != ReadWrite {
		t.Errorf("open inherits settings access, got %q", open.AccessMode)
	}
	if open.SyncChildren {
		t.Error("open should inherit syncChildren=false from settings")
	}

	locked, _ := proj.Document("locked")
	if locked.AccessMode != ReadOnly {
		t.Errorf("locked overrides settings access, got %q", locked.AccessMode)
	}
}

func TestLoadUnknownAccessModeIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	writeSources(t, dir, `
pages:
  - name: page
    remoteId: "1"
    accessMode: writeable
`)

	settings := DefaultSettings()
	settings.AccessMode = ReadWrite

	proj, err := Load(dir, settings)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc := proj.Documents[0]; doc.AccessMode != ReadOnly {
		t.Errorf("unknown access mode resolved to %q, want read-only", doc.AccessMode)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{
			name:      "missing name",
			yaml:      "pages:\n  - remoteId: \"1\"\n",
			wantField: "pages[0].name",
		},
		{
			name:      "duplicate name",
			yaml:      "pages:\n  - name: a\n    remoteId: \"1\"\n  - name: a\n    remoteId: \"2\"\n",
			wantField: "pages[1].name",
		},
		{
			name:      "id and url together",
			yaml:      "pages:\n  - name: a\n    remoteId: \"1\"\n    url: https://x/pages/2\n",
			wantField: "pages[0].remoteId",
		},
		{
			name:      "neither id nor url",
			yaml:      "pages:\n  - name: a\n",
			wantField: "pages[0].remoteId",
		},
		{
			name:      "absolute path",
			yaml:      "pages:\n  - name: a\n    remoteId: \"1\"\n    localPath: /etc/notes.md\n",
			wantField: "pages[0].localPath",
		},
		{
			name:      "path escaping project",
			yaml:      "pages:\n  - name: a\n    remoteId: \"1\"\n    localPath: ../outside.md\n",
			wantField: "pages[0].localPath",
		},
		{
			name:      "url without page id",
			yaml:      "pages:\n  - name: a\n    url: https://example.com/wiki/display/ENG/Page\n",
			wantField: "pages[0].url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSources(t, dir, tt.yaml)

			_, err := Load(dir, DefaultSettings())
			if err == nil {
				t.Fatal("expected validation error")
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
		})
	}
}

func TestLoadMissingSources(t *testing.T) {
	_, err := Load(t.TempDir(), DefaultSettings())
	if err == nil {
		t.Fatal("expected error for missing sources file")
	}
	if !strings.Contains(err.Error(), SourcesFile) {
		t.Errorf("error should name %s: %v", SourcesFile, err)
	}
}

func TestProjectDocumentLookup(t *testing.T) {
	proj := &Project{Documents: []TrackedDocument{{Name: "a", RemoteID: "1"}}}
	if _, ok := proj.Document("a"); !ok {
		t.Error("expected to find document a")
	}
	if _, ok := proj.Document("b"); ok {
		t.Error("unexpected hit for document b")
	}
}
