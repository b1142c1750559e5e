// Package config loads and validates project configuration: the tracked
// document list (sources.yaml), project-wide settings
// (confsync-settings.yaml), and API credentials (.env or environment).
//
// Per-document values layer over project settings, which layer over
// built-in defaults. The engine receives only fully resolved values; no
// defaulting happens past this package.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourcesFile is the tracked document list within a project directory.
const SourcesFile = "sources.yaml"

// AccessMode gates whether local edits may be pushed upstream.
type AccessMode string

const (
	ReadOnly  AccessMode = "read-only"
	ReadWrite AccessMode = "read-write"
)

// TrackedDocument is one configured root with every value resolved.
type TrackedDocument struct {
	Name            string
	RemoteID        string
	LocalPath       string
	AccessMode      AccessMode
	SyncChildren    bool
	SyncAttachments bool
}

// Project is a validated project configuration.
type Project struct {
	Name      string
	Dir       string
	Documents []TrackedDocument
}

// Document returns the tracked document with the given name.
func (p *Project) Document(name string) (TrackedDocument, bool) {
	for _, d := range p.Documents {
		if d.Name == name {
			return d, true
		}
	}
	return TrackedDocument{}, false
}

// ValidationError reports a malformed or missing configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// documentSpec is the raw YAML shape of one tracked document. Booleans
// are pointers so "absent" and "false" stay distinguishable until the
// settings layer resolves them.
type documentSpec struct {
	Name            string `yaml:"name"`
	RemoteID        string `yaml:"remoteId"`
	URL             string `yaml:"url"`
	LocalPath       string `yaml:"localPath"`
	AccessMode      string `yaml:"accessMode"`
	SyncChildren    *bool  `yaml:"syncChildren"`
	SyncAttachments *bool  `yaml:"syncAttachments"`
}

type sourcesFile struct {
	Pages []documentSpec `yaml:"pages"`
}

// Load reads and validates the project at dir, layering per-document
// values over the given settings.
func Load(dir string, settings Settings) (*Project, error) {
	path := filepath.Join(dir, SourcesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no %s in %s (run confsync init first)", SourcesFile, dir)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var src sourcesFile
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	proj := &Project{
		Name:      filepath.Base(abs),
		Dir:       dir,
		Documents: make([]TrackedDocument, 0, len(src.Pages)),
	}

	seen := make(map[string]int)
	for i, spec := range src.Pages {
		doc, err := resolveDocument(i, spec, settings)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[doc.Name]; dup {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("pages[%d].name", i),
				Message: fmt.Sprintf("%q duplicates pages[%d]", doc.Name, prev),
			}
		}
		seen[doc.Name] = i
		proj.Documents = append(proj.Documents, doc)
	}
	return proj, nil
}

func resolveDocument(i int, spec documentSpec, settings Settings) (TrackedDocument, error) {
	field := func(name string) string { return fmt.Sprintf("pages[%d].%s", i, name) }

	if spec.Name == "" {
		return TrackedDocument{}, &ValidationError{Field: field("name"), Message: "required"}
	}

	id := spec.RemoteID
	switch {
	case id != "" && spec.URL != "":
		return TrackedDocument{}, &ValidationError{Field: field("remoteId"), Message: "remoteId and url are mutually exclusive"}
	case id == "" && spec.URL == "":
		return TrackedDocument{}, &ValidationError{Field: field("remoteId"), Message: "remoteId or url required"}
	case id == "":
		extracted, err := ExtractPageID(spec.URL)
		if err != nil {
			return TrackedDocument{}, &ValidationError{Field: field("url"), Message: err.Error()}
		}
		id = extracted
	}

	localPath := spec.LocalPath
	if localPath == "" {
		localPath = spec.Name + ".md"
	}
	localPath = filepath.FromSlash(localPath)
	if filepath.IsAbs(localPath) || !filepath.IsLocal(localPath) {
		return TrackedDocument{}, &ValidationError{Field: field("localPath"), Message: "must be a relative path inside the project"}
	}

	// Unknown access modes fall back to read-only, the safe side of the
	// push gate.
	mode := settings.AccessMode
	if spec.AccessMode != "" {
		mode = ReadOnly
		if AccessMode(spec.AccessMode) == ReadWrite {
			mode = ReadWrite
		}
	}

	return TrackedDocument{
		Name:            spec.Name,
		RemoteID:        id,
		LocalPath:       localPath,
		AccessMode:      mode,
		SyncChildren:    resolveBool(spec.SyncChildren, settings.SyncChildren),
		SyncAttachments: resolveBool(spec.SyncAttachments, settings.SyncAttachments),
	}, nil
}

func resolveBool(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}
	return fallback
}
