package sync

import (
	"path/filepath"
	"sort"
	"strings"
)

// ChildRef identifies a child document when computing its local path.
type ChildRef struct {
	ID    string
	Title string
}

// Slug converts a document title into a filesystem-safe file stem.
// Letters and digits are lowercased, every other run of characters
// collapses to a single hyphen, and leading/trailing hyphens are trimmed.
// Titles with no usable characters map to "untitled".
func Slug(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	hyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		default:
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	s := strings.TrimRight(b.String(), "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// ChildPaths computes local paths for the children of the document stored
// at parentPath. Children live in a directory named after the parent's
// file stem, next to the parent file:
//
//	docs/runbook.md -> docs/runbook/<child-slug>.md
//
// When two siblings slug to the same name, the group is ordered by remote
// ID and every child after the first gets an ID suffix, so paths stay
// stable as siblings come and go.
func ChildPaths(parentPath string, children []ChildRef) map[string]string {
	stem := strings.TrimSuffix(filepath.Base(parentPath), filepath.Ext(parentPath))
	dir := filepath.Join(filepath.Dir(parentPath), stem)

	groups := make(map[string][]ChildRef)
	for _, c := range children {
		s := Slug(c.Title)
		groups[s] = append(groups[s], c)
	}

	paths := make(map[string]string, len(children))
	for slug, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		for i, c := range group {
			name := slug
			if i > 0 {
				name = slug + "-" + c.ID
			}
			paths[c.ID] = filepath.Join(dir, name+".md")
		}
	}
	return paths
}

// AssetsDir returns the attachment directory for a document stored at path.
// Attachments live in an assets directory next to the document file.
func AssetsDir(path string) string {
	return filepath.Join(filepath.Dir(path), "assets")
}

// AssetName returns the filename for an attachment within the assets
// directory. Names are prefixed with the owning document's remote ID so
// siblings sharing an assets directory cannot collide.
func AssetName(docID, filename string) string {
	return docID + "-" + filepath.Base(filename)
}
