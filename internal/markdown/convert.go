// Package markdown converts between Confluence storage format and the
// markdown written to the local tree.
//
// Storage format is XHTML with Confluence-specific elements (ac: and ri:
// namespaces). Conversion rewrites attachment references so the markdown
// links resolve against the assets directory the puller materializes
// next to each document.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"net/url"
	"regexp"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	scriptRe = regexp.MustCompile(`(?si)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?si)<style\b[^>]*>.*?</style>`)

	// <ac:image ...><ri:attachment ri:filename="x.png"/></ac:image>
	acImageRe = regexp.MustCompile(`(?s)<ac:image[^>]*>.*?<ri:attachment[^>]*?ri:filename="([^"]+)"[^>]*?/?>.*?</ac:image>`)

	// Server-relative attachment URLs as they appear in rendered markup.
	downloadRe = regexp.MustCompile(`/download/(?:attachments|thumbnails)/\d+/([^"?]+)(?:\?[^"]*)?`)

	// Code macros carry their body as CDATA, invisible to an HTML
	// converter unless unwrapped first.
	codeMacroRe = regexp.MustCompile(`(?s)<ac:structured-macro[^>]+ac:name="code"[^>]*>.*?<ac:plain-text-body><!\[CDATA\[(.*?)\]\]></ac:plain-text-body>.*?</ac:structured-macro>`)
)

var storageRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough),
)

// ToMarkdown converts storage-format content into markdown, rewriting
// attachment references to the owning document's assets directory.
// Script and style blocks are dropped entirely.
func ToMarkdown(storage, docID string) (string, error) {
	out := scriptRe.ReplaceAllString(storage, "")
	out = styleRe.ReplaceAllString(out, "")

	out = codeMacroRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := codeMacroRe.FindStringSubmatch(m)
		return "<pre><code>" + html.EscapeString(sub[1]) + "</code></pre>"
	})

	out = acImageRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := acImageRe.FindStringSubmatch(m)
		name := html.UnescapeString(sub[1])
		return fmt.Sprintf("<img src=%q alt=%q/>", assetRef(docID, name), name)
	})

	out = downloadRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := downloadRe.FindStringSubmatch(m)
		name := sub[1]
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		return assetRef(docID, name)
	})

	md, err := htmltomarkdown.ConvertString(out)
	if err != nil {
		return "", fmt.Errorf("convert storage content: %w", err)
	}
	return md, nil
}

// ToStorage renders markdown into storage-format XHTML for upload.
func ToStorage(md string) (string, error) {
	var buf bytes.Buffer
	if err := storageRenderer.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// assetRef is the in-document link to a materialized attachment. Links
// always use forward slashes and must agree with where the puller writes
// attachment bytes: assets/<docID>-<filename> next to the document.
func assetRef(docID, filename string) string {
	return "assets/" + docID + "-" + filename
}
