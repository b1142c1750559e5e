package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	pagePathRe  = regexp.MustCompile(`/pages/(\d+)`)
	pageQueryRe = regexp.MustCompile(`[?&]pageId=(\d+)`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
)

// ExtractPageID pulls the numeric page ID out of a Confluence URL.
// Handles modern URLs (/spaces/KEY/pages/12345/Title), legacy viewpage
// URLs (?pageId=12345), and bare numeric IDs.
func ExtractPageID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if digitsRe.MatchString(raw) {
		return raw, nil
	}
	if m := pagePathRe.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	if m := pageQueryRe.FindStringSubmatch(raw); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("no page ID found in %q", raw)
}
