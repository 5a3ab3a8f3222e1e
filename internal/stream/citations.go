package stream

import (
	"regexp"
	"strings"
)

var (
	// Streams use <documents .../>; rendered and re-fetched content may carry
	// either spelling.
	citationRe = regexp.MustCompile(`<(?:documents|document-citation)\s+ids="([^"]+)"\s*/>`)
)

// ExtractDocumentIDs returns the ids of the first complete citation in s,
// trimmed and without empty entries. Order and duplicates are preserved.
func ExtractDocumentIDs(s string) []string {
	m := citationRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	return splitIDs(m[1])
}

func splitIDs(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CitationMarker is the inline form folded into assistant content.
func CitationMarker(ids []string) string {
	return "\n\n<document-citation ids=\"" + strings.Join(ids, ",") + "\" />\n\n"
}

// Marker is a citation found in rendered content. Start and End are byte
// offsets of the tag itself.
type Marker struct {
	Start int
	End   int
	IDs   []string
}

// ParseCitationMarkers finds every citation tag in content, in order.
// Tags without any usable id are skipped.
func ParseCitationMarkers(content string) []Marker {
	var out []Marker
	for _, loc := range citationRe.FindAllStringSubmatchIndex(content, -1) {
		ids := splitIDs(content[loc[2]:loc[3]])
		if len(ids) == 0 {
			continue
		}
		out = append(out, Marker{Start: loc[0], End: loc[1], IDs: ids})
	}
	return out
}

// mightBeCitation is the loose check used to divert body text into the
// citation buffer. It also matches ordinary prose with quotes or "=".
func mightBeCitation(s string) bool {
	return strings.Contains(s, "<") ||
		strings.Contains(s, "documents") ||
		strings.Contains(s, "ids") ||
		strings.Contains(s, "=") ||
		strings.Contains(s, `"`)
}

// couldStillBeCitation reports whether buf, which starts with '<', is still
// a prefix of a citation tag name.
func couldStillBeCitation(buf string) bool {
	if !strings.HasPrefix(buf, "<") {
		return false
	}
	rest := buf[1:]
	for _, name := range []string{"documents", "document-citation"} {
		n := min(len(rest), len(name))
		if rest[:n] == name[:n] {
			return true
		}
	}
	return false
}
