package imageindex

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ImageMetadata is everything the indexer learned about one image.
type ImageMetadata struct {
	Path        string
	MTimeUnix   int64
	Description string
	Keywords    []string
	People      []string
	Objects     []string
	Scene       string
}

// DocID derives the stable document id for an image path.
func DocID(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Document converts the metadata into its stored form. The content is the
// searchable text; the metadata map carries the filterable fields.
func (m ImageMetadata) Document() Document {
	var b strings.Builder
	if m.Description != "" {
		b.WriteString(m.Description)
		b.WriteString("\n")
	}
	if len(m.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(m.Keywords, ", "))
	}
	if len(m.Objects) > 0 {
		fmt.Fprintf(&b, "Objects: %s\n", strings.Join(dedupeSorted(m.Objects), ", "))
	}
	if len(m.People) > 0 {
		fmt.Fprintf(&b, "People: %s\n", strings.Join(m.People, ", "))
	}
	if m.Scene != "" {
		fmt.Fprintf(&b, "Scene: %s\n", m.Scene)
	}

	return Document{
		ID:      DocID(m.Path),
		Content: strings.TrimSpace(b.String()),
		Metadata: map[string]string{
			"path":    m.Path,
			"mtime":   strconv.FormatInt(m.MTimeUnix, 10),
			"people":  strings.Join(m.People, ","),
			"objects": strings.Join(dedupeSorted(m.Objects), ","),
			"scene":   m.Scene,
		},
	}
}

func dedupeSorted(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
