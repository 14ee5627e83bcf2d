package imageindex

import (
	"context"
	"strconv"
	"strings"
)

// SearchOptions restrict and shape a search.
type SearchOptions struct {
	TopK          int
	MinSimilarity float32
	// Person keeps only images where this identity was recognized.
	Person string
	// Scene keeps only images classified as this scene label.
	Scene string
}

// Match is one search hit with its metadata unpacked.
type Match struct {
	Path       string   `json:"path"`
	Similarity float32  `json:"similarity"`
	Summary    string   `json:"summary"`
	People     []string `json:"people,omitempty"`
	Objects    []string `json:"objects,omitempty"`
	Scene      string   `json:"scene,omitempty"`
	MTimeUnix  int64    `json:"mtime,omitempty"`
}

// Search runs a similarity query over the indexed images. The scene filter
// is pushed into the store; the person filter is applied on the results
// because identities are stored as a list.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Match, error) {
	var where map[string]string
	if opts.Scene != "" {
		where = map[string]string{"scene": opts.Scene}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	// Over-fetch when filtering client side so the filter does not starve
	// the result set.
	fetch := topK
	if opts.Person != "" {
		fetch = topK * 4
	}

	results, err := s.SearchByText(ctx, query, fetch, opts.MinSimilarity, where)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, r := range results {
		match := toMatch(r)
		if opts.Person != "" && !containsFold(match.People, opts.Person) {
			continue
		}
		matches = append(matches, match)
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

func toMatch(r SearchResult) Match {
	meta := r.Document.Metadata
	mtime, _ := strconv.ParseInt(meta["mtime"], 10, 64)
	return Match{
		Path:       meta["path"],
		Similarity: r.Similarity,
		Summary:    firstLine(r.Document.Content),
		People:     splitCSV(meta["people"]),
		Objects:    splitCSV(meta["objects"]),
		Scene:      meta["scene"],
		MTimeUnix:  mtime,
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
