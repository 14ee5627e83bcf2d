package translate

import (
	"fmt"
	"sort"
	"strings"
)

// supportedLanguages maps lowercase language names to their canonical form.
// The table follows the languages common local models handle well.
var supportedLanguages = map[string]string{
	"arabic":     "Arabic",
	"bengali":    "Bengali",
	"bulgarian":  "Bulgarian",
	"chinese":    "Chinese",
	"croatian":   "Croatian",
	"czech":      "Czech",
	"danish":     "Danish",
	"dutch":      "Dutch",
	"english":    "English",
	"estonian":   "Estonian",
	"finnish":    "Finnish",
	"french":     "French",
	"german":     "German",
	"greek":      "Greek",
	"hebrew":     "Hebrew",
	"hindi":      "Hindi",
	"hungarian":  "Hungarian",
	"indonesian": "Indonesian",
	"italian":    "Italian",
	"japanese":   "Japanese",
	"korean":     "Korean",
	"latvian":    "Latvian",
	"lithuanian": "Lithuanian",
	"norwegian":  "Norwegian",
	"polish":     "Polish",
	"portuguese": "Portuguese",
	"romanian":   "Romanian",
	"russian":    "Russian",
	"serbian":    "Serbian",
	"slovak":     "Slovak",
	"slovenian":  "Slovenian",
	"spanish":    "Spanish",
	"swahili":    "Swahili",
	"swedish":    "Swedish",
	"thai":       "Thai",
	"turkish":    "Turkish",
	"ukrainian":  "Ukrainian",
	"vietnamese": "Vietnamese",
}

// NormalizeLanguage validates a target language name and returns its
// canonical form.
func NormalizeLanguage(name string) (string, error) {
	canonical, ok := supportedLanguages[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unsupported target language %q", name)
	}
	return canonical, nil
}

// SupportedLanguages returns the canonical language names, sorted.
func SupportedLanguages() []string {
	names := make([]string, 0, len(supportedLanguages))
	for _, canonical := range supportedLanguages {
		names = append(names, canonical)
	}
	sort.Strings(names)
	return names
}
