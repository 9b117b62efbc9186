package research

import "strings"

var deepPhrases = []string{
	"deep dive",
	"comprehensive",
	"in-depth",
	"thorough analysis",
	"detailed research",
}

var quickPhrases = []string{
	"quick research",
	"brief",
	"quick look",
	"short summary",
	"fast research",
}

// DetectDepth infers a pipeline depth from the request text. Deterministic
// keyword matching, no model call: deep phrases win over quick phrases, and
// anything unmatched runs STANDARD.
func DetectDepth(text string) Depth {
	t := strings.ToLower(text)
	for _, p := range deepPhrases {
		if strings.Contains(t, p) {
			return DepthDeep
		}
	}
	for _, p := range quickPhrases {
		if strings.Contains(t, p) {
			return DepthQuick
		}
	}
	return DepthStandard
}

// ResolveDepth honors an explicit depth and falls back to detection.
func ResolveDepth(explicit Depth, query string) Depth {
	switch explicit {
	case DepthQuick, DepthStandard, DepthDeep:
		return explicit
	}
	return DetectDepth(query)
}
