package simplepublish

import "strings"

// NormalizeTarget lowercases and trims a user-facing target name.
func NormalizeTarget(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// normalizeTargets trims, lowercases, drops empties, and dedupes while
// preserving order.
func normalizeTargets(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = NormalizeTarget(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// normalizePayload trims free-text fields and cleans tag lists. Hashtags are
// stored without a leading '#' so per-target counting is uniform.
func normalizePayload(p Payload) Payload {
	p.Title = strings.TrimSpace(p.Title)
	p.Excerpt = strings.TrimSpace(p.Excerpt)
	p.Link = strings.TrimSpace(p.Link)
	p.Tags = cleanList(p.Tags, false)
	p.Hashtags = cleanList(p.Hashtags, true)
	return p
}

func cleanList(values []string, stripHash bool) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if stripHash {
			v = strings.TrimPrefix(v, "#")
		}
		if v == "" || seen[strings.ToLower(v)] {
			continue
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}
	return out
}
