package simplepublish

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Score deductions per failed compatibility check.
const (
	deductUnsupportedKind = 20
	deductTitleOver       = 30
	deductBodyOver        = 30
	deductExcerptOver     = 10
	deductTagsOver        = 10
	deductHashtagsOver    = 10
	deductMissingField    = 25
	deductImageIssue      = 5
	deductHeuristic       = 5
)

// requiredByKind is the per-kind base required field set. Target rules add
// to it via TargetRules.RequiredFields.
var requiredByKind = map[ContentKind][]string{
	KindPost:    {"body"},
	KindArticle: {"title", "body"},
	KindImage:   {"images"},
	KindVideo:   {"link"},
	KindStory:   {"images"},
}

// fieldProbes is the capability lookup table for field presence. Required
// fields resolve through it instead of runtime property probing.
var fieldProbes = map[string]func(Payload) bool{
	"title":    func(p Payload) bool { return p.Title != "" },
	"body":     func(p Payload) bool { return p.Body != "" },
	"excerpt":  func(p Payload) bool { return p.Excerpt != "" },
	"images":   func(p Payload) bool { return len(p.Images) > 0 },
	"link":     func(p Payload) bool { return p.Link != "" },
	"tags":     func(p Payload) bool { return len(p.Tags) > 0 },
	"hashtags": func(p Payload) bool { return len(p.Hashtags) > 0 },
}

// Tester scores payloads against per-target rules. Scores start at 100 and
// floor at 0; a payload is compatible with a target when no issue of high or
// critical severity was found.
type Tester struct {
	rules RulesProvider
	clock Clock
}

// NewTester creates a tester over the given rules provider.
func NewTester(rules RulesProvider) *Tester {
	return &Tester{rules: rules, clock: NewClock()}
}

// Test scores the payload against one target's rules.
func (t *Tester) Test(payload Payload, target string) (TestResult, error) {
	target = NormalizeTarget(target)
	rules, err := t.rules.Rules(target)
	if err != nil {
		return TestResult{}, fmt.Errorf("rules for target %q: %w", target, err)
	}

	res := TestResult{Target: target, Score: 100, TestedAt: t.clock.Now()}

	if len(rules.SupportedKinds) > 0 && !kindSupported(rules.SupportedKinds, payload.Kind) {
		res.flag(deductUnsupportedKind, SeverityMedium, "kind",
			fmt.Sprintf("%s content is not supported by %s", payload.Kind, target),
			fmt.Sprintf("convert the content to one of: %v", rules.SupportedKinds))
	}

	for _, field := range requiredFields(payload.Kind, rules) {
		probe, ok := fieldProbes[field]
		if !ok {
			res.flag(deductMissingField, SeverityHigh, field,
				fmt.Sprintf("required field %q is not recognized", field),
				fmt.Sprintf("remove %q from the target's required fields or use a known field", field))
			continue
		}
		if !probe(payload) {
			res.flag(deductMissingField, SeverityHigh, field,
				fmt.Sprintf("missing required field %q for %s content on %s", field, payload.Kind, target),
				fmt.Sprintf("set the %s field before publishing", field))
		}
	}

	if over(payload.Title, rules.MaxTitleLen) {
		res.flag(deductTitleOver, SeverityHigh, "title",
			fmt.Sprintf("title is %d characters, limit is %d", utf8.RuneCountInString(payload.Title), rules.MaxTitleLen),
			fmt.Sprintf("shorten the title to %d characters or fewer", rules.MaxTitleLen))
	}
	if over(payload.Body, rules.MaxBodyLen) {
		res.flag(deductBodyOver, SeverityHigh, "body",
			fmt.Sprintf("body is %d characters, limit is %d", utf8.RuneCountInString(payload.Body), rules.MaxBodyLen),
			fmt.Sprintf("shorten the body to %d characters or fewer", rules.MaxBodyLen))
	}
	if over(payload.Excerpt, rules.MaxExcerptLen) {
		res.flag(deductExcerptOver, SeverityMedium, "excerpt",
			fmt.Sprintf("excerpt is %d characters, limit is %d", utf8.RuneCountInString(payload.Excerpt), rules.MaxExcerptLen),
			fmt.Sprintf("shorten the excerpt to %d characters or fewer", rules.MaxExcerptLen))
	}
	if rules.MaxTags > 0 && len(payload.Tags) > rules.MaxTags {
		res.flag(deductTagsOver, SeverityMedium, "tags",
			fmt.Sprintf("%d tags exceed the limit of %d", len(payload.Tags), rules.MaxTags),
			fmt.Sprintf("keep the %d most relevant tags", rules.MaxTags))
	}
	if rules.MaxHashtags > 0 && len(payload.Hashtags) > rules.MaxHashtags {
		res.flag(deductHashtagsOver, SeverityMedium, "hashtags",
			fmt.Sprintf("%d hashtags exceed the limit of %d", len(payload.Hashtags), rules.MaxHashtags),
			fmt.Sprintf("keep the %d most relevant hashtags", rules.MaxHashtags))
	}

	if rules.MaxImages > 0 && len(payload.Images) > rules.MaxImages {
		res.flag(deductImageIssue, SeverityHigh, "images",
			fmt.Sprintf("%d images exceed the limit of %d", len(payload.Images), rules.MaxImages),
			fmt.Sprintf("attach at most %d images", rules.MaxImages))
	}
	for i, img := range payload.Images {
		if img.URL == "" {
			res.flag(deductImageIssue, SeverityMedium, "images",
				fmt.Sprintf("image %d has no URL", i+1),
				"set a URL on every attached image")
		}
		if img.Alt == "" {
			res.flag(deductImageIssue, SeverityMedium, "images",
				fmt.Sprintf("image %d has no alt text", i+1),
				"add alt text to every image for accessibility")
		}
	}

	if rules.ImageFirst && len(payload.Images) == 0 {
		res.flag(deductHeuristic, SeverityLow, "images",
			fmt.Sprintf("%s favors content with images", target),
			"attach at least one image to improve engagement")
	}

	if res.Score < 0 {
		res.Score = 0
	}
	res.Compatible = true
	for _, issue := range res.Issues {
		if issue.Severity.Blocking() {
			res.Compatible = false
			break
		}
	}
	return res, nil
}

// TestAll scores the payload against every listed target.
func (t *Tester) TestAll(payload Payload, targets []string) (map[string]TestResult, error) {
	results := make(map[string]TestResult, len(targets))
	for _, target := range targets {
		res, err := t.Test(payload, target)
		if err != nil {
			return nil, err
		}
		results[res.Target] = res
	}
	return results, nil
}

// BestTargets ranks targets for the payload by score descending; ties break
// on target name ascending so the order is stable across runs.
func (t *Tester) BestTargets(payload Payload, targets []string) ([]TargetScore, error) {
	results, err := t.TestAll(payload, targets)
	if err != nil {
		return nil, err
	}
	scores := make([]TargetScore, 0, len(results))
	for _, r := range results {
		scores = append(scores, TargetScore{Target: r.Target, Score: r.Score, Compatible: r.Compatible})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Target < scores[j].Target
	})
	return scores, nil
}

func (r *TestResult) flag(deduct int, sev Severity, field, message, suggestion string) {
	r.Score -= deduct
	r.Issues = append(r.Issues, Issue{Severity: sev, Field: field, Message: message})
	if suggestion != "" {
		r.Suggestions = append(r.Suggestions, suggestion)
	}
}

func over(s string, limit int) bool {
	return limit > 0 && utf8.RuneCountInString(s) > limit
}

func kindSupported(kinds []ContentKind, kind ContentKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// requiredFields resolves the union of the kind's base set and the target's
// additions, preserving first-seen order.
func requiredFields(kind ContentKind, rules TargetRules) []string {
	base := requiredByKind[kind]
	if len(rules.RequiredFields) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base)+len(rules.RequiredFields))
	out := make([]string, 0, len(base)+len(rules.RequiredFields))
	for _, f := range base {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range rules.RequiredFields {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
