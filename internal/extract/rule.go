package extract

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/anansi-ai/anansi/internal/document"
	"github.com/anansi-ai/anansi/internal/types"
)

// RuleExtractor finds entities with regular expressions and capitalization
// heuristics. It is deterministic, dependency-free, and intentionally
// conservative: the graph tolerates missed entities far better than it
// tolerates invented ones.
type RuleExtractor struct{}

// NewRuleExtractor creates the rule-based extractor.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

var (
	datePattern = regexp.MustCompile(
		`\b(?:\d{4}-\d{2}-\d{2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
	moneyPattern = regexp.MustCompile(
		`(?:\$|€|£)\s?\d+(?:,\d{3})*(?:\.\d+)?(?:\s?(?:million|billion|trillion|[kKmMbB]))?`)
	// A run of capitalized words, allowing internal connectives such as
	// "of" and "the" when surrounded by capitalized words.
	properPattern = regexp.MustCompile(
		`\b[A-Z][A-Za-z0-9&.\-]*(?:\s+(?:of|the|for|and|de|von|van)\s+[A-Z][A-Za-z0-9&.\-]*|\s+[A-Z][A-Za-z0-9&.\-]*)*`)
)

// orgSuffixes mark a proper noun run as an organization.
var orgSuffixes = []string{
	"Inc", "Inc.", "Corp", "Corp.", "Corporation", "LLC", "Ltd", "Ltd.",
	"GmbH", "Company", "Co.", "Foundation", "Institute", "University",
	"Labs", "Group", "Bank", "Systems", "Technologies",
}

// knownOrgs is a small gazetteer for organizations whose names carry no
// corporate suffix. Single-word company names are invisible to the suffix
// heuristic, so the common ones are listed here.
var knownOrgs = map[string]bool{
	"microsoft": true, "google": true, "apple": true, "amazon": true,
	"meta": true, "ibm": true, "intel": true, "nvidia": true,
	"oracle": true, "netflix": true, "samsung": true, "sony": true,
	"boeing": true, "tesla": true, "spacex": true, "nasa": true,
	"openai": true, "anthropic": true, "mozilla": true, "github": true,
}

// knownPlaces is a small gazetteer for geopolitical entities. Unlisted
// places fall through as OTHER, which is acceptable for a rule baseline.
var knownPlaces = map[string]bool{
	"united states": true, "united kingdom": true, "germany": true,
	"france": true, "japan": true, "china": true, "india": true,
	"canada": true, "australia": true, "brazil": true, "russia": true,
	"london": true, "paris": true, "berlin": true, "tokyo": true,
	"new york": true, "san francisco": true, "washington": true,
	"california": true, "texas": true, "europe": true, "asia": true,
}

// stopwords are capitalized sentence starters that are not entities.
var stopwords = map[string]bool{
	"The": true, "A": true, "An": true, "This": true, "That": true,
	"These": true, "Those": true, "It": true, "He": true, "She": true,
	"They": true, "We": true, "I": true, "You": true, "But": true,
	"And": true, "Or": true, "If": true, "In": true, "On": true,
	"At": true, "By": true, "For": true, "With": true, "From": true,
	"As": true, "When": true, "While": true, "After": true, "Before": true,
	"However": true, "Although": true, "Because": true, "Since": true,
}

func (r *RuleExtractor) Extract(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, types.WrapError(types.EXTRACT_FAILED, "extraction cancelled", err)
	}

	var result Result
	claimed := make([]bool, len(text))

	claim := func(start, end int) {
		for i := start; i < end && i < len(claimed); i++ {
			claimed[i] = true
		}
	}
	overlaps := func(start, end int) bool {
		for i := start; i < end && i < len(claimed); i++ {
			if claimed[i] {
				return true
			}
		}
		return false
	}

	// Dates and money first; their spans must not be re-claimed as proper
	// noun runs.
	for _, span := range datePattern.FindAllStringIndex(text, -1) {
		result.Mentions = append(result.Mentions, document.Mention{
			Name:  text[span[0]:span[1]],
			Type:  document.EntityDate,
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}
	for _, span := range moneyPattern.FindAllStringIndex(text, -1) {
		result.Mentions = append(result.Mentions, document.Mention{
			Name:  text[span[0]:span[1]],
			Type:  document.EntityMoney,
			Start: span[0],
			End:   span[1],
		})
		claim(span[0], span[1])
	}

	for _, span := range properPattern.FindAllStringIndex(text, -1) {
		run := strings.TrimRight(text[span[0]:span[1]], " .-")
		for _, part := range splitRun(run) {
			start := span[0] + part[0]
			name := strings.TrimRight(run[part[0]:part[1]], " .-")
			if name == "" || overlaps(start, start+len(name)) {
				continue
			}

			// Drop leading stopword tokens; a sentence-initial "The Acme
			// Corp" still yields "Acme Corp".
			for {
				word, rest, found := strings.Cut(name, " ")
				if !stopwords[word] {
					break
				}
				if !found {
					name = ""
					break
				}
				start += len(word) + 1
				name = rest
			}
			if name == "" || !startsUpper(name) {
				continue
			}
			// Single stopword-free words still need a second signal before
			// they count as entities: a gazetteer hit, an org suffix, or
			// capitalization in the middle of a sentence.
			entityType := classify(name)
			if !strings.Contains(name, " ") && entityType == document.EntityOther &&
				!sentenceMedial(text, start) {
				continue
			}

			result.Mentions = append(result.Mentions, document.Mention{
				Name:  name,
				Type:  entityType,
				Start: start,
				End:   start + len(name),
			})
			claim(start, start+len(name))
		}
	}

	result.Relations = cooccurrenceRelations(result.Mentions)
	return result, nil
}

// classify assigns a type using suffix and gazetteer signals, defaulting to
// PERSON for two-token capitalized runs and OTHER for everything else.
func classify(name string) document.EntityType {
	for _, suffix := range orgSuffixes {
		if strings.HasSuffix(name, " "+suffix) || name == suffix {
			return document.EntityOrg
		}
	}
	if knownOrgs[strings.ToLower(name)] {
		return document.EntityOrg
	}
	if knownPlaces[strings.ToLower(name)] {
		return document.EntityGPE
	}
	words := strings.Fields(name)
	if len(words) == 2 && allTitleCase(words) {
		return document.EntityPerson
	}
	return document.EntityOther
}

// cooccurrenceRelations links PERSON and ORG entities that appear in the
// same text, the weakest useful relation signal a rule system can assert.
func cooccurrenceRelations(mentions []document.Mention) []Relation {
	var people, orgs []document.Mention
	seen := make(map[string]bool)
	for _, m := range mentions {
		key := document.CanonicalKey(m.Name, m.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		switch m.Type {
		case document.EntityPerson:
			people = append(people, m)
		case document.EntityOrg:
			orgs = append(orgs, m)
		}
	}
	var relations []Relation
	for _, p := range people {
		for _, o := range orgs {
			relations = append(relations, Relation{
				FromName: p.Name, FromType: p.Type,
				ToName: o.Name, ToType: o.Type,
			})
		}
	}
	return relations
}

// splitRun breaks a proper noun run at sentence boundaries, returning
// [start, end) offsets within run. The pattern admits periods inside tokens
// for abbreviations such as "St. Louis", which also lets one run bridge
// "Washington. Microsoft"; a period after a token of three or more
// characters is read as a sentence end, not an abbreviation.
func splitRun(run string) [][2]int {
	var parts [][2]int
	start, wordLen := 0, 0
	for i := 0; i < len(run); i++ {
		switch {
		case run[i] == '.':
			if wordLen >= 3 && i+1 < len(run) && run[i+1] == ' ' {
				parts = append(parts, [2]int{start, i})
				start = i + 2
				i++
			}
			wordLen = 0
		case run[i] == ' ':
			wordLen = 0
		default:
			wordLen++
		}
	}
	if start < len(run) {
		parts = append(parts, [2]int{start, len(run)})
	}
	return parts
}

// sentenceMedial reports whether the capitalized word at start sits inside
// a sentence rather than opening one, which makes the capitalization itself
// evidence of a proper noun.
func sentenceMedial(text string, start int) bool {
	i := start - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\t') {
		i--
	}
	if i < 0 {
		return false
	}
	switch text[i] {
	case '.', '!', '?', '\n', ':', ';', '"', '\'':
		return false
	}
	return true
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func allTitleCase(words []string) bool {
	for _, w := range words {
		if !startsUpper(w) {
			return false
		}
	}
	return true
}

func (r *RuleExtractor) Health(context.Context) types.HealthStatus {
	return types.Healthy("rule extractor")
}
