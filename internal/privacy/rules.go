package privacy

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
)

// Labels double as placeholder text: a redacted span becomes "[" + label + "]".
const (
	LabelDate       = "生年月日"
	LabelPostalCode = "郵便番号"
	LabelAddress    = "住所"
	LabelPhone      = "電話番号"
	LabelID         = "ID"
	LabelName       = "氏名"
)

// Digits are matched as Unicode decimal digits so full-width numerals in
// scanned or typed Japanese documents are covered too.
var (
	dateWestern  = regexp.MustCompile(`\p{Nd}{4}[年/\-]\p{Nd}{1,2}[月/\-]\p{Nd}{1,2}日?`)
	dateEra      = regexp.MustCompile(`[明大昭平令和]{1,2}\p{Nd}{1,3}[年.]\p{Nd}{1,2}[月.]\p{Nd}{1,2}日?`)
	dateEraLatin = regexp.MustCompile(`[MTSHR]\p{Nd}{1,3}[./]\p{Nd}{1,2}[./]\p{Nd}{1,2}`)
	dateLabeled  = regexp.MustCompile(`生年月日[：:\s　]*[\p{Nd}年月日明大昭平令和MTSHR./\-]{6,}`)

	postalCode      = regexp.MustCompile(`〒?\p{Nd}{3}-?\p{Nd}{4}`)
	addressCompound = regexp.MustCompile(`[都道府県][一-龯ぁ-んァ-ヴー]+[市区町村郡][一-龯ぁ-んァ-ヴー\p{Nd}\-]+`)
	addressLabeled  = regexp.MustCompile(`住所[：:\s　]*[^\n]{5,50}`)

	phoneGrouped     = regexp.MustCompile(`\p{Nd}{2,4}-\p{Nd}{2,4}-\p{Nd}{4}`)
	phoneBare        = regexp.MustCompile(`\p{Nd}{10,11}`)
	phoneParenthesis = regexp.MustCompile(`\(\p{Nd}{2,4}\)\s*\p{Nd}{2,4}-\p{Nd}{4}`)
	phoneDateShape   = regexp.MustCompile(`^\p{Nd}{1,2}-\p{Nd}{1,2}-\p{Nd}{1,2}`)

	idLabeled = regexp.MustCompile(`(?:診察券(?:番号)?|患者ID|カルテ番号)[：:\s　]*[\p{L}\p{N}_\-]+`)
	idBare    = regexp.MustCompile(`ID[：:\s　]+[\p{L}\p{N}_\-]+`)

	nameLabeled = regexp.MustCompile(`(?:患者)?氏名[：:\s　]*([一-龯々ァ-ヴー 　]{2,10})`)

	// RE2 has no look-around; the bare-name heuristic needs kanji boundaries.
	nameBroad = newLookaround(`(?<![一-龯々])[一-龯々]{2,4}\s*[一-龯々]{2,3}(?![一-龯々])`)
)

// neighborPlaceholder stands in for an adjacent placeholder when a guard
// inspects the characters around a match.
const neighborPlaceholder = '\uFFFC'

// span is one candidate match inside a free segment, in byte offsets. The cut
// is the part that gets replaced and logged; for most alternatives it is the
// whole match.
type span struct {
	start, end       int
	cutStart, cutEnd int
}

// candidate is what a guard sees
type candidate struct {
	Match  string
	Value  string
	Before rune // 0 at the start of the text
	After  rune // 0 at the end of the text
}

type matcher interface {
	find(s string) []span
}

// Alternative is one surface form recognized by a rule
type Alternative struct {
	Name  string
	Label string
	match matcher
	guard func(c candidate) bool
}

// Placeholder returns the text substituted for a match
func (a Alternative) Placeholder() string {
	return "[" + a.Label + "]"
}

// Rule is an ordered list of alternatives sharing one category
type Rule struct {
	Category     Category
	Alternatives []Alternative
}

// DefaultRules returns the standard rule set in canonical order. The broad
// bare-name heuristic is only appended when strictNames is set.
func DefaultRules(protected ProtectedTerms, strictNames bool) []Rule {
	notProtected := func(c candidate) bool {
		return c.Value != "" && !protected.IsProtected(c.Value)
	}

	names := Rule{
		Category: CategoryName,
		Alternatives: []Alternative{
			{Name: "labeled_name", Label: LabelName, match: regexMatcher{re: nameLabeled, group: 1, trim: true}, guard: notProtected},
		},
	}
	if strictNames {
		names.Alternatives = append(names.Alternatives,
			Alternative{Name: "broad_name", Label: LabelName, match: nameBroad, guard: notProtected})
	}

	return []Rule{
		{
			Category: CategoryDate,
			Alternatives: []Alternative{
				{Name: "western_date", Label: LabelDate, match: regexMatcher{re: dateWestern}},
				{Name: "era_date", Label: LabelDate, match: regexMatcher{re: dateEra}},
				{Name: "latin_era_date", Label: LabelDate, match: regexMatcher{re: dateEraLatin}},
				{Name: "labeled_date", Label: LabelDate, match: regexMatcher{re: dateLabeled}},
			},
		},
		{
			Category: CategoryAddress,
			Alternatives: []Alternative{
				{Name: "postal_code", Label: LabelPostalCode, match: regexMatcher{re: postalCode}, guard: standaloneNumber},
				{Name: "compound_address", Label: LabelAddress, match: regexMatcher{re: addressCompound}},
				{Name: "labeled_address", Label: LabelAddress, match: regexMatcher{re: addressLabeled}},
			},
		},
		{
			Category: CategoryPhone,
			Alternatives: []Alternative{
				{Name: "grouped_phone", Label: LabelPhone, match: regexMatcher{re: phoneGrouped}, guard: notDateShaped},
				{Name: "bare_phone", Label: LabelPhone, match: regexMatcher{re: phoneBare}},
				{Name: "area_code_phone", Label: LabelPhone, match: regexMatcher{re: phoneParenthesis}},
			},
		},
		{
			Category: CategoryID,
			Alternatives: []Alternative{
				{Name: "labeled_id", Label: LabelID, match: regexMatcher{re: idLabeled}},
				{Name: "bare_id", Label: LabelID, match: regexMatcher{re: idBare}, guard: notInsideWord},
			},
		},
		names,
	}
}

// ValidateOrder rejects rule lists that are not strictly in canonical order
func ValidateOrder(rules []Rule) error {
	for i := 1; i < len(rules); i++ {
		if rules[i].Category <= rules[i-1].Category {
			return ErrRuleOrder
		}
	}
	return nil
}

// notDateShaped keeps grouped-hyphen matches that start like d-d-d (1-2
// digits each) out of the phone category.
func notDateShaped(c candidate) bool {
	return !phoneDateShape.MatchString(c.Match)
}

// standaloneNumber rejects postal-code shapes carved out of a longer number.
// A neighbouring placeholder counts as part of a number so that a second pass
// over redacted text reaches the same decision.
func standaloneNumber(c candidate) bool {
	return !numberLike(c.Before) && !numberLike(c.After)
}

func numberLike(r rune) bool {
	return unicode.IsDigit(r) || r == '-' || r == neighborPlaceholder
}

// notInsideWord stops "ID" being picked out of words such as "PAID: 3".
func notInsideWord(c candidate) bool {
	return !(c.Before < utf8.RuneSelf && unicode.IsLetter(c.Before))
}

type regexMatcher struct {
	re    *regexp.Regexp
	group int
	trim  bool
}

func (m regexMatcher) find(s string) []span {
	locs := m.re.FindAllStringSubmatchIndex(s, -1)
	spans := make([]span, 0, len(locs))
	for _, loc := range locs {
		sp := span{start: loc[0], end: loc[1], cutStart: loc[0], cutEnd: loc[1]}
		if m.group > 0 && loc[2*m.group] >= 0 {
			sp.cutStart, sp.cutEnd = loc[2*m.group], loc[2*m.group+1]
		}
		if m.trim {
			cut := s[sp.cutStart:sp.cutEnd]
			left := len(cut) - len(strings.TrimLeftFunc(cut, unicode.IsSpace))
			right := len(strings.TrimRightFunc(cut, unicode.IsSpace))
			if right < left {
				right = left
			}
			sp.cutStart, sp.cutEnd = sp.cutStart+left, sp.cutStart+right
		}
		spans = append(spans, sp)
	}
	return spans
}

type lookaroundMatcher struct {
	re *regexp2.Regexp
}

func newLookaround(pattern string) lookaroundMatcher {
	re := regexp2.MustCompile(pattern, regexp2.None)
	re.MatchTimeout = time.Second
	return lookaroundMatcher{re: re}
}

// find converts regexp2's rune offsets back to byte offsets
func (m lookaroundMatcher) find(s string) []span {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))

	var spans []span
	match, err := m.re.FindStringMatch(s)
	for err == nil && match != nil {
		start, end := offsets[match.Index], offsets[match.Index+match.Length]
		spans = append(spans, span{start: start, end: end, cutStart: start, cutEnd: end})
		match, err = m.re.FindNextMatch(match)
	}
	return spans
}
