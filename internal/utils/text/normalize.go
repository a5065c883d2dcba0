package text

import (
	"strings"
	"unicode"

	"github.com/dlclark/regexp2"
	"github.com/forPelevin/gomoji"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RulesVersion identifies the current rule set. Anything persisting normalized
// output must key on it.
const RulesVersion = "1"

const sentinel = "§§§§§"

var (
	bracketsWithCyrillic = regexp2.MustCompile(`([(\[{])(?=[^\])}]*[а-яА-Я])(.*?)([)\]}])`, regexp2.None)

	codePatterns = []*regexp2.Regexp{
		// fenced blocks
		regexp2.MustCompile("```[\\s\\S]*?```", regexp2.Multiline),
		// html tag pairs with content
		regexp2.MustCompile(`<[^>]+>[\s\S]*?</[^>]+>`, regexp2.Multiline),
		// keywords up to a terminator
		regexp2.MustCompile(`\b(def|function|class|import|from|if|else|elif|for|while|return|try|except|async|await)\b[^{а-яА-Я]*[;\n]`, regexp2.Multiline),
		// assignments
		regexp2.MustCompile(`(?<!\w)[A-Za-z_][A-Za-z0-9_]*\s*=\s*[^{а-яА-Я]+?(?=[\s\n]|$)`, regexp2.Multiline),
		// method calls
		regexp2.MustCompile(`(?<!\w)[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\([^{а-яА-Я]*\)`, regexp2.Multiline),
		// function calls
		regexp2.MustCompile(`(?<!\w)[A-Za-z_][A-Za-z0-9_]*\([^{а-яА-Я]*\)`, regexp2.Multiline),
		// constant calls
		regexp2.MustCompile(`(?<!\w)[A-Z]+\b(?:\.[A-Z]+)*\([^{а-яА-Я]*\)`, regexp2.Multiline),
	}

	residualBrackets = []*regexp2.Regexp{
		regexp2.MustCompile(`\([^()]*[а-яА-Я][^()]*\)`, regexp2.None),
		regexp2.MustCompile(`\([^()]*\)`, regexp2.None),
		regexp2.MustCompile(`\{[^{}]*\}`, regexp2.None),
		regexp2.MustCompile(`\[[^\[\]]*\]`, regexp2.None),
	}

	repeatedPunctuation = regexp2.MustCompile(`([!?])\1+`, regexp2.None)
	urlPattern          = regexp2.MustCompile(`https?://\S+|www\.\S+`, regexp2.IgnoreCase)

	flattenReplacer    = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")
	decorativeReplacer = strings.NewReplacer("•", "", "▪", "", "★", "", "✔", "", "►", "", "–", "", "—", "", "«", "", "»", "", "…", "")
	spacesReplacer     = strings.NewReplacer("\u00a0", " ", "\u200b", "")

	l = log.WithField("context", "text_normalizer")
)

// Step is the buffer state after one normalization stage.
type Step struct {
	Name   string `json:"name"`
	Output string `json:"output"`
}

type stage struct {
	name  string
	apply func(string) string
}

// run holds the per-call state shared by the bracket stages.
type run struct {
	preserved []string
}

func (r *run) stages() []stage {
	return []stage{
		{"protect_brackets", r.protectBrackets},
		{"strip_code", stripCode},
		{"strip_brackets", stripBrackets},
		{"restore_brackets", r.restoreBrackets},
		{"filter_lines", filterLines},
		{"flatten_whitespace", flattenReplacer.Replace},
		{"strip_decorations", decorativeReplacer.Replace},
		{"collapse_punctuation", collapsePunctuation},
		{"normalize_spaces", spacesReplacer.Replace},
		{"strip_emoji", gomoji.RemoveEmojis},
		{"collapse_whitespace", collapseWhitespace},
		{"strip_urls", stripURLs},
		{"lower_case", lowerCase},
		{"reject_degenerate", rejectDegenerate},
	}
}

// Normalize prepares text for model consumption. Any input that is not a string
// yields an empty string, as does text left without usable content.
func Normalize(input any) string {
	s, ok := input.(string)
	if !ok {
		return ""
	}
	return NormalizeString(s)
}

// NormalizeString is Normalize for callers that already hold a string.
func NormalizeString(s string) string {
	return process(s, nil)
}

// Explain runs the same stages as Normalize and records the buffer after each.
// The last step's output equals Normalize(input).
func Explain(input any) []Step {
	s, ok := input.(string)
	if !ok {
		return []Step{{Name: "input", Output: ""}}
	}
	steps := []Step{{Name: "input", Output: s}}
	process(s, func(name, out string) {
		steps = append(steps, Step{Name: name, Output: out})
	})
	return steps
}

func process(s string, observe func(name, out string)) string {
	r := &run{}
	for _, st := range r.stages() {
		s = st.apply(s)
		if observe != nil {
			observe(st.name, s)
		}
	}
	return s
}

func (r *run) protectBrackets(s string) string {
	out, err := bracketsWithCyrillic.ReplaceFunc(s, func(m regexp2.Match) string {
		r.preserved = append(r.preserved, m.String())
		return sentinel
	}, -1, -1)
	if err != nil {
		l.WithError(err).Warn("cant protect brackets")
		r.preserved = r.preserved[:0]
		return s
	}
	return out
}

// restoreBrackets puts fragments back one sentinel at a time, in capture order.
func (r *run) restoreBrackets(s string) string {
	for _, fragment := range r.preserved {
		s = strings.Replace(s, sentinel, fragment, 1)
	}
	return s
}

func stripCode(s string) string {
	for _, re := range codePatterns {
		s = replace(re, s, "")
	}
	return s
}

func stripBrackets(s string) string {
	for _, re := range residualBrackets {
		s = replace(re, s, "")
	}
	return s
}

func filterLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		switch {
		case HasCyrillics(line):
			kept = append(kept, line)
		case strings.TrimSpace(line) == "":
			kept = append(kept, "")
		}
	}
	return strings.Join(kept, "\n")
}

func collapsePunctuation(s string) string {
	return replace(repeatedPunctuation, s, "$1")
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.FieldsFunc(s, isSpace), " ")
}

// isSpace extends unicode.IsSpace with the information separators U+001C..U+001F.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= '\x1c' && r <= '\x1f')
}

// stripURLs also re-collapses whitespace, removal must not leave double spaces.
func stripURLs(s string) string {
	return collapseWhitespace(replace(urlPattern, s, ""))
}

func lowerCase(s string) string {
	return cases.Lower(language.Und).String(s)
}

// rejectDegenerate empties bare punctuation and text whose only Cyrillic was
// inside a removed URL, the same rule filterLines applies per line.
func rejectDegenerate(s string) string {
	if strings.Trim(s, ".!?,;:") == "" || !HasCyrillics(s) {
		return ""
	}
	return s
}

func replace(re *regexp2.Regexp, s, replacement string) string {
	out, err := re.Replace(s, replacement, -1, -1)
	if err != nil {
		l.WithError(err).WithField("pattern", re.String()).Warn("cant apply pattern")
		return s
	}
	return out
}
