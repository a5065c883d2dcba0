package text

import (
	"os"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v2"
)

type normalizeCase struct {
	Name  string `yaml:"name"`
	Input string `yaml:"input"`
	Want  string `yaml:"want"`
}

func loadCases(t *testing.T) []normalizeCase {
	t.Helper()

	raw, err := os.ReadFile("testdata/cases.yaml")
	if err != nil {
		t.Fatalf("read cases: %v", err)
	}
	var cases []normalizeCase
	if err := yaml.Unmarshal(raw, &cases); err != nil {
		t.Fatalf("parse cases: %v", err)
	}
	if len(cases) == 0 {
		t.Fatal("no cases loaded")
	}
	return cases
}

func TestNormalizeCases(t *testing.T) {
	t.Parallel()

	for _, tc := range loadCases(t) {
		tc := tc
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tc.Input); got != tc.Want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.Input, got, tc.Want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	for _, tc := range loadCases(t) {
		once := Normalize(tc.Input)
		if twice := Normalize(once); twice != once {
			t.Fatalf("%s: second pass changed %q into %q", tc.Name, once, twice)
		}
	}
}

func TestNormalizeIsIdempotentAroundURLs(t *testing.T) {
	t.Parallel()

	prefixes := []string{"", "Link: ", "смотри ", "see ", "!!! ", "(важно) "}
	urls := []string{
		"https://ru.wikipedia.org/wiki/Москва",
		"http://пример.рф/путь",
		"www.пример.рф",
		"HTTPS://EXAMPLE.COM/Страница",
		"https://example.com",
	}
	suffixes := []string{"", " дальше", " next", "!!", "\nhello", "\nпока"}
	for _, prefix := range prefixes {
		for _, url := range urls {
			for _, suffix := range suffixes {
				input := prefix + url + suffix
				once := Normalize(input)
				if twice := Normalize(once); twice != once {
					t.Fatalf("Normalize(%q): second pass changed %q into %q", input, once, twice)
				}
				if once != "" && !HasCyrillics(once) {
					t.Fatalf("Normalize(%q) = %q, kept text without cyrillics", input, once)
				}
			}
		}
	}
}

// Stages after punctuation collapse can bring equal marks together; the
// stage order is fixed, so only the next pass folds them.
func TestNormalizeSecondPassFoldsExposedPunctuation(t *testing.T) {
	t.Parallel()

	once := Normalize("привет !\u200b!")
	if once != "привет !!" {
		t.Fatalf("first pass = %q, want %q", once, "привет !!")
	}
	if twice := Normalize(once); twice != "привет !" {
		t.Fatalf("second pass = %q, want %q", twice, "привет !")
	}
}

func TestNormalizeRejectsNonStrings(t *testing.T) {
	t.Parallel()

	type named string
	inputs := []any{
		nil,
		42,
		3.14,
		true,
		[]string{"привет"},
		[]byte("привет"),
		map[string]string{"text": "привет"},
		named("привет"),
	}
	for _, in := range inputs {
		if got := Normalize(in); got != "" {
			t.Fatalf("Normalize(%#v) = %q, want empty", in, got)
		}
	}
}

func TestNormalizeStripsEmoji(t *testing.T) {
	t.Parallel()

	got := Normalize("Привет 😀 мир 🎉🎉")
	if got != "привет мир" {
		t.Fatalf("expected emoji to be stripped, got %q", got)
	}
}

func TestNormalizeKeepsWellFormedBracketsOnly(t *testing.T) {
	t.Parallel()

	wellFormed := Normalize("заметка {очень важно} конец")
	if !strings.Contains(wellFormed, "{очень важно}") {
		t.Fatalf("well-formed cyrillic braces lost: %q", wellFormed)
	}

	malformed := Normalize("заметка (x] очень важно) конец")
	if strings.Contains(malformed, "важно") {
		t.Fatalf("malformed span survived: %q", malformed)
	}
	if malformed != "заметка конец" {
		t.Fatalf("unexpected output for malformed span: %q", malformed)
	}
}

func TestNormalizeLiteralSentinel(t *testing.T) {
	t.Parallel()

	// a sentinel already present in the input takes the first preserved fragment
	got := Normalize("§§§§§ и (скобки)")
	if got != "(скобки) и §§§§§" {
		t.Fatalf("unexpected restoration order: %q", got)
	}
}

func TestNormalizeConcurrentCalls(t *testing.T) {
	t.Parallel()

	cases := loadCases(t)
	var wg sync.WaitGroup
	errs := make(chan string, len(cases)*4)
	for i := 0; i < 4; i++ {
		for _, tc := range cases {
			wg.Add(1)
			go func(tc normalizeCase) {
				defer wg.Done()
				if got := Normalize(tc.Input); got != tc.Want {
					errs <- tc.Name + ": " + got
				}
			}(tc)
		}
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent mismatch %s", e)
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	input := "Смотри https://example.com!!! foo(bar)"
	steps := Explain(input)
	if len(steps) != 15 {
		t.Fatalf("expected input plus 14 stages, got %d", len(steps))
	}
	if steps[0].Name != "input" || steps[0].Output != input {
		t.Fatalf("unexpected first step %#v", steps[0])
	}
	last := steps[len(steps)-1]
	if last.Name != "reject_degenerate" {
		t.Fatalf("unexpected last stage %q", last.Name)
	}
	if want := Normalize(input); last.Output != want {
		t.Fatalf("explain output %q differs from Normalize %q", last.Output, want)
	}
}

func TestExplainNonString(t *testing.T) {
	t.Parallel()

	steps := Explain(12)
	if len(steps) != 1 || steps[0].Output != "" {
		t.Fatalf("unexpected steps for non-string input: %#v", steps)
	}
}
