package textproc

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Rules rewrites recurring recognition mistakes in final transcripts
// (product names, jargon the vendors mishear). Rules load from a plain text
// file, one rule per line:
//
//	# comment
//	left => right           literal, case-insensitive
//	s/pattern/replacement/g sed-style regex
//
// Application iterates until a fixed point, bounded by loopLimit so mutually
// recursive rules cannot spin forever.
type Rules struct {
	rules     []rule
	loopLimit int
}

type rule interface {
	apply(input string) (string, bool)
}

// LoadRules compiles the rules file at path. A missing or empty path yields
// an engine that passes text through unchanged.
func LoadRules(path string, loopLimit int) (*Rules, error) {
	if loopLimit <= 0 {
		loopLimit = 20
	}
	if strings.TrimSpace(path) == "" {
		return &Rules{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Rules{loopLimit: loopLimit}, nil
		}
		return nil, fmt.Errorf("read rules file %q: %w", path, err)
	}

	compiled, err := compile(string(contents))
	if err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", path, err)
	}
	return &Rules{rules: compiled, loopLimit: loopLimit}, nil
}

// Apply rewrites text until no rule changes it or the iteration limit hits.
func (r *Rules) Apply(text string) string {
	if r == nil || len(r.rules) == 0 {
		return text
	}

	result := text
	for range r.loopLimit {
		changed := false
		for _, rl := range r.rules {
			next, hit := rl.apply(result)
			if hit {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

func compile(contents string) ([]rule, error) {
	var rules []rule
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			compiled rule
			err      error
		)
		switch {
		case strings.HasPrefix(line, "s/"):
			compiled, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			compiled, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, compiled)
	}
	return rules, nil
}

type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseLiteralRule(line string) (rule, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(from))
	if err != nil {
		return nil, err
	}
	return literalRule{re: re, replacement: to}, nil
}

func (r literalRule) apply(input string) (string, bool) {
	output := r.re.ReplaceAllString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

var regexRuleForm = regexp.MustCompile(`^s/((?:[^/\\]|\\.)*)/((?:[^/\\]|\\.)*)/([a-z]*)$`)

func parseRegexRule(line string) (rule, error) {
	match := regexRuleForm.FindStringSubmatch(line)
	if match == nil {
		return nil, errors.New("invalid s/pattern/replacement/ rule")
	}
	pattern, replacement, flags := match[1], match[2], match[3]

	prefix := "(?i"
	global := false
	for _, flag := range flags {
		switch flag {
		case 'i':
			// case-insensitive is already the default
		case 'g':
			global = true
		case 'm', 's':
			prefix += string(flag)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}
	re, err := regexp.Compile(prefix + ")" + pattern)
	if err != nil {
		return nil, err
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringIndex(input)
	if loc == nil {
		return input, false
	}
	replaced := r.re.ReplaceAllString(input[loc[0]:loc[1]], r.replacement)
	output := input[:loc[0]] + replaced + input[loc[1]:]
	return output, output != input
}
