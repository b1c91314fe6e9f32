package sweep

import (
	"regexp"
	"strings"
)

var (
	handlePattern   = regexp.MustCompile(`^(\S+)\W+pid: (\d+).*$`)
	taskListPattern = regexp.MustCompile(`^(\S+)\s+(\d+)(?:\s.*)?$`)
	servicePattern  = regexp.MustCompile(`^SERVICE_NAME:\s+(\S+)$`)
)

// LineParser classifies one decoded, trimmed line of tool output.
// It reports the extracted value and whether the line was accepted.
type LineParser interface {
	Feed(line string) (string, bool)
}

// HandleParser extracts lock-holder pids from handle.exe output, e.g.
//
//	app.exe            pid: 1234   type: File          2C: C:\work\out.log
type HandleParser struct{}

func (HandleParser) Feed(line string) (string, bool) {
	m := handlePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// TaskListParser extracts pids from tasklist rows whose image name is selected.
type TaskListParser struct {
	Names PatternSet
}

func (p TaskListParser) Feed(line string) (string, bool) {
	if p.Names.Empty() {
		return "", false
	}
	m := taskListPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if !p.Names.MatchImage(m[1]) {
		return "", false
	}
	return m[2], true
}

// ServiceParser extracts service names from `sc queryex` output.
type ServiceParser struct {
	Patterns PatternSet
}

func (p ServiceParser) Feed(line string) (string, bool) {
	m := servicePattern.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	if !p.Patterns.Match(m[1]) {
		return "", false
	}
	return m[1], true
}

// PatternSet is a list of case-insensitive, whole-name patterns. A name
// matches the set when it equals an entry or any pattern matches.
type PatternSet struct {
	patterns []*regexp.Regexp
	sources  []string
}

// CompilePatterns builds a PatternSet. Entries that are not valid regular
// expressions on their own are matched literally.
func CompilePatterns(entries []string) PatternSet {
	var ps PatternSet
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		ps.patterns = append(ps.patterns, wholeName(entry))
		ps.sources = append(ps.sources, entry)
	}
	return ps
}

// wholeName anchors entry so it can only match a complete name. The entry
// is checked alone first: text like "a)|(b" compiles once wrapped but
// would escape the anchors.
func wholeName(entry string) *regexp.Regexp {
	if _, err := regexp.Compile(entry); err == nil {
		if re, err := regexp.Compile(`(?i)^(?:` + entry + `)$`); err == nil {
			return re
		}
	}
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(entry) + `$`)
}

func (ps PatternSet) Empty() bool {
	return len(ps.patterns) == 0
}

// Sources returns the trimmed entries the set was built from.
func (ps PatternSet) Sources() []string {
	return append([]string(nil), ps.sources...)
}

func (ps PatternSet) Match(name string) bool {
	for _, src := range ps.sources {
		if strings.EqualFold(src, name) {
			return true
		}
	}
	for _, re := range ps.patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// MatchImage matches an executable image name with or without its .exe suffix.
func (ps PatternSet) MatchImage(image string) bool {
	if ps.Match(image) {
		return true
	}
	lower := strings.ToLower(image)
	if base, ok := strings.CutSuffix(lower, ".exe"); ok {
		return ps.Match(base)
	}
	return false
}
