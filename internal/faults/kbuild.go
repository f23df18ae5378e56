package faults

import (
	"path"
	"regexp"
	"strings"
)

var (
	// makeErrorPattern matches the make failure line.
	// Format: make[6]: *** [scripts/Makefile.build:244: drivers/foo.o] Error 1
	makeErrorPattern = regexp.MustCompile(`make.*?: \*\*\* (.*)`)

	// makeTargetPattern extracts the failing script and target from the message.
	makeTargetPattern = regexp.MustCompile(`\[(.*?): (.*?)\] Error`)

	// compilerMessagePattern matches a compiler diagnostic.
	// Format: drivers/foo.c:12:3: error: message
	compilerMessagePattern = regexp.MustCompile(`(?m)^([^\s:]+):(\d+(?::\d+)?): ((?:fatal )?error|warning): (.*)$`)

	// linkerObjectPattern matches the linker line naming the failing object.
	// Format: arm-linux-gnueabihf-ld: kernel/rcu/update.o: in function `foo':
	linkerObjectPattern = regexp.MustCompile(`(?m)ld: (\S+\.o): .*$`)

	// linkerMessagePattern matches the linker diagnostic inside an object.
	// Format: update.c:(.text+0x318): undefined reference to `bar'
	linkerMessagePattern = regexp.MustCompile(`(?m)^(?:\S*ld: )?([^\s:()]+):\(([^)]*)\): (.*)$`)

	// modpostPattern matches a modpost error line.
	modpostPattern = regexp.MustCompile(`ERROR: modpost: (.*)`)

	// processPattern matches a line-leading "***" make message.
	processPattern = regexp.MustCompile(`(?m)^\*\*\*(.*)$`)

	// unindentedLinePattern matches the first line that starts in column zero.
	unindentedLinePattern = regexp.MustCompile(`(?m)^\S`)

	// errorMentionPattern matches a block line that reports a failure.
	errorMentionPattern = regexp.MustCompile(`(?mi)^(?:\*\*\*.*|.*\berror\b.*|.*undefined reference.*)$`)
)

// KbuildCompilerError is a compiler or linker failure.
type KbuildCompilerError struct {
	Base
	Script   string `json:"script"`
	Target   string `json:"target"`
	SrcFile  string `json:"src_file"`
	Location string `json:"location"`
}

// KbuildModpostError is a modpost failure.
type KbuildModpostError struct {
	Base
	Script string `json:"script"`
	Target string `json:"target"`
}

// KbuildProcessError is a failure of the build process itself, such as a
// configuration that cannot produce the requested target.
type KbuildProcessError struct {
	Base
	Script string `json:"script"`
	Target string `json:"target"`
}

// KbuildGenericError is a make failure that matches no specific rule.
type KbuildGenericError struct {
	Base
	Script string `json:"script"`
	Target string `json:"target"`
}

// KbuildUnknownError is a make failure without a [script: target] tag.
type KbuildUnknownError struct {
	Base
}

func newKbuildCompilerError(script, target string) *KbuildCompilerError {
	return &KbuildCompilerError{
		Base:   newBase("kbuild.compiler", "src_file", "location", "target"),
		Script: script,
		Target: target,
	}
}

// parse looks for the diagnostic that broke the target, first as a line
// starting with the target stem, then inside the output block that follows
// the target in the build log.
func (e *KbuildCompilerError) parse(text string) int {
	stem := strings.TrimSuffix(e.Target, path.Ext(e.Target))
	if stem != "" {
		pattern := regexp.MustCompile(`(?m)^(` + regexp.QuoteMeta(stem) + `.*?):(.*?): (.*?): (.*)$`)
		if m := preferErrors(pattern.FindAllStringSubmatchIndex(text, -1), text, 3); m != nil {
			e.SrcFile = text[m[2]:m[3]]
			e.Location = text[m[4]:m[5]]
			e.ErrorType = "kbuild.compiler." + typeSuffix(text[m[6]:m[7]])
			e.ErrorSummary = strings.TrimSpace(text[m[8]:m[9]])
			e.Excerpt = text[m[0]:]
			return len(text)
		}
	}

	block, ok := blockAfter(text, e.Target)
	if !ok {
		return 0
	}
	e.Excerpt = block

	if m := preferErrors(compilerMessagePattern.FindAllStringSubmatchIndex(block, -1), block, 3); m != nil {
		e.SrcFile = block[m[2]:m[3]]
		e.Location = block[m[4]:m[5]]
		e.ErrorType = "kbuild.compiler." + typeSuffix(block[m[6]:m[7]])
		e.ErrorSummary = strings.TrimSpace(block[m[8]:m[9]])
		return len(text)
	}

	if obj := linkerObjectPattern.FindStringSubmatchIndex(block); obj != nil {
		object := block[obj[2]:obj[3]]
		rest := block[obj[1]:]
		if m := linkerMessagePattern.FindStringSubmatch(rest); m != nil {
			src := m[1]
			if !strings.Contains(src, "/") && strings.Contains(object, "/") {
				src = path.Join(path.Dir(object), src)
			}
			e.SrcFile = src
			e.Location = m[2]
			e.ErrorType = "kbuild.compiler.linker_error"
			e.ErrorSummary = strings.TrimSpace(m[3])
		}
	}
	return len(text)
}

// preferErrors returns the first match whose group typeGroup mentions an
// error, falling back to the first match.
func preferErrors(matches [][]int, text string, typeGroup int) []int {
	if len(matches) == 0 {
		return nil
	}
	for _, m := range matches {
		if strings.Contains(text[m[2*typeGroup]:m[2*typeGroup+1]], "error") {
			return m
		}
	}
	return matches[0]
}

func typeSuffix(diagnostic string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(diagnostic)), " ", "_")
}

func newKbuildModpostError(script, target string) *KbuildModpostError {
	return &KbuildModpostError{
		Base:   newBase("kbuild.modpost", "target"),
		Script: script,
		Target: target,
	}
}

func (e *KbuildModpostError) parse(text string) int {
	matches := modpostPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return 0
	}
	var messages, lines []string
	for _, m := range matches {
		messages = append(messages, strings.TrimSpace(text[m[2]:m[3]]))
		lines = append(lines, text[m[0]:m[1]])
	}
	e.ErrorSummary = strings.Join(messages, " ")
	e.Excerpt = strings.Join(lines, "\n")
	return matches[len(matches)-1][1]
}

func newKbuildProcessError(script, target string) *KbuildProcessError {
	return &KbuildProcessError{
		Base:   newBase("kbuild.make", "target"),
		Script: script,
		Target: target,
	}
}

func (e *KbuildProcessError) parse(text string) int {
	summary, excerpt, end := makeMessages(text)
	e.ErrorSummary = summary
	e.Excerpt = excerpt
	return end
}

// makeMessages collects the "***" messages make prints around a failure,
// with the decoration stripped and empty ones skipped.
func makeMessages(text string) (summary, excerpt string, end int) {
	var messages, lines []string
	for _, m := range processPattern.FindAllStringSubmatchIndex(text, -1) {
		msg := stripStars(text[m[2]:m[3]])
		if msg == "" {
			continue
		}
		messages = append(messages, msg)
		lines = append(lines, text[m[0]:m[1]])
		end = m[1]
	}
	return strings.Join(messages, " "), strings.Join(lines, "\n"), end
}

func stripStars(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*"))
}

func newKbuildGenericError(script, target string) *KbuildGenericError {
	return &KbuildGenericError{
		Base:   newBase("kbuild.other", "target"),
		Script: script,
		Target: target,
	}
}

func (e *KbuildGenericError) parse(text string) int {
	block, ok := blockAfter(text, e.Target)
	if !ok {
		block = text
	}
	e.Excerpt = block
	for _, line := range errorMentionPattern.FindAllString(block, -1) {
		if msg := stripStars(line); msg != "" {
			e.ErrorSummary = msg
			return len(text)
		}
	}
	e.ErrorSummary, _, _ = makeMessages(text)
	return len(text)
}

// blockAfter returns the output block that follows the line naming target:
// everything from the first unindented line after it.
func blockAfter(text, target string) (string, bool) {
	if target == "" {
		return "", false
	}
	idx := strings.Index(text, target)
	if idx == -1 {
		return "", false
	}
	nl := strings.IndexByte(text[idx:], '\n')
	if nl == -1 {
		return "", false
	}
	after := text[idx+nl+1:]
	loc := unindentedLinePattern.FindStringIndex(after)
	if loc == nil {
		return "", false
	}
	return after[loc[0]:], true
}

func newKbuildUnknownError() *KbuildUnknownError {
	return &KbuildUnknownError{Base: newBase("kbuild.unknown")}
}

func (e *KbuildUnknownError) parse(text string) int {
	e.ErrorSummary = strings.TrimSpace(text)
	e.Excerpt = text
	return len(text)
}

// kbuildRule classifies a make failure by its script and target. before is
// the log text that precedes the make failure line.
type kbuildRule struct {
	match func(script, target, before string) bool
	build func(script, target string) Error
}

// kbuildRules is evaluated in order; the first matching rule wins and the
// last one matches everything.
var kbuildRules = []kbuildRule{
	{
		match: isCompilerTarget,
		build: func(script, target string) Error { return newKbuildCompilerError(script, target) },
	},
	{
		match: func(script, _, _ string) bool { return strings.Contains(script, "modpost") },
		build: func(script, target string) Error { return newKbuildModpostError(script, target) },
	},
	{
		match: func(_, target, _ string) bool { return target == "modules" || target == "Module.symvers" },
		build: func(script, target string) Error { return newKbuildProcessError(script, target) },
	},
	{
		match: func(_, _, _ string) bool { return true },
		build: func(script, target string) Error { return newKbuildGenericError(script, target) },
	},
}

// isCompilerTarget reports whether target is a compiler output, either by
// extension or because its basename shows up as a diagnostic prefix earlier
// in the log.
func isCompilerTarget(_, target, before string) bool {
	switch path.Ext(target) {
	case ".o", ".s":
		return true
	}
	base := path.Base(target)
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return false
	}
	return regexp.MustCompile(regexp.QuoteMeta(base) + `(\.\w+)?:`).MatchString(before)
}

// FindKbuildError looks for the first make failure in text and returns the
// fault describing it together with the offset right after the make line.
// A make failure always yields a fault.
func FindKbuildError(text string) (Error, int, bool) {
	loc := makeErrorPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, 0, false
	}
	message := strings.TrimRight(text[loc[2]:loc[3]], "\r")
	before := text[:loc[0]]

	m := makeTargetPattern.FindStringSubmatch(message)
	if m == nil {
		e := newKbuildUnknownError()
		Parse(e, message)
		return e, loc[1], true
	}
	script, target := m[1], m[2]
	for _, rule := range kbuildRules {
		if rule.match(script, target, before) {
			e := rule.build(script, target)
			Parse(e, before)
			return e, loc[1], true
		}
	}
	return nil, 0, false
}
