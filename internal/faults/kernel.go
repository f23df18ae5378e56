package faults

import (
	"regexp"
	"slices"
	"sort"
	"strings"
)

var (
	endTracePattern   = regexp.MustCompile(kernelLine + ` ---\[ end trace`)
	endPanicPattern   = regexp.MustCompile(kernelLine + ` ---\[ end Kernel panic`)
	ubsanEndPattern   = regexp.MustCompile(`={80}`)
	hardwarePattern   = regexp.MustCompile(kernelLine + ` Hardware name: (.*)`)
	modulesPattern    = regexp.MustCompile(kernelLine + ` Modules linked in:(.*)`)
	callTracePattern  = regexp.MustCompile(`(?i)` + kernelLine + ` call trace:`)
	traceLinePattern  = regexp.MustCompile(`^` + kernelLine + `  (.*)$`)
	kernelLinePattern = regexp.MustCompile(`^` + kernelLine + ` `)

	// genericBannerPattern extracts the report type and location.
	// Format: [    0.3] WARNING: CPU: 0 PID: 0 at arch/x86/kernel/alternative.c:730 apply_returns+0xc0/0x241
	genericBannerPattern = regexp.MustCompile(kernelLine + `.*?([A-Z]+):?.*? at (.*)`)
	kernelMessagePattern = regexp.MustCompile(kernelLine + ` (.*)`)

	nullPointerPattern = regexp.MustCompile(kernelLine + ` (Unable to handle kernel NULL pointer dereference)(?: at virtual address ([0-9a-fA-Fx]+))?`)
	bugPattern         = regexp.MustCompile(kernelLine + ` BUG: (.*)`)
	panicPattern       = regexp.MustCompile(kernelLine + ` Kernel panic .*?: (.*)`)
	ubsanPattern       = regexp.MustCompile(kernelLine + ` UBSAN: (.*?) in (.*)`)

	// errorReturnCodePattern matches a driver reporting a failed call.
	// Format: [    5.1] platform regulatory.0: Direct firmware load for regulatory.db failed with error -2
	errorReturnCodePattern = regexp.MustCompile(kernelLine + ` (?:.*?: )?([^:\n]*? failed with error -\d+)`)
)

// kernelReport holds the details shared by kernel error reports.
type kernelReport struct {
	Hardware  string   `json:"hardware,omitempty"`
	CallTrace []string `json:"call_trace"`
	Modules   []string `json:"modules"`
}

func newKernelReport() kernelReport {
	return kernelReport{CallTrace: []string{}, Modules: []string{}}
}

// extract fills the hardware name, module list and call trace found in
// text and returns the offset right after the last extracted line.
func (r *kernelReport) extract(text string) int {
	end := 0
	if m := hardwarePattern.FindStringSubmatchIndex(text); m != nil {
		r.Hardware = strings.TrimSpace(text[m[2]:m[3]])
		end = max(end, m[1])
	}

	modulesStart := -1
	if m := modulesPattern.FindStringSubmatchIndex(text); m != nil {
		modulesStart = m[0]
		modules := strings.Fields(text[m[2]:m[3]])
		pos := m[1]
		for pos < len(text) {
			line, next := nextLine(text, pos)
			c := traceLinePattern.FindStringSubmatch(line)
			if c == nil {
				break
			}
			modules = append(modules, strings.Fields(c[1])...)
			pos = next
		}
		end = max(end, pos)
		sort.Strings(modules)
		r.Modules = slices.Compact(modules)
	}

	if h := callTracePattern.FindStringIndex(text); h != nil {
		limit := len(text)
		if modulesStart > h[1] {
			limit = modulesStart
		}
		pos := h[1]
		for pos < limit {
			line, next := nextLine(text[:limit], pos)
			if c := traceLinePattern.FindStringSubmatch(line); c != nil {
				r.CallTrace = append(r.CallTrace, strings.TrimSpace(c[1]))
				end = max(end, next)
			} else if len(r.CallTrace) > 0 && kernelLinePattern.MatchString(line) {
				break
			}
			pos = next
		}
	}
	return min(end, len(text))
}

// nextLine returns the line that follows the one containing pos, and the
// offset of the line after it.
func nextLine(text string, pos int) (string, int) {
	nl := strings.IndexByte(text[pos:], '\n')
	if nl == -1 {
		return "", len(text)
	}
	start := pos + nl + 1
	end := strings.IndexByte(text[start:], '\n')
	if end == -1 {
		return strings.TrimRight(text[start:], "\r"), len(text)
	}
	return strings.TrimRight(text[start:start+end], "\r"), start + end
}

// lineEnd returns the offset of the end of the line containing pos.
func lineEnd(text string, pos int) int {
	if i := strings.IndexByte(text[pos:], '\n'); i != -1 {
		return pos + i
	}
	return len(text)
}

// reportBounds splits text at the end delimiter. It returns the report
// body and whether the delimiter was found.
func reportBounds(text string, delimiter *regexp.Regexp, from int) (string, bool) {
	if loc := delimiter.FindStringIndex(text[from:]); loc != nil {
		return text[:from+loc[0]], true
	}
	return text, false
}

// closeReport returns where a report ends: at the delimiter when found,
// otherwise after the last extracted element and never before the end of
// the banner line.
func closeReport(body string, delimited bool, bannerEnd, extracted int) int {
	if delimited {
		return len(body)
	}
	return max(bannerEnd, extracted)
}

// KernelGenericError is a "cut here" kernel report such as a WARNING.
type KernelGenericError struct {
	Base
	kernelReport
	Location string `json:"location,omitempty"`
}

func newKernelGenericError() *KernelGenericError {
	return &KernelGenericError{
		Base:         newBase("linux.kernel", "location"),
		kernelReport: newKernelReport(),
	}
}

func (e *KernelGenericError) parse(text string) int {
	bannerEnd := lineEnd(text, 0)
	body, delimited := reportBounds(text, endTracePattern, bannerEnd)
	msg := body[bannerEnd:]
	e.Excerpt = strings.TrimPrefix(msg, "\n")

	extracted := 0
	if m := genericBannerPattern.FindStringSubmatchIndex(msg); m != nil {
		e.ErrorType += "." + strings.ToLower(msg[m[2]:m[3]])
		e.Location = strings.TrimSpace(msg[m[4]:m[5]])
		if s := kernelMessagePattern.FindStringSubmatch(msg[:m[0]]); s != nil {
			e.ErrorSummary = strings.TrimSpace(s[1])
		}
		extracted = bannerEnd + m[1]
	}
	extracted = max(extracted, bannerEnd+e.extract(msg))
	return closeReport(body, delimited, bannerEnd, extracted)
}

// NullPointerDereference is a NULL pointer dereference report.
type NullPointerDereference struct {
	Base
	kernelReport
	Address string `json:"address,omitempty"`
}

func newNullPointerDereference() *NullPointerDereference {
	return &NullPointerDereference{
		Base:         newBase("linux.kernel.null_pointer_dereference", "address"),
		kernelReport: newKernelReport(),
	}
}

func (e *NullPointerDereference) parse(text string) int {
	bannerEnd := lineEnd(text, 0)
	body, delimited := reportBounds(text, endTracePattern, bannerEnd)
	e.Excerpt = body
	if m := nullPointerPattern.FindStringSubmatch(body); m != nil {
		e.ErrorSummary = m[1]
		e.Address = m[2]
	}
	return closeReport(body, delimited, bannerEnd, e.extract(body))
}

// KernelBug is a "BUG:" report. Its location is reported but is not part
// of the signature.
type KernelBug struct {
	Base
	kernelReport
	Location string `json:"location,omitempty"`
}

func newKernelBug() *KernelBug {
	return &KernelBug{
		Base:         newBase("linux.kernel.bug"),
		kernelReport: newKernelReport(),
	}
}

func (e *KernelBug) parse(text string) int {
	bannerEnd := lineEnd(text, 0)
	body, delimited := reportBounds(text, endTracePattern, bannerEnd)
	e.Excerpt = body
	if m := bugPattern.FindStringSubmatch(body); m != nil {
		message := strings.TrimSpace(m[1])
		if cause, location, ok := strings.Cut(message, " at "); ok {
			e.ErrorSummary = cause
			e.Location = location
		} else {
			e.ErrorSummary = message
		}
	}
	return closeReport(body, delimited, bannerEnd, e.extract(body))
}

// KernelPanic is a "Kernel panic" report.
type KernelPanic struct {
	Base
	kernelReport
}

func newKernelPanic() *KernelPanic {
	return &KernelPanic{
		Base:         newBase("linux.kernel.panic"),
		kernelReport: newKernelReport(),
	}
}

func (e *KernelPanic) parse(text string) int {
	bannerEnd := lineEnd(text, 0)
	body, delimited := reportBounds(text, endPanicPattern, bannerEnd)
	e.Excerpt = body
	if m := panicPattern.FindStringSubmatch(body); m != nil {
		e.ErrorSummary = strings.TrimSpace(m[1])
	}
	return closeReport(body, delimited, bannerEnd, e.extract(body))
}

// UBSANError is an undefined behavior sanitizer report.
type UBSANError struct {
	Base
	kernelReport
	Location string `json:"location,omitempty"`
}

func newUBSANError() *UBSANError {
	return &UBSANError{
		Base:         newBase("linux.kernel.ubsan", "location"),
		kernelReport: newKernelReport(),
	}
}

func (e *UBSANError) parse(text string) int {
	bannerEnd := lineEnd(text, 0)
	body, delimited := reportBounds(text, ubsanEndPattern, bannerEnd)
	e.Excerpt = body
	if m := ubsanPattern.FindStringSubmatchIndex(body); m != nil {
		e.ErrorSummary = strings.TrimSpace(body[m[2]:m[3]])
		e.Location = strings.TrimSpace(body[m[4]:m[5]])
		details, _ := nextLine(body, m[0])
		if d := kernelMessagePattern.FindStringSubmatch(details); d != nil && !strings.HasPrefix(d[1], "CPU:") {
			e.ErrorSummary += ": " + strings.TrimSpace(d[1])
		}
	}
	return closeReport(body, delimited, bannerEnd, e.extract(body))
}

// ErrorReturnCode is a kernel message reporting a failed call and its
// error code.
type ErrorReturnCode struct {
	Base
}

func newErrorReturnCode() *ErrorReturnCode {
	return &ErrorReturnCode{Base: newBase("linux.kernel.error_return_code")}
}

func (e *ErrorReturnCode) parse(text string) int {
	m := errorReturnCodePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return 0
	}
	e.ErrorSummary = strings.TrimSpace(text[m[2]:m[3]])
	e.Excerpt = text[m[0]:m[1]]
	return m[1]
}

// kernelReportKind ties a report banner to the variant that parses it.
type kernelReportKind struct {
	group  string
	banner string
	build  func() Error
}

// kernelReportKinds is ordered: when banners overlap, the first listed wins.
var kernelReportKinds = []kernelReportKind{
	{"cut_here", kernelLine + ` -+\[ cut here \].*`, func() Error { return newKernelGenericError() }},
	{"null_pointer", kernelLine + ` Unable to handle kernel NULL pointer dereference`, func() Error { return newNullPointerDereference() }},
	{"bug", kernelLine + ` BUG:`, func() Error { return newKernelBug() }},
	{"kernel_panic", kernelLine + ` Kernel panic`, func() Error { return newKernelPanic() }},
	{"ubsan", kernelLine + ` UBSAN:`, func() Error { return newUBSANError() }},
}

var kernelReportPattern = func() *regexp.Regexp {
	alternatives := make([]string, len(kernelReportKinds))
	for i, kind := range kernelReportKinds {
		alternatives[i] = `(?P<` + kind.group + `>` + kind.banner + `)`
	}
	return regexp.MustCompile(strings.Join(alternatives, "|"))
}()

// FindKernelError looks for the first kernel error in text, either a report
// block or an error return code line, and returns it with the offset where
// it ends. The offset is always past the start of the match.
func FindKernelError(text string) (Error, int, bool) {
	report := kernelReportPattern.FindStringSubmatchIndex(text)
	rc := errorReturnCodePattern.FindStringIndex(text)

	if rc != nil && (report == nil || rc[0] < report[0]) {
		e := newErrorReturnCode()
		end := Parse(e, text[rc[0]:])
		return e, rc[0] + end, true
	}
	if report == nil {
		return nil, 0, false
	}

	start := report[0]
	var e Error
	for _, kind := range kernelReportKinds {
		idx := kernelReportPattern.SubexpIndex(kind.group)
		if report[2*idx] != -1 {
			e = kind.build()
			break
		}
	}

	// A report without its own end delimiter never extends into the next one.
	window := text[start:]
	bannerEnd := lineEnd(window, 0)
	if next := kernelReportPattern.FindStringIndex(window[bannerEnd:]); next != nil {
		window = window[:bannerEnd+next[0]]
	}
	end := Parse(e, window)
	return e, start + max(end, bannerEnd), true
}
