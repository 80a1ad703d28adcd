package expansion

import "strings"

// splitLines normalizes line breaks and splits a document into lines. Both
// "\r\n" and "\n" are accepted on input; rewritten documents are always
// joined back with "\n".
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// fenceStack tracks currently-open code fences by depth. Depth is the number
// of backticks beyond the minimum three, so nested fences use progressively
// longer runs.
type fenceStack []int

// toggle processes one fence line of the given depth. A depth not currently
// on the stack opens a new fence; a depth already on the stack closes it and
// implicitly every deeper fence opened since.
func (s fenceStack) toggle(depth int) fenceStack {
	for i, d := range s {
		if d == depth {
			return s[:i]
		}
	}
	return append(s, depth)
}

// ParseReferences scans a document's text and returns every template
// reference it contains, in document order. Reference and terminator markers
// inside fenced code blocks are verbatim text and never recognized; an
// unmatched opening fence suppresses recognition for the remainder of the
// document. An opening marker whose argument object cannot be evaluated, or
// evaluates without a "template" key, is ordinary text.
func ParseReferences(text, sourcePath string) []*TemplateReference {
	lines := splitLines(text)

	var (
		refs   []*TemplateReference
		open   *TemplateReference
		fences fenceStack
	)

	for i, line := range lines {
		if m := fenceRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			fences = fences.toggle(len(m[1]) - 3)
			continue
		}
		if len(fences) > 0 {
			continue
		}

		if m := openMarkerRe.FindStringSubmatch(line); m != nil {
			args, ok := EvalArgs("{" + m[1] + "}")
			if !ok {
				continue
			}
			script, ok := args[ArgTemplateKey].(string)
			if !ok || script == "" {
				continue
			}
			// Opening a new reference while another is open simply leaves
			// the prior one without an end.
			open = &TemplateReference{
				SourcePath: sourcePath,
				ScriptPath: script,
				LineStart:  i,
				Args:       args,
			}
			refs = append(refs, open)
			continue
		}

		if terminatorRe.MatchString(line) {
			if open != nil {
				open.LineEnd = i
				open.HasEnd = true
				open = nil
			}
			// A terminator with no open reference is inert.
		}
	}

	return refs
}
