package expansion

import (
	"fmt"
	"regexp"
	"strings"
)

// ArgTemplateKey is the reserved argument key naming the script a reference
// invokes. An opening marker whose argument object lacks this key is not a
// reference at all.
const ArgTemplateKey = "template"

// TerminatorMarker is the closing marker line emitted after a generated body.
const TerminatorMarker = "%%%%"

var (
	// openMarkerRe matches a full opening marker line and captures the raw
	// argument-object text between the braces.
	openMarkerRe = regexp.MustCompile(`^\s*%%\{(.*)\}%%\s*$`)

	// terminatorRe matches a full terminator line.
	terminatorRe = regexp.MustCompile(`^\s*%%%%\s*$`)

	// fenceRe matches a code-fence line: three or more backticks optionally
	// followed by non-backtick info text. The extra backticks beyond three
	// encode the fence's nesting depth.
	fenceRe = regexp.MustCompile("^(`{3,})[^`]*$")
)

// TemplateReference is one occurrence of a template directive in a document.
// Line indices are 0-based and only valid against the exact line sequence the
// reference was parsed from; any rewrite invalidates them.
type TemplateReference struct {
	// SourcePath identifies the document containing the reference.
	SourcePath string

	// ScriptPath names the script to invoke, possibly relative to SourcePath.
	ScriptPath string

	// LineStart is the index of the opening marker line.
	LineStart int

	// LineEnd is the index of the matching terminator line. It is only
	// meaningful when HasEnd is true; a reference left unterminated at the
	// end of the scan has HasEnd false.
	LineEnd int
	HasEnd  bool

	// Args is the evaluated argument mapping. It always contains ScriptPath
	// under ArgTemplateKey.
	Args map[string]any
}

// Marker renders the opening marker line for a script path and argument
// mapping, suitable for inserting a brand-new reference into a document.
// The template key is emitted first; remaining keys follow in the order given.
func Marker(scriptPath string, extraKeys []string, args map[string]any) string {
	var b strings.Builder
	b.WriteString("%%{ ")
	b.WriteString(fmt.Sprintf("%s: %q", ArgTemplateKey, scriptPath))
	for _, k := range extraKeys {
		if k == ArgTemplateKey {
			continue
		}
		b.WriteString(fmt.Sprintf(", %s: %s", k, formatArgValue(args[k])))
	}
	b.WriteString(" }%%")
	return b.String()
}

func formatArgValue(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ErrorMarker renders the single-line in-document marker used to surface a
// contained script failure. Line breaks in the message are flattened so the
// marker never spans more than one line.
func ErrorMarker(kind, message string) string {
	message = strings.Join(strings.Fields(message), " ")
	return fmt.Sprintf("%%%% %s: %s %%%%", kind, message)
}
