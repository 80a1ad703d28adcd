package expansion

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(tb testing.TB, files map[string]string) *Engine {
	tb.Helper()
	return NewEngine(testLogger(), newTestVault(tb, files), nil, DefaultConfig())
}

func TestExpand_EndToEnd(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "My name is {{.Input.name}}.",
	})

	in := "%%{ template: 'greet.tmpl', name: 'Nate' }%%\n%%%%\n"
	want := "%%{ template: 'greet.tmpl', name: 'Nate' }%%\nMy name is Nate.\n%%%%\n"

	result := e.Expand(context.Background(), in, "note.md")
	assert.Equal(t, want, result.Text)
	assert.True(t, result.HadReferences)
	assert.Equal(t, []string{"greet.tmpl"}, result.UsedScripts)
	assert.Empty(t, result.RemovedScripts)
}

func TestExpand_MissingScript(t *testing.T) {
	e := newTestEngine(t, nil)

	in := "%%{ template: 'missing.js' }%%\n%%%%\n"

	result := e.Expand(context.Background(), in, "note.md")
	assert.Equal(t, "%%{ template: 'missing.js' }%%\n%%%%\n", result.Text,
		"an unresolved script leaves no generated body between the markers")
	assert.True(t, result.HadReferences)
	assert.Empty(t, result.UsedScripts)
	assert.Equal(t, []string{"missing.js"}, result.RemovedScripts)
}

func TestExpand_Idempotence(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "My name is {{.Input.name}}.",
		"stamp.tmpl": "stamped",
	})

	in := strings.Join([]string{
		"intro",
		"%%{ template: 'greet.tmpl', name: 'Ada' }%%",
		"%%%%",
		"middle",
		"%%{ template: 'stamp.tmpl' }%%",
		"old stale body",
		"%%%%",
		"outro",
		"",
	}, "\n")

	first := e.Expand(context.Background(), in, "note.md")
	second := e.Expand(context.Background(), first.Text, "note.md")

	assert.Equal(t, first.Text, second.Text, "re-expansion must replace bodies, never duplicate them")

	refsFirst := ParseReferences(first.Text, "note.md")
	refsSecond := ParseReferences(second.Text, "note.md")
	require.Len(t, refsFirst, 2)
	require.Len(t, refsSecond, 2)
	for i := range refsFirst {
		assert.Equal(t, refsFirst[i].LineStart, refsSecond[i].LineStart)
	}
}

func TestExpand_ErrorContainment(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"boom.tmpl":  `{{fail "kaput"}}`,
		"greet.tmpl": "My name is {{.Input.name}}.",
	})

	in := strings.Join([]string{
		"%%{ template: 'boom.tmpl' }%%",
		"%%%%",
		"between",
		"%%{ template: 'greet.tmpl', name: 'Nate' }%%",
		"%%%%",
		"",
	}, "\n")

	result := e.Expand(context.Background(), in, "note.md")
	lines := strings.Split(result.Text, "\n")

	require.Len(t, lines, 8)
	assert.Equal(t, "%%{ template: 'boom.tmpl' }%%", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "%% ") && strings.Contains(lines[1], "kaput"),
		"failing script must leave exactly one inline error marker, got %q", lines[1])
	assert.Equal(t, "%%%%", lines[2])
	assert.Equal(t, "between", lines[3])
	assert.Equal(t, "My name is Nate.", lines[5], "expansion must continue past a failure")

	// A contained failure still counts as a use: the script resolved.
	assert.Equal(t, []string{"boom.tmpl", "greet.tmpl"}, result.UsedScripts)
}

func TestExpand_NoReferences(t *testing.T) {
	e := newTestEngine(t, nil)

	in := "plain text\r\nwith odd line breaks\nand a lone %%%% terminator\n"
	result := e.Expand(context.Background(), in, "note.md")

	assert.False(t, result.HadReferences)
	assert.Equal(t, in, result.Text, "a document without references is untouched, byte for byte")
}

func TestExpand_EmptyScriptOutput(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"quiet.tmpl": "",
	})

	in := "%%{ template: 'quiet.tmpl' }%%\nold body\n%%%%\n"
	result := e.Expand(context.Background(), in, "note.md")

	assert.Equal(t, "%%{ template: 'quiet.tmpl' }%%\n%%%%\n", result.Text,
		"empty output drops the old body and keeps the marker pair")
	assert.Equal(t, []string{"quiet.tmpl"}, result.UsedScripts)
}

func TestExpand_UnterminatedReference(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "hello",
	})

	in := "%%{ template: 'greet.tmpl' }%%\ntrailing text stays\n"
	result := e.Expand(context.Background(), in, "note.md")

	assert.Equal(t, "%%{ template: 'greet.tmpl' }%%\nhello\n%%%%\ntrailing text stays\n", result.Text,
		"an unterminated reference gets a body and a synthesized terminator without consuming what follows")
}

func TestExpand_FencedReferencesUntouched(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "hello",
	})

	in := "```\n%%{ template: 'greet.tmpl' }%%\n%%%%\n```\n"
	result := e.Expand(context.Background(), in, "note.md")

	assert.False(t, result.HadReferences)
	assert.Equal(t, in, result.Text)
}

func TestExpand_MultilineBody(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"multi.tmpl": "line one\nline two",
	})

	in := "%%{ template: 'multi.tmpl' }%%\n%%%%\n"
	result := e.Expand(context.Background(), in, "note.md")

	assert.Equal(t, "%%{ template: 'multi.tmpl' }%%\nline one\nline two\n%%%%\n", result.Text)
}

func TestExpand_DuplicateScriptRecordedOnce(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "hi",
	})

	in := strings.Join([]string{
		"%%{ template: 'greet.tmpl' }%%",
		"%%%%",
		"%%{ template: 'greet.tmpl' }%%",
		"%%%%",
		"",
	}, "\n")

	result := e.Expand(context.Background(), in, "note.md")
	assert.Equal(t, []string{"greet.tmpl"}, result.UsedScripts)
}

func TestExpand_Golden(t *testing.T) {
	e := newTestEngine(t, map[string]string{
		"greet.tmpl": "Hello, {{.Input.name}}!",
		"sign.tmpl":  "-- {{.Input.author}}",
	})

	in := strings.Join([]string{
		"# Page",
		"",
		"%%{ template: 'greet.tmpl', name: 'Ada' }%%",
		"stale",
		"%%%%",
		"",
		"```text",
		"%%{ template: 'greet.tmpl', name: 'Fenced' }%%",
		"```",
		"",
		"%%{ template: 'missing.tmpl' }%%",
		"%%%%",
		"",
		"%%{ template: 'sign.tmpl', author: 'vellum' }%%",
		"",
	}, "\n")

	result := e.Expand(context.Background(), in, "notes/page.md")

	g := goldie.New(t)
	g.Assert(t, "expand_mixed", []byte(result.Text))

	// The golden output is a fixed point.
	again := e.Expand(context.Background(), result.Text, "notes/page.md")
	g.Assert(t, "expand_mixed", []byte(again.Text))
}
