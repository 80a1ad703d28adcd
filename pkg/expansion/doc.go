/*
Package expansion implements the dynamic-template pipeline for plain-text
documents: scanning a document for reference/terminator marker pairs (while
skipping anything inside fenced code blocks of arbitrary nesting depth),
evaluating each reference's argument object, resolving the referenced script
inside the vault, rendering it in a sandboxed template context with a fixed
variable contract, and splicing the output back into the document so that a
later re-expansion regenerates bodies instead of accumulating them.

Script failures never abort a document rewrite: every resolution or render
failure is contained at the sandbox boundary and surfaces as a single inline
error marker in the rewritten text.
*/
package expansion
