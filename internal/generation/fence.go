package generation

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// fenceLine matches a line that only opens or closes a code fence.
var fenceLine = regexp.MustCompile("(?m)^[ \t]*(```|~~~)[\\w+#.-]*[ \t]*$\n?")

// StripCodeFences returns the code inside a model reply. When the reply
// contains fenced code blocks the longest one wins and any surrounding
// prose is dropped; otherwise stray fence lines are removed. The result is
// trimmed of surrounding whitespace.
func StripCodeFences(reply string) string {
	src := []byte(reply)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var best string
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(src))
		}
		if code := sb.String(); !found || len(code) > len(best) {
			best = code
		}
		found = true
		return ast.WalkSkipChildren, nil
	})

	if found {
		return strings.TrimSpace(best)
	}
	return strings.TrimSpace(fenceLine.ReplaceAllString(reply, ""))
}
