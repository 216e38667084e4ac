package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/prove"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// rcaDocument requires a non-empty root-cause document among the changed
// files of a non-functional change.
type rcaDocument struct{}

func (rcaDocument) Preflight(pctx *prove.Context) error {
	if _, err := path.Match(pctx.Settings.RCAGlob, ""); err != nil {
		return fmt.Errorf("invalid rca_glob %q: %w", pctx.Settings.RCAGlob, err)
	}
	return nil
}

func (rcaDocument) Run(_ context.Context, pctx *prove.Context) (prove.Outcome, error) {
	glob := pctx.Settings.RCAGlob
	var empty []string
	for _, file := range pctx.VCS.ChangedFiles {
		if ok, _ := path.Match(glob, file); !ok {
			continue
		}
		content, err := pctx.ReadFile(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return prove.Outcome{}, fmt.Errorf("reading %s: %w", file, err)
		}
		if !hasProse(content) {
			empty = append(empty, file)
			continue
		}
		return prove.Pass(map[string]interface{}{"document": file}), nil
	}

	details := map[string]interface{}{"glob": glob}
	if len(empty) > 0 {
		details["empty"] = empty
		return prove.Fail("root-cause document is empty: "+strings.Join(empty, ", "), details), nil
	}
	return prove.Fail(fmt.Sprintf("no root-cause document matching %s among changed files", glob), details), nil
}

// hasProse reports whether a markdown document has text outside headings.
// A template with only section headings counts as empty.
func hasProse(source []byte) bool {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if strings.TrimSpace(string(node.Segment.Value(source))) != "" {
				found = true
				return ast.WalkStop, nil
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if n.Lines().Len() > 0 {
				found = true
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}
