package cfg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydra-analyzer/hydra/internal/ast"
)

func TestBuildStraightLine(t *testing.T) {
	fn := &ast.Function{
		Body: []ast.Statement{
			&ast.LetStmt{Name: "x", Expr: ast.NewIntLiteral(1)},
			&ast.ReturnStmt{},
		},
	}
	g := Build(fn)
	require.Len(t, g.Exits(), 1)
	require.Empty(t, g.Block(g.Exits()[0]).Succ)
}

func TestBuildIfElseMerges(t *testing.T) {
	fn := &ast.Function{
		Body: []ast.Statement{
			&ast.IfStmt{
				Cond: ast.NewIntLiteral(1),
				Then: []ast.Statement{&ast.LetStmt{Name: "a", Expr: ast.NewIntLiteral(1)}},
				Else: []ast.Statement{&ast.LetStmt{Name: "b", Expr: ast.NewIntLiteral(2)}},
			},
			&ast.ReturnStmt{},
		},
	}
	g := Build(fn)
	// entry -> then, entry -> else, then -> merge, else -> merge, merge -> exit(return).
	require.Len(t, g.Block(g.Entry).Succ, 2)
	kinds := map[EdgeKind]bool{}
	for _, e := range g.Block(g.Entry).Succ {
		kinds[e.Kind] = true
	}
	require.True(t, kinds[EdgeTrue])
	require.True(t, kinds[EdgeFalse])
	require.Len(t, g.Exits(), 1)
}

func TestBuildWhileHasBackEdge(t *testing.T) {
	fn := &ast.Function{
		Body: []ast.Statement{
			&ast.WhileStmt{
				Cond: ast.NewIntLiteral(1),
				Body: []ast.Statement{&ast.LetStmt{Name: "x", Expr: ast.NewIntLiteral(1)}},
			},
			&ast.ReturnStmt{},
		},
	}
	g := Build(fn)
	var header *Block
	for _, b := range g.Blocks {
		if b.IsLoopHeader {
			header = b
		}
	}
	require.NotNil(t, header)

	foundBack := false
	for _, b := range g.Blocks {
		for _, e := range b.Succ {
			if e.Kind == EdgeBack && e.To == header.ID {
				foundBack = true
			}
		}
	}
	require.True(t, foundBack, "loop body must have a back-edge into the header")
}

func TestReversePostOrderStartsAtEntry(t *testing.T) {
	fn := &ast.Function{
		Body: []ast.Statement{
			&ast.WhileStmt{Cond: ast.NewIntLiteral(1), Body: []ast.Statement{}},
			&ast.ReturnStmt{},
		},
	}
	g := Build(fn)
	order := g.ReversePostOrder()
	require.Equal(t, g.Entry, order[0])
}
