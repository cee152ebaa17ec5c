package cfg

import "github.com/hydra-analyzer/hydra/internal/ast"

// Build converts a Function's body into a Graph (spec.md §4.1).
func Build(fn *ast.Function) *Graph {
	b := &builder{}
	entry := b.newBlock()
	open := b.build(fn.Body, entry)
	if open >= 0 {
		// Falling off the end of the function body is an implicit
		// return; the block is already a valid exit (no successors).
		_ = open
	}
	return &Graph{Blocks: b.blocks, Entry: entry}
}

type builder struct {
	blocks []*Block
}

func (b *builder) newBlock() int {
	id := len(b.blocks)
	b.blocks = append(b.blocks, &Block{ID: id})
	return id
}

func (b *builder) addSucc(from int, to int, kind EdgeKind) {
	b.blocks[from].Succ = append(b.blocks[from].Succ, Edge{To: to, Kind: kind})
}

// build emits statements starting at block `curr`, returning the ID of
// the still-open block that control falls through to after the last
// statement, or -1 if the list definitely ends in Return/Abort (so
// there is nothing for a caller to fall through into).
func (b *builder) build(stmts []ast.Statement, curr int) int {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ast.IfStmt:
			b.blocks[curr].Stmts = append(b.blocks[curr].Stmts, st)
			thenEntry := b.newBlock()
			b.addSucc(curr, thenEntry, EdgeTrue)
			thenExit := b.build(st.Then, thenEntry)

			if len(st.Else) == 0 {
				// No else branch: the false edge falls straight through
				// to whatever comes after the if. "after" always exists
				// and is reachable (at minimum via the false edge), so
				// the if as a whole never terminates control flow here.
				after := b.newBlock()
				b.addSucc(curr, after, EdgeFalse)
				if thenExit >= 0 {
					b.addSucc(thenExit, after, EdgeFallthrough)
				}
				curr = after
				break
			}

			elseEntry := b.newBlock()
			b.addSucc(curr, elseEntry, EdgeFalse)
			elseExit := b.build(st.Else, elseEntry)

			switch {
			case thenExit < 0 && elseExit < 0:
				// Both branches return/abort: nothing falls through.
				return -1
			case thenExit < 0:
				curr = elseExit
			case elseExit < 0:
				curr = thenExit
			default:
				merge := b.newBlock()
				b.addSucc(thenExit, merge, EdgeFallthrough)
				b.addSucc(elseExit, merge, EdgeFallthrough)
				curr = merge
			}

		case *ast.WhileStmt:
			b.blocks[curr].Stmts = append(b.blocks[curr].Stmts, st)
			header := b.newBlock()
			b.blocks[header].IsLoopHeader = true
			b.addSucc(curr, header, EdgeFallthrough)

			bodyEntry := b.newBlock()
			b.addSucc(header, bodyEntry, EdgeTrue)
			bodyExit := b.build(st.Body, bodyEntry)
			if bodyExit >= 0 {
				b.addSucc(bodyExit, header, EdgeBack)
			}

			after := b.newBlock()
			b.addSucc(header, after, EdgeFalse)
			curr = after

		case *ast.ReturnStmt:
			b.blocks[curr].Stmts = append(b.blocks[curr].Stmts, st)
			return -1

		case *ast.AbortStmt:
			b.blocks[curr].Stmts = append(b.blocks[curr].Stmts, st)
			return -1

		case *ast.BlockStmt:
			next := b.build(st.Stmts, curr)
			if next < 0 {
				return -1
			}
			curr = next

		default:
			b.blocks[curr].Stmts = append(b.blocks[curr].Stmts, st)
		}
	}
	return curr
}
