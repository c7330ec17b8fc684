package likec

import (
	"fmt"
	"io"
	"strings"
)

// Print writes the C rendition of the tree to w.
func (tree *Tree) Print(w io.Writer) error {
	p := &printer{w: w}
	for i, f := range tree.Root.Funcs {
		if i != 0 {
			p.println("")
		}
		p.printFunc(f)
	}
	return p.err
}

// String returns the C rendition of the tree.
func (tree *Tree) String() string {
	buf := &strings.Builder{}
	// A strings.Builder never errors.
	_ = tree.Print(buf)
	return buf.String()
}

// printer renders tree nodes as C.
type printer struct {
	w   io.Writer
	err error
}

// println writes one output line.
func (p *printer) println(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

// printFunc renders a function definition.
func (p *printer) printFunc(f *FuncDef) {
	for _, line := range f.Comment {
		p.println("// %s", line)
	}
	params := make([]string, len(f.Params))
	for i, param := range f.Params {
		params[i] = fmt.Sprintf("%s %s", param.Type, param.Name)
	}
	p.println("%s %s(%s) {", f.RetType, f.Name, strings.Join(params, ", "))
	for _, stmt := range f.Body {
		p.printStmt(stmt)
	}
	p.println("}")
}

// printStmt renders a statement.
func (p *printer) printStmt(stmt Statement) {
	switch stmt := stmt.(type) {
	case *Label:
		p.println("%s:", stmt.Name)
	case *ExprStmt:
		p.println("\t%s;", exprString(stmt.X))
	case *Goto:
		p.println("\t%s;", gotoString(stmt))
	case *If:
		if stmt.Else != nil {
			p.println("\tif (%s) %s; else %s;", exprString(stmt.Cond), gotoString(stmt.Then), gotoString(stmt.Else))
		} else {
			p.println("\tif (%s) %s;", exprString(stmt.Cond), gotoString(stmt.Then))
		}
	case *Ret:
		if stmt.Value != nil {
			p.println("\treturn %s;", exprString(stmt.Value))
		} else {
			p.println("\treturn;")
		}
	case *CommentStmt:
		p.println("\t/* %s */", stmt.Text)
	case *AsmStmt:
		p.println("\t__asm__(\"%s\");", stmt.Text)
	default:
		p.println("\t/* unsupported statement %T */", stmt)
	}
}

// ### [ Helper functions ] ####################################################

// gotoString renders a goto statement.
func gotoString(stmt *Goto) string {
	if stmt.Addr != nil {
		return fmt.Sprintf("goto *%s", exprString(stmt.Addr))
	}
	return fmt.Sprintf("goto %s", stmt.Label)
}

// exprString renders an expression.
func exprString(x Expression) string {
	switch x := x.(type) {
	case *Ident:
		return x.Name
	case *IntLit:
		return fmt.Sprintf("%#x", x.Value)
	case *Unary:
		return fmt.Sprintf("%s(%s)", x.Op, exprString(x.X))
	case *Binary:
		return fmt.Sprintf("(%s %s %s)", exprString(x.X), x.Op, exprString(x.Y))
	case *Deref:
		return fmt.Sprintf("*(%s)", exprString(x.Addr))
	case *Assign:
		return fmt.Sprintf("%s = %s", exprString(x.Left), exprString(x.Right))
	case *CallExpr:
		args := make([]string, len(x.Args))
		for i, arg := range x.Args {
			args[i] = exprString(arg)
		}
		return fmt.Sprintf("%s(%s)", exprString(x.Fun), strings.Join(args, ", "))
	}
	return fmt.Sprintf("/* unsupported expression %T */", x)
}
