package ir

import (
	"fmt"

	"github.com/mewmew/rev/arch"
)

// TermKind is the kind tag of a term; dispatch in the analyses switches on
// it.
type TermKind uint8

// Term kinds.
const (
	// TermIntConst is an integer constant.
	TermIntConst TermKind = iota + 1
	// TermIntrinsic is a value computed by an opaque machine primitive.
	TermIntrinsic
	// TermUndefined is a value with no definition.
	TermUndefined
	// TermMemoryLocationAccess is an access to a statically known storage
	// slot.
	TermMemoryLocationAccess
	// TermDereference is an access through a computed address.
	TermDereference
	// TermUnaryOperator applies a unary operator to an operand.
	TermUnaryOperator
	// TermBinaryOperator applies a binary operator to two operands.
	TermBinaryOperator
	// TermChoice is a value recovered from two candidate sources.
	TermChoice
)

// String returns the string representation of the term kind.
func (kind TermKind) String() string {
	switch kind {
	case TermIntConst:
		return "const"
	case TermIntrinsic:
		return "intrinsic"
	case TermUndefined:
		return "undefined"
	case TermMemoryLocationAccess:
		return "access"
	case TermDereference:
		return "deref"
	case TermUnaryOperator:
		return "unop"
	case TermBinaryOperator:
		return "binop"
	case TermChoice:
		return "choice"
	}
	return fmt.Sprintf("term(%d)", uint8(kind))
}

// Term is an IR expression node; a tagged variant dispatched on Kind. Every
// term has a direction: a write term is a store destination, every other
// term is read.
type Term interface {
	fmt.Stringer
	// Kind returns the kind tag of the term.
	Kind() TermKind
	// ID returns the per-run stamp of the term.
	ID() int64
	// IsRead reports whether the term is read.
	IsRead() bool
	// IsWrite reports whether the term is a store destination.
	IsWrite() bool
	// Source returns the term whose value is stored into this write term, or
	// nil; only the destination of an assignment has a source.
	Source() Term
	// Statement returns the statement containing the term, or nil for terms
	// materialized outside statements (e.g. by calling convention hooks).
	Statement() Statement
	// Size returns the size of the term's value in bits.
	Size() int64
	// base returns the embedded term base; restricts the interface to
	// variants of this package.
	base() *termBase
}

// termBase carries the state shared by all term variants.
type termBase struct {
	id     int64
	write  bool
	source Term
	stmt   Statement
	size   int64
}

func newTermBase(size int64) termBase    { return termBase{id: nextID(), size: size} }
func (t *termBase) ID() int64            { return t.id }
func (t *termBase) IsRead() bool         { return !t.write }
func (t *termBase) IsWrite() bool        { return t.write }
func (t *termBase) Source() Term         { return t.source }
func (t *termBase) Statement() Statement { return t.stmt }
func (t *termBase) Size() int64          { return t.size }
func (t *termBase) base() *termBase      { return t }

// markWrite turns term into a store destination with the given source.
func markWrite(term, source Term) {
	b := term.base()
	b.write = true
	b.source = source
}

// IntConst is an integer constant term.
type IntConst struct {
	termBase
	// Value of the constant, zero extended.
	Value uint64
}

// NewIntConst returns a new integer constant term of the given value and bit
// size.
func NewIntConst(value uint64, size int64) *IntConst {
	return &IntConst{termBase: newTermBase(size), Value: value}
}

// Kind returns the kind tag of the term.
func (*IntConst) Kind() TermKind { return TermIntConst }

// String returns the string representation of the term.
func (term *IntConst) String() string { return fmt.Sprintf("%#x", term.Value) }

// Intrinsic is a value computed by an opaque machine primitive (cpuid, flag
// computations the lifter does not model, etc).
type Intrinsic struct {
	termBase
	// Name of the primitive.
	Name string
}

// NewIntrinsic returns a new intrinsic term.
func NewIntrinsic(name string, size int64) *Intrinsic {
	return &Intrinsic{termBase: newTermBase(size), Name: name}
}

// Kind returns the kind tag of the term.
func (*Intrinsic) Kind() TermKind { return TermIntrinsic }

// String returns the string representation of the term.
func (term *Intrinsic) String() string { return fmt.Sprintf("intrinsic(%s)", term.Name) }

// Undefined is a value with no definition.
type Undefined struct {
	termBase
}

// NewUndefined returns a new undefined term.
func NewUndefined(size int64) *Undefined {
	return &Undefined{termBase: newTermBase(size)}
}

// Kind returns the kind tag of the term.
func (*Undefined) Kind() TermKind { return TermUndefined }

// String returns the string representation of the term.
func (term *Undefined) String() string { return "undefined" }

// MemoryLocationAccess is an access to a statically known storage slot.
type MemoryLocationAccess struct {
	termBase
	// Accessed storage slot.
	Loc arch.MemoryLocation
}

// NewMemoryLocationAccess returns a new access of the given storage slot.
func NewMemoryLocationAccess(loc arch.MemoryLocation) *MemoryLocationAccess {
	return &MemoryLocationAccess{termBase: newTermBase(loc.Size), Loc: loc}
}

// Kind returns the kind tag of the term.
func (*MemoryLocationAccess) Kind() TermKind { return TermMemoryLocationAccess }

// String returns the string representation of the term.
func (term *MemoryLocationAccess) String() string { return term.Loc.String() }

// Dereference is an access through a computed address.
type Dereference struct {
	termBase
	// Address of the access.
	Addr Term
}

// NewDereference returns a new dereference of the given address term.
func NewDereference(addr Term, size int64) *Dereference {
	return &Dereference{termBase: newTermBase(size), Addr: addr}
}

// Kind returns the kind tag of the term.
func (*Dereference) Kind() TermKind { return TermDereference }

// String returns the string representation of the term.
func (term *Dereference) String() string { return fmt.Sprintf("*(%v)", term.Addr) }

// UnaryOp is a unary operator.
type UnaryOp uint8

// Unary operators.
const (
	UnaryNot UnaryOp = iota + 1
	UnaryNegation
	UnarySignExtend
	UnaryZeroExtend
	UnaryTruncate
)

// String returns the string representation of the unary operator.
func (op UnaryOp) String() string {
	switch op {
	case UnaryNot:
		return "!"
	case UnaryNegation:
		return "-"
	case UnarySignExtend:
		return "sext"
	case UnaryZeroExtend:
		return "zext"
	case UnaryTruncate:
		return "trunc"
	}
	return fmt.Sprintf("unop(%d)", uint8(op))
}

// UnaryOperator applies a unary operator to an operand.
type UnaryOperator struct {
	termBase
	// Operator.
	Op UnaryOp
	// Operand.
	Operand Term
}

// NewUnaryOperator returns a new unary operator term.
func NewUnaryOperator(op UnaryOp, operand Term, size int64) *UnaryOperator {
	return &UnaryOperator{termBase: newTermBase(size), Op: op, Operand: operand}
}

// Kind returns the kind tag of the term.
func (*UnaryOperator) Kind() TermKind { return TermUnaryOperator }

// String returns the string representation of the term.
func (term *UnaryOperator) String() string {
	return fmt.Sprintf("%v(%v)", term.Op, term.Operand)
}

// BinaryOp is a binary operator.
type BinaryOp uint8

// Binary operators.
const (
	BinaryAdd BinaryOp = iota + 1
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryAnd
	BinaryOr
	BinaryXor
	BinaryShl
	BinaryShr
	BinarySar
	BinaryEqual
	BinarySignedLess
	BinarySignedLessOrEqual
	BinaryUnsignedLess
	BinaryUnsignedLessOrEqual
)

// String returns the string representation of the binary operator.
func (op BinaryOp) String() string {
	switch op {
	case BinaryAdd:
		return "+"
	case BinarySub:
		return "-"
	case BinaryMul:
		return "*"
	case BinaryDiv:
		return "/"
	case BinaryAnd:
		return "&"
	case BinaryOr:
		return "|"
	case BinaryXor:
		return "^"
	case BinaryShl:
		return "<<"
	case BinaryShr:
		return ">>"
	case BinarySar:
		return ">>s"
	case BinaryEqual:
		return "=="
	case BinarySignedLess:
		return "<"
	case BinarySignedLessOrEqual:
		return "<="
	case BinaryUnsignedLess:
		return "<u"
	case BinaryUnsignedLessOrEqual:
		return "<=u"
	}
	return fmt.Sprintf("binop(%d)", uint8(op))
}

// BinaryOperator applies a binary operator to two operands.
type BinaryOperator struct {
	termBase
	// Operator.
	Op BinaryOp
	// Left operand.
	Left Term
	// Right operand.
	Right Term
}

// NewBinaryOperator returns a new binary operator term.
func NewBinaryOperator(op BinaryOp, left, right Term, size int64) *BinaryOperator {
	return &BinaryOperator{termBase: newTermBase(size), Op: op, Left: left, Right: right}
}

// Kind returns the kind tag of the term.
func (*BinaryOperator) Kind() TermKind { return TermBinaryOperator }

// String returns the string representation of the term.
func (term *BinaryOperator) String() string {
	return fmt.Sprintf("(%v %v %v)", term.Left, term.Op, term.Right)
}

// Choice is a value recovered from two candidate sources; the preferred term
// wins when it has a reaching definition, the default term otherwise.
type Choice struct {
	termBase
	// Preferred source.
	Preferred Term
	// Fallback source.
	Default Term
}

// NewChoice returns a new choice term over the given candidate sources.
func NewChoice(preferred, fallback Term) *Choice {
	return &Choice{termBase: newTermBase(preferred.Size()), Preferred: preferred, Default: fallback}
}

// Kind returns the kind tag of the term.
func (*Choice) Kind() TermKind { return TermChoice }

// String returns the string representation of the term.
func (term *Choice) String() string {
	return fmt.Sprintf("choice(%v, %v)", term.Preferred, term.Default)
}

// Children returns the direct sub-terms of the given term.
func Children(term Term) []Term {
	switch term := term.(type) {
	case *Dereference:
		return []Term{term.Addr}
	case *UnaryOperator:
		return []Term{term.Operand}
	case *BinaryOperator:
		return []Term{term.Left, term.Right}
	case *Choice:
		return []Term{term.Preferred, term.Default}
	}
	return nil
}
