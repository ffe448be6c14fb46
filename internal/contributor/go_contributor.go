// Package contributor turns source files into batches of relationship facts.
package contributor

import (
	"errors"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
	"github.com/standardbeagle/relidx/internal/types"
)

// GoContributor records the syntactic relationships of one Go file. Names
// are resolved only against declarations of the same file; everything else
// is recorded against wildcard name subjects.
type GoContributor struct {
	language *sitter.Language
}

// NewGoContributor creates a contributor backed by the tree-sitter Go grammar
func NewGoContributor() *GoContributor {
	return &GoContributor{language: sitter.NewLanguage(tree_sitter_go.Language())}
}

// Accepts reports whether path is a Go source file
func (gc *GoContributor) Accepts(file string) bool {
	return path.Ext(file) == ".go"
}

// Contribute parses src and returns the facts it contains for unit
func (gc *GoContributor) Contribute(unit types.UnitID, src []byte) (*core.Batch, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(gc.language); err != nil {
		return nil, relerrors.NewParseError(unit, 0, 0, err)
	}

	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, relerrors.NewParseError(unit, 0, 0, errors.New("parse returned no tree"))
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, relerrors.NewParseError(unit, 0, 0, errors.New("root node is nil"))
	}
	if perr := firstSyntaxError(unit, root); perr != nil {
		debug.LogIndex("%v, recording what parsed\n", perr)
	}

	w := &goWalker{
		unit:     unit,
		src:      src,
		batch:    &core.Batch{Unit: unit},
		decls:    make(map[string]types.Subject),
		declName: make(map[uint]bool),
	}
	w.collectDeclarations(root)
	w.walk(root, nil, types.UnitSubject(unit))
	return w.batch, nil
}

type goWalker struct {
	unit  types.UnitID
	src   []byte
	batch *core.Batch

	// decls maps names declared at file level (types, functions, variables,
	// constants) and "Type.member" names to their subjects
	decls map[string]types.Subject
	// declName holds the start offsets of declaring identifiers
	declName map[uint]bool
	// scopes holds the names bound inside the function bodies being walked,
	// innermost last. A bound name shadows the file-level declaration.
	scopes []map[string]bool
}

// firstSyntaxError locates the first error or missing node below root
func firstSyntaxError(unit types.UnitID, root *sitter.Node) *relerrors.ParseError {
	if root == nil || !root.HasError() {
		return nil
	}
	var find func(n *sitter.Node) *sitter.Node
	find = func(n *sitter.Node) *sitter.Node {
		if n.IsError() || n.IsMissing() {
			return n
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			if c := n.Child(i); c != nil && c.HasError() {
				if found := find(c); found != nil {
					return found
				}
			}
		}
		return nil
	}
	n := find(root)
	if n == nil {
		n = root
	}
	pos := n.StartPosition()
	reason := "syntax error"
	if n.IsMissing() {
		reason = "missing " + n.Kind()
	}
	return relerrors.NewParseError(unit, int(pos.Row)+1, int(pos.Column)+1, errors.New(reason))
}

func (w *goWalker) pushScope() {
	w.scopes = append(w.scopes, make(map[string]bool))
}

func (w *goWalker) popScope() {
	w.scopes = w.scopes[:len(w.scopes)-1]
}

// bindNames binds every identifier directly below n in the innermost scope
func (w *goWalker) bindNames(n *sitter.Node) {
	if n == nil || len(w.scopes) == 0 {
		return
	}
	scope := w.scopes[len(w.scopes)-1]
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == "identifier" {
			scope[w.text(c)] = true
		}
	}
}

func (w *goWalker) isLocal(name string) bool {
	for i := len(w.scopes) - 1; i >= 0; i-- {
		if w.scopes[i][name] {
			return true
		}
	}
	return false
}

// opensScope reports whether names bound below a node of this kind go out
// of scope when the node ends
func opensScope(kind string) bool {
	switch kind {
	case "function_declaration", "method_declaration", "func_literal", "block",
		"if_statement", "for_statement", "expression_switch_statement", "type_switch_statement",
		"select_statement", "expression_case", "type_case", "default_case", "communication_case":
		return true
	}
	return false
}

// hasDefine reports whether n has a ":=" token child
func hasDefine(n *sitter.Node) bool {
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil && c.Kind() == ":=" {
			return true
		}
	}
	return false
}

// walkExcept walks the children of n other than the skipped ones
func (w *goWalker) walkExcept(n *sitter.Node, container types.Subject, skip ...*sitter.Node) {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		skipped := false
		for _, s := range skip {
			if sameNode(c, s) {
				skipped = true
			}
		}
		if !skipped {
			w.walk(c, n, container)
		}
	}
}

func (w *goWalker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if start > uint(len(w.src)) || end > uint(len(w.src)) || start > end {
		return ""
	}
	return string(w.src[start:end])
}

func (w *goWalker) location(container types.Subject, n *sitter.Node) types.Location {
	return types.Location{
		Subject: container,
		Offset:  int(n.StartByte()),
		Length:  int(n.EndByte() - n.StartByte()),
	}
}

func (w *goWalker) subject(kind types.SubjectKind, name string) types.Subject {
	return types.Subject{Kind: kind, Unit: w.unit, Name: name}
}

// declare records a defines-* fact against the universe and the display attributes
func (w *goWalker) declare(s types.Subject, kind types.Kind, nameNode *sitter.Node, signature string) {
	w.declName[nameNode.StartByte()] = true
	w.batch.Add(types.Universe, kind, w.location(s, nameNode))
	short := s.Name
	if i := strings.LastIndexByte(short, '.'); i >= 0 {
		short = short[i+1:]
	}
	w.batch.SetAttribute(s, types.AttributeDisplayName, s.Name)
	w.batch.SetAttribute(s, types.AttributeExported, strconv.FormatBool(isExported(short)))
	if signature != "" {
		w.batch.SetAttribute(s, types.AttributeSignature, signature)
	}
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}

// collectDeclarations registers every file-level declaration before any
// reference is resolved, so use before declaration still resolves
func (w *goWalker) collectDeclarations(root *sitter.Node) {
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			s := w.subject(types.SubjectFunction, w.text(nameNode))
			w.decls[s.Name] = s
			w.declare(s, types.KindDefinesFunction, nameNode, w.signature(child))
		case "method_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := w.text(nameNode)
			if recv := w.receiverType(child); recv != "" {
				name = recv + "." + name
			}
			s := w.subject(types.SubjectMethod, name)
			w.decls[s.Name] = s
			w.declare(s, types.KindDefinesFunction, nameNode, w.signature(child))
		case "type_declaration":
			for j := uint(0); j < child.ChildCount(); j++ {
				spec := child.Child(j)
				if spec != nil && (spec.Kind() == "type_spec" || spec.Kind() == "type_alias") {
					w.collectType(spec)
				}
			}
		case "var_declaration":
			w.collectValues(child, types.SubjectVariable)
		case "const_declaration":
			w.collectValues(child, types.SubjectConstant)
		}
	}
}

func (w *goWalker) collectType(spec *sitter.Node) {
	nameNode := spec.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	typeName := w.text(nameNode)
	s := w.subject(types.SubjectType, typeName)
	w.decls[typeName] = s
	w.declare(s, types.KindDefinesType, nameNode, "")

	body := spec.ChildByFieldName("type")
	if body == nil {
		return
	}
	switch body.Kind() {
	case "struct_type":
		w.collectFields(body, typeName)
	case "interface_type":
		w.collectInterface(body, typeName)
	}
}

func (w *goWalker) collectFields(structNode *sitter.Node, typeName string) {
	var list *sitter.Node
	for i := uint(0); i < structNode.ChildCount(); i++ {
		if c := structNode.Child(i); c != nil && c.Kind() == "field_declaration_list" {
			list = c
		}
	}
	if list == nil {
		return
	}
	for i := uint(0); i < list.ChildCount(); i++ {
		field := list.Child(i)
		if field == nil || field.Kind() != "field_declaration" {
			continue
		}
		named := false
		for j := uint(0); j < field.ChildCount(); j++ {
			nameNode := field.Child(j)
			if nameNode == nil || nameNode.Kind() != "field_identifier" {
				continue
			}
			named = true
			s := w.subject(types.SubjectField, typeName+"."+w.text(nameNode))
			w.decls[s.Name] = s
			w.declare(s, types.KindDefinesVariable, nameNode, "")
		}
		if !named {
			// Embedded field: the embedding struct mixes in the embedded type
			if target := embeddedTypeName(field, w); target != nil {
				w.declName[target.StartByte()] = true
				w.batch.Add(w.resolveType(target), types.KindIsMixedInBy, w.location(w.decls[typeName], target))
			}
		}
	}
}

func (w *goWalker) collectInterface(iface *sitter.Node, typeName string) {
	owner := w.decls[typeName]
	for i := uint(0); i < iface.ChildCount(); i++ {
		elem := iface.Child(i)
		if elem == nil {
			continue
		}
		switch elem.Kind() {
		case "method_elem", "method_spec":
			nameNode := elem.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			s := w.subject(types.SubjectMethod, typeName+"."+w.text(nameNode))
			w.decls[s.Name] = s
			w.declare(s, types.KindDefinesFunction, nameNode, strings.TrimSpace(w.text(elem)))
		case "type_elem", "constraint_elem", "interface_type_name":
			if target := embeddedTypeName(elem, w); target != nil {
				w.declName[target.StartByte()] = true
				w.batch.Add(w.resolveType(target), types.KindIsExtendedBy, w.location(owner, target))
			}
		}
	}
}

func (w *goWalker) collectValues(decl *sitter.Node, kind types.SubjectKind) {
	var specs []*sitter.Node
	var gather func(n *sitter.Node)
	gather = func(n *sitter.Node) {
		for i := uint(0); i < n.ChildCount(); i++ {
			c := n.Child(i)
			if c == nil {
				continue
			}
			switch c.Kind() {
			case "var_spec", "const_spec":
				specs = append(specs, c)
			case "var_spec_list":
				gather(c)
			}
		}
	}
	gather(decl)

	for _, spec := range specs {
		for i := uint(0); i < spec.ChildCount(); i++ {
			nameNode := spec.Child(i)
			if nameNode == nil || nameNode.Kind() != "identifier" {
				continue
			}
			name := w.text(nameNode)
			if name == "_" {
				continue
			}
			s := w.subject(kind, name)
			w.decls[name] = s
			w.declare(s, types.KindDefinesVariable, nameNode, "")
		}
	}
}

// embeddedTypeName finds the type identifier named by an embedded field or
// interface element, looking through pointers, qualifiers and generics
func embeddedTypeName(n *sitter.Node, w *goWalker) *sitter.Node {
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "type_identifier":
			return c
		case "qualified_type":
			return c.ChildByFieldName("name")
		case "pointer_type", "generic_type":
			if found := embeddedTypeName(c, w); found != nil {
				return found
			}
		}
	}
	return nil
}

func (w *goWalker) resolveType(n *sitter.Node) types.Subject {
	name := w.text(n)
	if p := n.Parent(); p != nil && p.Kind() == "qualified_type" {
		return types.NameSubject(name)
	}
	if s, ok := w.decls[name]; ok && s.Kind == types.SubjectType {
		return s
	}
	return types.NameSubject(name)
}

func (w *goWalker) receiverType(method *sitter.Node) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	for i := uint(0); i < recv.ChildCount(); i++ {
		param := recv.Child(i)
		if param == nil || param.Kind() != "parameter_declaration" {
			continue
		}
		if t := embeddedTypeName(param, w); t != nil {
			return w.text(t)
		}
	}
	return ""
}

// signature is the declaration text up to its body
func (w *goWalker) signature(decl *sitter.Node) string {
	end := decl.EndByte()
	if body := decl.ChildByFieldName("body"); body != nil {
		end = body.StartByte()
	}
	start := decl.StartByte()
	if start > end || end > uint(len(w.src)) {
		return ""
	}
	return strings.TrimSpace(string(w.src[start:end]))
}

// walk records references below n. container is the subject whose body
// encloses n: the current function or method, else the unit.
func (w *goWalker) walk(n, parent *sitter.Node, container types.Subject) {
	if n == nil {
		return
	}

	switch n.Kind() {
	case "function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			container = w.decls[w.text(name)]
		}
	case "method_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			full := w.text(name)
			if recv := w.receiverType(n); recv != "" {
				full = recv + "." + full
			}
			container = w.decls[full]
		}
	case "identifier":
		w.identifier(n, parent, container)
		return
	case "type_identifier":
		if !w.declName[n.StartByte()] {
			kind := types.KindIsReferencedBy
			target := w.resolveType(n)
			if target.Kind == types.SubjectName {
				kind = types.KindIsReferencedByQualified
			}
			w.batch.Add(target, kind, w.location(container, n))
		}
		return
	case "selector_expression":
		if field := n.ChildByFieldName("field"); field != nil {
			kind := types.KindIsReferencedByQualified
			if isCallee(parent, n) {
				kind = types.KindIsInvokedByQualified
			}
			w.batch.Add(types.NameSubject(w.text(field)), kind, w.location(container, field))
		}
		w.walk(n.ChildByFieldName("operand"), n, container)
		return
	case "parameter_declaration", "variadic_parameter_declaration":
		w.walk(n.ChildByFieldName("type"), n, container)
		w.bindNames(n)
		return
	case "short_var_declaration":
		w.walk(n.ChildByFieldName("right"), n, container)
		w.bindNames(n.ChildByFieldName("left"))
		return
	case "range_clause", "receive_statement":
		if hasDefine(n) {
			left := n.ChildByFieldName("left")
			w.walkExcept(n, container, left)
			w.bindNames(left)
			return
		}
	case "var_spec", "const_spec":
		if len(w.scopes) > 0 {
			for i := uint(0); i < n.ChildCount(); i++ {
				if c := n.Child(i); c != nil && c.Kind() != "identifier" {
					w.walk(c, n, container)
				}
			}
			w.bindNames(n)
			return
		}
	case "type_switch_statement":
		w.pushScope()
		defer w.popScope()
		alias, value := n.ChildByFieldName("alias"), n.ChildByFieldName("value")
		w.walk(value, n, container)
		w.bindNames(alias)
		w.walkExcept(n, container, alias, value)
		return
	}

	if opensScope(n.Kind()) {
		w.pushScope()
		defer w.popScope()
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		w.walk(n.Child(i), n, container)
	}
}

func (w *goWalker) identifier(n, parent *sitter.Node, container types.Subject) {
	if w.declName[n.StartByte()] {
		return
	}
	name := w.text(n)
	if w.isLocal(name) {
		return
	}
	target, ok := w.decls[name]
	call := isCallee(parent, n)

	if !ok {
		// Unresolved non-call names are dropped; unresolved calls are kept by name
		if call {
			w.batch.Add(types.NameSubject(name), types.KindIsInvokedByQualified, w.location(container, n))
		}
		return
	}

	kind := types.KindIsReferencedBy
	switch target.Kind {
	case types.SubjectFunction:
		if call {
			kind = types.KindIsInvokedBy
		}
	case types.SubjectVariable:
		kind = types.KindIsReadBy
		if isAssigned(parent, n) {
			kind = types.KindIsWrittenBy
		}
	}
	w.batch.Add(target, kind, w.location(container, n))
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func isCallee(parent, n *sitter.Node) bool {
	return parent != nil && parent.Kind() == "call_expression" && sameNode(parent.ChildByFieldName("function"), n)
}

// isAssigned reports whether n is the target of an assignment or increment
func isAssigned(parent, n *sitter.Node) bool {
	if parent == nil {
		return false
	}
	switch parent.Kind() {
	case "inc_statement", "dec_statement":
		return true
	case "expression_list":
		gp := parent.Parent()
		if gp == nil || gp.Kind() != "assignment_statement" {
			return false
		}
		return sameNode(gp.ChildByFieldName("left"), parent)
	}
	return false
}
