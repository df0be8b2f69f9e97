package inject

import (
	"fmt"
	"strings"
)

// Section kinds understood by the reader. Other kinds are carried through
// untouched.
const (
	sectionReferences uint32 = 1 + iota
	sectionMemberRefs
	sectionTypes
	sectionFields
	sectionMethods
)

// Token identifies a method or member reference from inside a method body.
type Token uint32

const (
	tokenMethodDef = 0x06
	tokenMemberRef = 0x0a
)

func methodDefToken(index int) Token { return Token(tokenMethodDef<<24 | uint32(index+1)) }
func memberRefToken(index int) Token { return Token(tokenMemberRef<<24 | uint32(index+1)) }

// Table returns the table the token points into.
func (t Token) Table() uint8 { return uint8(t >> 24) }

// Index returns the zero-based row the token points to.
func (t Token) Index() int { return int(t&0xffffff) - 1 }

func (t Token) String() string { return fmt.Sprintf("0x%08x", uint32(t)) }

// TypeFlags describe a type definition.
type TypeFlags uint32

const (
	TypeVisibilityMask TypeFlags = 0x7

	TypeNotPublic         TypeFlags = 0x0
	TypePublic            TypeFlags = 0x1
	TypeNestedPublic      TypeFlags = 0x2
	TypeNestedPrivate     TypeFlags = 0x3
	TypeNestedFamily      TypeFlags = 0x4
	TypeNestedAssembly    TypeFlags = 0x5
	TypeNestedFamANDAssem TypeFlags = 0x6
	TypeNestedFamORAssem  TypeFlags = 0x7

	TypeInterface TypeFlags = 0x20
	TypeAbstract  TypeFlags = 0x80
	TypeSealed    TypeFlags = 0x100

	TypeVirtualized TypeFlags = 0x80000000
)

// MemberFlags describe a field or method. Access uses the low three bits.
type MemberFlags uint32

const (
	MemberAccessMask MemberFlags = 0x7

	MemberCompilerControlled MemberFlags = 0x0
	MemberPrivate            MemberFlags = 0x1
	MemberFamANDAssem        MemberFlags = 0x2
	MemberAssembly           MemberFlags = 0x3
	MemberFamily             MemberFlags = 0x4
	MemberFamORAssem         MemberFlags = 0x5
	MemberPublic             MemberFlags = 0x6

	MemberStatic MemberFlags = 0x10

	// Method only.
	MethodFinal         MemberFlags = 0x20
	MethodVirtual       MemberFlags = 0x40
	MethodHideBySig     MemberFlags = 0x80
	MethodNewSlot       MemberFlags = 0x100
	MethodAbstract      MemberFlags = 0x400
	MethodSpecialName   MemberFlags = 0x800
	MethodRTSpecialName MemberFlags = 0x1000
	MethodPInvokeImpl   MemberFlags = 0x2000

	MemberVirtualized MemberFlags = 0x80000000
)

// Access returns the access bits of f.
func (f MemberFlags) Access() MemberFlags { return f & MemberAccessMask }

// WithAccess returns f with its access bits replaced.
func (f MemberFlags) WithAccess(a MemberFlags) MemberFlags {
	return f&^MemberAccessMask | a&MemberAccessMask
}

// Reference is an entry in a module's reference table: another module this
// one needs at load time.
type Reference struct {
	Name    string
	Version Version
}

// MemberRef is a method in another module, called through a fixup.
type MemberRef struct {
	// Scope is the index of the Reference the member lives in, or -1 for
	// the module itself.
	Scope         int
	DeclaringType string
	Name          string
	ReturnType    string
	Params        []string
}

// FullName returns the name used to compare call targets, e.g.
// "System.Void Some.Type::Method(System.Int32)". It never includes the scope
// or version.
func (r *MemberRef) FullName() string {
	return methodFullName(r.ReturnType, r.DeclaringType, r.Name, r.Params)
}

// TypeDef is a type defined in the module.
type TypeDef struct {
	Flags     TypeFlags
	Namespace string
	Name      string
	BaseType  string
}

// FullName returns the namespace qualified type name.
func (t *TypeDef) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// FieldDef is a field defined in the module.
type FieldDef struct {
	Owner int
	Flags MemberFlags
	Name  string
	Type  string
}

// MethodDef is a method defined in the module. Body is nil for abstract and
// external methods.
type MethodDef struct {
	Owner      int
	Flags      MemberFlags
	Name       string
	ReturnType string
	Params     []string
	Body       *MethodBody
}

// Fixup asks the host loader to write the address of Token into the rel32
// operand at Offset.
type Fixup struct {
	Offset int
	Token  Token
}

// MethodBody is the machine code of a method plus its fixups.
type MethodBody struct {
	Code   []byte
	Fixups []Fixup
}

// Fixup returns the token patched into offset, if any.
func (b *MethodBody) Fixup(offset int) (Token, bool) {
	for _, f := range b.Fixups {
		if f.Offset == offset {
			return f.Token, true
		}
	}
	return 0, false
}

const initializerName = ".cctor"

func methodFullName(ret, declaring, name string, params []string) string {
	return fmt.Sprintf("%s %s::%s(%s)", ret, declaring, name, strings.Join(params, ","))
}

// section is one entry of the section table. raw is nil for a section that
// has never been read from disk.
type section struct {
	kind  uint32
	raw   []byte
	dirty bool
}

// Module is the in-memory form of one module file.
type Module struct {
	Path string

	References []*Reference
	MemberRefs []*MemberRef
	Types      []*TypeDef
	Fields     []*FieldDef
	Methods    []*MethodDef

	minor    uint16
	flags    uint32
	sections []*section
	trailer  []byte
}

// NewModule returns an empty module that will be written to path.
func NewModule(path string) *Module {
	m := &Module{Path: path}
	for _, kind := range []uint32{sectionReferences, sectionMemberRefs, sectionTypes, sectionFields, sectionMethods} {
		m.sections = append(m.sections, &section{kind: kind, dirty: true})
	}
	return m
}

// Dirty reports whether the module has changes that have not been written.
func (m *Module) Dirty() bool {
	for _, s := range m.sections {
		if s.dirty {
			return true
		}
	}
	return false
}

// touch marks the section holding kind as changed, adding it if the module
// was loaded without one.
func (m *Module) touch(kind uint32) {
	for _, s := range m.sections {
		if s.kind == kind {
			s.dirty = true
			return
		}
	}
	m.sections = append(m.sections, &section{kind: kind, dirty: true})
}

// FindType returns the index of the type namespace.name, or -1.
func (m *Module) FindType(namespace, name string) int {
	for i, t := range m.Types {
		if t.Namespace == namespace && t.Name == name {
			return i
		}
	}
	return -1
}

// AddType appends a type definition and returns its index.
func (m *Module) AddType(t *TypeDef) int {
	m.Types = append(m.Types, t)
	m.touch(sectionTypes)
	return len(m.Types) - 1
}

// AddField appends a field definition and returns its index.
func (m *Module) AddField(f *FieldDef) int {
	m.Fields = append(m.Fields, f)
	m.touch(sectionFields)
	return len(m.Fields) - 1
}

// AddMethod appends a method and returns the token other bodies use to call
// it. Appending never renumbers existing methods.
func (m *Module) AddMethod(md *MethodDef) Token {
	m.Methods = append(m.Methods, md)
	m.touch(sectionMethods)
	return methodDefToken(len(m.Methods) - 1)
}

// AddReference appends a reference entry and returns its index.
func (m *Module) AddReference(r *Reference) int {
	m.References = append(m.References, r)
	m.touch(sectionReferences)
	return len(m.References) - 1
}

// AddMemberRef appends a member reference and returns its token.
func (m *Module) AddMemberRef(r *MemberRef) Token {
	m.MemberRefs = append(m.MemberRefs, r)
	m.touch(sectionMemberRefs)
	return memberRefToken(len(m.MemberRefs) - 1)
}

// FindReference returns the index of the first reference named name, or -1.
func (m *Module) FindReference(name string) int {
	for i, r := range m.References {
		if r.Name == name {
			return i
		}
	}
	return -1
}

// MethodsOf returns the indexes of the methods owned by type index owner.
func (m *Module) MethodsOf(owner int) []int {
	var idx []int
	for i, md := range m.Methods {
		if md.Owner == owner {
			idx = append(idx, i)
		}
	}
	return idx
}

// ResolveName returns the full name of the method token refers to.
func (m *Module) ResolveName(token Token) (string, bool) {
	i := token.Index()
	switch token.Table() {
	case tokenMemberRef:
		if i >= 0 && i < len(m.MemberRefs) {
			return m.MemberRefs[i].FullName(), true
		}
	case tokenMethodDef:
		if i >= 0 && i < len(m.Methods) {
			md := m.Methods[i]
			return methodFullName(md.ReturnType, m.Types[md.Owner].FullName(), md.Name, md.Params), true
		}
	}
	return "", false
}
