package inject

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// InitializerState is what Install found before it made any edit.
type InitializerState int

const (
	InitializerMissing InitializerState = iota
	InitializerCorrect
	InitializerIncorrect
)

func (s InitializerState) String() string {
	switch s {
	case InitializerMissing:
		return "missing"
	case InitializerCorrect:
		return "correct"
	case InitializerIncorrect:
		return "incorrect"
	}
	return fmt.Sprintf("InitializerState(%d)", int(s))
}

// Hook is the zero-argument method the patched initializer calls. It must be
// safe to call on every launch of the host.
type Hook struct {
	DeclaringType string
	Name          string
	// ReturnType defaults to System.Void.
	ReturnType string
}

func (h Hook) returnType() string {
	if h.ReturnType == "" {
		return "System.Void"
	}
	return h.ReturnType
}

// FullName is the name a call target has to carry to count as this hook.
func (h Hook) FullName() string {
	return methodFullName(h.returnType(), h.DeclaringType, h.Name, nil)
}

// Initializer installs a call to Hook at the start of the type initializer of
// Namespace.Type.
type Initializer struct {
	Namespace string
	Type      string
	Hook      Hook
}

// Install makes the initializer begin with "CALL hook; RET". References to
// the injector are synchronized with id first. The returned state describes
// the initializer as it was found; m.Dirty reports whether anything changed.
//
// Only the first two instructions are checked. Whatever occupied those slots
// is overwritten, even bytes that are not valid instructions, and everything
// after the RET no longer runs.
func (p *Initializer) Install(m *Module, id Identity) (InitializerState, error) {
	SyncReferences(m, id)

	owner := m.FindType(p.Namespace, p.Type)
	if owner < 0 {
		return 0, formatErrorf(m.Path, -1, "type %s.%s not found", p.Namespace, p.Type)
	}

	index := findInitializer(m, owner)
	if index < 0 {
		code, call := rel32(opcodeCALLrel, p.importHook(m, id))
		m.AddMethod(&MethodDef{
			Owner:      owner,
			Flags:      MemberPrivate | MemberStatic | MethodHideBySig | MethodSpecialName | MethodRTSpecialName,
			Name:       initializerName,
			ReturnType: "System.Void",
			Body: &MethodBody{
				Code:   append(code, opcodeRET),
				Fixups: []Fixup{call},
			},
		})
		return InitializerMissing, nil
	}

	md := m.Methods[index]
	if md.Body == nil {
		md.Body = &MethodBody{}
	}

	// A slot that does not decode is treated as empty: the call and return
	// go in front of it and the bad bytes are never reached.
	slots, _ := md.Body.decode(2)

	callOK := len(slots) > 0 && p.callsHook(m, slots[0])
	retOK := len(slots) > 1 && slots[1].Op == x86asm.RET
	if callOK && retOK {
		return InitializerCorrect, nil
	}

	if !callOK {
		offset, length := 0, 0
		if len(slots) > 0 {
			length = slots[0].Len
		}
		code, call := rel32(opcodeCALLrel, p.importHook(m, id))
		md.Body.replace(offset, length, code, call)
	}
	if !retOK {
		length := 0
		if len(slots) > 1 {
			length = slots[1].Len
		}
		// Slot 0 is a rel32 call by now.
		md.Body.replace(rel32Size, length, []byte{opcodeRET})
	}
	m.touch(sectionMethods)

	return InitializerIncorrect, nil
}

// callsHook compares by full name rather than token so that an initializer
// patched by an earlier build of the injector still counts.
func (p *Initializer) callsHook(m *Module, ins Instruction) bool {
	if ins.Op != x86asm.CALL || !ins.HasTarget {
		return false
	}
	name, ok := m.ResolveName(ins.Target)
	return ok && name == p.Hook.FullName()
}

// importHook returns a token for the hook, adding the member reference and
// the reference to the injector if the module has neither.
func (p *Initializer) importHook(m *Module, id Identity) Token {
	name := p.Hook.FullName()
	for i, r := range m.MemberRefs {
		if r.FullName() == name {
			return memberRefToken(i)
		}
	}

	scope := m.FindReference(id.Name)
	if scope < 0 {
		scope = m.AddReference(&Reference{Name: id.Name, Version: id.Version})
	}
	return m.AddMemberRef(&MemberRef{
		Scope:         scope,
		DeclaringType: p.Hook.DeclaringType,
		Name:          p.Hook.Name,
		ReturnType:    p.Hook.returnType(),
	})
}

func findInitializer(m *Module, owner int) int {
	for _, i := range m.MethodsOf(owner) {
		md := m.Methods[i]
		if md.Name == initializerName && md.Flags&MethodRTSpecialName != 0 {
			return i
		}
	}
	return -1
}
