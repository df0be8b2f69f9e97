package inject

// originalSuffix names the method that keeps the body of a method the
// virtualizer turned into a delegating stub.
const originalSuffix = "$original"

// VirtualModule is a module whose closed members can be opened up for
// overriding.
type VirtualModule struct {
	*Module
}

// LoadVirtualModule loads the module at path.
func LoadVirtualModule(path string) (*VirtualModule, error) {
	m, err := LoadModule(path)
	if err != nil {
		return nil, err
	}
	return &VirtualModule{Module: m}, nil
}

// Virtualize makes every sealed type, non-virtual or final method and
// private field that has not been handled by an earlier run overridable, then
// writes the module. Handled members are flagged so the next run skips them.
//
// onFirstWrite is called once, right before the write, and only if something
// changed. If it fails nothing is written.
func (v *VirtualModule) Virtualize(self Identity, onFirstWrite func() error) (bool, error) {
	changed := false
	for _, t := range v.Types {
		if v.virtualizeType(t) {
			changed = true
		}
	}
	// Stop at the current end; delegates appended below are already marked.
	for i, n := 0, len(v.Methods); i < n; i++ {
		if v.virtualizeMethod(i) {
			changed = true
		}
	}
	for _, f := range v.Fields {
		if v.virtualizeField(f) {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	if v.FindReference(self.Name) < 0 {
		v.AddReference(&Reference{Name: self.Name, Version: self.Version})
	} else {
		SyncReferences(v.Module, self)
	}

	if onFirstWrite != nil {
		if err := onFirstWrite(); err != nil {
			return false, err
		}
	}
	if err := v.Write(); err != nil {
		return false, err
	}
	return true, nil
}

func (v *VirtualModule) virtualizeType(t *TypeDef) bool {
	if t.Flags&TypeVirtualized != 0 {
		return false
	}

	// Abstract and sealed together is a static holder, there's nothing to
	// override.
	if t.Flags&(TypeInterface|TypeAbstract) == 0 {
		t.Flags &^= TypeSealed
	}
	switch t.Flags & TypeVisibilityMask {
	case TypeNestedPrivate, TypeNestedAssembly, TypeNestedFamANDAssem:
		t.Flags = t.Flags&^TypeVisibilityMask | TypeNestedPublic
	}

	t.Flags |= TypeVirtualized
	v.touch(sectionTypes)
	return true
}

func (v *VirtualModule) virtualizeMethod(i int) bool {
	md := v.Methods[i]
	if md.Flags&MemberVirtualized != 0 {
		return false
	}
	md.Flags |= MemberVirtualized
	v.touch(sectionMethods)

	if !v.overridable(md) {
		return true
	}

	if md.Flags&MethodVirtual == 0 {
		if md.Body != nil {
			v.delegate(md)
		}
		md.Flags |= MethodVirtual | MethodNewSlot | MethodHideBySig
	}
	md.Flags &^= MethodFinal
	if md.Flags.Access() < MemberFamily {
		md.Flags = md.Flags.WithAccess(MemberPublic)
	}
	return true
}

func (v *VirtualModule) overridable(md *MethodDef) bool {
	if v.Types[md.Owner].Flags&TypeInterface != 0 {
		return false
	}
	const closed = MemberStatic | MethodAbstract | MethodRTSpecialName | MethodPInvokeImpl
	return md.Flags&closed == 0
}

// delegate moves the body of md into a new private method and leaves md
// jumping to it, so callers keep reaching the original code until something
// overrides md.
func (v *VirtualModule) delegate(md *MethodDef) {
	original := &MethodDef{
		Owner:      md.Owner,
		Flags:      (md.Flags&^(MemberAccessMask|MethodFinal)).WithAccess(MemberPrivate) | MethodSpecialName | MemberVirtualized,
		Name:       md.Name + originalSuffix,
		ReturnType: md.ReturnType,
		Params:     append([]string(nil), md.Params...),
		Body:       md.Body,
	}
	md.Body = stubBody(v.AddMethod(original))
}

func (v *VirtualModule) virtualizeField(f *FieldDef) bool {
	if f.Flags&MemberVirtualized != 0 {
		return false
	}
	if f.Flags.Access() == MemberPrivate {
		f.Flags = f.Flags.WithAccess(MemberFamily)
	}
	f.Flags |= MemberVirtualized
	v.touch(sectionFields)
	return true
}
