package inject

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	testID   = Identity{Name: "Injector", Version: Version{Major: 1, Minor: 2}}
	testHook = Hook{DeclaringType: "Injector.Injector", Name: "CreateBootstrapper"}
)

func testInitializer() Initializer {
	return Initializer{Namespace: "Engine", Type: "Application", Hook: testHook}
}

// coreModule describes the core module fixture.
type coreModule struct {
	// injectorRef adds a reference to the injector with this version.
	injectorRef *Version
	// hookRef adds a member reference to the hook, scoped to the injector
	// reference (which must be set).
	hookRef bool
	// cctor builds the initializer body. other is a token for an unrelated
	// method, hook is the hook's token if hookRef is set. No initializer is
	// added when cctor is nil.
	cctor func(other, hook Token) *MethodBody
}

func (c coreModule) build(path string) *Module {
	m := NewModule(path)
	m.AddReference(&Reference{Name: "System.Runtime", Version: Version{Major: 4}})

	other := m.AddMemberRef(&MemberRef{Scope: 0, DeclaringType: "System.Console", Name: "Beep", ReturnType: "System.Void"})

	var hook Token
	if c.injectorRef != nil {
		scope := m.AddReference(&Reference{Name: testID.Name, Version: *c.injectorRef})
		if c.hookRef {
			hook = m.AddMemberRef(&MemberRef{Scope: scope, DeclaringType: testHook.DeclaringType, Name: testHook.Name, ReturnType: "System.Void"})
		}
	}

	obj := m.AddType(&TypeDef{Flags: TypePublic, Namespace: "Engine", Name: "Object"})
	m.AddMethod(&MethodDef{Owner: obj, Flags: MemberPublic, Name: "ToString", ReturnType: "System.String", Body: &MethodBody{Code: []byte{opcodeRET}}})

	app := m.AddType(&TypeDef{Flags: TypePublic | TypeSealed, Namespace: "Engine", Name: "Application", BaseType: "Engine.Object"})
	m.AddField(&FieldDef{Owner: app, Flags: MemberPrivate | MemberStatic, Name: "isPlaying", Type: "System.Boolean"})
	m.AddMethod(&MethodDef{Owner: app, Flags: MemberPublic | MemberStatic, Name: "Quit", ReturnType: "System.Void", Body: &MethodBody{Code: []byte{0x90, opcodeRET}}})
	if c.cctor != nil {
		m.AddMethod(&MethodDef{
			Owner:      app,
			Flags:      MemberPrivate | MemberStatic | MethodSpecialName | MethodRTSpecialName,
			Name:       initializerName,
			ReturnType: "System.Void",
			Body:       c.cctor(other, hook),
		})
	}
	return m
}

func (c coreModule) write(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Game_Data", "Managed", "Engine.CoreModule.dll")
	require.NoError(t, c.build(path).Write())
	return path
}

// gameModule builds a module with members in every state the virtualizer
// cares about.
func gameModule(path string) *Module {
	m := NewModule(path)
	m.AddReference(&Reference{Name: "Engine.CoreModule", Version: Version{Major: 1}})
	log := m.AddMemberRef(&MemberRef{Scope: 0, DeclaringType: "Engine.Debug", Name: "Log", ReturnType: "System.Void", Params: []string{"System.Object"}})

	player := m.AddType(&TypeDef{Flags: TypePublic | TypeSealed, Name: "Player", BaseType: "Engine.Object"})
	m.AddField(&FieldDef{Owner: player, Flags: MemberPrivate, Name: "health", Type: "System.Int32"})
	m.AddField(&FieldDef{Owner: player, Flags: MemberPublic, Name: "name", Type: "System.String"})

	// Update calls Engine.Debug.Log.
	update, fixup := rel32(opcodeCALLrel, log)
	m.AddMethod(&MethodDef{Owner: player, Flags: MemberPrivate | MethodHideBySig, Name: "Update", ReturnType: "System.Void",
		Body: &MethodBody{Code: append(update, opcodeRET), Fixups: []Fixup{fixup}}})
	m.AddMethod(&MethodDef{Owner: player, Flags: MemberPublic | MethodVirtual | MethodFinal, Name: "ToString", ReturnType: "System.String",
		Body: &MethodBody{Code: []byte{opcodeRET}}})
	m.AddMethod(&MethodDef{Owner: player, Flags: MemberPublic | MemberStatic, Name: "Spawn", ReturnType: "Player",
		Body: &MethodBody{Code: []byte{opcodeRET}}})
	m.AddMethod(&MethodDef{Owner: player, Flags: MemberPublic | MethodSpecialName | MethodRTSpecialName, Name: ".ctor", ReturnType: "System.Void",
		Body: &MethodBody{Code: []byte{opcodeRET}}})

	m.AddType(&TypeDef{Flags: TypePublic | TypeAbstract | TypeSealed, Name: "Utils"})

	weapon := m.AddType(&TypeDef{Flags: TypeNestedPrivate, Name: "Weapon"})
	m.AddMethod(&MethodDef{Owner: weapon, Flags: MemberPublic | MethodVirtual | MethodAbstract | MethodNewSlot, Name: "Fire", ReturnType: "System.Void"})

	return m
}

func writeGameModule(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "Game_Data", "Managed", "Game.dll")
	require.NoError(t, gameModule(path).Write())
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// callBody is "CALL token; RET".
func callBody(token Token) *MethodBody {
	code, fixup := rel32(opcodeCALLrel, token)
	return &MethodBody{Code: append(code, opcodeRET), Fixups: []Fixup{fixup}}
}
