package inject

// SyncReferences points every reference to the injector at the running
// version. The hook call in a patched initializer only binds if this
// reference matches the injector the host actually loads, so a stale version
// fails at host load time rather than here.
func SyncReferences(m *Module, id Identity) bool {
	changed := false
	for _, r := range m.References {
		if r.Name == id.Name && r.Version != id.Version {
			r.Version = id.Version
			changed = true
		}
	}
	if changed {
		m.touch(sectionReferences)
	}
	return changed
}
