package inject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncReferences(t *testing.T) {
	cases := map[string]struct {
		refs        []*Reference
		wantChanged bool
	}{
		"stale version": {
			refs:        []*Reference{{Name: "Injector", Version: Version{Major: 1}}},
			wantChanged: true,
		},
		"newer version is also replaced": {
			refs:        []*Reference{{Name: "Injector", Version: Version{Major: 9}}},
			wantChanged: true,
		},
		"current version": {
			refs: []*Reference{{Name: "Injector", Version: testID.Version}},
		},
		"other modules": {
			refs: []*Reference{{Name: "System.Runtime", Version: Version{Major: 4}}},
		},
		"no references": {},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewModule("test.mod")
			for _, r := range tc.refs {
				m.AddReference(r)
			}
			reload(t, m)

			changed := SyncReferences(m, testID)
			assert.Equal(t, tc.wantChanged, changed)
			assert.Equal(t, tc.wantChanged, m.Dirty())

			for _, r := range m.References {
				if r.Name == testID.Name {
					assert.Equal(t, testID.Version, r.Version)
				}
			}
		})
	}
}

func TestSyncReferences_OnlyTouchesMatchingNames(t *testing.T) {
	m := NewModule("test.mod")
	m.AddReference(&Reference{Name: "System.Runtime", Version: Version{Major: 4}})
	m.AddReference(&Reference{Name: "Injector", Version: Version{Major: 1}})
	m.AddReference(&Reference{Name: "Injector.Loader", Version: Version{Major: 1}})
	reload(t, m)

	require.True(t, SyncReferences(m, testID))
	assert.Equal(t, Version{Major: 4}, m.References[0].Version)
	assert.Equal(t, testID.Version, m.References[1].Version)
	assert.Equal(t, Version{Major: 1}, m.References[2].Version)

	out, err := m.Bytes()
	require.NoError(t, err)
	reread, err := ReadModule("test.mod", out)
	require.NoError(t, err)
	assert.Equal(t, testID.Version, reread.References[1].Version)
}
