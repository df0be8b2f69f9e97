package inject

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindLatestBackup_None(t *testing.T) {
	root := t.TempDir()

	b, err := FindLatestBackup(root, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, b)

	b, err = FindLatestBackup(filepath.Join(root, "missing"), t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, b)

	// A directory without a manifest is not a backup set.
	require.NoError(t, os.Mkdir(filepath.Join(root, "junk"), 0o755))
	b, err = FindLatestBackup(root, t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestBackupSet_Add(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	host, root := t.TempDir(), t.TempDir()
	path := coreModule{}.write(t, host)
	original := readFile(t, path)

	b, err := OpenBackupSet(root, host, testID)
	require.NoError(err)
	assert.Equal("1.2.0.0", b.Name())
	assert.NotEmpty(b.ID())
	assert.False(b.Contains(path))

	require.NoError(b.Add(path))
	assert.True(b.Contains(path))

	copied := filepath.Join(b.Dir(), "Game_Data", "Managed", "Engine.CoreModule.dll")
	assert.Equal(original, readFile(t, copied))

	entries := b.Entries()
	require.Len(entries, 1)
	assert.Equal("Game_Data/Managed/Engine.CoreModule.dll", entries[0].Path)
	assert.True(entries[0].Existed)
	assert.Equal(int64(len(original)), entries[0].Size)
	assert.Len(entries[0].Checksum, 16)

	// Adding again keeps the first copy.
	require.NoError(os.WriteFile(path, []byte("patched"), 0o644))
	require.NoError(b.Add(path))
	assert.Len(b.Entries(), 1)
	assert.Equal(original, readFile(t, copied))

	// Reopening finds the same set.
	reopened, err := OpenBackupSet(root, host, testID)
	require.NoError(err)
	assert.Equal(b.ID(), reopened.ID())
	assert.True(reopened.Contains(path))
}

func TestBackupSet_AddOutsideBaseDir(t *testing.T) {
	host := t.TempDir()
	b, err := OpenBackupSet(t.TempDir(), host, testID)
	require.NoError(t, err)

	other := filepath.Join(t.TempDir(), "Game.dll")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o644))
	assert.Error(t, b.Add(other))
	assert.Error(t, b.Add(host))
	assert.Empty(t, b.Entries())
}

func TestBackupSet_Restore(t *testing.T) {
	require := require.New(t)

	host, root := t.TempDir(), t.TempDir()
	core := coreModule{}.write(t, host)
	original := readFile(t, core)
	created := filepath.Join(host, "Game_Data", "Managed", "New.dll")

	b, err := OpenBackupSet(root, host, testID)
	require.NoError(err)
	require.NoError(b.Add(core))
	require.NoError(b.Add(created))

	entries := b.Entries()
	require.Len(entries, 2)
	assert.False(t, entries[1].Existed)

	require.NoError(os.WriteFile(core, []byte("patched"), 0o644))
	require.NoError(os.WriteFile(created, []byte("new"), 0o644))

	latest, err := FindLatestBackup(root, host)
	require.NoError(err)
	require.NotNil(latest)
	require.NoError(latest.Restore())

	assert.Equal(t, original, readFile(t, core))
	assert.NoFileExists(t, created)

	// Restoring twice is harmless.
	require.NoError(latest.Restore())
	assert.Equal(t, original, readFile(t, core))
}

func TestBackupSet_RestoreCorrupt(t *testing.T) {
	host, root := t.TempDir(), t.TempDir()
	core := coreModule{}.write(t, host)

	b, err := OpenBackupSet(root, host, testID)
	require.NoError(t, err)
	require.NoError(t, b.Add(core))

	require.NoError(t, os.WriteFile(core, []byte("patched"), 0o644))
	copied := filepath.Join(b.Dir(), "Game_Data", "Managed", "Engine.CoreModule.dll")
	require.NoError(t, os.WriteFile(copied, []byte("garbage"), 0o644))

	err = b.Restore()
	assert.ErrorContains(t, err, "corrupt")
	assert.Equal(t, []byte("patched"), readFile(t, core))
}

func TestListBackups_Order(t *testing.T) {
	host, root := t.TempDir(), t.TempDir()
	now := time.Now().UTC()

	open := func(v Version, created time.Time) *BackupSet {
		t.Helper()
		b, err := OpenBackupSet(root, host, Identity{Name: testID.Name, Version: v})
		require.NoError(t, err)
		b.manifest.Created = created
		require.NoError(t, b.save())
		return b
	}
	open(Version{Major: 1}, now.Add(-2*time.Hour))
	open(Version{Major: 3}, now.Add(-time.Hour))
	open(Version{Major: 2}, now)

	sets, err := ListBackups(root, host)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Equal(t, "2.0.0.0", sets[0].Name())
	assert.Equal(t, "3.0.0.0", sets[1].Name())
	assert.Equal(t, "1.0.0.0", sets[2].Name())

	latest, err := FindLatestBackup(root, host)
	require.NoError(t, err)
	assert.Equal(t, sets[0].ID(), latest.ID())
}

func TestListBackups_SkipsBadManifest(t *testing.T) {
	host, root := t.TempDir(), t.TempDir()

	good, err := OpenBackupSet(root, host, testID)
	require.NoError(t, err)

	junk := filepath.Join(root, "junk")
	require.NoError(t, os.Mkdir(junk, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(junk, manifestName), []byte("entries: [oops"), 0o644))

	sets, err := ListBackups(root, host)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, good.ID(), sets[0].ID())

	var skipped []string
	latest, err := findLatestBackup(root, host, func(dir string, err error) {
		assert.ErrorIs(t, err, ErrBadManifest)
		skipped = append(skipped, dir)
	})
	require.NoError(t, err)
	assert.Equal(t, good.ID(), latest.ID())
	assert.Equal(t, []string{junk}, skipped)

	// The set a run would write into still has to be readable.
	require.NoError(t, os.WriteFile(filepath.Join(good.Dir(), manifestName), []byte("entries: [oops"), 0o644))
	_, err = OpenBackupSet(root, host, testID)
	assert.ErrorIs(t, err, ErrBadManifest)
}
