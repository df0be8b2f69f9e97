package inject

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"gopkg.in/yaml.v3"
)

const manifestName = "_backup.yaml"

// BackupEntry records one file in a backup set.
type BackupEntry struct {
	// Path is slash separated and relative to the base directory.
	Path string `yaml:"path"`
	// Existed is false for a file that was not there when it was backed up;
	// restoring removes it.
	Existed  bool   `yaml:"existed"`
	Size     int64  `yaml:"size,omitempty"`
	Checksum string `yaml:"xxh3,omitempty"`
}

type backupManifest struct {
	ID       string        `yaml:"id"`
	Identity string        `yaml:"identity"`
	Version  string        `yaml:"version"`
	Created  time.Time     `yaml:"created"`
	Entries  []BackupEntry `yaml:"entries"`
}

// BackupSet holds the pristine copies of files changed by one version of the
// injector. A file is copied the first time it is added and never again.
type BackupSet struct {
	dir      string
	baseDir  string
	manifest backupManifest
}

// OpenBackupSet opens the backup set for id under root, creating it if it
// does not exist. Paths added to it are stored relative to baseDir.
func OpenBackupSet(root, baseDir string, id Identity) (*BackupSet, error) {
	dir := filepath.Join(root, id.Version.String())
	b, err := readBackupSet(dir, baseDir)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("create directory", dir, err)
	}
	b = &BackupSet{
		dir:     dir,
		baseDir: baseDir,
		manifest: backupManifest{
			ID:       uuid.NewString(),
			Identity: id.Name,
			Version:  id.Version.String(),
			Created:  time.Now().UTC(),
		},
	}
	if err := b.save(); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBackups returns every backup set under root, newest first. A missing
// root has no backups. Directories without a manifest, or with one that does
// not parse, are ignored.
func ListBackups(root, baseDir string) ([]*BackupSet, error) {
	return listBackups(root, baseDir, nil)
}

// listBackups is ListBackups, calling skip (if set) for every set ignored
// because of ErrBadManifest.
func listBackups(root, baseDir string, skip func(dir string, err error)) ([]*BackupSet, error) {
	dirents, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ioError("read directory", root, err)
	}

	var sets []*BackupSet
	for _, de := range dirents {
		if !de.IsDir() {
			continue
		}
		dir := filepath.Join(root, de.Name())
		b, err := readBackupSet(dir, baseDir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if errors.Is(err, ErrBadManifest) {
			if skip != nil {
				skip(dir, err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		sets = append(sets, b)
	}

	sort.SliceStable(sets, func(i, j int) bool {
		ci, cj := sets[i].manifest.Created, sets[j].manifest.Created
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return sets[i].Name() > sets[j].Name()
	})
	return sets, nil
}

// FindLatestBackup returns the newest backup set under root, or nil if there
// is none.
func FindLatestBackup(root, baseDir string) (*BackupSet, error) {
	return findLatestBackup(root, baseDir, nil)
}

func findLatestBackup(root, baseDir string, skip func(dir string, err error)) (*BackupSet, error) {
	sets, err := listBackups(root, baseDir, skip)
	if err != nil || len(sets) == 0 {
		return nil, err
	}
	return sets[0], nil
}

func readBackupSet(dir, baseDir string) (*BackupSet, error) {
	path := filepath.Join(dir, manifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}

	b := &BackupSet{dir: dir, baseDir: baseDir}
	if err := yaml.Unmarshal(data, &b.manifest); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBadManifest, path, err)
	}
	return b, nil
}

// Name is the directory name of the set, the version that created it.
func (b *BackupSet) Name() string { return filepath.Base(b.dir) }

// Dir is where the set's files are stored.
func (b *BackupSet) Dir() string { return b.dir }

// ID uniquely identifies the set.
func (b *BackupSet) ID() string { return b.manifest.ID }

// Created is when the set was first opened.
func (b *BackupSet) Created() time.Time { return b.manifest.Created }

// Entries returns a copy of the files in the set.
func (b *BackupSet) Entries() []BackupEntry {
	return append([]BackupEntry(nil), b.manifest.Entries...)
}

// Contains reports whether path is already in the set.
func (b *BackupSet) Contains(path string) bool {
	rel, err := b.relative(path)
	if err != nil {
		return false
	}
	return b.find(rel) >= 0
}

func (b *BackupSet) find(rel string) int {
	for i, e := range b.manifest.Entries {
		if e.Path == rel {
			return i
		}
	}
	return -1
}

func (b *BackupSet) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	base, err := filepath.Abs(b.baseDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, b.baseDir)
	}
	return filepath.ToSlash(rel), nil
}

// Add copies path into the set unless it is already there. It must succeed
// before path is changed. A path that does not exist yet is recorded so that
// Restore can remove it.
func (b *BackupSet) Add(path string) error {
	rel, err := b.relative(path)
	if err != nil {
		return err
	}
	if b.find(rel) >= 0 {
		return nil
	}

	entry := BackupEntry{Path: rel}
	size, sum, err := copyFile(path, filepath.Join(b.dir, filepath.FromSlash(rel)))
	switch {
	case errors.Is(err, fs.ErrNotExist) && !fileExists(path):
	case err != nil:
		return err
	default:
		entry.Existed = true
		entry.Size = size
		entry.Checksum = sum
	}

	b.manifest.Entries = append(b.manifest.Entries, entry)
	if err := b.save(); err != nil {
		b.manifest.Entries = b.manifest.Entries[:len(b.manifest.Entries)-1]
		return err
	}
	return nil
}

// Restore puts every file in the set back where it came from. Files that did
// not exist when they were added are removed.
func (b *BackupSet) Restore() error {
	for _, e := range b.manifest.Entries {
		target := filepath.Join(b.baseDir, filepath.FromSlash(e.Path))
		if !e.Existed {
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return ioError("remove", target, err)
			}
			continue
		}

		src := filepath.Join(b.dir, filepath.FromSlash(e.Path))
		sum, err := checksumFile(src)
		if err != nil {
			return err
		}
		if sum != e.Checksum {
			return fmt.Errorf("backup of %s is corrupt: checksum %s, expected %s", e.Path, sum, e.Checksum)
		}
		if _, _, err := copyFile(src, target); err != nil {
			return err
		}
	}
	return nil
}

func (b *BackupSet) save() error {
	data, err := yaml.Marshal(&b.manifest)
	if err != nil {
		return fmt.Errorf("encoding backup manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(b.dir, manifestName), data, 0o644)
}

// copyFile copies src to dst through a temporary file and returns the size
// and checksum of what was copied.
func copyFile(src, dst string) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", ioError("open", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, "", ioError("stat", src, err)
	}
	if !info.Mode().IsRegular() {
		return 0, "", fmt.Errorf("%s is not a regular file", src)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", ioError("create directory", dir, err)
	}
	out, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, "", ioError("copy", dst, err)
	}
	defer os.Remove(out.Name())

	h := xxh3.New()
	size, err := io.Copy(io.MultiWriter(out, h), in)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(out.Name(), info.Mode().Perm())
	}
	if err == nil {
		err = os.Rename(out.Name(), dst)
	}
	if err != nil {
		return 0, "", ioError("copy", dst, err)
	}

	return size, fmt.Sprintf("%016x", h.Sum64()), nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", ioError("open", path, err)
	}
	defer f.Close()

	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", ioError("read", path, err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
