package inject

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Bytes serializes the module. Sections that have not changed since they
// were read are copied as they were, so Bytes of an unmodified module equals
// the file it was loaded from.
func (m *Module) Bytes() ([]byte, error) {
	payloads := make([][]byte, len(m.sections))
	for i, s := range m.sections {
		if !s.dirty && s.raw != nil {
			payloads[i] = s.raw
			continue
		}
		b, err := m.encodeSection(s.kind)
		if err != nil {
			return nil, err
		}
		if uint64(len(b)) > math.MaxUint32 {
			return nil, fmt.Errorf("section kind %d too large", s.kind)
		}
		payloads[i] = b
	}

	out := make([]byte, headerSize+len(m.sections)*tableEntrySize)
	copy(out, moduleMagic)
	binary.LittleEndian.PutUint16(out[4:], formatMajor)
	binary.LittleEndian.PutUint16(out[6:], m.minor)
	binary.LittleEndian.PutUint32(out[8:], m.flags)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(m.sections)))

	for i, s := range m.sections {
		for len(out) < align(len(out)) {
			out = append(out, 0)
		}
		entry := out[headerSize+i*tableEntrySize:]
		binary.LittleEndian.PutUint32(entry, s.kind)
		binary.LittleEndian.PutUint32(entry[4:], uint32(len(out)))
		binary.LittleEndian.PutUint32(entry[8:], uint32(len(payloads[i])))
		out = append(out, payloads[i]...)
	}
	if uint64(len(out)) > math.MaxUint32 {
		return nil, errors.New("module too large")
	}
	return append(out, m.trailer...), nil
}

// Write saves the module back to its path if it has changed. The file is
// replaced atomically and keeps its permissions.
func (m *Module) Write() error {
	if !m.Dirty() {
		return nil
	}
	if m.Path == "" {
		return errors.New("module has no path")
	}

	data, err := m.Bytes()
	if err != nil {
		return fmt.Errorf("encoding %s: %w", m.Path, err)
	}
	if err := writeFileAtomic(m.Path, data, 0o644); err != nil {
		return err
	}

	// What is on disk is now the clean state.
	for i, s := range m.sections {
		entry := data[headerSize+i*tableEntrySize:]
		offset := binary.LittleEndian.Uint32(entry[4:])
		size := binary.LittleEndian.Uint32(entry[8:])
		s.raw = data[offset : offset+size]
		s.dirty = false
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place. An
// existing file's mode is kept, otherwise perm is used.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioError("create directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return ioError("write", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ioError("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioError("sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		return ioError("write", path, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return ioError("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ioError("rename", path, err)
	}
	return nil
}
