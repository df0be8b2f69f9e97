package inject

import (
	"bytes"
	"encoding/binary"
	"os"
)

const (
	moduleMagic    = "MMOD"
	formatMajor    = 1
	headerSize     = 16
	tableEntrySize = 12
	sectionAlign   = 4
)

func align(n int) int {
	return (n + sectionAlign - 1) &^ (sectionAlign - 1)
}

// LoadModule reads and parses the module at path.
func LoadModule(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("read", path, err)
	}
	return ReadModule(path, data)
}

// ReadModule parses data as a module that will be written back to path.
func ReadModule(path string, data []byte) (*Module, error) {
	if len(data) < headerSize {
		return nil, formatErrorf(path, -1, "file too small (%d bytes)", len(data))
	}
	if string(data[:4]) != moduleMagic {
		return nil, formatErrorf(path, 0, "bad magic %q", data[:4])
	}
	if major := binary.LittleEndian.Uint16(data[4:]); major != formatMajor {
		return nil, formatErrorf(path, 4, "unsupported format version %d", major)
	}

	m := &Module{
		Path:  path,
		minor: binary.LittleEndian.Uint16(data[6:]),
		flags: binary.LittleEndian.Uint32(data[8:]),
	}

	count := int(binary.LittleEndian.Uint32(data[12:]))
	if count > (len(data)-headerSize)/tableEntrySize {
		return nil, formatErrorf(path, 12, "section count %d exceeds file size", count)
	}

	cursor := headerSize + count*tableEntrySize
	seen := map[uint32]bool{}
	for i := 0; i < count; i++ {
		entry := data[headerSize+i*tableEntrySize:]
		kind := binary.LittleEndian.Uint32(entry)
		offset := int(binary.LittleEndian.Uint32(entry[4:]))
		size := int(binary.LittleEndian.Uint32(entry[8:]))

		if offset != align(cursor) {
			return nil, formatErrorf(path, headerSize+i*tableEntrySize, "section %d at %d, expected %d", i, offset, align(cursor))
		}
		if size > len(data)-offset {
			return nil, formatErrorf(path, offset, "section %d overruns file", i)
		}
		if bytes.ContainsFunc(data[cursor:offset], func(r rune) bool { return r != 0 }) {
			return nil, formatErrorf(path, cursor, "non-zero padding before section %d", i)
		}
		if kind >= sectionReferences && kind <= sectionMethods {
			if seen[kind] {
				return nil, formatErrorf(path, offset, "duplicate section kind %d", kind)
			}
			seen[kind] = true
		}

		m.sections = append(m.sections, &section{
			kind: kind,
			raw:  bytes.Clone(data[offset : offset+size]),
		})
		cursor = offset + size
	}
	m.trailer = bytes.Clone(data[cursor:])

	offset := headerSize + count*tableEntrySize
	for _, s := range m.sections {
		offset = align(offset)
		if err := m.decodeSection(s, offset); err != nil {
			return nil, err
		}
		offset += len(s.raw)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) decodeSection(s *section, offset int) error {
	d := &decoder{path: m.Path, buf: s.raw, base: offset}
	switch s.kind {
	case sectionReferences:
		m.References = decodeReferences(d)
	case sectionMemberRefs:
		m.MemberRefs = decodeMemberRefs(d)
	case sectionTypes:
		m.Types = decodeTypes(d)
	case sectionFields:
		m.Fields = decodeFields(d)
	case sectionMethods:
		m.Methods = decodeMethods(d)
	default:
		return nil
	}
	return d.done()
}

// validate checks indexes that cross sections.
func (m *Module) validate() error {
	for i, r := range m.MemberRefs {
		if r.Scope >= len(m.References) {
			return formatErrorf(m.Path, -1, "member reference %d has scope %d, only %d references", i, r.Scope, len(m.References))
		}
	}
	for i, f := range m.Fields {
		if f.Owner >= len(m.Types) {
			return formatErrorf(m.Path, -1, "field %d owned by missing type %d", i, f.Owner)
		}
	}
	for i, md := range m.Methods {
		if md.Owner >= len(m.Types) {
			return formatErrorf(m.Path, -1, "method %d owned by missing type %d", i, md.Owner)
		}
	}
	return nil
}
