package inject

import (
	"encoding/binary"
	"fmt"
	"math"
)

const maxStringLen = 1 << 16

// decoder reads one section. The first failure sticks; later reads return
// zero values.
type decoder struct {
	path string
	buf  []byte
	off  int
	base int
	err  error
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = formatErrorf(d.path, d.base+d.off, format, args...)
	}
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf)-d.off {
		d.fail("truncated section")
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) uvarint() int {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.off:])
	if n <= 0 || v > math.MaxInt32 {
		d.fail("bad varint")
		return 0
	}
	d.off += n
	return int(v)
}

// count reads a table length. Every row takes at least one byte, so a count
// larger than what is left can only be corruption.
func (d *decoder) count() int {
	n := d.uvarint()
	if n > len(d.buf)-d.off {
		d.fail("count %d exceeds section size", n)
		return 0
	}
	return n
}

func (d *decoder) str() string {
	n := d.uvarint()
	if n > maxStringLen {
		d.fail("string too long (%d bytes)", n)
		return ""
	}
	return string(d.take(n))
}

func (d *decoder) strs() []string {
	n := d.count()
	if n == 0 {
		return nil
	}
	s := make([]string, n)
	for i := range s {
		s[i] = d.str()
	}
	return s
}

func (d *decoder) version() Version {
	return Version{Major: d.u16(), Minor: d.u16(), Build: d.u16(), Revision: d.u16()}
}

func (d *decoder) done() error {
	if d.err == nil && d.off != len(d.buf) {
		d.fail("%d unread bytes at end of section", len(d.buf)-d.off)
	}
	return d.err
}

func decodeReferences(d *decoder) []*Reference {
	refs := make([]*Reference, d.count())
	for i := range refs {
		refs[i] = &Reference{Name: d.str(), Version: d.version()}
	}
	return refs
}

func decodeMemberRefs(d *decoder) []*MemberRef {
	refs := make([]*MemberRef, d.count())
	for i := range refs {
		refs[i] = &MemberRef{
			Scope:         d.uvarint() - 1,
			DeclaringType: d.str(),
			Name:          d.str(),
			ReturnType:    d.str(),
			Params:        d.strs(),
		}
	}
	return refs
}

func decodeTypes(d *decoder) []*TypeDef {
	types := make([]*TypeDef, d.count())
	for i := range types {
		types[i] = &TypeDef{
			Flags:     TypeFlags(d.u32()),
			Namespace: d.str(),
			Name:      d.str(),
			BaseType:  d.str(),
		}
	}
	return types
}

func decodeFields(d *decoder) []*FieldDef {
	fields := make([]*FieldDef, d.count())
	for i := range fields {
		fields[i] = &FieldDef{
			Owner: d.uvarint(),
			Flags: MemberFlags(d.u32()),
			Name:  d.str(),
			Type:  d.str(),
		}
	}
	return fields
}

func decodeMethods(d *decoder) []*MethodDef {
	methods := make([]*MethodDef, d.count())
	for i := range methods {
		md := &MethodDef{
			Owner:      d.uvarint(),
			Flags:      MemberFlags(d.u32()),
			Name:       d.str(),
			ReturnType: d.str(),
			Params:     d.strs(),
		}
		switch hasBody := d.u8(); hasBody {
		case 0:
		case 1:
			md.Body = decodeBody(d)
		default:
			d.fail("bad body marker %d", hasBody)
		}
		methods[i] = md
	}
	return methods
}

func decodeBody(d *decoder) *MethodBody {
	start := d.off
	code := d.take(d.uvarint())
	body := &MethodBody{Code: append([]byte(nil), code...)}
	n := d.count()
	for i := 0; i < n; i++ {
		f := Fixup{Offset: int(d.u32()), Token: Token(d.u32())}
		if d.err == nil && f.Offset+4 > len(code) {
			d.off = start
			d.fail("fixup at %d outside %d byte body", f.Offset, len(code))
		}
		body.Fixups = append(body.Fixups, f)
	}
	return body
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func appendStrings(b []byte, s []string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	for _, v := range s {
		b = appendString(b, v)
	}
	return b
}

func appendVersion(b []byte, v Version) []byte {
	b = binary.LittleEndian.AppendUint16(b, v.Major)
	b = binary.LittleEndian.AppendUint16(b, v.Minor)
	b = binary.LittleEndian.AppendUint16(b, v.Build)
	return binary.LittleEndian.AppendUint16(b, v.Revision)
}

// encodeSection serializes the current contents of a known section.
func (m *Module) encodeSection(kind uint32) ([]byte, error) {
	var b []byte
	switch kind {
	case sectionReferences:
		b = binary.AppendUvarint(b, uint64(len(m.References)))
		for _, r := range m.References {
			b = appendString(b, r.Name)
			b = appendVersion(b, r.Version)
		}
	case sectionMemberRefs:
		b = binary.AppendUvarint(b, uint64(len(m.MemberRefs)))
		for i, r := range m.MemberRefs {
			if r.Scope < -1 || r.Scope >= len(m.References) {
				return nil, fmt.Errorf("member reference %d: scope %d out of range", i, r.Scope)
			}
			b = binary.AppendUvarint(b, uint64(r.Scope+1))
			b = appendString(b, r.DeclaringType)
			b = appendString(b, r.Name)
			b = appendString(b, r.ReturnType)
			b = appendStrings(b, r.Params)
		}
	case sectionTypes:
		b = binary.AppendUvarint(b, uint64(len(m.Types)))
		for _, t := range m.Types {
			b = binary.LittleEndian.AppendUint32(b, uint32(t.Flags))
			b = appendString(b, t.Namespace)
			b = appendString(b, t.Name)
			b = appendString(b, t.BaseType)
		}
	case sectionFields:
		b = binary.AppendUvarint(b, uint64(len(m.Fields)))
		for i, f := range m.Fields {
			if f.Owner < 0 || f.Owner >= len(m.Types) {
				return nil, fmt.Errorf("field %d: owner %d out of range", i, f.Owner)
			}
			b = binary.AppendUvarint(b, uint64(f.Owner))
			b = binary.LittleEndian.AppendUint32(b, uint32(f.Flags))
			b = appendString(b, f.Name)
			b = appendString(b, f.Type)
		}
	case sectionMethods:
		b = binary.AppendUvarint(b, uint64(len(m.Methods)))
		for i, md := range m.Methods {
			if md.Owner < 0 || md.Owner >= len(m.Types) {
				return nil, fmt.Errorf("method %d: owner %d out of range", i, md.Owner)
			}
			b = binary.AppendUvarint(b, uint64(md.Owner))
			b = binary.LittleEndian.AppendUint32(b, uint32(md.Flags))
			b = appendString(b, md.Name)
			b = appendString(b, md.ReturnType)
			b = appendStrings(b, md.Params)
			if md.Body == nil {
				b = append(b, 0)
				continue
			}
			b = append(b, 1)
			b = binary.AppendUvarint(b, uint64(len(md.Body.Code)))
			b = append(b, md.Body.Code...)
			b = binary.AppendUvarint(b, uint64(len(md.Body.Fixups)))
			for _, f := range md.Body.Fixups {
				if f.Offset < 0 || f.Offset+4 > len(md.Body.Code) {
					return nil, fmt.Errorf("method %d: fixup at %d outside body", i, f.Offset)
				}
				b = binary.LittleEndian.AppendUint32(b, uint32(f.Offset))
				b = binary.LittleEndian.AppendUint32(b, uint32(f.Token))
			}
		}
	default:
		return nil, fmt.Errorf("section kind %d cannot be encoded", kind)
	}
	return b, nil
}
