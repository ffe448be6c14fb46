// Package persist reads and writes relationship indexes as versioned byte streams.
//
// Layout (integers are big-endian fixed width or unsigned varints):
//
//	uint32   format version
//	uvarint  string count, then each string as uvarint length + bytes
//	uvarint  attribute subject count
//	         each: subject ref, uvarint n, n x (attribute ref, value ref)
//	uvarint  relationship subject count
//	         each: subject ref, uvarint kind count
//	         each kind: kind ref, uvarint n, n x (unit ref, location subject ref, offset, length)
//	uint64   xxhash64 of every preceding byte
//
// String refs are 1-based indexes into the string table; 0 means absent.
// Subjects are stored by their Subject.ID identity.
package persist

import (
	"bufio"
	"encoding/binary"
	"hash"
	"io"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/relidx/internal/core"
	"github.com/standardbeagle/relidx/internal/debug"
	relerrors "github.com/standardbeagle/relidx/internal/errors"
	"github.com/standardbeagle/relidx/internal/types"
)

// FormatVersion is the only on-disk format this package reads or writes
const FormatVersion uint32 = 1

// maxStringLen bounds a single string table entry so a corrupt length cannot
// trigger a huge allocation
const maxStringLen = 1 << 20

// Resolver maps a persisted subject identity back to a live subject.
// Returning false skips every fact that mentions the identity.
type Resolver func(id string) (types.Subject, bool)

// IdentityResolver resolves identities written by Subject.ID
func IdentityResolver(id string) (types.Subject, bool) {
	return types.ParseSubjectID(id)
}

// Write serializes idx to w
func Write(w io.Writer, idx *core.RelationshipIndex) error {
	return WriteSnapshot(w, idx.Snapshot())
}

// WriteSnapshot serializes a snapshot taken earlier
func WriteSnapshot(w io.Writer, snap *core.Snapshot) error {
	pool := newStringPool()
	for _, set := range snap.Attributes {
		pool.intern(set.Subject.ID())
		for attr, value := range set.Attributes {
			pool.intern(string(attr))
			pool.intern(value)
		}
	}
	for _, set := range snap.Relationships {
		pool.intern(set.Subject.ID())
		pool.intern(string(set.Kind))
		for _, e := range set.Entries {
			pool.intern(string(e.Unit))
			if !e.Location.Subject.IsZero() {
				pool.intern(e.Location.Subject.ID())
			}
		}
	}

	bw := bufio.NewWriter(w)
	digest := xxhash.New()
	enc := &encoder{w: io.MultiWriter(bw, digest)}

	enc.fixed32(FormatVersion)

	enc.uvarint(uint64(len(pool.strings)))
	for _, s := range pool.strings {
		enc.str(s)
	}

	enc.uvarint(uint64(len(snap.Attributes)))
	for _, set := range snap.Attributes {
		enc.uvarint(pool.ref(set.Subject.ID()))
		enc.uvarint(uint64(len(set.Attributes)))
		for _, attr := range sortedAttributes(set.Attributes) {
			enc.uvarint(pool.ref(string(attr)))
			enc.uvarint(pool.ref(set.Attributes[attr]))
		}
	}

	groups := groupBySubject(snap.Relationships)
	enc.uvarint(uint64(len(groups)))
	for _, group := range groups {
		enc.uvarint(pool.ref(group[0].Subject.ID()))
		enc.uvarint(uint64(len(group)))
		for _, set := range group {
			enc.uvarint(pool.ref(string(set.Kind)))
			enc.uvarint(uint64(len(set.Entries)))
			for _, e := range set.Entries {
				enc.uvarint(pool.ref(string(e.Unit)))
				if e.Location.Subject.IsZero() {
					enc.uvarint(0)
				} else {
					enc.uvarint(pool.ref(e.Location.Subject.ID()))
				}
				enc.uvarint(uint64(e.Location.Offset))
				enc.uvarint(uint64(e.Location.Length))
			}
		}
	}

	if enc.err != nil {
		return enc.err
	}
	var sum [8]byte
	binary.BigEndian.PutUint64(sum[:], digest.Sum64())
	if _, err := bw.Write(sum[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// Read deserializes a stream written by Write into a new index
func Read(r io.Reader, resolve Resolver) (*core.RelationshipIndex, error) {
	idx := core.NewRelationshipIndex()
	if err := ReadInto(r, idx, resolve); err != nil {
		return nil, err
	}
	return idx, nil
}

// ReadInto deserializes a stream into an existing index, adding to its
// contents. A version mismatch, truncation or checksum failure returns a
// *errors.FormatError; facts whose subjects the resolver rejects are skipped.
// On error the index may hold a partial load and should be cleared.
func ReadInto(r io.Reader, idx *core.RelationshipIndex, resolve Resolver) error {
	if resolve == nil {
		resolve = IdentityResolver
	}
	digest := xxhash.New()
	dec := &decoder{r: bufio.NewReader(r), digest: digest}

	version := dec.fixed32()
	if dec.err != nil {
		return dec.corrupt("missing version header")
	}
	if version != FormatVersion {
		return relerrors.NewVersionError(FormatVersion, version)
	}

	count := dec.count()
	strs := make([]string, 0, min(count, 1<<16))
	for i := 0; i < count && dec.err == nil; i++ {
		strs = append(strs, dec.str())
	}
	if dec.err != nil {
		return dec.corrupt("truncated string table")
	}

	subjects := &subjectCache{strs: strs, resolve: resolve, resolved: make(map[uint64]types.Subject)}
	lookup := func(ref uint64) (string, bool) {
		if ref == 0 || ref > uint64(len(strs)) {
			dec.fail("string reference out of range")
			return "", false
		}
		return strs[ref-1], true
	}

	type pendingAttr struct {
		subject types.Subject
		attr    types.Attribute
		value   string
	}
	var attrs []pendingAttr

	attrSubjects := dec.count()
	for i := 0; i < attrSubjects && dec.err == nil; i++ {
		subject, ok := subjects.get(dec.uvarint(), dec)
		n := dec.count()
		for j := 0; j < n && dec.err == nil; j++ {
			name, _ := lookup(dec.uvarint())
			value, _ := lookup(dec.uvarint())
			if ok && dec.err == nil {
				attrs = append(attrs, pendingAttr{subject, types.Attribute(name), value})
			}
		}
	}

	type pendingFact struct {
		unit types.UnitID
		c    core.Contribution
	}
	var facts []pendingFact
	skipped := 0

	relSubjects := dec.count()
	for i := 0; i < relSubjects && dec.err == nil; i++ {
		subject, subjectOK := subjects.get(dec.uvarint(), dec)
		kinds := dec.count()
		for k := 0; k < kinds && dec.err == nil; k++ {
			kindName, _ := lookup(dec.uvarint())
			kind := types.KindFor(kindName)
			n := dec.count()
			for j := 0; j < n && dec.err == nil; j++ {
				unitName, _ := lookup(dec.uvarint())
				locRef := dec.uvarint()
				offset := dec.uvarint()
				length := dec.uvarint()
				if dec.err != nil {
					break
				}
				locSubject := types.Subject{}
				locOK := true
				if locRef != 0 {
					locSubject, locOK = subjects.get(locRef, dec)
				}
				if !subjectOK || !locOK {
					skipped++
					continue
				}
				facts = append(facts, pendingFact{
					unit: types.UnitID(unitName),
					c: core.Contribution{
						Subject:  subject,
						Kind:     kind,
						Location: types.Location{Subject: locSubject, Offset: int(offset), Length: int(length)},
					},
				})
			}
		}
	}
	if dec.err != nil {
		return dec.corrupt(dec.err.Error())
	}

	computed := digest.Sum64()
	stored, err := dec.trailer()
	if err != nil {
		return dec.corrupt("missing checksum")
	}
	if stored != computed {
		return relerrors.NewCorruptError("checksum mismatch")
	}

	for _, a := range attrs {
		idx.RecordAttribute(a.subject, a.attr, a.value)
	}
	for i := range facts {
		f := &facts[i]
		idx.Record(f.unit, f.c.Subject, f.c.Kind, &f.c.Location)
	}

	if skipped > 0 || subjects.unresolved > 0 {
		debug.LogPersist("skipped %d facts referencing %d unresolvable subjects\n", skipped, subjects.unresolved)
	}
	debug.LogPersist("loaded %d facts and %d attributes\n", len(facts), len(attrs))
	return nil
}

// subjectCache resolves each string reference at most once
type subjectCache struct {
	strs       []string
	resolve    Resolver
	resolved   map[uint64]types.Subject
	rejected   map[uint64]bool
	unresolved int
}

func (c *subjectCache) get(ref uint64, dec *decoder) (types.Subject, bool) {
	if dec.err != nil {
		return types.Subject{}, false
	}
	if ref == 0 || ref > uint64(len(c.strs)) {
		dec.fail("subject reference out of range")
		return types.Subject{}, false
	}
	if s, ok := c.resolved[ref]; ok {
		return s, true
	}
	if c.rejected[ref] {
		return types.Subject{}, false
	}
	s, ok := c.resolve(c.strs[ref-1])
	if !ok || s.IsZero() {
		if c.rejected == nil {
			c.rejected = make(map[uint64]bool)
		}
		c.rejected[ref] = true
		c.unresolved++
		debug.LogPersist("unresolvable subject %q\n", c.strs[ref-1])
		return types.Subject{}, false
	}
	c.resolved[ref] = s
	return s, true
}

type encoder struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
	err error
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(p)
}

func (e *encoder) fixed32(v uint32) {
	binary.BigEndian.PutUint32(e.buf[:4], v)
	e.write(e.buf[:4])
}

func (e *encoder) uvarint(v uint64) {
	n := binary.PutUvarint(e.buf[:], v)
	e.write(e.buf[:n])
}

func (e *encoder) str(s string) {
	e.uvarint(uint64(len(s)))
	e.write([]byte(s))
}

// decoder reads the body of a stream, feeding every consumed byte to digest
type decoder struct {
	r      *bufio.Reader
	digest hash.Hash64
	err    error
}

func (d *decoder) fail(reason string) {
	if d.err == nil {
		d.err = relerrors.NewCorruptError(reason)
	}
}

func (d *decoder) corrupt(reason string) error {
	if fe, ok := d.err.(*relerrors.FormatError); ok {
		return fe
	}
	return relerrors.NewCorruptError(reason)
}

func (d *decoder) ReadByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err == nil {
		d.digest.Write([]byte{b})
	}
	return b, err
}

func (d *decoder) full(p []byte) {
	if d.err != nil {
		return
	}
	if _, err := io.ReadFull(d.r, p); err != nil {
		d.err = err
		return
	}
	d.digest.Write(p)
}

func (d *decoder) fixed32() uint32 {
	var b [4]byte
	d.full(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(d)
	if err != nil {
		d.err = err
		return 0
	}
	return v
}

// count reads a length prefix and rejects values that cannot be real
func (d *decoder) count() int {
	v := d.uvarint()
	if v > 1<<31 {
		d.fail("count out of range")
		return 0
	}
	return int(v)
}

func (d *decoder) str() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if n > maxStringLen {
		d.fail("string too long")
		return ""
	}
	b := make([]byte, n)
	d.full(b)
	return string(b)
}

// trailer reads the checksum without feeding it to the digest
func (d *decoder) trailer() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
