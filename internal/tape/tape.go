// Package tape implements the interpreter's byte-addressable memory: a
// fixed-length buffer plus a current data-pointer index, with both checked
// accessors (used by the deopt tier) and an unchecked view (used by the opt
// tier once range analysis has proven an access can't escape the buffer).
package tape

import (
	"unsafe"

	"loopvm/internal/errors"
)

// Len is the fixed tape length. The language has no dynamic tape growth
// (explicit non-goal), so this is a compile-time constant rather than a
// configurable field.
const Len = 65536

// Tape is a fixed-size byte buffer with a current address. The address is
// usize-typed (uint here) and may wrap via modular arithmetic on pointer
// update; only access, never movement, is bounds-checked.
type Tape struct {
	buf [Len]byte
	ptr uint
}

// New returns a tape with every cell zeroed and the pointer at 0.
func New() *Tape {
	return &Tape{}
}

// Ptr returns the current data-pointer address.
func (t *Tape) Ptr() uint { return t.ptr }

// SetPtr moves the pointer with modular wraparound. This never fails: only
// access is checked, per spec §3/§4.1.
func (t *Tape) SetPtr(p uint) { t.ptr = p % Len }

// Move applies a signed delta to the pointer, wrapping modulo Len.
func (t *Tape) Move(delta int) {
	np := int(t.ptr) + delta
	np %= Len
	if np < 0 {
		np += Len
	}
	t.ptr = uint(np)
}

func (t *Tape) Get(i uint) (byte, error) {
	if i >= Len {
		return 0, errors.OOBGet(int(i))
	}
	return t.buf[i], nil
}

func (t *Tape) Set(i uint, v byte) error {
	if i >= Len {
		return errors.OOBSet(int(i), v)
	}
	t.buf[i] = v
	return nil
}

func (t *Tape) Add(i uint, v byte) error {
	if i >= Len {
		return errors.OOBAdd(int(i), v)
	}
	t.buf[i] += v // wraps mod 256 per Go's byte arithmetic
	return nil
}

func (t *Tape) Sub(i uint, v byte) error {
	if i >= Len {
		return errors.OOBSub(int(i), v)
	}
	t.buf[i] -= v
	return nil
}

// GetUnchecked, SetUnchecked, AddUnchecked, SubUnchecked skip bounds
// verification. Precondition: i < Len. Violating it is undefined behavior
// (out-of-bounds array access), exactly like the checked variants' spec
// contract minus the check.
func (t *Tape) GetUnchecked(i uint) byte     { return t.buf[i] }
func (t *Tape) SetUnchecked(i uint, v byte)  { t.buf[i] = v }
func (t *Tape) AddUnchecked(i uint, v byte)  { t.buf[i] += v }
func (t *Tape) SubUnchecked(i uint, v byte)  { t.buf[i] -= v }

// View is a scoped exclusive handle over the tape's buffer used by the opt
// tier: it holds a raw pointer to the buffer base and a live "current cell"
// pointer, exposes unchecked pointer arithmetic, and on Close() writes the
// live pointer's index back into the owning Tape. The view's validity is
// bounded by the lifetime of t; callers must not retain a View past the
// opt-tier invocation that acquired it, and must not touch t through any
// other handle while a View is open (single exclusive borrow, mirroring the
// tape's single-owner discipline from spec §5).
type View struct {
	base unsafe.Pointer // &t.buf[0]
	cur  unsafe.Pointer // &t.buf[idx], the live "current cell" pointer
	t    *Tape
}

// Open acquires an unchecked view positioned at the tape's current pointer.
func (t *Tape) Open() *View {
	base := unsafe.Pointer(&t.buf[0])
	cur := unsafe.Add(base, t.ptr)
	return &View{base: base, cur: cur, t: t}
}

// Move advances the view's current-cell pointer by delta, with modular
// wraparound expressed in index space (the view never computes an address
// outside [0, Len) because every delta here has already been proven safe by
// range analysis before the opt tier is entered).
func (v *View) Move(delta int) {
	idx := int(uintptr(v.cur) - uintptr(v.base))
	idx += delta
	idx %= Len
	if idx < 0 {
		idx += Len
	}
	v.cur = unsafe.Add(v.base, idx)
}

// Index returns the view's current index relative to the buffer base.
func (v *View) Index() uint {
	return uint(uintptr(v.cur) - uintptr(v.base))
}

func (v *View) Get() byte        { return *(*byte)(v.cur) }
func (v *View) Set(val byte)     { *(*byte)(v.cur) = val }
func (v *View) Add(val byte)     { *(*byte)(v.cur) += val }
func (v *View) Sub(val byte)     { *(*byte)(v.cur) -= val }

// GetAt/SetAt/AddAt address a cell at an index offset from the view's base,
// used by Mul/Move bytecode expansions which touch a destination cell while
// cur still sits at the broadcast source.
func (v *View) GetAt(idx uint) byte       { return *(*byte)(unsafe.Add(v.base, idx%Len)) }
func (v *View) SetAt(idx uint, val byte)  { *(*byte)(unsafe.Add(v.base, idx%Len)) = val }
func (v *View) AddAt(idx uint, val byte)  { *(*byte)(unsafe.Add(v.base, idx%Len)) += val }
func (v *View) SubAt(idx uint, val byte)  { *(*byte)(unsafe.Add(v.base, idx%Len)) -= val }

// Close flushes the view's live index back into the owning tape. Callers
// must call this exactly once, on every path, before the tape is touched
// through any other handle.
func (v *View) Close() {
	v.t.ptr = v.Index()
}
