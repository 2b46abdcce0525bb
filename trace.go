// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import (
	"math"

	"code.hybscloud.com/flux/internal/bo"
)

// Item types. A slot's type transitions away from undefined exactly once.
const (
	itemTypeUndefined byte = iota
	itemTypeScope
	itemTypeSignal
)

// Open states. A local open holds the sequence's current domain position;
// a container open points at the local ancestor holding it.
const (
	openNone byte = iota
	openLocal
	openContainer
)

type traceItem struct {
	typ      byte
	open     byte
	parentID uint32
	// keyed by open: current while openLocal, openID while openContainer
	current int64
	openID  uint32
}

// Trace is the producer state machine: the item registry, the open/close
// sequence lifecycle, and the current-domain tracking that validates every
// sample before it is encoded. All operations run on the caller's thread.
type Trace struct {
	id           uint32
	mode         byte
	maxItemID    uint32
	maxEntrySize uint32

	buffer Buffer

	// item 0 (the whole-trace sequence)
	open    byte
	current int64

	// items 1..maxItemID; nil in single-open mode
	items []traceItem
}

// NewTrace creates a trace for item ids 1..maxItemID.
func NewTrace(traceID, maxItemID uint32, opts ...Option) (*Trace, error) {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	t := &Trace{
		id:           traceID,
		maxItemID:    maxItemID,
		maxEntrySize: uint32(o.MaxEntrySize),
	}
	if o.MultiOpen {
		t.items = make([]traceItem, maxItemID)
	}
	if o.Buffer != nil {
		if err := t.SetBuffer(o.Buffer); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SetBuffer binds the trace to a buffer. The binding is exclusive: a
// buffer bound to another trace is refused, and a previously bound buffer
// is released.
func (t *Trace) SetBuffer(b Buffer) error {
	if b != nil && b.boundTrace() != nil && b.boundTrace() != t {
		return ErrBufferAlreadyUsed
	}
	if t.buffer != nil {
		t.buffer.bindTrace(nil)
	}
	t.buffer = b
	if t.buffer != nil {
		t.buffer.bindTrace(t)
	}
	return nil
}

// AddHead writes the stream head entry.
func (t *Trace) AddHead(name, description string) error {
	return t.AddHeadDerived("flux", name, description)
}

// AddModeHead writes a head entry with an explicit mode.
func (t *Trace) AddModeHead(name, description string, mode byte) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteHeadEntry(t.buffer, "flux", t.id, name, description, mode, t.maxItemID, t.maxEntrySize)
}

// AddHeadDerived writes a head entry for a derived format identified by a
// 4-character tag.
func (t *Trace) AddHeadDerived(format4, name, description string) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteHeadEntry(t.buffer, format4, t.id, name, description, ModeHeadNormal, t.maxItemID, t.maxEntrySize)
}

// AddSections partitions the trace's ring buffer into sections.
func (t *Trace) AddSections(noOfSections int) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteSectionEntries(t.buffer, noOfSections)
}

func (t *Trace) defineItem(itemID, parentID uint32, typ byte) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if itemID == 0 || itemID > t.maxItemID || parentID > t.maxItemID {
		return ErrInvalidID
	}
	if t.items == nil {
		return nil
	}
	if t.items[itemID-1].typ != itemTypeUndefined {
		return ErrItemAlreadyDefined
	}
	if parentID != 0 && t.items[parentID-1].typ != itemTypeScope {
		return ErrParentNotDefined
	}
	t.items[itemID-1] = traceItem{typ: typ, open: openNone, parentID: parentID}
	return nil
}

func (t *Trace) checkReference(referenceID, parentID uint32) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if referenceID == 0 || referenceID > t.maxItemID || parentID > t.maxItemID {
		return ErrInvalidID
	}
	if t.items == nil {
		return nil
	}
	if t.items[referenceID-1].typ != itemTypeSignal {
		return ErrItemNotDefined
	}
	if parentID != 0 && t.items[parentID-1].typ != itemTypeScope {
		return ErrParentNotDefined
	}
	return nil
}

// AddScope defines a scope item under parentID (0 = root).
func (t *Trace) AddScope(itemID, parentID uint32, name, description string) error {
	if err := t.defineItem(itemID, parentID, itemTypeScope); err != nil {
		return err
	}
	return WriteScopeDefEntry(t.buffer, itemID, parentID, name, description)
}

// AddSignal defines a signal item under parentID (0 = root).
func (t *Trace) AddSignal(itemID, parentID uint32, name, description string, signalType byte, signalDescriptor string) error {
	if err := t.defineItem(itemID, parentID, itemTypeSignal); err != nil {
		return err
	}
	return WriteSignalDefEntry(t.buffer, itemID, parentID, name, description, signalType, signalDescriptor)
}

// AddSignals defines the contiguous signal range [itemIDFrom, itemIDTo]
// with one entry.
func (t *Trace) AddSignals(itemIDFrom, itemIDTo, parentID uint32, name, description string, signalType byte, signalDescriptor string) error {
	for itemID := itemIDFrom; itemID <= itemIDTo; itemID++ {
		if err := t.defineItem(itemID, parentID, itemTypeSignal); err != nil {
			return err
		}
	}
	return WriteMultiSignalDefEntry(t.buffer, itemIDFrom, itemIDTo, parentID, name, description, signalType, signalDescriptor)
}

// AddSignalReference projects the already-defined signal referenceID under
// an additional name. No slot is reserved.
func (t *Trace) AddSignalReference(referenceID, parentID uint32, name, description string) error {
	if err := t.checkReference(referenceID, parentID); err != nil {
		return err
	}
	return WriteSignalReferenceDefEntry(t.buffer, referenceID, parentID, name, description)
}

// AddScatteredSignal defines a signal covering bit positions
// [scatteredFrom, scatteredTo] of its value.
func (t *Trace) AddScatteredSignal(itemID, parentID uint32, name, description string, signalType byte, signalDescriptor string, scatteredFrom, scatteredTo uint32) error {
	if err := t.defineItem(itemID, parentID, itemTypeSignal); err != nil {
		return err
	}
	return WriteScatteredSignalDefEntry(t.buffer, itemID, parentID, name, description, signalType, signalDescriptor, scatteredFrom, scatteredTo)
}

// AddScatteredSignalReference projects an already-defined signal as a
// scattered reference.
func (t *Trace) AddScatteredSignalReference(referenceID, parentID uint32, name, description string, scatteredFrom, scatteredTo uint32) error {
	if err := t.checkReference(referenceID, parentID); err != nil {
		return err
	}
	return WriteScatteredSignalReferenceDefEntry(t.buffer, referenceID, parentID, name, description, scatteredFrom, scatteredTo)
}

// IsSignal reports whether itemID is a defined signal.
func (t *Trace) IsSignal(itemID uint32) bool {
	return t.items != nil && itemID >= 1 && itemID <= t.maxItemID && t.items[itemID-1].typ == itemTypeSignal
}

// IsScope reports whether itemID is a defined scope.
func (t *Trace) IsScope(itemID uint32) bool {
	return t.items != nil && itemID >= 1 && itemID <= t.maxItemID && t.items[itemID-1].typ == itemTypeScope
}

// reachesAncestor reports whether walking fromID's parent chain reaches
// itemID. itemID 0 matches every item.
func (t *Trace) reachesAncestor(fromID, itemID uint32) bool {
	p := t.items[fromID-1].parentID
	for {
		if p == itemID {
			return true
		}
		if p == 0 {
			return false
		}
		p = t.items[p-1].parentID
	}
}

// Open starts a sequence for itemID (0 = whole trace) at start. All
// descendants join the sequence as containers. rate 0 marks a
// non-periodic sequence.
func (t *Trace) Open(itemID uint32, domainBase string, start int64, rate uint32) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if itemID > t.maxItemID || (t.items == nil && itemID > 0) {
		return ErrInvalidID
	}

	if itemID == 0 {
		if t.open != openNone {
			return ErrAlreadyOpen
		}
	} else if t.open != openNone || t.items[itemID-1].open != openNone {
		return ErrAlreadyOpen
	}
	if t.items != nil {
		for n := uint32(1); n <= t.maxItemID; n++ {
			if t.items[n-1].open == openLocal && t.reachesAncestor(n, itemID) {
				return ErrChildrenAlreadyOpen
			}
		}
	}

	if itemID == 0 {
		t.open = openLocal
		t.current = start
	} else {
		t.items[itemID-1].open = openLocal
		t.items[itemID-1].current = start
	}
	if t.items != nil {
		for n := uint32(1); n <= t.maxItemID; n++ {
			if n != itemID && t.reachesAncestor(n, itemID) {
				t.items[n-1].open = openContainer
				t.items[n-1].openID = itemID
			}
		}
	}
	return WriteOpenEntry(t.buffer, itemID, domainBase, start, rate)
}

// Close ends the sequence held by itemID. The emitted end is clamped to
// at least current+1 so a sequence always makes forward progress. The
// target and its containers return to the unopened state.
func (t *Trace) Close(itemID uint32, end int64) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if itemID > t.maxItemID || (t.items == nil && itemID > 0) {
		return ErrInvalidID
	}

	var current int64
	if itemID == 0 {
		if t.open != openLocal {
			return ErrNotOpen
		}
		current = t.current
	} else {
		if t.items[itemID-1].open != openLocal {
			return ErrNotOpen
		}
		current = t.items[itemID-1].current
	}
	if end < current+1 {
		end = current + 1
	}

	if itemID == 0 {
		t.open = openNone
		t.current = 0
	} else {
		t.items[itemID-1].open = openNone
		t.items[itemID-1].current = 0
	}
	if t.items != nil {
		for n := uint32(1); n <= t.maxItemID; n++ {
			if n != itemID && t.items[n-1].open == openContainer && t.items[n-1].openID == itemID {
				t.items[n-1].open = openNone
				t.items[n-1].current = 0
				t.items[n-1].openID = 0
			}
		}
	}
	return WriteCloseEntry(t.buffer, itemID, end)
}

// SetDefaultOpenDomain sets the domain base used when Open passes an
// empty one.
func (t *Trace) SetDefaultOpenDomain(domainBase string) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteDefaultOpenDomainEntry(t.buffer, domainBase)
}

// IsOpen reports whether a sequence covers itemID.
func (t *Trace) IsOpen(itemID uint32) bool {
	if t.open == openLocal {
		return true
	}
	return t.items != nil && itemID >= 1 && itemID <= t.maxItemID && t.items[itemID-1].open != openNone
}

// Current returns the current domain position of the sequence covering
// itemID.
func (t *Trace) Current(itemID uint32) (int64, error) {
	current, err := t.resolveCurrent(itemID)
	if err != nil {
		return 0, err
	}
	return *current, nil
}

// resolveCurrent locates the domain cursor covering itemID: the root's
// while the whole trace is open, otherwise the local ancestor's.
func (t *Trace) resolveCurrent(itemID uint32) (*int64, error) {
	if t.open == openNone && t.items != nil {
		if itemID < 1 || itemID > t.maxItemID {
			return nil, ErrInvalidID
		}
		openID := itemID
		switch t.items[itemID-1].open {
		case openLocal:
		case openContainer:
			openID = t.items[itemID-1].openID
			if t.items[openID-1].open != openLocal {
				return nil, ErrNotOpen
			}
		default:
			return nil, ErrNotOpen
		}
		return &t.items[openID-1].current, nil
	}
	if t.open != openLocal {
		return nil, ErrNotOpen
	}
	return &t.current, nil
}

// writeAt validates the domain position of a sample, delegates the entry
// write, and advances the covering cursor on success.
func (t *Trace) writeAt(itemID uint32, domainPosition int64, isDelta bool, write func(b Buffer, delta uint64) error) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	current, err := t.resolveCurrent(itemID)
	if err != nil {
		return err
	}
	delta := domainPosition
	if !isDelta {
		delta = domainPosition - *current
	}
	if delta < 0 {
		return ErrPositionLessThanCurrent
	}
	if err := write(t.buffer, uint64(delta)); err != nil {
		return err
	}
	if isDelta {
		*current += delta
	} else {
		*current = domainPosition
	}
	return nil
}

// WriteEnumDef associates label with value in one enumeration domain of an
// item. The covering sequence must be open.
func (t *Trace) WriteEnumDef(itemID uint32, enumeration uint32, label string, value uint32) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	return WriteEnumDefEntry(t.buffer, itemID, enumeration, label, value)
}

// WriteArrayDef labels one index of an array signal.
func (t *Trace) WriteArrayDef(itemID uint32, index uint32, label string) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	member := NewMember(index, label, MemberUnknown, "")
	return WriteMemberDefEntry(t.buffer, itemID, &member)
}

// WriteMemberDef defines one member of a struct signal.
func (t *Trace) WriteMemberDef(itemID, memberID uint32, label string, memberType byte, memberDescriptor string) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	member := NewMember(memberID, label, memberType, memberDescriptor)
	return WriteMemberDefEntry(t.buffer, itemID, &member)
}

// WriteMemberDefs defines several members of a struct signal.
func (t *Trace) WriteMemberDefs(itemID uint32, members []MemberValue) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	for n := range members {
		if err := WriteMemberDefEntry(t.buffer, itemID, &members[n]); err != nil {
			return err
		}
	}
	return nil
}

// WriteCurrent moves the current domain position without writing a
// sample. It participates in monotonicity like any sample write.
func (t *Trace) WriteCurrent(itemID uint32, domainPosition int64) error {
	return t.writeAt(itemID, domainPosition, false, func(b Buffer, delta uint64) error {
		return WriteCurrentEntry(b, itemID, domainPosition)
	})
}

// WriteNoneAt writes a value-less sample.
func (t *Trace) WriteNoneAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteNoneDataEntry(b, itemID, conflict, delta)
	})
}

// WriteIntAt writes an integer sample of the given raw byte width.
func (t *Trace) WriteIntAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value int64, size int, signed bool) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteIntDataEntry(b, itemID, conflict, delta, value, size, signed)
	})
}

// WriteIntArrayAt writes an integer-array sample; intsize must be 4 or 8.
func (t *Trace) WriteIntArrayAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, values []int64, intsize int, signed bool) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		if intsize != 4 && intsize != 8 {
			return ErrInvalidDataSize
		}
		raw := make([]byte, intsize*len(values))
		for n, v := range values {
			bo.PutUintN(raw[n*intsize:], uint64(v), intsize)
		}
		return WriteIntArrayDataEntry(b, itemID, conflict, delta, raw, intsize, signed, len(values))
	})
}

// WriteFloatAt writes a float sample; size must be 4 or 8.
func (t *Trace) WriteFloatAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value float64, size int) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		raw, err := floatRaw(value, size)
		if err != nil {
			return err
		}
		return WriteFloatDataEntry(b, itemID, conflict, delta, raw)
	})
}

// WriteFloatArrayAt writes a float-array sample; floatsize must be 4 or 8.
func (t *Trace) WriteFloatArrayAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, values []float64, floatsize int) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		if floatsize != 4 && floatsize != 8 {
			return ErrInvalidDataSize
		}
		raw := make([]byte, floatsize*len(values))
		for n, v := range values {
			elem, err := floatRaw(v, floatsize)
			if err != nil {
				return err
			}
			copy(raw[n*floatsize:], elem)
		}
		return WriteFloatArrayDataEntry(b, itemID, conflict, delta, raw, floatsize, len(values))
	})
}

// WriteEventAt writes an event sample.
func (t *Trace) WriteEventAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value uint32) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteEventDataEntry(b, itemID, conflict, delta, value)
	})
}

// WriteEventArrayAt writes an event-array sample.
func (t *Trace) WriteEventArrayAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, values []uint32) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteEventArrayDataEntry(b, itemID, conflict, delta, values)
	})
}

// WriteTextAt writes a text sample.
func (t *Trace) WriteTextAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value string) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteTextDataEntry(b, itemID, conflict, delta, value)
	})
}

// WriteBinaryAt writes a binary sample.
func (t *Trace) WriteBinaryAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value []byte) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteBinaryDataEntry(b, itemID, conflict, delta, value)
	})
}

// WriteLogicStatesAt writes a logic sample from state codes. States equal
// to precedingStates extend implicitly to the left of the value.
func (t *Trace) WriteLogicStatesAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, precedingStates byte, value []byte) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteLogicStatesDataEntry(b, itemID, conflict, delta, precedingStates, value)
	})
}

// WriteLogicTextAt writes a logic sample from text such as "10xz";
// precedingStates is the fill character.
func (t *Trace) WriteLogicTextAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, precedingStates byte, value string) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteLogicTextDataEntry(b, itemID, conflict, delta, precedingStates, value)
	})
}

// WriteMembersAt writes a struct sample.
func (t *Trace) WriteMembersAt(itemID uint32, conflict bool, domainPosition int64, isDelta bool, value []MemberValue) error {
	return t.writeAt(itemID, domainPosition, isDelta, func(b Buffer, delta uint64) error {
		return WriteMemberDataEntry(b, itemID, conflict, delta, value)
	})
}

// WriteRelation connects the previously written sample of itemID to
// another item at a relative position.
func (t *Trace) WriteRelation(itemID uint32, target, style uint32, delta int32) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	return WriteRelationEntry(t.buffer, itemID, target, style, delta)
}

// WriteLabel attaches a label to the previously written sample of itemID.
func (t *Trace) WriteLabel(itemID uint32, style uint32, x, y int32) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	if !t.IsOpen(itemID) {
		return ErrNotOpen
	}
	return WriteLabelEntry(t.buffer, itemID, style, x, y)
}

// WriteControlRequest multiplexes a control request onto the trace stream.
func (t *Trace) WriteControlRequest(controlID, messageID uint32, value []MemberValue) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteControlReqEntry(t.buffer, controlID, messageID, value)
}

// WriteControlResult multiplexes a control result onto the trace stream.
func (t *Trace) WriteControlResult(controlID, messageID uint32, value []MemberValue) error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return WriteControlResEntry(t.buffer, controlID, messageID, value)
}

// Flush deep-flushes the trace buffer through its sink chain.
func (t *Trace) Flush() error {
	if t.buffer == nil {
		return ErrNoBuffer
	}
	return t.buffer.DeepFlush()
}

func floatRaw(v float64, size int) ([]byte, error) {
	raw := make([]byte, size)
	switch size {
	case 4:
		bo.PutUintN(raw, uint64(math.Float32bits(float32(v))), 4)
	case 8:
		bo.PutUintN(raw, math.Float64bits(v), 8)
	default:
		return nil, ErrInvalidDataSize
	}
	return raw, nil
}
