// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package flux

import "code.hybscloud.com/flux/internal/bo"

// Entry tags. Every structural entry on the stream is 0x00 | tag | body;
// data samples carry no tag and start directly with a tagged item id.
const (
	EntryHead byte = 0x01 // head
	EntrySwth byte = 0x04 // switch trace
	EntryPblk byte = 0x05 // packed block
	EntrySect byte = 0x06 // section block

	EntryScpd byte = 0x10 // scope definition
	EntrySigd byte = 0x11 // signal definition
	EntryMsgd byte = 0x12 // multi signal definition
	EntrySird byte = 0x13 // signal reference definition
	EntrySsgd byte = 0x14 // scattered signal definition
	EntrySsrd byte = 0x15 // scattered signal reference definition

	EntryOpen byte = 0x20 // open
	EntryClos byte = 0x21 // close
	EntryDomd byte = 0x22 // default open domain
	EntryCurr byte = 0x23 // current domain value

	EntryEnmd byte = 0x30 // enum definition
	EntryMemd byte = 0x31 // member definition

	EntryAtre byte = 0x40 // relation
	EntryAtla byte = 0x41 // label

	EntryCreq byte = 0x80 // control request
	EntryCres byte = 0x81 // control result
)

// Head modes.
const (
	ModeHeadNormal byte = 0x00
	ModeHeadSync   byte = 0x01 // sync mode - may ignore further definitions and opens
)

// Signal types carried in a signal definition's type nibble.
const (
	TypeUnknown byte = iota
	TypeEvent
	TypeInteger
	TypeLogic
	TypeFloat
	TypeText
	TypeBinary
	TypeStruct
	TypeEventArray
	TypeIntegerArray
	TypeFloatArray
	TypeTextArray
)

// WriteHeadEntry writes a head entry: stream identification plus the trace
// geometry a reader needs before decoding.
func WriteHeadEntry(b Buffer, format4 string, traceID uint32, name, description string, mode byte, maxItemID uint32, maxEntrySize uint32) error {
	if len(format4) != 4 {
		return ErrInvalidValue
	}
	request := 8 + maxVarint32*3 + textLen(name, true) + textLen(description, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryHead
	w += 2
	w += copy(bytes[w:], format4)
	bytes[w] = Version
	w++
	w += putVarint(bytes[w:], uint64(traceID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	bytes[w] = mode
	w++
	w += putVarint(bytes[w:], uint64(maxItemID))
	w += putVarint(bytes[w:], uint64(maxEntrySize))
	return b.Commit(w)
}

// WriteSwitchEntry selects the trace of subsequent entries in a
// multi-trace multiplexed stream.
func WriteSwitchEntry(b Buffer, traceID uint32) error {
	bytes, err := b.Request(2 + maxVarint32)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntrySwth
	w += 2
	w += putVarint(bytes[w:], uint64(traceID))
	return b.Commit(w)
}

// WriteScopeDefEntry writes a scope definition.
func WriteScopeDefEntry(b Buffer, itemID, parentID uint32, name, description string) error {
	request := 2 + maxVarint32*2 + textLen(name, true) + textLen(description, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryScpd
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	return b.Commit(w)
}

// WriteSignalDefEntry writes a signal definition.
func WriteSignalDefEntry(b Buffer, itemID, parentID uint32, name, description string, signalType byte, signalDescriptor string) error {
	request := 3 + maxVarint32*2 + textLen(name, true) + textLen(description, true) + textLen(signalDescriptor, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntrySigd
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	bytes[w] = signalType & 0x0f
	w++
	w += putText(bytes[w:], signalDescriptor)
	return b.Commit(w)
}

// WriteMultiSignalDefEntry writes one definition covering the contiguous
// id range [itemIDFrom, itemIDTo].
func WriteMultiSignalDefEntry(b Buffer, itemIDFrom, itemIDTo, parentID uint32, name, description string, signalType byte, signalDescriptor string) error {
	request := 3 + maxVarint32*3 + textLen(name, true) + textLen(description, true) + textLen(signalDescriptor, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryMsgd
	w += 2
	w += putVarint(bytes[w:], uint64(itemIDFrom))
	w += putVarint(bytes[w:], uint64(itemIDTo))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	bytes[w] = signalType & 0x0f
	w++
	w += putText(bytes[w:], signalDescriptor)
	return b.Commit(w)
}

// WriteSignalReferenceDefEntry projects an already-defined signal under an
// additional name.
func WriteSignalReferenceDefEntry(b Buffer, referenceID, parentID uint32, name, description string) error {
	request := 2 + maxVarint32*2 + textLen(name, true) + textLen(description, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntrySird
	w += 2
	w += putVarint(bytes[w:], uint64(referenceID))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	return b.Commit(w)
}

// WriteScatteredSignalDefEntry writes a signal definition covering the bit
// positions [scatteredFrom, scatteredTo] of its value.
func WriteScatteredSignalDefEntry(b Buffer, itemID, parentID uint32, name, description string, signalType byte, signalDescriptor string, scatteredFrom, scatteredTo uint32) error {
	request := 3 + maxVarint32*4 + textLen(name, true) + textLen(description, true) + textLen(signalDescriptor, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntrySsgd
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	bytes[w] = signalType & 0x0f
	w++
	w += putText(bytes[w:], signalDescriptor)
	w += putVarint(bytes[w:], uint64(scatteredFrom))
	w += putVarint(bytes[w:], uint64(scatteredTo))
	return b.Commit(w)
}

// WriteScatteredSignalReferenceDefEntry writes a scattered reference.
func WriteScatteredSignalReferenceDefEntry(b Buffer, referenceID, parentID uint32, name, description string, scatteredFrom, scatteredTo uint32) error {
	request := 2 + maxVarint32*4 + textLen(name, true) + textLen(description, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntrySsrd
	w += 2
	w += putVarint(bytes[w:], uint64(referenceID))
	w += putVarint(bytes[w:], uint64(parentID))
	w += putText(bytes[w:], name)
	w += putText(bytes[w:], description)
	w += putVarint(bytes[w:], uint64(scatteredFrom))
	w += putVarint(bytes[w:], uint64(scatteredTo))
	return b.Commit(w)
}

// WriteOpenEntry opens a sequence for itemID (0 = whole trace) at start
// with the given domain base and rate (0 = non-periodic).
func WriteOpenEntry(b Buffer, itemID uint32, domain string, start int64, rate uint32) error {
	request := 2 + maxVarint32 + textLen(domain, true) + maxVarint64 + maxVarint32 + 2
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryOpen
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putText(bytes[w:], domain)
	w += putIntValue(bytes[w:], uint64(start), 8, true, szDfSizeOnly)
	w += putIntValue(bytes[w:], uint64(rate), 4, false, szDfSizeOnly)
	return b.Commit(w)
}

// WriteCloseEntry closes a sequence at end.
func WriteCloseEntry(b Buffer, itemID uint32, end int64) error {
	request := 2 + maxVarint32 + maxVarint64 + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryClos
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putIntValue(bytes[w:], uint64(end), 8, true, szDfSizeOnly)
	return b.Commit(w)
}

// WriteDefaultOpenDomainEntry sets the domain base used by opens that pass
// an empty one.
func WriteDefaultOpenDomainEntry(b Buffer, domain string) error {
	request := 2 + textLen(domain, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryDomd
	w += 2
	w += putText(bytes[w:], domain)
	return b.Commit(w)
}

// WriteCurrentEntry records an absolute domain position without a sample.
func WriteCurrentEntry(b Buffer, itemID uint32, domain int64) error {
	request := 2 + maxVarint32 + maxVarint64 + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryCurr
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putIntValue(bytes[w:], uint64(domain), 8, true, szDfSizeOnly)
	return b.Commit(w)
}

// WriteEnumDefEntry associates label with value inside one enumeration
// domain of an item.
func WriteEnumDefEntry(b Buffer, itemID uint32, enumeration uint32, label string, value uint32) error {
	request := 2 + maxVarint32*3 + textLen(label, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryEnmd
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(enumeration))
	w += putText(bytes[w:], label)
	w += putVarint(bytes[w:], uint64(value))
	return b.Commit(w)
}

// WriteMemberDefEntry defines one member of a struct signal.
func WriteMemberDefEntry(b Buffer, itemID uint32, member *MemberValue) error {
	if member == nil {
		return ErrInvalidValue
	}
	request := 3 + maxVarint32*2 + textLen(member.Label, true) + textLen(member.Descriptor, true)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryMemd
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(member.MemberID))
	w += putText(bytes[w:], member.Label)
	bytes[w] = member.Type
	w++
	w += putText(bytes[w:], member.Descriptor)
	return b.Commit(w)
}

// WriteRelationEntry attaches a relation to the previously written sample
// of an item.
func WriteRelationEntry(b Buffer, itemID uint32, target, style uint32, delta int32) error {
	request := 2 + maxVarint32*3 + maxVarint32 + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryAtre
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(target))
	w += putVarint(bytes[w:], uint64(style))
	w += putIntValue(bytes[w:], uint64(delta), 4, true, szDfSizeOnly)
	return b.Commit(w)
}

// WriteLabelEntry attaches a label to the previously written sample of an
// item.
func WriteLabelEntry(b Buffer, itemID uint32, style uint32, x, y int32) error {
	request := 2 + maxVarint32*2 + (maxVarint32+1)*2
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = EntryAtla
	w += 2
	w += putVarint(bytes[w:], uint64(itemID))
	w += putVarint(bytes[w:], uint64(style))
	w += putIntValue(bytes[w:], uint64(x), 4, true, szDfSizeOnly)
	w += putIntValue(bytes[w:], uint64(y), 4, true, szDfSizeOnly)
	return b.Commit(w)
}

// taggedItemID folds the conflict and delta flags into the sample header.
func taggedItemID(itemID uint32, conflict bool, delta uint64) uint64 {
	v := uint64(itemID) << 3
	if conflict {
		v |= 1
	}
	if delta != 0 {
		v |= 2
	}
	return v
}

// WriteNoneDataEntry writes a sample without a value.
func WriteNoneDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	bytes[w] = dfNone
	w++
	return b.Commit(w)
}

// WriteIntDataEntry writes an integer sample of up to 8 raw bytes.
func WriteIntDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value int64, size int, signed bool) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	if size < 1 || size > 8 {
		return ErrInvalidDataSize
	}
	request := maxVarint64 + maxVarint32 + 2 + size
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putIntValue(bytes[w:], uint64(value), size, signed, dfDefault)
	return b.Commit(w)
}

// WriteIntArrayDataEntry writes an integer-array sample; intsize must be 4
// or 8, and value must hold count*intsize native-order bytes.
func WriteIntArrayDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []byte, intsize int, signed bool, count int) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	if intsize != 4 && intsize != 8 || len(value) < intsize*count {
		return ErrInvalidDataSize
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + (1+intsize)*count
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	df := dfDefault | xdfInteger64
	if intsize == 4 {
		df = dfDefault | xdfInteger32
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putIntArray(bytes[w:], value, intsize, signed, count, df)
	return b.Commit(w)
}

// WriteFloatDataEntry writes a 4- or 8-byte IEEE float sample from its raw
// native-order bytes.
func WriteFloatDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []byte) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	size := len(value)
	if size != 4 && size != 8 {
		return ErrInvalidDataSize
	}
	request := maxVarint64 + maxVarint32 + 2 + size
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	df := dfDefault | xdfFloat64
	if size == 4 {
		df = dfDefault | xdfFloat32
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putFloat(bytes[w:], value, df)
	return b.Commit(w)
}

// WriteFloatArrayDataEntry writes a float-array sample; floatsize must be
// 4 or 8 and value must hold count*floatsize native-order bytes.
func WriteFloatArrayDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []byte, floatsize, count int) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	if floatsize != 4 && floatsize != 8 || len(value) < floatsize*count {
		return ErrInvalidDataSize
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + (1+floatsize)*count
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	df := dfDefault | xdfFloat64
	if floatsize == 4 {
		df = dfDefault | xdfFloat32
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putFloatArray(bytes[w:], value, floatsize, count, df)
	return b.Commit(w)
}

// WriteEventDataEntry writes an event sample.
func WriteEventDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value uint32) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putIntValue(bytes[w:], uint64(value), 4, false, dfEnumEvent)
	return b.Commit(w)
}

// WriteEventArrayDataEntry writes an event-array sample. The enum-event
// format code is kept regardless of element width for bit-level
// compatibility with existing readers.
func WriteEventArrayDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []uint32) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	count := len(value)
	request := maxVarint64 + maxVarint32 + maxVarint32 + maxVarint32*count + 1
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	raw := make([]byte, 4*count)
	for n, v := range value {
		bo.PutUintN(raw[n*4:], uint64(v), 4)
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putIntArray(bytes[w:], raw, 4, false, count, dfEnumEvent)
	return b.Commit(w)
}

// WriteTextDataEntry writes a text sample.
func WriteTextDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value string) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + len(value)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putTextN(bytes[w:], value, dfDefault)
	return b.Commit(w)
}

// WriteBinaryDataEntry writes a binary sample.
func WriteBinaryDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []byte) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + len(value)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putBin(bytes[w:], value, dfDefault)
	return b.Commit(w)
}

// WriteLogicStatesDataEntry writes a logic sample from an array of state
// codes.
func WriteLogicStatesDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, precedingStates byte, value []byte) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + len(value)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putLogicStates(bytes[w:], stateLevelUnknown, precedingStates, value)
	return b.Commit(w)
}

// WriteLogicTextDataEntry writes a logic sample from text such as "10xz".
func WriteLogicTextDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, precedingStates byte, value string) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	if len(value) > maxLogicTextLen {
		return ErrInvalidDataSize
	}
	request := maxVarint64 + maxVarint32 + maxVarint32 + len(value)
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putLogicText(bytes[w:], precedingStates, value)
	return b.Commit(w)
}

// WriteMemberDataEntry writes a struct sample: the valid members of value,
// length-prefixed as one block.
func WriteMemberDataEntry(b Buffer, itemID uint32, conflict bool, delta uint64, value []MemberValue) error {
	if itemID == 0 {
		return ErrInvalidID
	}
	request := maxVarint64 + maxVarint32 + maxVarint32
	for n := range value {
		if value[n].Valid {
			request += maxVarint32 + 1 + maxVarint32 + len(value[n].Value)
		}
	}
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := putVarint(bytes, taggedItemID(itemID, conflict, delta))
	if delta != 0 {
		w += putVarint(bytes[w:], delta)
	}
	w += putMembers(bytes[w:], value, dfDefault)
	return b.Commit(w)
}

// WriteControlReqEntry writes a control request.
func WriteControlReqEntry(b Buffer, controlID, messageID uint32, value []MemberValue) error {
	return writeControlEntry(b, EntryCreq, controlID, messageID, value)
}

// WriteControlResEntry writes a control result.
func WriteControlResEntry(b Buffer, controlID, messageID uint32, value []MemberValue) error {
	return writeControlEntry(b, EntryCres, controlID, messageID, value)
}

func writeControlEntry(b Buffer, entryTag byte, controlID, messageID uint32, value []MemberValue) error {
	request := 2 + maxVarint32*3
	rcount := 0
	for n := range value {
		if value[n].Valid {
			request += maxVarint32 + maxVarint32 + 1 + len(value[n].Value)
			rcount++
		}
	}
	bytes, err := b.Request(request)
	if err != nil {
		return err
	}
	w := 0
	bytes[w] = 0
	bytes[w+1] = entryTag
	w += 2
	w += putVarint(bytes[w:], uint64(controlID))
	w += putVarint(bytes[w:], uint64(messageID))
	w += putVarint(bytes[w:], uint64(rcount))
	w += putMembers(bytes[w:], value, szDfNone)
	return b.Commit(w)
}
