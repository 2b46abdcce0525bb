// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adapter connects a waveform source to a viewer: it speaks the
// flux stream on an output writer and answers database control requests
// (scheme, item enumeration, value changes) from an input reader.
//
// A source only needs to enumerate its hierarchy and iterate value
// changes as (item, time, text) tuples; everything else - definitions,
// open/close, sample encoding, control framing - is handled here.
package adapter

import (
	"bytes"
	"io"
	"strconv"

	"code.hybscloud.com/flux"
)

// NodeKind discriminates hierarchy walk elements.
type NodeKind byte

const (
	// NodeScope enters a scope; NodeUpscope leaves the innermost one.
	NodeScope NodeKind = iota
	NodeUpscope
	// NodeVar declares a signal inside the current scope.
	NodeVar
)

// Node is one element of a source hierarchy walk, delivered in document
// order.
type Node struct {
	Kind        NodeKind
	Name        string
	Description string

	// Var fields.
	ID    uint32 // stable var id, 1..MaxVarID
	Type  byte   // flux signal type
	Scale int    // bit width for logic vars
	// Scattered bit range; To < From when the var is not scattered.
	From, To int
}

// Change is one value change of a source signal. Value is the textual
// image of the new value ("10xz" for logic, decimal for floats, raw text
// otherwise).
type Change struct {
	ItemID uint32
	Time   int64
	Value  []byte
}

// Source is the capability set an input format must provide.
type Source interface {
	// MaxVarID returns the highest var id used by the hierarchy.
	MaxVarID() uint32
	// Hierarchy walks the full hierarchy in document order.
	Hierarchy(fn func(Node) error) error
	// Bounds returns the domain base and the first and last change
	// positions.
	Bounds() (domainBase string, start, end int64)
	// Changes streams the value changes of the items selected by mask in
	// time order.
	Changes(mask func(itemID uint32) bool, fn func(Change) error) error
}

// Config bounds a served session.
type Config struct {
	// Version is reported in the scheme answer.
	Version uint32
	// MaxTraceItems caps the item count of one value-change request and is
	// reported in the scheme answer.
	MaxTraceItems int
	// MaxEntrySize bounds entries and control frames.
	MaxEntrySize int
}

// DefaultConfig mirrors the geometry the reference adapters announce.
var DefaultConfig = Config{
	Version:       1,
	MaxTraceItems: 4096 * 2,
	MaxEntrySize:  4096 * 16,
}

// DomainBase maps a decimal timescale exponent (seconds = 0) to its
// domain base text.
func DomainBase(exponent int) string {
	bases := [...]string{"s", "ms", "us", "ns", "ps", "fs", "as"}
	if exponent > 2 {
		exponent = 2
	}
	if exponent < -18 {
		exponent = -18
	}
	// 2..-18 -> s100, s10, s, ms100, ...
	i := 2 - exponent
	base := bases[i/3]
	switch i % 3 {
	case 0:
		return base + "100"
	case 1:
		return base + "10"
	default:
		return base
	}
}

type server struct {
	trace *flux.Trace
	src   Source
	cfg   Config

	// signal geometry remembered from the hierarchy walk
	signalType  map[uint32]byte
	signalScale map[uint32]int

	// REQ_TRACE parameter state: idsSize and moreToCome reset on message
	// enter; itemIDs accumulates until a request without moreToCome is
	// served
	itemIDs    []uint32
	idsBuf     []byte
	idsSize    int
	moreToCome [4]byte
}

// Serve answers control requests from in with flux entries on out until
// in is exhausted. It writes the stream head first, so a viewer can probe
// the stream before sending any request.
func Serve(in io.Reader, out io.Writer, name string, src Source, cfg Config) error {
	buffer := flux.NewLinearBuffer(cfg.MaxEntrySize*2, flux.WriteTo(out))
	maxItems := src.MaxVarID() + countScopes(src) + 1
	trace, err := flux.NewTrace(0, maxItems, flux.WithMaxEntrySize(cfg.MaxEntrySize), flux.WithBuffer(buffer))
	if err != nil {
		return err
	}

	s := &server{
		trace:       trace,
		src:         src,
		cfg:         cfg,
		signalType:  make(map[uint32]byte),
		signalScale: make(map[uint32]int),
		idsBuf:      make([]byte, cfg.MaxEntrySize),
	}

	if err := trace.AddHead(name, "flux adapter"); err != nil {
		return err
	}
	if err := trace.Flush(); err != nil {
		return err
	}
	return flux.ParseControlInput(in, cfg.MaxEntrySize, s.parse)
}

func countScopes(src Source) uint32 {
	var n uint32
	_ = src.Hierarchy(func(node Node) error {
		if node.Kind == NodeScope {
			n++
		}
		return nil
	})
	return n
}

func (s *server) parse(cmd flux.ControlCommand, controlID, messageID, memberID uint32, typ byte, arg *flux.ControlArg) error {
	switch controlID {
	case flux.ControlDBReqScheme:
		return s.handleReqScheme(cmd, controlID, messageID)
	case flux.ControlDBReqItems:
		return s.handleReqItems(cmd, controlID, messageID)
	case flux.ControlDBReqTrace:
		return s.handleReqTrace(cmd, controlID, messageID, memberID, typ, arg)
	}
	return flux.ErrCommandParse
}

func (s *server) handleReqScheme(cmd flux.ControlCommand, controlID, messageID uint32) error {
	if cmd != flux.ControlLeaveMessage {
		return nil
	}
	members := []flux.MemberValue{
		flux.NewMember(0, "", flux.MemberInteger, ""),
		flux.NewMember(1, "", flux.MemberInteger, ""),
	}
	members[0].SetUint(uint64(s.cfg.Version), 4)
	members[1].SetUint(uint64(s.cfg.MaxTraceItems), 4)
	if err := s.trace.WriteControlResult(controlID, messageID, members); err != nil {
		return err
	}
	return s.trace.Flush()
}

func (s *server) handleReqItems(cmd flux.ControlCommand, controlID, messageID uint32) error {
	if cmd != flux.ControlLeaveMessage {
		return nil
	}

	// Scope ids start above the var id space.
	nextScope := s.src.MaxVarID()
	var scopeStack []uint32
	currentScope := uint32(0)

	err := s.src.Hierarchy(func(node Node) error {
		switch node.Kind {
		case NodeScope:
			nextScope++
			if err := s.trace.AddScope(nextScope, currentScope, node.Name, node.Description); err != nil {
				return err
			}
			scopeStack = append(scopeStack, currentScope)
			currentScope = nextScope
		case NodeUpscope:
			if len(scopeStack) > 0 {
				currentScope = scopeStack[len(scopeStack)-1]
				scopeStack = scopeStack[:len(scopeStack)-1]
			}
		case NodeVar:
			if err := s.traceVar(node, currentScope); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Open and close the root so the viewer learns the domain.
	domainBase, start, end := s.src.Bounds()
	if err := s.trace.Open(0, domainBase, start, 0); err != nil {
		return err
	}
	if err := s.trace.Close(0, end); err != nil {
		return err
	}

	if err := s.trace.WriteControlResult(controlID, messageID, nil); err != nil {
		return err
	}
	return s.trace.Flush()
}

func (s *server) traceVar(node Node, parent uint32) error {
	s.signalType[node.ID] = node.Type
	s.signalScale[node.ID] = node.Scale

	if node.Type == flux.TypeLogic && node.To >= node.From && node.To+1-node.From == node.Scale {
		err := s.trace.AddScatteredSignal(node.ID, parent, node.Name, node.Description, node.Type, "", uint32(node.From), uint32(node.To))
		if err == flux.ErrItemAlreadyDefined {
			err = s.trace.AddScatteredSignalReference(node.ID, parent, node.Name, node.Description, uint32(node.From), uint32(node.To))
		}
		return err
	}
	descriptor := ""
	if node.Type == flux.TypeLogic && node.Scale > 1 {
		descriptor = "<bits=" + strconv.Itoa(node.Scale) + ">"
	}
	err := s.trace.AddSignal(node.ID, parent, node.Name, node.Description, node.Type, descriptor)
	if err == flux.ErrItemAlreadyDefined {
		err = s.trace.AddSignalReference(node.ID, parent, node.Name, node.Description)
	}
	return err
}

func (s *server) handleReqTrace(cmd flux.ControlCommand, controlID, messageID, memberID uint32, typ byte, arg *flux.ControlArg) error {
	switch cmd {
	case flux.ControlEnterMessage:
		s.idsSize = 0
		s.moreToCome = [4]byte{}
		return nil

	case flux.ControlParseParameter:
		if memberID == 0 && typ&flux.MemberTypeMask == flux.MemberBinary {
			arg.Dst = s.idsBuf
			s.idsSize = arg.Size
		}
		if memberID == 0 && typ&flux.MemberTypeMask == flux.MemberEnum {
			arg.Dst = s.moreToCome[:]
		}
		return nil

	case flux.ControlLeaveMessage:
		// Packed varint item ids.
		packed := s.idsBuf[:s.idsSize]
		for len(packed) > 0 {
			id, n := flux.ReadVarint(packed)
			if n == 0 {
				break
			}
			packed = packed[n:]
			if id != 0 && len(s.itemIDs) < s.cfg.MaxTraceItems {
				s.itemIDs = append(s.itemIDs, uint32(id))
			}
		}
		if s.moreToCome != [4]byte{} {
			return nil
		}

		if err := s.streamChanges(); err != nil {
			return err
		}
		s.itemIDs = s.itemIDs[:0]

		if err := s.trace.WriteControlResult(controlID, messageID, nil); err != nil {
			return err
		}
		return s.trace.Flush()
	}
	return nil
}

func (s *server) streamChanges() error {
	domainBase, start, end := s.src.Bounds()
	if err := s.trace.Open(0, domainBase, start, 0); err != nil {
		return err
	}

	mask := make(map[uint32]bool, len(s.itemIDs))
	for _, id := range s.itemIDs {
		if s.trace.IsSignal(id) {
			mask[id] = true
		}
	}

	err := s.src.Changes(func(id uint32) bool { return mask[id] }, func(c Change) error {
		return s.writeChange(c)
	})
	if err != nil {
		return err
	}
	return s.trace.Close(0, end)
}

func (s *server) writeChange(c Change) error {
	switch s.signalType[c.ItemID] {
	case flux.TypeLogic:
		conflict := bytes.ContainsAny(c.Value, "xX")
		preceding := byte('0')
		if len(c.Value) > 0 && s.signalScale[c.ItemID] <= len(c.Value) {
			preceding = c.Value[0]
		}
		return s.trace.WriteLogicTextAt(c.ItemID, conflict, c.Time, false, preceding, string(c.Value))
	case flux.TypeFloat:
		v, err := strconv.ParseFloat(string(c.Value), 64)
		if err != nil {
			v = 0
		}
		return s.trace.WriteFloatAt(c.ItemID, false, c.Time, false, v, 8)
	case flux.TypeEvent:
		v, err := strconv.ParseUint(string(c.Value), 10, 32)
		if err != nil {
			v = 0
		}
		return s.trace.WriteEventAt(c.ItemID, false, c.Time, false, uint32(v))
	case flux.TypeInteger:
		v, err := strconv.ParseInt(string(c.Value), 10, 64)
		if err != nil {
			v = 0
		}
		return s.trace.WriteIntAt(c.ItemID, false, c.Time, false, v, 8, true)
	default:
		return s.trace.WriteTextAt(c.ItemID, false, c.Time, false, string(c.Value))
	}
}
