// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package adapter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"code.hybscloud.com/flux"
)

// CSVSource reads a change-list file into a Source. The format is
// line-oriented CSV with '#' comments:
//
//	domain,ns
//	var,<id>,<scope/path>,<name>,<kind>,<scale>[,<from>,<to>]
//	at,<time>,<id>,<value>
//
// kind is one of logic, float, text, int, event. The scope hierarchy is
// derived from the slash-separated paths in first-seen order, and changes
// are expected in time order.
type CSVSource struct {
	domainBase string
	root       *csvScope
	vars       []csvVar
	changes    []Change
	maxVarID   uint32
	start, end int64
}

type csvVar struct {
	node Node
	path []string
}

type csvScope struct {
	name     string
	children []*csvScope
	vars     []int // indexes into CSVSource.vars
}

var errCSVFormat = errors.New("adapter: malformed change list")

// LoadCSV parses a change-list stream.
func LoadCSV(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	s := &CSVSource{domainBase: "ns", root: &csvScope{}}
	first := true
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch record[0] {
		case "domain":
			if len(record) != 2 {
				return nil, errCSVFormat
			}
			s.domainBase = record[1]
		case "var":
			if err := s.addVar(record); err != nil {
				return nil, err
			}
		case "at":
			if len(record) != 4 {
				return nil, errCSVFormat
			}
			time, err := strconv.ParseInt(record[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("adapter: bad time %q: %w", record[1], err)
			}
			id, err := strconv.ParseUint(record[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("adapter: bad item id %q: %w", record[2], err)
			}
			s.changes = append(s.changes, Change{ItemID: uint32(id), Time: time, Value: []byte(record[3])})
			if first || time < s.start {
				s.start = time
			}
			if first || time > s.end {
				s.end = time
			}
			first = false
		default:
			return nil, errCSVFormat
		}
	}
	return s, nil
}

func (s *CSVSource) addVar(record []string) error {
	if len(record) != 6 && len(record) != 8 {
		return errCSVFormat
	}
	id, err := strconv.ParseUint(record[1], 10, 32)
	if err != nil || id == 0 {
		return fmt.Errorf("adapter: bad var id %q", record[1])
	}
	scale, err := strconv.Atoi(record[5])
	if err != nil {
		return fmt.Errorf("adapter: bad scale %q: %w", record[5], err)
	}
	typ, ok := map[string]byte{
		"logic": flux.TypeLogic,
		"float": flux.TypeFloat,
		"text":  flux.TypeText,
		"int":   flux.TypeInteger,
		"event": flux.TypeEvent,
	}[record[4]]
	if !ok {
		return fmt.Errorf("adapter: unknown var kind %q", record[4])
	}

	node := Node{
		Kind:  NodeVar,
		Name:  record[3],
		ID:    uint32(id),
		Type:  typ,
		Scale: scale,
		From:  0,
		To:    -1,
	}
	if len(record) == 8 {
		if node.From, err = strconv.Atoi(record[6]); err != nil {
			return errCSVFormat
		}
		if node.To, err = strconv.Atoi(record[7]); err != nil {
			return errCSVFormat
		}
	}

	var path []string
	if record[2] != "" {
		path = strings.Split(record[2], "/")
	}
	idx := len(s.vars)
	s.vars = append(s.vars, csvVar{node: node, path: path})
	s.scopeFor(path).vars = append(s.scopeFor(path).vars, idx)
	if uint32(id) > s.maxVarID {
		s.maxVarID = uint32(id)
	}
	return nil
}

func (s *CSVSource) scopeFor(path []string) *csvScope {
	at := s.root
walk:
	for _, name := range path {
		for _, child := range at.children {
			if child.name == name {
				at = child
				continue walk
			}
		}
		child := &csvScope{name: name}
		at.children = append(at.children, child)
		at = child
	}
	return at
}

// MaxVarID implements Source.
func (s *CSVSource) MaxVarID() uint32 { return s.maxVarID }

// Bounds implements Source.
func (s *CSVSource) Bounds() (string, int64, int64) {
	return s.domainBase, s.start, s.end
}

// Hierarchy implements Source.
func (s *CSVSource) Hierarchy(fn func(Node) error) error {
	return s.walk(s.root, fn)
}

func (s *CSVSource) walk(scope *csvScope, fn func(Node) error) error {
	for _, idx := range scope.vars {
		if err := fn(s.vars[idx].node); err != nil {
			return err
		}
	}
	for _, child := range scope.children {
		if err := fn(Node{Kind: NodeScope, Name: child.name, Description: "module"}); err != nil {
			return err
		}
		if err := s.walk(child, fn); err != nil {
			return err
		}
		if err := fn(Node{Kind: NodeUpscope}); err != nil {
			return err
		}
	}
	return nil
}

// Changes implements Source.
func (s *CSVSource) Changes(mask func(uint32) bool, fn func(Change) error) error {
	for _, c := range s.changes {
		if mask != nil && !mask(c.ItemID) {
			continue
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}
