// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// commandContext is the state of one command execution.
type commandContext struct {
	run      *Run
	entry    Entry
	frame    *Frame
	source   CommandSource
	calls    []Entry
	returned bool
}

func (cx *commandContext) with(src CommandSource) *commandContext {
	return &commandContext{run: cx.run, entry: cx.entry, frame: cx.frame, source: src}
}

// cmdReader splits command text into words. SNBT arguments are taken from
// the remainder of the line.
type cmdReader struct {
	text string
	pos  int
}

func (rd *cmdReader) skipSpace() {
	for rd.pos < len(rd.text) && rd.text[rd.pos] == ' ' {
		rd.pos++
	}
}

func (rd *cmdReader) word() string {
	rd.skipSpace()
	start := rd.pos
	depth := 0
	for rd.pos < len(rd.text) {
		c := rd.text[rd.pos]
		switch {
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ' ' && depth <= 0:
			return rd.text[start:rd.pos]
		}
		rd.pos++
	}
	return rd.text[start:]
}

func (rd *cmdReader) mustWord(what string) (string, error) {
	w := rd.word()
	if w == "" {
		return "", errors.Errorf("expected %s", what)
	}
	return w, nil
}

func (rd *cmdReader) rest() string {
	rd.skipSpace()
	s := rd.text[rd.pos:]
	rd.pos = len(rd.text)
	return strings.TrimSpace(s)
}

func (rd *cmdReader) eof() bool {
	rd.skipSpace()
	return rd.pos >= len(rd.text)
}

func (s *Server) dispatch(cx *commandContext, text string) error {
	rd := &cmdReader{text: strings.TrimSpace(text)}
	switch name := rd.word(); name {
	case "say":
		s.printf("[%s] %s\n", cx.source.Name(), rd.rest())
		return nil
	case "function":
		return s.cmdFunction(cx, rd)
	case "data":
		return s.cmdData(cx, rd)
	case "scoreboard":
		return s.cmdScoreboard(cx, rd)
	case "summon":
		return s.cmdSummon(cx, rd)
	case "execute":
		return s.cmdExecute(cx, rd)
	case "return":
		return s.cmdReturn(cx, rd)
	case "schedule":
		return s.cmdSchedule(rd)
	case "log":
		return s.cmdLog(cx, rd)
	case "assert":
		return s.cmdAssert(cx, rd)
	case "":
		return errors.New("empty command")
	default:
		return errors.Errorf("unknown command %q", name)
	}
}

func (s *Server) cmdFunction(cx *commandContext, rd *cmdReader) error {
	ref, err := rd.mustWord("function id")
	if err != nil {
		return err
	}
	var args *Compound
	if rest := rd.rest(); rest != "" {
		args, err = s.macroArgs(cx, rest)
		if err != nil {
			return err
		}
	}
	fns, err := s.resolveFunctions(ref)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		cx.calls = append(cx.calls, invocation(fn, cx.source, args, cx.entry.Depth+1)...)
	}
	return nil
}

// resolveFunctions resolves a function id or a #tag.
func (s *Server) resolveFunctions(ref string) ([]*Function, error) {
	if strings.HasPrefix(ref, "#") {
		tag, err := ParseResourceID(ref[1:])
		if err != nil {
			return nil, err
		}
		var fns []*Function
		for _, id := range s.Library.ExpandTag(tag) {
			if fn, ok := s.Library.Function(id); ok {
				fns = append(fns, fn)
			}
		}
		if len(fns) == 0 {
			return nil, errors.Errorf("unknown function tag %v", tag)
		}
		return fns, nil
	}
	id, err := ParseResourceID(ref)
	if err != nil {
		return nil, err
	}
	fn, ok := s.Library.Function(id)
	if !ok {
		return nil, errors.Wrap(ErrUnknownFunction, id.String())
	}
	return []*Function{fn}, nil
}

func (s *Server) macroArgs(cx *commandContext, text string) (*Compound, error) {
	if strings.HasPrefix(text, "with ") {
		rd := &cmdReader{text: text[len("with "):]}
		v, err := s.readDataSource(cx, rd)
		if err != nil {
			return nil, err
		}
		c, ok := v.(*Compound)
		if !ok {
			return nil, errors.Errorf("macro arguments must be a compound, got %v", v.Kind())
		}
		return c, nil
	}
	v, err := ParseSNBT(text)
	if err != nil {
		return nil, err
	}
	c, ok := v.(*Compound)
	if !ok {
		return nil, errors.Errorf("macro arguments must be a compound, got %v", v.Kind())
	}
	return c, nil
}

// readDataSource reads "storage <id> [path]" or "entity <selector> [path]".
func (s *Server) readDataSource(cx *commandContext, rd *cmdReader) (Value, error) {
	root, err := s.readDataTarget(cx, rd)
	if err != nil {
		return nil, err
	}
	if rd.eof() {
		return root, nil
	}
	p, err := ParsePath(rd.word())
	if err != nil {
		return nil, err
	}
	return p.Get(root)
}

func (s *Server) readDataTarget(cx *commandContext, rd *cmdReader) (*Compound, error) {
	switch kind := rd.word(); kind {
	case "storage":
		ref, err := rd.mustWord("storage id")
		if err != nil {
			return nil, err
		}
		id, err := ParseResourceID(ref)
		if err != nil {
			return nil, err
		}
		return s.Storage.Get(id), nil
	case "entity":
		sel, err := rd.mustWord("entity selector")
		if err != nil {
			return nil, err
		}
		e, err := s.selectOne(sel, cx.source)
		if err != nil {
			return nil, err
		}
		return e.NBT(), nil
	default:
		return nil, errors.Errorf("unsupported data target %q", kind)
	}
}

func (s *Server) openStorage(rd *cmdReader) (*Compound, error) {
	if kind := rd.word(); kind != "storage" {
		return nil, errors.Errorf("only storage can be modified, got %q", kind)
	}
	ref, err := rd.mustWord("storage id")
	if err != nil {
		return nil, err
	}
	id, err := ParseResourceID(ref)
	if err != nil {
		return nil, err
	}
	return s.Storage.Open(id), nil
}

func (s *Server) cmdData(cx *commandContext, rd *cmdReader) error {
	switch sub := rd.word(); sub {
	case "get":
		v, err := s.readDataSource(cx, rd)
		if err != nil {
			return err
		}
		s.printf("%v\n", v)
		if n, ok := v.(Number); ok {
			cx.frame.Result = n
		}
		return nil
	case "merge":
		root, err := s.openStorage(rd)
		if err != nil {
			return err
		}
		v, err := ParseSNBT(rd.rest())
		if err != nil {
			return err
		}
		c, ok := v.(*Compound)
		if !ok {
			return errors.Errorf("data merge expects a compound, got %v", v.Kind())
		}
		root.Merge(c)
		return nil
	case "modify":
		root, err := s.openStorage(rd)
		if err != nil {
			return err
		}
		p, err := ParsePath(rd.word())
		if err != nil {
			return err
		}
		if op := rd.word(); op != "set" {
			return errors.Errorf("unsupported data modify operation %q", op)
		}
		var v Value
		switch from := rd.word(); from {
		case "value":
			v, err = ParseSNBT(rd.rest())
		case "from":
			v, err = s.readDataSource(cx, rd)
			if err == nil {
				v = Copy(v)
			}
		default:
			err = errors.Errorf("expected value or from, got %q", from)
		}
		if err != nil {
			return err
		}
		return p.Set(root, v)
	case "remove":
		root, err := s.openStorage(rd)
		if err != nil {
			return err
		}
		p, err := ParsePath(rd.word())
		if err != nil {
			return err
		}
		return p.Remove(root)
	default:
		return errors.Errorf("unknown data subcommand %q", sub)
	}
}

func (s *Server) cmdScoreboard(cx *commandContext, rd *cmdReader) error {
	switch group := rd.word(); group {
	case "objectives":
		if sub := rd.word(); sub != "add" {
			return errors.Errorf("unknown scoreboard objectives subcommand %q", sub)
		}
		name, err := rd.mustWord("objective name")
		if err != nil {
			return err
		}
		criteria := rd.word()
		if criteria == "" {
			criteria = "dummy"
		}
		return s.Scoreboard.AddObjective(name, criteria)
	case "players":
		sub := rd.word()
		holder, err := rd.mustWord("score holder")
		if err != nil {
			return err
		}
		holder, err = s.scoreHolder(holder, cx.source)
		if err != nil {
			return err
		}
		objective, err := rd.mustWord("objective")
		if err != nil {
			return err
		}
		if sub == "get" {
			v, err := s.Scoreboard.Get(holder, objective)
			if err != nil {
				return err
			}
			s.printf("%s has %d [%s]\n", holder, v, objective)
			cx.frame.Result = Int(v)
			return nil
		}
		n, err := strconv.ParseInt(rd.word(), 10, 32)
		if err != nil {
			return errors.Wrap(err, "score")
		}
		switch sub {
		case "set":
			return s.Scoreboard.Set(holder, objective, int32(n))
		case "add":
			_, err = s.Scoreboard.Add(holder, objective, int32(n))
			return err
		case "remove":
			_, err = s.Scoreboard.Add(holder, objective, -int32(n))
			return err
		}
		return errors.Errorf("unknown scoreboard players subcommand %q", sub)
	default:
		return errors.Errorf("unknown scoreboard subcommand %q", group)
	}
}

func (s *Server) cmdSummon(cx *commandContext, rd *cmdReader) error {
	ref, err := rd.mustWord("entity type")
	if err != nil {
		return err
	}
	typ, err := ParseResourceID(ref)
	if err != nil {
		return err
	}
	e := &Entity{Type: typ, UUID: uuid.New(), Pos: cx.source.Pos, Rot: cx.source.Rot, World: cx.source.World}
	rest := rd.rest()
	if rest != "" && !strings.HasPrefix(rest, "{") {
		crd := &cmdReader{text: rest}
		e.Pos, err = readVec3(crd, cx.source.Pos)
		if err != nil {
			return err
		}
		rest = crd.rest()
	}
	if rest != "" {
		v, err := ParseSNBT(rest)
		if err != nil {
			return err
		}
		data, ok := v.(*Compound)
		if !ok {
			return errors.Errorf("entity data must be a compound, got %v", v.Kind())
		}
		if name, ok := data.Get("CustomName"); ok {
			e.Name = Text(name)
			data.Remove("CustomName")
		}
		e.Data = data
	}
	s.Summon(e)
	return nil
}

func readVec3(rd *cmdReader, origin Vec3) (Vec3, error) {
	var words [3]string
	for i := range words {
		if words[i] = rd.word(); words[i] == "" {
			return Vec3{}, errors.New("expected three coordinates")
		}
	}
	return parseVec3(words, origin)
}

// parseVec3 parses absolute or ~relative coordinates.
func parseVec3(words [3]string, origin Vec3) (Vec3, error) {
	base := [3]float64{origin.X, origin.Y, origin.Z}
	var out [3]float64
	for i, w := range words {
		rel := strings.HasPrefix(w, "~")
		if rel {
			w = w[1:]
		}
		var f float64
		if w != "" {
			var err error
			f, err = strconv.ParseFloat(w, 64)
			if err != nil {
				return Vec3{}, errors.Wrap(err, "coordinate")
			}
		}
		if rel {
			f += base[i]
		}
		out[i] = f
	}
	return Vec3{X: out[0], Y: out[1], Z: out[2]}, nil
}

func (s *Server) cmdExecute(cx *commandContext, rd *cmdReader) error {
	sources := []CommandSource{cx.source}
	for {
		switch sub := rd.word(); sub {
		case "as", "at":
			sel, err := rd.mustWord("selector")
			if err != nil {
				return err
			}
			var next []CommandSource
			for _, src := range sources {
				es, err := s.selectEntities(sel, src)
				if err != nil {
					return err
				}
				for _, e := range es {
					if sub == "as" {
						moved := src
						moved.Entity = e
						next = append(next, moved)
						continue
					}
					moved := src
					moved.Pos, moved.Rot, moved.World = e.Pos, e.Rot, e.World
					next = append(next, moved)
				}
			}
			sources = next
		case "positioned":
			var words [3]string
			for i := range words {
				if words[i] = rd.word(); words[i] == "" {
					return errors.New("expected three coordinates")
				}
			}
			for i := range sources {
				pos, err := parseVec3(words, sources[i].Pos)
				if err != nil {
					return err
				}
				sources[i].Pos = pos
			}
		case "run":
			text := rd.rest()
			for _, src := range sources {
				inner := cx.with(src)
				if err := s.dispatch(inner, text); err != nil {
					return err
				}
				cx.calls = append(cx.calls, inner.calls...)
				cx.returned = cx.returned || inner.returned
			}
			return nil
		case "":
			return errors.New("execute: expected run")
		default:
			return errors.Errorf("unsupported execute subcommand %q", sub)
		}
	}
}

func (s *Server) cmdReturn(cx *commandContext, rd *cmdReader) error {
	cx.returned = true
	if rd.eof() {
		return nil
	}
	n, err := strconv.ParseInt(rd.word(), 10, 32)
	if err != nil {
		return errors.Wrap(err, "return value")
	}
	cx.frame.Result = Int(int32(n))
	return nil
}

func (s *Server) cmdSchedule(rd *cmdReader) error {
	if sub := rd.word(); sub != "function" {
		return errors.Errorf("unsupported schedule subcommand %q", sub)
	}
	ref, err := rd.mustWord("function id")
	if err != nil {
		return err
	}
	delay, err := parseTicks(rd.word())
	if err != nil {
		return err
	}
	c := scheduledCall{tag: strings.HasPrefix(ref, "#"), due: s.tick + delay}
	c.id, err = ParseResourceID(strings.TrimPrefix(ref, "#"))
	if err != nil {
		return err
	}
	s.schedule(c)
	return nil
}

// parseTicks parses a game time such as 20, 5t, 1s or 1d.
func parseTicks(w string) (int64, error) {
	unit := int64(1)
	switch {
	case strings.HasSuffix(w, "t"):
		w = w[:len(w)-1]
	case strings.HasSuffix(w, "s"):
		unit, w = 20, w[:len(w)-1]
	case strings.HasSuffix(w, "d"):
		unit, w = 24000, w[:len(w)-1]
	}
	n, err := strconv.ParseFloat(w, 64)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid time %q", w)
	}
	return int64(n * float64(unit)), nil
}

// selectEntities resolves @s, @e with an optional type= or name= filter,
// an entity name or a UUID.
func (s *Server) selectEntities(sel string, src CommandSource) ([]*Entity, error) {
	switch {
	case sel == "@s":
		if src.IsServer() {
			return nil, nil
		}
		return []*Entity{src.Entity}, nil
	case strings.HasPrefix(sel, "@e"):
		filters, err := selectorFilters(sel[2:])
		if err != nil {
			return nil, err
		}
		var out []*Entity
		for _, e := range s.entities {
			if filters.match(e) {
				out = append(out, e)
			}
		}
		return out, nil
	}
	if id, err := uuid.Parse(sel); err == nil {
		for _, e := range s.entities {
			if e.UUID == id {
				return []*Entity{e}, nil
			}
		}
		return nil, nil
	}
	var out []*Entity
	for _, e := range s.entities {
		if e.Name == sel {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Server) selectOne(sel string, src CommandSource) (*Entity, error) {
	es, err := s.selectEntities(sel, src)
	if err != nil {
		return nil, err
	}
	if len(es) == 0 {
		return nil, errors.New("no entity was found")
	}
	if len(es) > 1 {
		return nil, errors.New("only one entity is allowed, but the selector allows more than one")
	}
	return es[0], nil
}

// scoreHolder resolves a score holder name. Entity selectors resolve to the
// entity's display name.
func (s *Server) scoreHolder(holder string, src CommandSource) (string, error) {
	if !strings.HasPrefix(holder, "@") {
		return holder, nil
	}
	e, err := s.selectOne(holder, src)
	if err != nil {
		return "", err
	}
	return e.DisplayName(), nil
}

type entityFilter struct {
	typ  *ResourceID
	name string
}

func selectorFilters(args string) (entityFilter, error) {
	var f entityFilter
	if args == "" {
		return f, nil
	}
	if !strings.HasPrefix(args, "[") || !strings.HasSuffix(args, "]") {
		return f, errors.Errorf("invalid selector arguments %q", args)
	}
	for _, kv := range strings.Split(args[1:len(args)-1], ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return f, errors.Errorf("invalid selector argument %q", kv)
		}
		switch k {
		case "type":
			id, err := ParseResourceID(v)
			if err != nil {
				return f, err
			}
			f.typ = &id
		case "name":
			f.name = v
		default:
			return f, errors.Errorf("unsupported selector argument %q", k)
		}
	}
	return f, nil
}

func (f entityFilter) match(e *Entity) bool {
	if f.typ != nil && e.Type != *f.typ {
		return false
	}
	if f.name != "" && e.Name != f.name {
		return false
	}
	return true
}
