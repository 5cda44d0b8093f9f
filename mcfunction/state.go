// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"sort"

	"github.com/pkg/errors"
)

// Storage holds the command storages, one compound per resource id.
type Storage struct {
	data map[ResourceID]*Compound
}

// NewStorage returns empty storage.
func NewStorage() *Storage {
	return &Storage{data: make(map[ResourceID]*Compound)}
}

// Get returns the compound stored under id. Unknown ids read as an empty
// compound.
func (s *Storage) Get(id ResourceID) *Compound {
	if c, ok := s.data[id]; ok {
		return c
	}
	return NewCompound()
}

// Open returns the compound stored under id, creating it.
func (s *Storage) Open(id ResourceID) *Compound {
	c, ok := s.data[id]
	if !ok {
		c = NewCompound()
		s.data[id] = c
	}
	return c
}

// IDs returns the ids of all non-empty storages in sorted order.
func (s *Storage) IDs() []ResourceID {
	ids := make([]ResourceID, 0, len(s.data))
	for id, c := range s.data {
		if c.Len() > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ErrNoScore is returned when a score holder has no value for an
// objective.
var ErrNoScore = errors.New("no score")

// Objective is a scoreboard objective.
type Objective struct {
	Name     string
	Criteria string
	scores   map[string]int32
}

// Scoreboard holds objectives and their scores.
type Scoreboard struct {
	objectives map[string]*Objective
}

// NewScoreboard returns an empty scoreboard.
func NewScoreboard() *Scoreboard {
	return &Scoreboard{objectives: make(map[string]*Objective)}
}

// AddObjective creates an objective. It fails when the name is taken.
func (b *Scoreboard) AddObjective(name, criteria string) error {
	if _, ok := b.objectives[name]; ok {
		return errors.Errorf("an objective already exists by the name %q", name)
	}
	b.objectives[name] = &Objective{Name: name, Criteria: criteria, scores: make(map[string]int32)}
	return nil
}

// Objective returns the named objective.
func (b *Scoreboard) Objective(name string) (*Objective, bool) {
	o, ok := b.objectives[name]
	return o, ok
}

func (b *Scoreboard) objective(name string) (*Objective, error) {
	o, ok := b.objectives[name]
	if !ok {
		return nil, errors.Errorf("unknown scoreboard objective %q", name)
	}
	return o, nil
}

// Get returns the score of holder.
func (b *Scoreboard) Get(holder, objective string) (int32, error) {
	o, err := b.objective(objective)
	if err != nil {
		return 0, err
	}
	v, ok := o.scores[holder]
	if !ok {
		return 0, errors.Wrapf(ErrNoScore, "%s for %s", objective, holder)
	}
	return v, nil
}

// Set stores the score of holder.
func (b *Scoreboard) Set(holder, objective string, v int32) error {
	o, err := b.objective(objective)
	if err != nil {
		return err
	}
	o.scores[holder] = v
	return nil
}

// Add adds delta to the score of holder, starting from zero.
func (b *Scoreboard) Add(holder, objective string, delta int32) (int32, error) {
	o, err := b.objective(objective)
	if err != nil {
		return 0, err
	}
	o.scores[holder] += delta
	return o.scores[holder], nil
}
