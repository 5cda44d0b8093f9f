// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// DefaultWorld is the dimension commands run in unless positioned
// elsewhere.
const DefaultWorld = "minecraft:overworld"

// Vec3 is a position.
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) String() string {
	return fmt.Sprintf("[%s, %s, %s]", fmtCoord(v.X), fmtCoord(v.Y), fmtCoord(v.Z))
}

// Vec2 is a rotation as yaw and pitch.
type Vec2 struct {
	Yaw, Pitch float64
}

func (v Vec2) String() string {
	return fmt.Sprintf("[%s, %s]", fmtCoord(v.Yaw), fmtCoord(v.Pitch))
}

func fmtCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Entity is a summoned entity that commands can run as.
type Entity struct {
	Type  ResourceID
	Name  string
	UUID  uuid.UUID
	Pos   Vec3
	Rot   Vec2
	World string
	Data  *Compound
}

// DisplayName returns the custom name of e or its type when unnamed.
func (e *Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Type.Path
}

// NBT returns the entity data the way data get entity shows it.
func (e *Entity) NBT() *Compound {
	c := NewCompound()
	c.Set("id", String(e.Type.String()))
	if e.Name != "" {
		c.Set("CustomName", String(e.Name))
	}
	c.Set("UUID", uuidArray(e.UUID))
	c.Set("Pos", NewList(Double(e.Pos.X), Double(e.Pos.Y), Double(e.Pos.Z)))
	c.Set("Rotation", NewList(Float(float32(e.Rot.Yaw)), Float(float32(e.Rot.Pitch))))
	if e.Data != nil {
		c.Merge(e.Data)
	}
	return c
}

func uuidArray(id uuid.UUID) *Array {
	a := &Array{K: KindIntArray, Elems: make([]int64, 4)}
	for i := 0; i < 4; i++ {
		var word int32
		for _, b := range id[i*4 : i*4+4] {
			word = word<<8 | int32(b)
		}
		a.Elems[i] = int64(word)
	}
	return a
}

// CommandSource is the execution context of a command: who runs it and
// where. A nil Entity means the server itself is the executor.
type CommandSource struct {
	Entity *Entity
	Pos    Vec3
	Rot    Vec2
	World  string
}

// ServerSource returns the source used for functions run by the server.
func ServerSource() CommandSource {
	return CommandSource{World: DefaultWorld}
}

// IsServer reports whether the server is the executor.
func (s CommandSource) IsServer() bool {
	return s.Entity == nil
}

// As returns a copy of s executed by e at e's position.
func (s CommandSource) As(e *Entity) CommandSource {
	world := e.World
	if world == "" {
		world = s.World
	}
	return CommandSource{Entity: e, Pos: e.Pos, Rot: e.Rot, World: world}
}

// Name returns the executor's display name.
func (s CommandSource) Name() string {
	if s.IsServer() {
		return "server"
	}
	return s.Entity.DisplayName()
}
