// Package history keeps a bounded linear undo/redo stack of state snapshots.
package history

import (
	"maps"
	"time"
)

// DefaultCapacity bounds the number of retained entries.
const DefaultCapacity = 50

// MinCapacity is the smallest capacity that still allows one undo.
const MinCapacity = 2

// Metadata carries action details used for undo labels.
type Metadata map[string]any

// Entry is one recorded action and the state right after it.
type Entry[S any] struct {
	Action    string    `json:"action"`
	State     S         `json:"-"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Info exposes whether a step is possible and which action it would revert or replay.
type Info struct {
	Available bool     `json:"available"`
	Action    string   `json:"action,omitempty"`
	Metadata  Metadata `json:"metadata,omitempty"`
}

// Summary describes the stack position.
type Summary struct {
	Length   int  `json:"length"`
	Cursor   int  `json:"cursor"`
	Capacity int  `json:"capacity"`
	CanUndo  bool `json:"canUndo"`
	CanRedo  bool `json:"canRedo"`
}

// Engine is not safe for concurrent use; callers serialise access.
type Engine[S any] struct {
	entries  []Entry[S]
	cursor   int
	capacity int
	now      func() time.Time
}

// New returns an empty engine. A zero or negative capacity uses
// DefaultCapacity; a capacity of 1 is raised to 2 so one undo stays possible.
func New[S any](capacity int, now func() time.Time) *Engine[S] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = max(capacity, MinCapacity)
	if now == nil {
		now = time.Now
	}
	return &Engine[S]{cursor: -1, capacity: capacity, now: now}
}

// Save records state as the result of action. Any redo tail is discarded and
// the oldest entry is evicted once capacity is exceeded.
func (e *Engine[S]) Save(state S, action string, meta Metadata) {
	e.entries = e.entries[:e.cursor+1]
	e.entries = append(e.entries, Entry[S]{
		Action:    action,
		State:     state,
		Metadata:  maps.Clone(meta),
		Timestamp: e.now(),
	})
	e.cursor = len(e.entries) - 1
	if len(e.entries) > e.capacity {
		e.entries[0] = Entry[S]{}
		e.entries = e.entries[1:]
		e.cursor--
	}
}

// Undo steps back one entry and hands its state to apply. It reports false
// when there is nothing to undo.
func (e *Engine[S]) Undo(apply func(S)) bool {
	if !e.CanUndo() {
		return false
	}
	e.cursor--
	apply(e.entries[e.cursor].State)
	return true
}

// Redo replays the next entry. It reports false at the tip.
func (e *Engine[S]) Redo(apply func(S)) bool {
	if !e.CanRedo() {
		return false
	}
	e.cursor++
	apply(e.entries[e.cursor].State)
	return true
}

func (e *Engine[S]) CanUndo() bool { return e.cursor > 0 }

func (e *Engine[S]) CanRedo() bool { return e.cursor < len(e.entries)-1 }

// UndoInfo names the action an undo would revert.
func (e *Engine[S]) UndoInfo() Info {
	if !e.CanUndo() {
		return Info{}
	}
	entry := e.entries[e.cursor]
	return Info{Available: true, Action: entry.Action, Metadata: maps.Clone(entry.Metadata)}
}

// RedoInfo names the action a redo would replay.
func (e *Engine[S]) RedoInfo() Info {
	if !e.CanRedo() {
		return Info{}
	}
	entry := e.entries[e.cursor+1]
	return Info{Available: true, Action: entry.Action, Metadata: maps.Clone(entry.Metadata)}
}

func (e *Engine[S]) Info() Summary {
	return Summary{
		Length:   len(e.entries),
		Cursor:   e.cursor,
		Capacity: e.capacity,
		CanUndo:  e.CanUndo(),
		CanRedo:  e.CanRedo(),
	}
}

// Entries returns a copy of the recorded entries, oldest first.
func (e *Engine[S]) Entries() []Entry[S] {
	out := make([]Entry[S], len(e.entries))
	copy(out, e.entries)
	return out
}

// Clear drops every entry.
func (e *Engine[S]) Clear() {
	e.entries = nil
	e.cursor = -1
}
