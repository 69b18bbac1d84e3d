// Package tree exposes a checklist as a two-level addressable tree: checks at
// depth 0 and their four fixed properties at depth 1.
//
// An Adapter is not safe for concurrent use. Hosts serialise SetData calls and
// automation completions onto one goroutine.
package tree

import (
	"sort"

	"qaworkbench/internal/domain"
)

type Aspect int

const (
	AspectDisplay Aspect = iota
	AspectEdit
	AspectCheckState
	AspectBackground
)

func (a Aspect) String() string {
	switch a {
	case AspectDisplay:
		return "display"
	case AspectEdit:
		return "edit"
	case AspectCheckState:
		return "check_state"
	case AspectBackground:
		return "background"
	}
	return "unknown"
}

type Flag uint8

const (
	FlagEnabled Flag = 1 << iota
	FlagSelectable
	FlagEditable
	FlagCheckable
)

func (f Flag) Has(o Flag) bool { return f&o == o }

// Highlight is the background hint for a validated check row.
type Highlight string

const HighlightValidated Highlight = "validated"

const NotEnabled = "Not enabled"

// Change describes a range of cells whose data changed.
type Change struct {
	TopLeft     Coordinate
	BottomRight Coordinate
	Aspect      Aspect
}

type Adapter struct {
	list      *domain.CheckList
	observers map[int]func(Change)
	nextID    int
}

func New(cl *domain.CheckList) *Adapter {
	return &Adapter{list: cl, observers: map[int]func(Change){}}
}

// CheckList returns the underlying model for read access.
func (a *Adapter) CheckList() *domain.CheckList { return a.list }

func (a *Adapter) Index(row, column int, parent *Coordinate) (Coordinate, error) {
	if column < 0 || column >= Columns || row < 0 || row >= a.RowCount(parent) {
		return Coordinate{}, &IndexError{Row: row, Column: column, Parent: parent}
	}
	if parent == nil {
		return CheckCoordinate(row, column), nil
	}
	return Coordinate{Check: parent.Check, Property: row, Column: column}, nil
}

// Parent returns the owning check coordinate; false for check rows.
func (a *Adapter) Parent(c Coordinate) (Coordinate, bool) {
	if c.Depth() == 0 {
		return Coordinate{}, false
	}
	return CheckCoordinate(c.Check, ColumnLabel), true
}

func (a *Adapter) RowCount(parent *Coordinate) int {
	switch {
	case parent == nil:
		return len(a.list.Checks)
	case parent.Depth() == 0 && a.validCheck(parent.Check):
		return domain.PropertyCount
	default:
		return 0
	}
}

func (a *Adapter) ColumnCount(*Coordinate) int { return Columns }

func (a *Adapter) validCheck(i int) bool { return i >= 0 && i < len(a.list.Checks) }

// Valid reports whether c addresses an existing cell.
func (a *Adapter) Valid(c Coordinate) bool {
	if !a.validCheck(c.Check) || c.Column < 0 || c.Column >= Columns {
		return false
	}
	return c.Property == NoProperty || (c.Property >= 0 && c.Property < domain.PropertyCount)
}

func (a *Adapter) Data(c Coordinate, aspect Aspect) any {
	if !a.Valid(c) {
		return nil
	}
	check := &a.list.Checks[c.Check]
	if c.Depth() == 0 {
		switch {
		case c.Column == ColumnLabel && (aspect == AspectDisplay || aspect == AspectEdit):
			return check.Name
		case c.Column == ColumnValue && aspect == AspectCheckState:
			return check.Validated
		case c.Column == ColumnValue && aspect == AspectBackground && check.Validated == domain.Checked:
			return HighlightValidated
		}
		return nil
	}
	prop := check.Properties[c.Property]
	switch {
	case c.Column == ColumnLabel && aspect == AspectDisplay:
		return prop.Name
	case c.Column == ColumnValue && aspect == AspectDisplay:
		if c.Kind() == domain.PropertyAutomation && !check.Automation().Enabled() {
			return NotEnabled
		}
		return prop.Value
	case c.Column == ColumnValue && aspect == AspectEdit:
		return prop.Value
	}
	return nil
}

func (a *Adapter) Flags(c Coordinate) Flag {
	if !a.Valid(c) {
		return 0
	}
	f := FlagEnabled | FlagSelectable
	switch {
	case c.Depth() == 0 && c.Column == ColumnValue:
		f |= FlagEditable | FlagCheckable
	case c.Depth() == 1 && c.Kind() == domain.PropertyValidationNotes && c.Column == ColumnValue:
		f |= FlagEditable
	}
	return f
}

// SetData writes the validated state or the validation notes. Every other
// cell is read-only and yields false without side effects.
func (a *Adapter) SetData(c Coordinate, value any, aspect Aspect) bool {
	if !a.Valid(c) || c.Column != ColumnValue {
		return false
	}
	check := &a.list.Checks[c.Check]
	switch {
	case c.Depth() == 0 && aspect == AspectCheckState:
		state, ok := toCheckState(value)
		if !ok {
			return false
		}
		check.Validated = state
	case c.Depth() == 1 && c.Kind() == domain.PropertyValidationNotes && aspect == AspectEdit:
		notes, ok := value.(string)
		if !ok {
			return false
		}
		check.SetValidationNotes(notes)
	default:
		return false
	}
	a.notify(Change{TopLeft: c, BottomRight: c, Aspect: aspect})
	return true
}

func toCheckState(v any) (domain.CheckState, bool) {
	switch s := v.(type) {
	case domain.CheckState:
		return s, s >= domain.Unchecked && s <= domain.Checked
	case bool:
		if s {
			return domain.Checked, true
		}
		return domain.Unchecked, true
	case int:
		return toCheckState(domain.CheckState(s))
	}
	return 0, false
}

// Subscribe registers fn for change notifications and returns its cancel func.
func (a *Adapter) Subscribe(fn func(Change)) func() {
	id := a.nextID
	a.nextID++
	a.observers[id] = fn
	return func() { delete(a.observers, id) }
}

func (a *Adapter) notify(ch Change) {
	ids := make([]int, 0, len(a.observers))
	for id := range a.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		a.observers[id](ch)
	}
}

// Result is true when every check is Checked.
func (a *Adapter) Result() bool {
	for i := range a.list.Checks {
		if a.list.Checks[i].Validated != domain.Checked {
			return false
		}
	}
	return true
}

// ClearAll resets every check to Unchecked with empty notes, one cell at a
// time, and returns the number of cells written.
func (a *Adapter) ClearAll() int {
	n := 0
	for i := range a.list.Checks {
		if a.SetData(CheckCoordinate(i, ColumnValue), domain.Unchecked, AspectCheckState) {
			n++
		}
		if a.SetData(PropertyCoordinate(i, domain.PropertyValidationNotes, ColumnValue), "", AspectEdit) {
			n++
		}
	}
	return n
}
