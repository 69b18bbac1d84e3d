package tree

import (
	"fmt"

	"qaworkbench/internal/domain"
)

const (
	ColumnLabel = 0
	ColumnValue = 1
	Columns     = 2
)

// NoProperty marks a check-level coordinate.
const NoProperty = -1

// Coordinate addresses one cell: a check row (Property == NoProperty) or one
// of the check's fixed property rows.
type Coordinate struct {
	Check    int `json:"check"`
	Property int `json:"property"`
	Column   int `json:"column"`
}

func CheckCoordinate(check, column int) Coordinate {
	return Coordinate{Check: check, Property: NoProperty, Column: column}
}

func PropertyCoordinate(check int, kind domain.PropertyKind, column int) Coordinate {
	return Coordinate{Check: check, Property: int(kind), Column: column}
}

// Depth is 0 for checks and 1 for properties.
func (c Coordinate) Depth() int {
	if c.Property == NoProperty {
		return 0
	}
	return 1
}

func (c Coordinate) Kind() domain.PropertyKind {
	return domain.PropertyKind(c.Property)
}

func (c Coordinate) String() string {
	if c.Depth() == 0 {
		return fmt.Sprintf("(%d,%d)", c.Check, c.Column)
	}
	return fmt.Sprintf("(%d/%d,%d)", c.Check, c.Property, c.Column)
}

// IndexError reports an out-of-range coordinate request.
type IndexError struct {
	Row    int
	Column int
	Parent *Coordinate
}

func (e *IndexError) Error() string {
	parent := "root"
	if e.Parent != nil {
		parent = e.Parent.String()
	}
	return fmt.Sprintf("index (%d,%d) out of range under %s", e.Row, e.Column, parent)
}
