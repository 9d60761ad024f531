// Package zonal computes per-region land-cover statistics: it rasterizes
// region polygons onto a classified grid, aggregates the covered pixels by
// class, and runs the computation over a batch of regions.
package zonal

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Class is one recognised land-cover class.
type Class struct {
	Code  int32  `json:"code" yaml:"code" mapstructure:"code"`
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Color string `json:"color" yaml:"color" mapstructure:"color"`
}

// ClassTable is an ordered, validated set of classes. Codes and names are
// unique.
type ClassTable struct {
	classes []Class
	byCode  map[int32]int
	byName  map[string]int
}

// NewClassTable validates classes and builds a table preserving their order.
func NewClassTable(classes []Class) (*ClassTable, error) {
	if len(classes) == 0 {
		return nil, eris.New("zonal: class table is empty")
	}

	t := &ClassTable{
		classes: make([]Class, len(classes)),
		byCode:  make(map[int32]int, len(classes)),
		byName:  make(map[string]int, len(classes)),
	}
	copy(t.classes, classes)

	for i, c := range t.classes {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, eris.Errorf("zonal: class %d has no name", c.Code)
		}
		if c.Code == 0 {
			return nil, eris.Errorf("zonal: class %q uses reserved code 0", name)
		}
		if _, dup := t.byCode[c.Code]; dup {
			return nil, eris.Errorf("zonal: duplicate class code %d", c.Code)
		}
		if _, dup := t.byName[name]; dup {
			return nil, eris.Errorf("zonal: duplicate class name %q", name)
		}
		t.classes[i].Name = name
		t.byCode[c.Code] = i
		t.byName[name] = i
	}
	return t, nil
}

// Classes returns the classes in table order.
func (t *ClassTable) Classes() []Class {
	out := make([]Class, len(t.classes))
	copy(out, t.classes)
	return out
}

// Len returns the number of classes.
func (t *ClassTable) Len() int { return len(t.classes) }

// Lookup returns the position of code in the table.
func (t *ClassTable) Lookup(code int32) (int, bool) {
	i, ok := t.byCode[code]
	return i, ok
}

// ByName returns the class with the given name.
func (t *ClassTable) ByName(name string) (Class, bool) {
	i, ok := t.byName[name]
	if !ok {
		return Class{}, false
	}
	return t.classes[i], true
}
