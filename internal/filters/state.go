// Package filters holds the dashboard filter state and applies it to project records.
package filters

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnknownField is returned for field names the panel does not have.
var ErrUnknownField = errors.New("unknown filter field")

// StatusAll disables the status filter.
const StatusAll = "all"

// Field names a filter, using the dashboard's JSON names.
type Field string

// Filter fields.
const (
	FieldSearch         Field = "search"
	FieldStatus         Field = "estado"
	FieldManagingUnits  Field = "centroGestor"
	FieldComunas        Field = "comunas"
	FieldBarrios        Field = "barrios"
	FieldCorregimientos Field = "corregimientos"
	FieldVeredas        Field = "veredas"
	FieldFundingSources Field = "fuentesFinanciamiento"
	FieldCategories     Field = "filtrosPersonalizados"
	FieldSubcategories  Field = "subfiltrosPersonalizados"
	FieldStartDate      Field = "fechaInicio"
	FieldEndDate        Field = "fechaFin"
)

// State is the filter panel selection. Dependent sets only hold values reachable
// from the selected parents; every operation returns a new State.
type State struct {
	Search         string   `json:"search"`
	Status         string   `json:"estado"`
	ManagingUnits  []string `json:"centroGestor"`
	Comunas        []string `json:"comunas"`
	Barrios        []string `json:"barrios"`
	Corregimientos []string `json:"corregimientos"`
	Veredas        []string `json:"veredas"`
	FundingSources []string `json:"fuentesFinanciamiento"`
	Categories     []string `json:"filtrosPersonalizados"`
	Subcategories  []string `json:"subfiltrosPersonalizados"`
	StartDate      string   `json:"fechaInicio"`
	EndDate        string   `json:"fechaFin"`
}

// Default returns the empty selection.
func Default() State {
	return State{
		Status:         StatusAll,
		ManagingUnits:  []string{},
		Comunas:        []string{},
		Barrios:        []string{},
		Corregimientos: []string{},
		Veredas:        []string{},
		FundingSources: []string{},
		Categories:     []string{},
		Subcategories:  []string{},
	}
}

// Reset returns the empty selection.
func Reset() State { return Default() }

func (s State) clone() State {
	c := s
	c.ManagingUnits = cloneSet(s.ManagingUnits)
	c.Comunas = cloneSet(s.Comunas)
	c.Barrios = cloneSet(s.Barrios)
	c.Corregimientos = cloneSet(s.Corregimientos)
	c.Veredas = cloneSet(s.Veredas)
	c.FundingSources = cloneSet(s.FundingSources)
	c.Categories = cloneSet(s.Categories)
	c.Subcategories = cloneSet(s.Subcategories)
	if c.Status == "" {
		c.Status = StatusAll
	}
	return c
}

func cloneSet(v []string) []string {
	if v == nil {
		return []string{}
	}
	return slices.Clone(v)
}

// set returns a pointer to the multi-select field f of s.
func (s *State) set(f Field) *[]string {
	switch f {
	case FieldManagingUnits:
		return &s.ManagingUnits
	case FieldComunas:
		return &s.Comunas
	case FieldBarrios:
		return &s.Barrios
	case FieldCorregimientos:
		return &s.Corregimientos
	case FieldVeredas:
		return &s.Veredas
	case FieldFundingSources:
		return &s.FundingSources
	case FieldCategories:
		return &s.Categories
	case FieldSubcategories:
		return &s.Subcategories
	}
	return nil
}

// scalar returns a pointer to the single-value field f of s and its empty value.
func (s *State) scalar(f Field) (*string, string) {
	switch f {
	case FieldSearch:
		return &s.Search, ""
	case FieldStatus:
		return &s.Status, StatusAll
	case FieldStartDate:
		return &s.StartDate, ""
	case FieldEndDate:
		return &s.EndDate, ""
	}
	return nil, ""
}

// ActiveCount returns the number of fields that restrict the result.
func (s State) ActiveCount() int {
	n := 0
	for _, v := range []string{s.Search, s.StartDate, s.EndDate} {
		if v != "" {
			n++
		}
	}
	if s.Status != "" && s.Status != StatusAll {
		n++
	}
	for _, v := range [][]string{
		s.ManagingUnits, s.Comunas, s.Barrios, s.Corregimientos, s.Veredas,
		s.FundingSources, s.Categories, s.Subcategories,
	} {
		if len(v) > 0 {
			n++
		}
	}
	return n
}

// Toggle checks or unchecks value in field. Scalar fields are set when checked
// and cleared otherwise. The dependent set of the field's hierarchy is pruned.
func (h Hierarchies) Toggle(s State, field Field, value string, checked bool) (State, error) {
	out := s.clone()

	if p, empty := out.scalar(field); p != nil {
		*p = empty
		if checked {
			*p = value
		}
		return out, nil
	}

	set := out.set(field)
	if set == nil {
		return s, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	if checked {
		if !slices.Contains(*set, value) {
			*set = append(*set, value)
		}
	} else {
		*set = slices.DeleteFunc(*set, func(v string) bool { return v == value })
	}

	if p, ok := pairOf(field); ok {
		h.prune(&out, p)
	}
	return out, nil
}

// Remove drops value from field, or clears the field when value is empty.
// Clearing or shrinking a parent also prunes its dependent set.
func (h Hierarchies) Remove(s State, field Field, value string) (State, error) {
	if value == "" {
		out := s.clone()
		if p, empty := out.scalar(field); p != nil {
			*p = empty
			return out, nil
		}
		set := out.set(field)
		if set == nil {
			return s, fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
		*set = []string{}
		if p, ok := pairOf(field); ok {
			h.prune(&out, p)
		}
		return out, nil
	}
	return h.Toggle(s, field, value, false)
}

// Sanitize returns s with every dependent set pruned to its reachable values.
func (h Hierarchies) Sanitize(s State) State {
	out := s.clone()
	for _, p := range pairs {
		h.prune(&out, p)
	}
	return out
}

// Options lists the child values selectable under the current parents of field's hierarchy.
func (h Hierarchies) Options(s State, field Field) ([]string, error) {
	p, ok := pairOf(field)
	if !ok || p.child != field {
		return nil, fmt.Errorf("%w: %q has no parent", ErrUnknownField, field)
	}
	return p.table(h).Reachable(*s.set(p.parent)), nil
}

func (h Hierarchies) prune(s *State, p pair) {
	child := s.set(p.child)
	*child = Prune(*child, p.table(h).Reachable(*s.set(p.parent)))
}
