package filters

import (
	"slices"
	"strings"
)

// ProjectRecord is a project or project unit as shown on the dashboard.
type ProjectRecord struct {
	ID               string   `json:"id" yaml:"id"`
	BPIN             string   `json:"bpin,omitempty" yaml:"bpin,omitempty"`
	Name             string   `json:"name" yaml:"name"`
	Status           string   `json:"status,omitempty" yaml:"status,omitempty"`
	Responsible      string   `json:"responsible,omitempty" yaml:"responsible,omitempty"`
	Comuna           string   `json:"comuna,omitempty" yaml:"comuna,omitempty"`
	Barrio           string   `json:"barrio,omitempty" yaml:"barrio,omitempty"`
	Corregimiento    string   `json:"corregimiento,omitempty" yaml:"corregimiento,omitempty"`
	Vereda           string   `json:"vereda,omitempty" yaml:"vereda,omitempty"`
	TipoIntervencion string   `json:"tipoIntervencion,omitempty" yaml:"tipoIntervencion,omitempty"`
	FundingSource    string   `json:"fuenteFinanciamiento,omitempty" yaml:"fuenteFinanciamiento,omitempty"`
	Category         string   `json:"filtroPersonalizado,omitempty" yaml:"filtroPersonalizado,omitempty"`
	Subcategory      string   `json:"subfiltroPersonalizado,omitempty" yaml:"subfiltroPersonalizado,omitempty"`
	StartDate        string   `json:"startDate,omitempty" yaml:"startDate,omitempty"`
	EndDate          string   `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Lat              *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng              *float64 `json:"lng,omitempty" yaml:"lng,omitempty"`
}

func (r ProjectRecord) searchText() string {
	parts := make([]string, 0, 8)
	for _, v := range []string{
		r.Name, r.BPIN, r.Responsible, r.Comuna,
		r.Barrio, r.Corregimiento, r.Vereda, r.TipoIntervencion,
	} {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Match reports whether r passes every active filter of s.
// Multi-select filters only apply to records that carry the field.
// Dates are ISO YYYY-MM-DD strings compared lexically.
func (s State) Match(r ProjectRecord) bool {
	if s.Search != "" && !strings.Contains(r.searchText(), strings.ToLower(s.Search)) {
		return false
	}
	if s.Status != "" && s.Status != StatusAll && r.Status != s.Status {
		return false
	}

	for _, m := range []struct {
		selected []string
		value    string
	}{
		{s.ManagingUnits, r.Responsible},
		{s.Comunas, r.Comuna},
		{s.Barrios, r.Barrio},
		{s.Corregimientos, r.Corregimiento},
		{s.Veredas, r.Vereda},
		{s.FundingSources, r.FundingSource},
		{s.Categories, r.Category},
		{s.Subcategories, r.Subcategory},
	} {
		if len(m.selected) > 0 && m.value != "" && !slices.Contains(m.selected, m.value) {
			return false
		}
	}

	if s.StartDate != "" && r.StartDate != "" && r.StartDate < s.StartDate {
		return false
	}
	if s.EndDate != "" && r.EndDate != "" && r.EndDate > s.EndDate {
		return false
	}
	return true
}

// Apply returns the records matching s, in input order.
func (s State) Apply(records []ProjectRecord) []ProjectRecord {
	out := make([]ProjectRecord, 0, len(records))
	for _, r := range records {
		if s.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
