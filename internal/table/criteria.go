package table

import (
	"fmt"
	"strings"

	"ledgerdash/internal/core"
)

// Criteria holds the user-entered predicates. Zero values are inactive.
type Criteria struct {
	Search string    `json:"search,omitempty"`
	From   core.Date `json:"from"`
	To     core.Date `json:"to"`
}

// ParseCriteria builds criteria from raw form or query values.
func ParseCriteria(search, from, to string) (Criteria, error) {
	c := Criteria{Search: strings.TrimSpace(search)}
	var err error
	if c.From, err = core.ParseDate(from); err != nil {
		return Criteria{}, fmt.Errorf("start date: %w", err)
	}
	if c.To, err = core.ParseDate(to); err != nil {
		return Criteria{}, fmt.Errorf("end date: %w", err)
	}
	return c, nil
}

func (c Criteria) HasSearch() bool {
	return strings.TrimSpace(c.Search) != ""
}

func (c Criteria) HasDateRange() bool {
	return !c.From.IsEmpty() || !c.To.IsEmpty()
}

// IsEmpty reports whether no criterion is active.
func (c Criteria) IsEmpty() bool {
	return !c.HasSearch() && !c.HasDateRange()
}

// Active lists the names of the active criteria.
func (c Criteria) Active() []string {
	var out []string
	if c.HasSearch() {
		out = append(out, "search")
	}
	if !c.From.IsEmpty() {
		out = append(out, "from")
	}
	if !c.To.IsEmpty() {
		out = append(out, "to")
	}
	return out
}
