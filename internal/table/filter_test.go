package table

import (
	"testing"

	"github.com/go-test/deep"

	"ledgerdash/internal/core"
)

type row struct {
	ID      int
	Company *core.Company
	Note    string
	Date    core.Date
}

func rowSchema() Schema[row] {
	return Schema[row]{
		SearchFields: []TextField[row]{
			{Name: "company.name", Get: func(r row) (string, bool) {
				if r.Company == nil {
					return "", false
				}
				return r.Company.Name, true
			}},
			Text("note", func(r row) string { return r.Note }),
		},
		DateField: func(r row) core.Date { return r.Date },
		Columns: []Column[row]{
			Col("ID", func(r row) any { return r.ID }),
			{Header: "Company", Get: func(r row) (any, bool) { return r.Company.Name, true }},
			Col("Date", func(r row) any { return r.Date }),
		},
	}
}

func ids(rs []row) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func companyRows() []row {
	return []row{
		{ID: 1, Company: &core.Company{Name: "Acme"}, Date: core.NewDate(2024, 5, 1)},
		{ID: 2, Company: &core.Company{Name: "Beta"}, Date: core.NewDate(2024, 5, 15)},
		{ID: 3, Company: &core.Company{Name: "Acme Corp"}, Date: core.NewDate(2024, 5, 30)},
	}
}

func orderRows() []row {
	return []row{
		{ID: 1, Date: core.NewDate(2024, 5, 2)},
		{ID: 2, Date: core.NewDate(2024, 5, 10)},
		{ID: 3, Date: core.NewDate(2024, 5, 15)},
		{ID: 4, Date: core.NewDate(2024, 5, 20)},
		{ID: 5, Date: core.NewDate(2024, 5, 28)},
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		records  []row
		criteria Criteria
		want     []int
	}{
		{
			name:     "empty criteria is identity",
			records:  companyRows(),
			criteria: Criteria{},
			want:     []int{1, 2, 3},
		},
		{
			name:     "case-insensitive company search",
			records:  companyRows(),
			criteria: Criteria{Search: "acme"},
			want:     []int{1, 3},
		},
		{
			name:     "upper-case term",
			records:  companyRows(),
			criteria: Criteria{Search: "  ACME CORP "},
			want:     []int{3},
		},
		{
			name:     "inclusive date range",
			records:  orderRows(),
			criteria: Criteria{From: core.NewDate(2024, 5, 10), To: core.NewDate(2024, 5, 20)},
			want:     []int{2, 3, 4},
		},
		{
			name:     "open-ended start",
			records:  orderRows(),
			criteria: Criteria{From: core.NewDate(2024, 5, 20)},
			want:     []int{4, 5},
		},
		{
			name:     "open-ended end",
			records:  orderRows(),
			criteria: Criteria{To: core.NewDate(2024, 5, 2)},
			want:     []int{1},
		},
		{
			name:     "search and range combine with AND",
			records:  companyRows(),
			criteria: Criteria{Search: "acme", To: core.NewDate(2024, 5, 15)},
			want:     []int{1},
		},
		{
			name: "missing nested field does not match and does not fail",
			records: []row{
				{ID: 1, Note: "acme delivery"},
				{ID: 2},
			},
			criteria: Criteria{Search: "acme"},
			want:     []int{1},
		},
		{
			name:     "undated record fails an active range",
			records:  []row{{ID: 1}, {ID: 2, Date: core.NewDate(2024, 5, 12)}},
			criteria: Criteria{From: core.NewDate(2024, 5, 1)},
			want:     []int{2},
		},
		{
			name:     "no matches",
			records:  companyRows(),
			criteria: Criteria{Search: "gamma"},
			want:     []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(tt.records, rowSchema(), tt.criteria)
			if diff := deep.Equal(ids(got), tt.want); diff != nil {
				t.Error(diff)
			}
		})
	}
}

func TestApplyProperties(t *testing.T) {
	records := append(companyRows(), orderRows()...)
	schema := rowSchema()
	chain := []Criteria{
		{},
		{Search: "a"},
		{Search: "a", From: core.NewDate(2024, 5, 10)},
		{Search: "a", From: core.NewDate(2024, 5, 10), To: core.NewDate(2024, 5, 20)},
	}

	t.Run("identity", func(t *testing.T) {
		if diff := deep.Equal(Apply(records, schema, Criteria{}), records); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("monotonic narrowing", func(t *testing.T) {
		for i := 1; i < len(chain); i++ {
			wider := map[int]bool{}
			for _, r := range Apply(records, schema, chain[i-1]) {
				wider[r.ID] = true
			}
			for _, r := range Apply(records, schema, chain[i]) {
				if !wider[r.ID] {
					t.Fatalf("step %d: record %d not in the wider view", i, r.ID)
				}
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, c := range chain {
			once := Apply(records, schema, c)
			twice := Apply(once, schema, c)
			if diff := deep.Equal(twice, once); diff != nil {
				t.Errorf("criteria %+v: %v", c, diff)
			}
		}
	})

	t.Run("does not modify input", func(t *testing.T) {
		before := ids(records)
		out := Apply(records, schema, Criteria{})
		out[0].ID = 99
		if diff := deep.Equal(ids(records), before); diff != nil {
			t.Error(diff)
		}
	})
}

func TestApplyNilRecords(t *testing.T) {
	got := Apply(nil, rowSchema(), Criteria{})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria(" acme ", "2024-05-10", "")
	if err != nil {
		t.Fatalf("ParseCriteria: %v", err)
	}
	if c.Search != "acme" || c.From.String() != "2024-05-10" || !c.To.IsEmpty() {
		t.Fatalf("unexpected criteria %+v", c)
	}
	if diff := deep.Equal(c.Active(), []string{"search", "from"}); diff != nil {
		t.Error(diff)
	}
	if _, err := ParseCriteria("", "", "20/05/2024"); err == nil {
		t.Fatal("expected error for bad end date")
	}
}
