package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		want Date
		ok   bool
	}{
		{"2024-05-10", NewDate(2024, 5, 10), true},
		{"2024-05-10T23:15:00Z", Date{Time: time.Date(2024, 5, 10, 23, 15, 0, 0, time.UTC)}, true},
		{"2024-05-10 08:00:00", Date{Time: time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)}, true},
		{"", Date{}, true},
		{"10/05/2024", Date{}, false},
	}
	for i, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidDate) {
				t.Fatalf("case %d expected ErrInvalidDate, got %v", i, err)
			}
			continue
		}
		if !got.Equal(tc.want.Time) {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
	}
}

func TestDateCompareDay(t *testing.T) {
	late := Date{Time: time.Date(2024, 5, 20, 23, 59, 0, 0, time.UTC)}
	if late.CompareDay(NewDate(2024, 5, 20)) != 0 {
		t.Fatalf("expected same day")
	}
	if NewDate(2024, 5, 9).CompareDay(NewDate(2024, 5, 10)) >= 0 {
		t.Fatalf("expected earlier day")
	}
}

func TestExpenseDecodeMissingNested(t *testing.T) {
	body := `[
		{"id":1,"description":"paper","amount":"12.50","date":"2024-05-01","company":{"id":3,"name":"Acme"},"payed_by":{"id":9,"name":"Dana"}},
		{"id":2,"description":"toner","amount":40,"date":null,"company":null}
	]`
	var out []Expense
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(out))
	}
	if name, ok := out[0].CompanyName(); !ok || name != "Acme" {
		t.Fatalf("unexpected company: %q %v", name, ok)
	}
	if out[0].Amount.String() != "12.5" {
		t.Fatalf("unexpected amount %s", out[0].Amount)
	}
	if _, ok := out[1].CompanyName(); ok {
		t.Fatalf("expected missing company")
	}
	if _, ok := out[1].PayerName(); ok {
		t.Fatalf("expected missing payer")
	}
	if !out[1].Date.IsEmpty() {
		t.Fatalf("expected empty date")
	}
}

func TestDateMarshal(t *testing.T) {
	b, err := json.Marshal(struct {
		A Date `json:"a"`
		B Date `json:"b"`
	}{A: NewDate(2024, 5, 10)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"a":"2024-05-10","b":null}` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestCartItemValidate(t *testing.T) {
	if err := (CartItem{Product: 4, Quantity: 2}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (CartItem{Product: 0, Quantity: 2}).Validate(); !errors.Is(err, ErrInvalidProduct) {
		t.Fatalf("expected ErrInvalidProduct, got %v", err)
	}
	if err := (CartItem{Product: 4, Quantity: 0}).Validate(); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}
