package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type (
	Date struct {
		time.Time
	}

	Company struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	Person struct {
		ID    int64  `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Account struct {
		ID            int64           `json:"id"`
		BankName      string          `json:"bank_name"`
		AccountName   string          `json:"account_name"`
		AccountNumber string          `json:"account_number"`
		Branch        string          `json:"branch"`
		Balance       decimal.Decimal `json:"balance"`
		CreatedAt     Date            `json:"created_at"`
	}

	Expense struct {
		ID          int64           `json:"id"`
		Description string          `json:"description"`
		Category    string          `json:"category"`
		Amount      decimal.Decimal `json:"amount"`
		Date        Date            `json:"date"`
		Company     *Company        `json:"company"`  // pre-joined, may be absent
		PayedBy     *Person         `json:"payed_by"` // pre-joined, may be absent
	}

	Order struct {
		ID          int64           `json:"id"`
		OrderNumber string          `json:"order_number"`
		Customer    string          `json:"customer"`
		Status      string          `json:"status"`
		Total       decimal.Decimal `json:"total"`
		OrderDate   Date            `json:"order_date"`
	}

	// SalesReportRow is shared by the credit sales and sold products reports.
	SalesReportRow struct {
		ID        int64           `json:"id"`
		Invoice   string          `json:"invoice"`
		Customer  string          `json:"customer"`
		Product   string          `json:"product"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Total     decimal.Decimal `json:"total"`
		Paid      decimal.Decimal `json:"paid"`
		Due       decimal.Decimal `json:"due"`
		Date      Date            `json:"date"`
	}

	Product struct {
		ID        int64           `json:"id"`
		Name      string          `json:"name"`
		SKU       string          `json:"sku"`
		Category  string          `json:"category"`
		Price     decimal.Decimal `json:"price"`
		Stock     int             `json:"stock"`
		CreatedAt Date            `json:"created_at"`
	}

	// CartItem is the body of a cart-add request.
	CartItem struct {
		Product  int64 `json:"product" validate:"required,gt=0"`
		Quantity int   `json:"quantity" validate:"required,gte=1,lte=10000"`
	}
)

const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidProduct  = errors.New("invalid product")
	ErrInvalidQuantity = errors.New("invalid quantity")
)

var validate = validator.New()

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts plain dates and the timestamp forms the backend emits.
// An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// DayStart drops the clock part, keeping the calendar day of the original location.
func (d Date) DayStart() Date {
	if d.IsZero() {
		return d
	}
	y, m, day := d.Date()
	return Date{Time: time.Date(y, m, day, 0, 0, 0, 0, time.UTC)}
}

// CompareDay compares two dates at day granularity.
func (d Date) CompareDay(o Date) int {
	return d.DayStart().Time.Compare(o.DayStart().Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

// CompanyName returns the pre-joined company name, if present.
func (e Expense) CompanyName() (string, bool) {
	if e.Company == nil || strings.TrimSpace(e.Company.Name) == "" {
		return "", false
	}
	return e.Company.Name, true
}

// PayerName returns the pre-joined payer name, if present.
func (e Expense) PayerName() (string, bool) {
	if e.PayedBy == nil || strings.TrimSpace(e.PayedBy.Name) == "" {
		return "", false
	}
	return e.PayedBy.Name, true
}

func (c CartItem) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			switch verrs[0].Field() {
			case "Product":
				return ErrInvalidProduct
			case "Quantity":
				return ErrInvalidQuantity
			}
		}
		return err
	}
	return nil
}
