package catalog

import (
	"ledgerdash/internal/api"
	"ledgerdash/internal/core"
	"ledgerdash/internal/table"
)

var Accounts = Resource[core.Account]{
	Name:     "accounts",
	Title:    "Bank accounts",
	Endpoint: "banks/",
	Envelope: api.EnvelopeBare,
	Schema: table.Schema[core.Account]{
		SearchFields: []table.TextField[core.Account]{
			table.Text("bank_name", func(a core.Account) string { return a.BankName }),
			table.Text("account_name", func(a core.Account) string { return a.AccountName }),
			table.Text("account_number", func(a core.Account) string { return a.AccountNumber }),
		},
		DateField: func(a core.Account) core.Date { return a.CreatedAt },
		Columns: []table.Column[core.Account]{
			table.Col("ID", func(a core.Account) any { return a.ID }),
			table.Col("Bank", func(a core.Account) any { return a.BankName }),
			table.Col("Account Name", func(a core.Account) any { return a.AccountName }),
			table.Col("Account Number", func(a core.Account) any { return a.AccountNumber }),
			table.Col("Branch", func(a core.Account) any { return a.Branch }),
			table.Col("Balance", func(a core.Account) any { return a.Balance }),
			table.Col("Created", func(a core.Account) any { return a.CreatedAt }),
		},
	},
	Filename:  "bank_accounts.xlsx",
	SheetName: "Accounts",
}

var Expenses = Resource[core.Expense]{
	Name:     "expenses",
	Title:    "Expenses",
	Endpoint: "expense/add/",
	Envelope: api.EnvelopeData,
	Schema: table.Schema[core.Expense]{
		SearchFields: []table.TextField[core.Expense]{
			{Name: "company.name", Get: core.Expense.CompanyName},
			{Name: "payed_by.name", Get: core.Expense.PayerName},
			table.Text("description", func(e core.Expense) string { return e.Description }),
			table.Text("category", func(e core.Expense) string { return e.Category }),
		},
		DateField: func(e core.Expense) core.Date { return e.Date },
		Columns: []table.Column[core.Expense]{
			table.Col("ID", func(e core.Expense) any { return e.ID }),
			table.Col("Date", func(e core.Expense) any { return e.Date }),
			{Header: "Company", Get: func(e core.Expense) (any, bool) { return e.CompanyName() }},
			{Header: "Paid By", Get: func(e core.Expense) (any, bool) { return e.PayerName() }},
			table.Col("Description", func(e core.Expense) any { return e.Description }),
			table.Col("Category", func(e core.Expense) any { return e.Category }),
			table.Col("Amount", func(e core.Expense) any { return e.Amount }),
		},
	},
	Filename:  "expenses.xlsx",
	SheetName: "Expenses",
}

var Orders = Resource[core.Order]{
	Name:     "orders",
	Title:    "Orders",
	Endpoint: "orders/",
	Envelope: api.EnvelopeBare,
	Schema: table.Schema[core.Order]{
		SearchFields: []table.TextField[core.Order]{
			table.Text("customer", func(o core.Order) string { return o.Customer }),
			table.Text("order_number", func(o core.Order) string { return o.OrderNumber }),
			table.Text("status", func(o core.Order) string { return o.Status }),
		},
		DateField: func(o core.Order) core.Date { return o.OrderDate },
		Columns: []table.Column[core.Order]{
			table.Col("Order Number", func(o core.Order) any { return o.OrderNumber }),
			table.Col("Customer", func(o core.Order) any { return o.Customer }),
			table.Col("Status", func(o core.Order) any { return o.Status }),
			table.Col("Total", func(o core.Order) any { return o.Total }),
			table.Col("Order Date", func(o core.Order) any { return o.OrderDate }),
		},
	},
	Filename:  "orders.xlsx",
	SheetName: "Orders",
}

var CreditSales = Resource[core.SalesReportRow]{
	Name:     "credit-sales",
	Title:    "Credit sales",
	Endpoint: "credit/sales/",
	Envelope: api.EnvelopeData,
	Schema: table.Schema[core.SalesReportRow]{
		SearchFields: []table.TextField[core.SalesReportRow]{
			table.Text("customer", func(s core.SalesReportRow) string { return s.Customer }),
			table.Text("product", func(s core.SalesReportRow) string { return s.Product }),
			table.Text("invoice", func(s core.SalesReportRow) string { return s.Invoice }),
		},
		DateField: salesDate,
		Columns: []table.Column[core.SalesReportRow]{
			table.Col("Invoice", func(s core.SalesReportRow) any { return s.Invoice }),
			table.Col("Customer", func(s core.SalesReportRow) any { return s.Customer }),
			table.Col("Product", func(s core.SalesReportRow) any { return s.Product }),
			table.Col("Quantity", func(s core.SalesReportRow) any { return s.Quantity }),
			table.Col("Unit Price", func(s core.SalesReportRow) any { return s.UnitPrice }),
			table.Col("Total", func(s core.SalesReportRow) any { return s.Total }),
			table.Col("Paid", func(s core.SalesReportRow) any { return s.Paid }),
			table.Col("Due", func(s core.SalesReportRow) any { return s.Due }),
			table.Col("Date", func(s core.SalesReportRow) any { return s.Date }),
		},
	},
	Filename:  "credit_sales.xlsx",
	SheetName: "Credit Sales",
}

var SoldProducts = Resource[core.SalesReportRow]{
	Name:     "sold-products",
	Title:    "Sold products",
	Endpoint: "sold/products/",
	Envelope: api.EnvelopeData,
	Schema: table.Schema[core.SalesReportRow]{
		SearchFields: []table.TextField[core.SalesReportRow]{
			table.Text("product", func(s core.SalesReportRow) string { return s.Product }),
			table.Text("customer", func(s core.SalesReportRow) string { return s.Customer }),
		},
		DateField: salesDate,
		Columns: []table.Column[core.SalesReportRow]{
			table.Col("Product", func(s core.SalesReportRow) any { return s.Product }),
			table.Col("Customer", func(s core.SalesReportRow) any { return s.Customer }),
			table.Col("Quantity", func(s core.SalesReportRow) any { return s.Quantity }),
			table.Col("Unit Price", func(s core.SalesReportRow) any { return s.UnitPrice }),
			table.Col("Total", func(s core.SalesReportRow) any { return s.Total }),
			table.Col("Date", func(s core.SalesReportRow) any { return s.Date }),
		},
	},
	Filename:  "sold_products.xlsx",
	SheetName: "Sold Products",
}

var Products = Resource[core.Product]{
	Name:     "products",
	Title:    "Products",
	Endpoint: "all/products/",
	Envelope: api.EnvelopeBare,
	Schema: table.Schema[core.Product]{
		SearchFields: []table.TextField[core.Product]{
			table.Text("name", func(p core.Product) string { return p.Name }),
			table.Text("category", func(p core.Product) string { return p.Category }),
			table.Text("sku", func(p core.Product) string { return p.SKU }),
		},
		DateField: func(p core.Product) core.Date { return p.CreatedAt },
		Columns: []table.Column[core.Product]{
			table.Col("ID", func(p core.Product) any { return p.ID }),
			table.Col("Name", func(p core.Product) any { return p.Name }),
			table.Col("SKU", func(p core.Product) any { return p.SKU }),
			table.Col("Category", func(p core.Product) any { return p.Category }),
			table.Col("Price", func(p core.Product) any { return p.Price }),
			table.Col("Stock", func(p core.Product) any { return p.Stock }),
			table.Col("Created", func(p core.Product) any { return p.CreatedAt }),
		},
	},
	Filename:  "products.xlsx",
	SheetName: "Products",
}

func salesDate(s core.SalesReportRow) core.Date { return s.Date }

// Default returns the registry of every list resource the backend serves.
func Default() *Registry {
	return NewRegistry(Accounts, Expenses, Orders, CreditSales, SoldProducts, Products)
}
