package tools

import (
	"context"
	"fmt"

	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

func invoiceDefinitions(db Database) []tooldispatch.Definition {
	return []tooldispatch.Definition{
		{
			Name:        "get_invoices_by_customer_sorted_by_date",
			Description: "Look up all invoices for a customer, sorted by invoice date from newest to oldest.",
			Parameters: []tooldispatch.Parameter{
				{Name: "customer_id", Type: "integer", Description: "Customer ID to look up invoices for", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				customerID, err := intParam(params, "customer_id")
				if err != nil {
					return "", err
				}
				return db.Run(ctx, `
					SELECT * FROM Invoice
					WHERE CustomerId = ?
					ORDER BY InvoiceDate DESC`,
					true, customerID)
			},
		},
		{
			Name:        "get_invoices_sorted_by_unit_price",
			Description: "Look up all invoices for a customer, sorted by line item unit price from highest to lowest.",
			Parameters: []tooldispatch.Parameter{
				{Name: "customer_id", Type: "integer", Description: "Customer ID to look up invoices for", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				customerID, err := intParam(params, "customer_id")
				if err != nil {
					return "", err
				}
				return db.Run(ctx, `
					SELECT Invoice.*, InvoiceLine.UnitPrice
					FROM Invoice
					JOIN InvoiceLine ON Invoice.InvoiceId = InvoiceLine.InvoiceId
					WHERE Invoice.CustomerId = ?
					ORDER BY InvoiceLine.UnitPrice DESC`,
					true, customerID)
			},
		},
		{
			Name:        "get_employee_by_invoice_and_customer",
			Description: "Look up the support employee associated with an invoice for a customer.",
			Parameters: []tooldispatch.Parameter{
				{Name: "invoice_id", Type: "integer", Description: "Invoice ID", Required: true},
				{Name: "customer_id", Type: "integer", Description: "Customer ID the invoice belongs to", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				invoiceID, err := intParam(params, "invoice_id")
				if err != nil {
					return "", err
				}
				customerID, err := intParam(params, "customer_id")
				if err != nil {
					return "", err
				}

				out, err := db.Run(ctx, `
					SELECT Employee.FirstName, Employee.Title, Employee.Email
					FROM Employee
					JOIN Customer ON Customer.SupportRepId = Employee.EmployeeId
					JOIN Invoice ON Invoice.CustomerId = Customer.CustomerId
					WHERE Invoice.InvoiceId = ? AND Invoice.CustomerId = ?`,
					true, invoiceID, customerID)
				if err != nil {
					return "", err
				}
				if out == "" {
					return fmt.Sprintf(
						"No employee found for invoice ID %d and customer identifier %d.",
						invoiceID, customerID), nil
				}
				return out, nil
			},
		},
	}
}
