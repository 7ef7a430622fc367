// Package tools holds the catalog and invoice tools exposed to the
// sub-agents. Each tool wraps a fixed read-only query against the
// music store database and renders the rows as text for the model.
package tools

import (
	"context"
	"fmt"
	"math"

	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

// Database is the query surface the tools need. Implemented by
// internal/store.Store.
type Database interface {
	Run(ctx context.Context, query string, includeColumns bool, args ...interface{}) (string, error)
	QueryIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error)
}

// MusicToolNames lists the tools available to the music catalog agent.
func MusicToolNames() []string {
	return []string{
		"get_albums_by_artist",
		"get_tracks_by_artist",
		"get_songs_by_genre",
		"check_for_songs",
	}
}

// InvoiceToolNames lists the tools available to the invoice agent.
func InvoiceToolNames() []string {
	return []string{
		"get_invoices_by_customer_sorted_by_date",
		"get_invoices_sorted_by_unit_price",
		"get_employee_by_invoice_and_customer",
	}
}

// RegisterAll registers every catalog and invoice tool on the
// dispatcher, bound to db.
func RegisterAll(d *tooldispatch.Dispatcher, db Database) error {
	defs := []tooldispatch.Definition{}
	defs = append(defs, musicDefinitions(db)...)
	defs = append(defs, invoiceDefinitions(db)...)

	for _, def := range defs {
		if err := d.Register(def); err != nil {
			return fmt.Errorf("failed to register %s: %w", def.Name, err)
		}
	}
	return nil
}

// stringParam reads a required string parameter.
func stringParam(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing parameter: %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %s must be a string", name)
	}
	return s, nil
}

// intParam reads a required integer parameter. JSON decoding hands
// numbers over as float64, so both forms are accepted.
func intParam(params map[string]interface{}, name string) (int64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing parameter: %s", name)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("parameter %s must be an integer", name)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("parameter %s must be an integer", name)
	}
}
