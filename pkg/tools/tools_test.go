package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedesk/tunedesk/internal/store"
	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

func newToolFixture(t *testing.T) *tooldispatch.Dispatcher {
	t.Helper()

	db, err := store.Open(store.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Bootstrap(store.SampleSchema+store.SampleData))

	d := tooldispatch.New(tooldispatch.Config{Logger: zerolog.Nop()})
	require.NoError(t, RegisterAll(d, db))
	return d
}

func invoke(t *testing.T, d *tooldispatch.Dispatcher, name string, params map[string]interface{}) tooldispatch.Result {
	t.Helper()
	return d.Invoke(context.Background(), tooldispatch.Invocation{
		ID:         "call_test",
		Name:       name,
		Parameters: params,
	})
}

func TestRegisterAll(t *testing.T) {
	d := newToolFixture(t)

	for _, name := range append(MusicToolNames(), InvoiceToolNames()...) {
		assert.NotNil(t, d.Get(name), name)
	}
	assert.Len(t, d.List(), 7)
}

func TestGetAlbumsByArtist(t *testing.T) {
	d := newToolFixture(t)

	t.Run("should list albums for a matching artist", func(t *testing.T) {
		res := invoke(t, d, "get_albums_by_artist", map[string]interface{}{"artist": "U2"})
		require.False(t, res.IsError, res.Output)
		assert.Contains(t, res.Output, "'Title': 'Achtung Baby'")
		assert.Contains(t, res.Output, "'Title': 'War'")
		assert.Contains(t, res.Output, "'ArtistName': 'U2'")
	})

	t.Run("should match partial artist names", func(t *testing.T) {
		res := invoke(t, d, "get_albums_by_artist", map[string]interface{}{"artist": "rolling"})
		require.False(t, res.IsError, res.Output)
		assert.Contains(t, res.Output, "Sticky Fingers")
	})

	t.Run("should return empty output for unknown artist", func(t *testing.T) {
		res := invoke(t, d, "get_albums_by_artist", map[string]interface{}{"artist": "Nobody"})
		require.False(t, res.IsError)
		assert.Empty(t, res.Output)
	})

	t.Run("should not treat a quote in the artist name as SQL", func(t *testing.T) {
		res := invoke(t, d, "get_albums_by_artist", map[string]interface{}{"artist": "O'Brien; DROP TABLE Album"})
		require.False(t, res.IsError)
		assert.Empty(t, res.Output)

		// Album table must still be intact.
		res = invoke(t, d, "get_albums_by_artist", map[string]interface{}{"artist": "U2"})
		assert.Contains(t, res.Output, "Achtung Baby")
	})
}

func TestGetTracksByArtist(t *testing.T) {
	d := newToolFixture(t)

	res := invoke(t, d, "get_tracks_by_artist", map[string]interface{}{"artist": "U2"})
	require.False(t, res.IsError, res.Output)
	assert.Contains(t, res.Output, "'SongName': 'One'")
	assert.Contains(t, res.Output, "'SongName': 'Sunday Bloody Sunday'")
	assert.NotContains(t, res.Output, "Brown Sugar")
}

func TestGetSongsByGenre(t *testing.T) {
	d := newToolFixture(t)

	t.Run("should sample one song per artist in the genre", func(t *testing.T) {
		res := invoke(t, d, "get_songs_by_genre", map[string]interface{}{"genre": "rock"})
		require.False(t, res.IsError, res.Output)
		assert.Contains(t, res.Output, "'Artist': 'U2'")
		assert.Contains(t, res.Output, "'Artist': 'The Rolling Stones'")
		assert.NotContains(t, res.Output, "Miles Davis")
	})

	t.Run("should report unknown genres in plain text", func(t *testing.T) {
		res := invoke(t, d, "get_songs_by_genre", map[string]interface{}{"genre": "polka"})
		require.False(t, res.IsError)
		assert.Equal(t, "No songs found for the genre: polka", res.Output)
	})
}

func TestCheckForSongs(t *testing.T) {
	d := newToolFixture(t)

	res := invoke(t, d, "check_for_songs", map[string]interface{}{"song_title": "So What"})
	require.False(t, res.IsError, res.Output)
	assert.Contains(t, res.Output, "'Name': 'So What'")
}

func TestGetInvoicesByCustomerSortedByDate(t *testing.T) {
	d := newToolFixture(t)

	res := invoke(t, d, "get_invoices_by_customer_sorted_by_date",
		map[string]interface{}{"customer_id": float64(1)})
	require.False(t, res.IsError, res.Output)

	// Newest first: invoice 2 (June) before invoice 1 (January).
	june := "'InvoiceId': 2"
	january := "'InvoiceId': 1"
	assert.Contains(t, res.Output, june)
	assert.Contains(t, res.Output, january)
	assert.Less(t, strings.Index(res.Output, june), strings.Index(res.Output, january))
	assert.NotContains(t, res.Output, "'InvoiceId': 3")
}

func TestGetInvoicesSortedByUnitPrice(t *testing.T) {
	d := newToolFixture(t)

	res := invoke(t, d, "get_invoices_sorted_by_unit_price",
		map[string]interface{}{"customer_id": float64(1)})
	require.False(t, res.IsError, res.Output)

	pricier := "'UnitPrice': 1.29"
	cheaper := "'UnitPrice': 0.99"
	assert.Contains(t, res.Output, pricier)
	assert.Contains(t, res.Output, cheaper)
	assert.Less(t, strings.Index(res.Output, pricier), strings.Index(res.Output, cheaper))
}

func TestGetEmployeeByInvoiceAndCustomer(t *testing.T) {
	d := newToolFixture(t)

	t.Run("should return the support rep for a valid invoice", func(t *testing.T) {
		res := invoke(t, d, "get_employee_by_invoice_and_customer",
			map[string]interface{}{"invoice_id": float64(1), "customer_id": float64(1)})
		require.False(t, res.IsError, res.Output)
		assert.Contains(t, res.Output, "'FirstName': 'Jane'")
		assert.Contains(t, res.Output, "'Title': 'Sales Support Agent'")
	})

	t.Run("should report a mismatched pair in plain text", func(t *testing.T) {
		res := invoke(t, d, "get_employee_by_invoice_and_customer",
			map[string]interface{}{"invoice_id": float64(1), "customer_id": float64(2)})
		require.False(t, res.IsError)
		assert.Equal(t,
			"No employee found for invoice ID 1 and customer identifier 2.",
			res.Output)
	})
}

func TestIntParam(t *testing.T) {
	t.Run("should accept whole float64 values", func(t *testing.T) {
		v, err := intParam(map[string]interface{}{"id": float64(7)}, "id")
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})

	t.Run("should reject fractional values", func(t *testing.T) {
		_, err := intParam(map[string]interface{}{"id": 7.5}, "id")
		assert.Error(t, err)
	})

	t.Run("should reject missing values", func(t *testing.T) {
		_, err := intParam(map[string]interface{}{}, "id")
		assert.Error(t, err)
	})
}
