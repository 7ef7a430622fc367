package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

func musicDefinitions(db Database) []tooldispatch.Definition {
	return []tooldispatch.Definition{
		{
			Name:        "get_albums_by_artist",
			Description: "Get albums by an artist.",
			Parameters: []tooldispatch.Parameter{
				{Name: "artist", Type: "string", Description: "Artist name to search for", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				artist, err := stringParam(params, "artist")
				if err != nil {
					return "", err
				}
				return db.Run(ctx, `
					SELECT Album.Title, Artist.Name AS ArtistName
					FROM Album
					LEFT JOIN Artist ON Album.ArtistId = Artist.ArtistId
					WHERE Artist.Name LIKE ?`,
					true, "%"+artist+"%")
			},
		},
		{
			Name:        "get_tracks_by_artist",
			Description: "Get songs by an artist (or similar artists).",
			Parameters: []tooldispatch.Parameter{
				{Name: "artist", Type: "string", Description: "Artist name to search for", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				artist, err := stringParam(params, "artist")
				if err != nil {
					return "", err
				}
				return db.Run(ctx, `
					SELECT Track.Name AS SongName, Artist.Name AS ArtistName
					FROM Album
					LEFT JOIN Artist ON Album.ArtistId = Artist.ArtistId
					LEFT JOIN Track ON Track.AlbumId = Album.AlbumId
					WHERE Artist.Name LIKE ?`,
					true, "%"+artist+"%")
			},
		},
		{
			Name:        "get_songs_by_genre",
			Description: "Fetch songs from the database that match a specific genre.",
			Parameters: []tooldispatch.Parameter{
				{Name: "genre", Type: "string", Description: "Genre to search songs for", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				genre, err := stringParam(params, "genre")
				if err != nil {
					return "", err
				}
				return songsByGenre(ctx, db, genre)
			},
		},
		{
			Name:        "check_for_songs",
			Description: "Check if a song exists by its exact name.",
			Parameters: []tooldispatch.Parameter{
				{Name: "song_title", Type: "string", Description: "Song title to look up", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				title, err := stringParam(params, "song_title")
				if err != nil {
					return "", err
				}
				return db.Run(ctx, `
					SELECT * FROM Track WHERE Name LIKE ? LIMIT 20`,
					true, "%"+title+"%")
			},
		},
	}
}

// songsByGenre resolves matching genre ids first, then samples one
// song per artist in those genres.
func songsByGenre(ctx context.Context, db Database, genre string) (string, error) {
	ids, err := db.QueryIDs(ctx,
		"SELECT GenreId FROM Genre WHERE Name LIKE ?", "%"+genre+"%")
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return fmt.Sprintf("No songs found for the genre: %s", genre), nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT Track.Name AS Song, Artist.Name AS Artist
		FROM Track
		LEFT JOIN Album ON Track.AlbumId = Album.AlbumId
		LEFT JOIN Artist ON Album.ArtistId = Artist.ArtistId
		WHERE Track.GenreId IN (%s)
		GROUP BY Artist.Name
		LIMIT 10`, strings.Join(placeholders, ", "))

	songs, err := db.Run(ctx, query, true, args...)
	if err != nil {
		return "", err
	}
	if songs == "" {
		return fmt.Sprintf("No songs found for the genre: %s", genre), nil
	}
	return songs, nil
}
