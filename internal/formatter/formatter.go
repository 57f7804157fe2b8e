// package formatter renders song lists and user documents as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/tunedex/internal/models"
	"github.com/desertthunder/tunedex/internal/shared"
)

// Format selects an output encoding.
type Format string

const (
	JSON     Format = "json"
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// ParseFormat accepts json, csv, markdown (or md) and text (or txt). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return Text, nil
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	default:
		return "", fmt.Errorf("%w: format %q (want json, csv, markdown or text)", shared.ErrInvalidArgument, s)
	}
}

// SongList is a titled, ordered list of songs.
type SongList struct {
	Title string           `json:"title"`
	Songs []models.SongDoc `json:"songs"`
}

// Render encodes list in the given format.
func Render(list SongList, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return SongsToJSON(list)
	case CSV:
		return SongsToCSV(list)
	case Markdown:
		return SongsToMarkdown(list)
	case Text, "":
		return SongsToText(list)
	default:
		return nil, fmt.Errorf("%w: format %q", shared.ErrInvalidArgument, f)
	}
}

// Write renders list to w.
func Write(w io.Writer, list SongList, f Format) error {
	data, err := Render(list, f)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteFile renders list to the file at path, replacing it.
func WriteFile(path string, list SongList, f Format) error {
	data, err := Render(list, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// SongsToJSON encodes the list as indented JSON. A nil song slice encodes as [].
func SongsToJSON(list SongList) ([]byte, error) {
	if list.Songs == nil {
		list.Songs = []models.SongDoc{}
	}
	return shared.MarshalJSON(list, true)
}

// SongsToCSV converts songs to CSV with columns: ID, Title, Artist, Album, Genre, Rating, Recommendations
func SongsToCSV(list SongList) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Genre", "Rating", "Recommendations"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range list.Songs {
		record := []string{
			strconv.FormatInt(s.SongID, 10),
			s.Title,
			s.ArtistName,
			s.AlbumTitle,
			s.GenreName,
			formatRating(s.Rating),
			strconv.Itoa(s.RecommendationCount),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// SongsToMarkdown converts songs to a Markdown document with a numbered list
func SongsToMarkdown(list SongList) ([]byte, error) {
	var buf bytes.Buffer

	if list.Title != "" {
		buf.WriteString(fmt.Sprintf("# %s\n\n", list.Title))
	}
	buf.WriteString(fmt.Sprintf("**Songs**: %d\n\n", len(list.Songs)))

	for i, s := range list.Songs {
		albumPart := ""
		if s.AlbumTitle != "" {
			albumPart = fmt.Sprintf(" (%s)", s.AlbumTitle)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s, rated %s, shared %d]\n",
			i+1, s.ArtistName, s.Title, albumPart, s.GenreName, formatRating(s.Rating), s.RecommendationCount))
	}

	return buf.Bytes(), nil
}

// SongsToText converts songs to plain text
func SongsToText(list SongList) ([]byte, error) {
	var buf bytes.Buffer

	if list.Title != "" {
		buf.WriteString(fmt.Sprintf("%s\n", list.Title))
	}
	if len(list.Songs) == 0 {
		buf.WriteString("No songs.\n")
		return buf.Bytes(), nil
	}
	buf.WriteString(fmt.Sprintf("Songs: %d\n\n", len(list.Songs)))

	for i, s := range list.Songs {
		buf.WriteString(fmt.Sprintf("%d. %s - %s (#%d)\n", i+1, s.ArtistName, s.Title, s.SongID))
	}

	return buf.Bytes(), nil
}

// RenderUser encodes a user document. CSV emits one row per playlist entry.
func RenderUser(doc *models.UserDoc, f Format) ([]byte, error) {
	switch f {
	case JSON:
		return shared.MarshalJSON(doc, true)
	case CSV:
		return userToCSV(doc)
	case Markdown:
		return userToMarkdown(doc), nil
	case Text, "":
		return userToText(doc), nil
	default:
		return nil, fmt.Errorf("%w: format %q", shared.ErrInvalidArgument, f)
	}
}

func userToCSV(doc *models.UserDoc) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Playlist", "Visibility", "Position", "SongID", "Title", "Artist", "Album", "Genre"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, p := range doc.Playlists {
		for i, s := range p.Songs {
			record := []string{
				p.Name, string(p.Visibility), strconv.Itoa(i + 1),
				strconv.FormatInt(s.SongID, 10), s.Title, s.ArtistName, s.AlbumTitle, s.GenreName,
			}
			if err := writer.Write(record); err != nil {
				return nil, fmt.Errorf("failed to write CSV record: %w", err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func userToMarkdown(doc *models.UserDoc) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("# %s\n\n", doc.Username))
	buf.WriteString(fmt.Sprintf("**Playlists**: %d\n", len(doc.Playlists)))

	for _, p := range doc.Playlists {
		buf.WriteString(fmt.Sprintf("\n## %s (%s)\n\n", p.Name, p.Visibility))
		if len(p.Songs) == 0 {
			buf.WriteString("_empty_\n")
		}
		for i, s := range p.Songs {
			buf.WriteString(fmt.Sprintf("%d. %s - %s (%s) [%s]\n", i+1, s.ArtistName, s.Title, s.AlbumTitle, s.GenreName))
		}
	}
	return buf.Bytes()
}

func userToText(doc *models.UserDoc) []byte {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("User: %s (#%d)\n", doc.Username, doc.UserID))
	buf.WriteString(fmt.Sprintf("Playlists: %d\n", len(doc.Playlists)))

	for _, p := range doc.Playlists {
		buf.WriteString(fmt.Sprintf("\n%s [%s] %d songs\n", p.Name, p.Visibility, len(p.Songs)))
		for i, s := range p.Songs {
			buf.WriteString(fmt.Sprintf("  %d. %s - %s\n", i+1, s.ArtistName, s.Title))
		}
	}
	return buf.Bytes()
}

func formatRating(r float64) string {
	return strconv.FormatFloat(r, 'f', 2, 64)
}
