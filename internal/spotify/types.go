package spotify

import "strings"

// Track is the subset of the Spotify track object the grid uses.
type Track struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Artists      []Artist          `json:"artists"`
	Album        Album             `json:"album"`
	ExternalURLs map[string]string `json:"external_urls"`
}

// Artist is a track contributor.
type Artist struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Album is the collection a track belongs to.
type Album struct {
	Name   string  `json:"name"`
	Images []Image `json:"images"` // Ordered by descending resolution
}

// Image is one rendition of album art.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// ArtistNames joins the artist names with ", ".
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// CoverArtURL returns the highest resolution album image, if any.
func (t Track) CoverArtURL() (string, bool) {
	if len(t.Album.Images) == 0 {
		return "", false
	}
	return t.Album.Images[0].URL, true
}

// ExternalURL returns the public Spotify link of the track.
func (t Track) ExternalURL() string {
	return t.ExternalURLs["spotify"]
}

type tracksResponse struct {
	Tracks []*Track `json:"tracks"`
}

type searchResponse struct {
	Tracks struct {
		Items []Track `json:"items"`
	} `json:"tracks"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
