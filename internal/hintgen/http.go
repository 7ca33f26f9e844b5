package hintgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/playperu/reelquiz/internal/moviequiz"
)

// HTTPGenerator asks a remote hint service for a movie's four tiers.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

func NewHTTP(url string, timeout time.Duration) *HTTPGenerator {
	return &HTTPGenerator{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Industry string `json:"industry,omitempty"`
}

type generateResponse struct {
	Dialogue string `json:"dialogue"`
	Emoji    string `json:"emoji"`
	Trivia   string `json:"trivia"`
	Location string `json:"location"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, m moviequiz.Movie) (moviequiz.HintSet, error) {
	body, err := json.Marshal(generateRequest{
		Title:    m.Title,
		Year:     m.ReleaseYear,
		Industry: string(m.Industry),
	})
	if err != nil {
		return moviequiz.HintSet{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("calling hint service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return moviequiz.HintSet{}, fmt.Errorf("hint service returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return moviequiz.HintSet{}, fmt.Errorf("decoding hint response: %w", err)
	}
	return moviequiz.HintSet{
		Dialogue: out.Dialogue,
		Emoji:    out.Emoji,
		Trivia:   out.Trivia,
		Location: out.Location,
		Source:   moviequiz.HintSourceGenerated,
	}, nil
}

var _ Generator = (*HTTPGenerator)(nil)
