// Package imagegen produces images from a text prompt for placement on a design.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"design-studio/internal/dataurl"
	"design-studio/internal/document"

	"google.golang.org/genai"
)

var ErrNoImage = errors.New("imagegen: model returned no image")

// aspect ratios accepted by the Imagen models
var supportedRatios = []struct {
	name  string
	value float64
}{
	{"1:1", 1},
	{"3:4", 3.0 / 4.0},
	{"4:3", 4.0 / 3.0},
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
}

// GeminiGenerator generates images through the Gemini API.
type GeminiGenerator struct {
	client  *genai.Client
	modelID string
	timeout time.Duration
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelID string) (*GeminiGenerator, error) {
	if apiKey == "" || modelID == "" {
		return nil, fmt.Errorf("imagegen: api key and model must be set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &GeminiGenerator{client: client, modelID: modelID, timeout: 60 * time.Second}, nil
}

// Generate returns one image for prompt as a data URL. size is the design's "WxH" and picks
// the closest supported aspect ratio.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt, size string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Models.GenerateImages(ctx, g.modelID, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    AspectRatio(size),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return "", fmt.Errorf("gemini GenerateImages: %w", err)
	}
	if resp == nil {
		return "", ErrNoImage
	}
	for _, img := range resp.GeneratedImages {
		if img == nil || img.Image == nil || len(img.Image.ImageBytes) == 0 {
			continue
		}
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return dataurl.Encode(mime, img.Image.ImageBytes), nil
	}
	return "", ErrNoImage
}

// AspectRatio maps a "WxH" size to the nearest supported ratio, "1:1" when size is invalid.
func AspectRatio(size string) string {
	w, h, err := document.ParseSize(size)
	if err != nil {
		return "1:1"
	}
	r := float64(w) / float64(h)
	best, dist := "1:1", math.Inf(1)
	for _, s := range supportedRatios {
		if d := math.Abs(math.Log(r / s.value)); d < dist {
			best, dist = s.name, d
		}
	}
	return best
}
