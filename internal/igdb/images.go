package igdb

import (
	"fmt"
	"strings"
)

// DefaultImageBaseURL is the provider's image host and path
const DefaultImageBaseURL = "https://images.igdb.com/igdb/image/upload"

// ImageSize is one of the provider's fixed image presets
type ImageSize string

const (
	SizeThumb          ImageSize = "thumb"
	SizeCoverSmall     ImageSize = "cover_small"
	SizeCoverBig       ImageSize = "cover_big"
	SizeScreenshotMed  ImageSize = "screenshot_med"
	SizeScreenshotBig  ImageSize = "screenshot_big"
	SizeScreenshotHuge ImageSize = "screenshot_huge"
	Size720p           ImageSize = "720p"
	Size1080p          ImageSize = "1080p"
)

// Valid reports whether s is a known preset
func (s ImageSize) Valid() bool {
	switch s {
	case SizeThumb, SizeCoverSmall, SizeCoverBig, SizeScreenshotMed,
		SizeScreenshotBig, SizeScreenshotHuge, Size720p, Size1080p:
		return true
	}
	return false
}

// Images builds image URLs
type Images struct {
	baseURL string
}

// NewImages creates an image URL builder; an empty base uses the provider default
func NewImages(baseURL string) Images {
	if baseURL == "" {
		baseURL = DefaultImageBaseURL
	}
	return Images{baseURL: strings.TrimRight(baseURL, "/")}
}

// URL returns the image URL for imageID at size, defaulting to cover_big.
// An empty image id yields an empty URL.
func (i Images) URL(imageID string, size ImageSize) string {
	if imageID == "" {
		return ""
	}
	if !size.Valid() {
		size = SizeCoverBig
	}
	return fmt.Sprintf("%s/t_%s/%s.jpg", i.baseURL, size, imageID)
}
