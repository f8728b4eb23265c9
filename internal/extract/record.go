package extract

import "github.com/hyperifyio/gocollect/internal/source"

// ImageRef tracks one embedded image through the rehosting lifecycle. It is
// created with only OriginalURL, gains LocalPath after download and
// HostedURL after upload. An image whose download or upload fails is
// dropped from the record's sequence; the run itself does not fail.
type ImageRef struct {
	OriginalURL string
	LocalPath   string
	HostedURL   string
}

// ContentRecord is the output of an extraction strategy. After extraction
// only the image-rewrite step mutates it, replacing Body and each
// ImageRef's hosted URL in place.
type ContentRecord struct {
	Title       string
	Author      string
	PublishedAt string
	// Body is markdown. Image references appear inline with their
	// original URLs until the rehosting step rewrites them.
	Body   string
	Images []ImageRef
	Kind   source.Kind
}
