package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/R3E-Network/launch_layer/internal/cache"
	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/pinning"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
)

// TokenMetadata is the off-ledger JSON document the metadata URI points at.
type TokenMetadata struct {
	Name                 string            `json:"name"`
	Symbol               string            `json:"symbol"`
	Description          string            `json:"description"`
	Image                string            `json:"image"`
	ExternalURL          string            `json:"external_url"`
	Attributes           []Attribute       `json:"attributes"`
	Extensions           map[string]string `json:"extensions,omitempty"`
	Properties           Properties        `json:"properties"`
	SellerFeeBasisPoints int               `json:"seller_fee_basis_points"`
}

// Properties lists the attached files and creator shares.
type Properties struct {
	Files    []File    `json:"files"`
	Category string    `json:"category"`
	Creators []Creator `json:"creators"`
}

// File is one attached file.
type File struct {
	URI  string `json:"uri"`
	Type string `json:"type"`
}

// Creator is a creator and its royalty share in percent.
type Creator struct {
	Address string `json:"address"`
	Share   int    `json:"share"`
}

// ResolvedMetadata is where a request's metadata ended up.
type ResolvedMetadata struct {
	URI      string
	ImageURI string
	Cached   bool
}

func buildMetadata(req *CreateTokenRequest, program, creator string, image pinning.Pinned) TokenMetadata {
	desc := req.Description
	if desc == "" {
		desc = fmt.Sprintf("A %s token", program)
	}
	attrs := req.Attributes
	if attrs == nil {
		attrs = []Attribute{}
	}
	var ext map[string]string
	if s := req.Socials(); len(s) > 0 {
		ext = s
	}
	return TokenMetadata{
		Name:        req.Name,
		Symbol:      req.Symbol,
		Description: desc,
		Image:       image.URI,
		ExternalURL: req.ExternalURL,
		Attributes:  attrs,
		Extensions:  ext,
		Properties: Properties{
			Files:    []File{{URI: image.URI, Type: image.ContentType}},
			Category: "image",
			Creators: []Creator{{Address: creator, Share: 100}},
		},
	}
}

// cachedMetadata is the cache value for a fingerprint.
type cachedMetadata struct {
	URI   string `json:"uri"`
	Image string `json:"image,omitempty"`
}

func (c cachedMetadata) encode() string {
	raw, _ := json.Marshal(c)
	return string(raw)
}

// decodeCachedMetadata also accepts a bare URI written by older entries.
func decodeCachedMetadata(v string) cachedMetadata {
	var c cachedMetadata
	if err := json.Unmarshal([]byte(v), &c); err != nil || c.URI == "" {
		return cachedMetadata{URI: v}
	}
	return c
}

// metadataFingerprint keys the cache on everything that shapes the
// uploaded document.
func metadataFingerprint(req *CreateTokenRequest, program, creator string) (string, error) {
	image, err := pinning.RawCID(req.Image)
	if err != nil {
		return "", err
	}
	attrs, err := json.Marshal(req.Attributes)
	if err != nil {
		return "", err
	}
	socials, err := json.Marshal(req.Socials())
	if err != nil {
		return "", err
	}
	return cache.Fingerprint(program, req.Name, req.Symbol, image.String(),
		req.Description, req.ExternalURL, string(attrs), string(socials), creator), nil
}

// resolveMetadata returns the URI to encode. A supplied URI is used as is;
// otherwise the image and document are pinned, reusing a cached URI for an
// identical request.
func (s *Service) resolveMetadata(ctx context.Context, req *CreateTokenRequest, program, creator string) (ResolvedMetadata, error) {
	if req.MetadataURI != "" {
		return ResolvedMetadata{URI: req.MetadataURI}, nil
	}
	if s.pinner == nil {
		return ResolvedMetadata{}, errors.Validation("image upload is not configured; supply metadataUri")
	}
	if _, err := pinning.DetectImage(req.Image); err != nil {
		return ResolvedMetadata{}, err
	}

	key, err := metadataFingerprint(req, program, creator)
	if err != nil {
		return ResolvedMetadata{}, errors.Internal("fingerprint metadata", err)
	}
	if v, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Warn(ctx, "metadata cache lookup failed", map[string]interface{}{"error": err.Error()})
	} else if ok {
		hit := decodeCachedMetadata(v)
		return ResolvedMetadata{URI: hit.URI, ImageURI: hit.Image, Cached: true}, nil
	}

	filename := req.ImageFilename
	if filename == "" {
		filename = req.Symbol
	}
	image, err := s.pinner.UploadImage(ctx, req.Image, filename)
	if err != nil {
		return ResolvedMetadata{}, fmt.Errorf("upload image: %w", err)
	}

	doc := buildMetadata(req, program, creator, image)
	pinned, err := s.pinner.UploadJSON(ctx, req.Symbol+"-metadata", doc)
	if err != nil {
		return ResolvedMetadata{}, fmt.Errorf("upload metadata: %w", err)
	}
	if len(pinned.URI) > programs.MaxURILength {
		return ResolvedMetadata{}, errors.InvalidFormat("metadataUri", fmt.Sprintf("pinned URI exceeds %d bytes", programs.MaxURILength))
	}

	entry := cachedMetadata{URI: pinned.URI, Image: image.URI}
	if v, err := s.cache.PutIfAbsent(ctx, key, entry.encode()); err != nil {
		s.logger.Warn(ctx, "metadata cache insert failed", map[string]interface{}{"error": err.Error()})
	} else {
		// A concurrent identical request may have won the insert.
		entry = decodeCachedMetadata(v)
	}
	s.logger.Info(ctx, "metadata pinned", map[string]interface{}{
		"metadata_uri": entry.URI,
		"image_uri":    entry.Image,
	})
	return ResolvedMetadata{URI: entry.URI, ImageURI: entry.Image}, nil
}
