// Package pinning stores token images and metadata documents under content
// identifiers and returns the public URIs they resolve at.
package pinning

import (
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/R3E-Network/launch_layer/internal/errors"
)

// Pinned is a stored object.
type Pinned struct {
	CID         string
	URI         string
	ContentType string
}

// Service uploads content and returns where it can be fetched.
type Service interface {
	UploadImage(ctx context.Context, data []byte, filename string) (Pinned, error)
	UploadJSON(ctx context.Context, name string, v interface{}) (Pinned, error)
}

// GatewayURI builds https://{gateway}/ipfs/{cid}. The gateway may be given
// with or without a scheme.
func GatewayURI(gateway, id string) string {
	host := strings.TrimSuffix(gateway, "/")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return fmt.Sprintf("https://%s/ipfs/%s", host, id)
}

// ValidateCID reports whether s parses as a v0 or v1 content identifier.
func ValidateCID(s string) error {
	if _, err := cid.Decode(s); err != nil {
		return fmt.Errorf("invalid content id %q: %w", s, err)
	}
	return nil
}

// RawCID returns the CIDv1 (raw codec, sha2-256) of data.
func RawCID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// DetectImage sniffs data and rejects anything that is not an image.
func DetectImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.InvalidFormat("image", "empty file")
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", errors.InvalidFormat("image", "unsupported content type "+mt.String())
	}
	return mt.String(), nil
}
