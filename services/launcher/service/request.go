package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/solana"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
)

// Request limits.
const (
	MaxDescriptionLength = 200
	MaxImageBytes        = 1_000_000
	MaxAttributes        = 32
	DefaultDecimals      = 6
	MaxDecimals          = 9
)

var urlPattern = regexp.MustCompile(`^https?://`)

// Attribute is one metadata trait.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// CreateTokenRequest is a launch request as parsed from the HTTP layer.
type CreateTokenRequest struct {
	Program     programs.Kind `json:"program,omitempty"`
	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	Description string        `json:"description,omitempty"`
	MetadataURI string        `json:"metadataUri,omitempty"`
	// CreatorSecret is the base58 64-byte creator secret key. The creator
	// pays for and signs the launch.
	CreatorSecret string      `json:"creatorSecret"`
	ExternalURL   string      `json:"externalUrl,omitempty"`
	Website       string      `json:"website,omitempty"`
	Twitter       string      `json:"twitter,omitempty"`
	Telegram      string      `json:"telegram,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`
	Decimals      *uint8      `json:"decimals,omitempty"`

	// InitialPurchaseAmount is the lamports spent buying the new asset in
	// the launch transaction. Zero skips the purchase.
	InitialPurchaseAmount uint64 `json:"initialPurchaseAmount,omitempty"`

	// Image is the raw image to pin when MetadataURI is empty.
	Image         []byte `json:"image,omitempty"`
	ImageFilename string `json:"imageFilename,omitempty"`
}

// Validate checks field shapes and limits. It touches no network.
func (r *CreateTokenRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Symbol = strings.TrimSpace(r.Symbol)
	r.MetadataURI = strings.TrimSpace(r.MetadataURI)

	switch {
	case r.Name == "":
		return errors.InvalidFormat("name", "required")
	case r.Symbol == "":
		return errors.InvalidFormat("symbol", "required")
	case r.CreatorSecret == "":
		return errors.InvalidFormat("creatorSecret", "required")
	case len(r.Name) > programs.MaxNameLength:
		return errors.InvalidFormat("name", fmt.Sprintf("must be %d bytes or less", programs.MaxNameLength))
	case len(r.Symbol) > programs.MaxSymbolLength:
		return errors.InvalidFormat("symbol", fmt.Sprintf("must be %d bytes or less", programs.MaxSymbolLength))
	case len(r.MetadataURI) > programs.MaxURILength:
		return errors.InvalidFormat("metadataUri", fmt.Sprintf("must be %d bytes or less", programs.MaxURILength))
	case len(r.Description) > MaxDescriptionLength:
		return errors.InvalidFormat("description", fmt.Sprintf("must be %d bytes or less", MaxDescriptionLength))
	}

	if r.MetadataURI == "" && len(r.Image) == 0 {
		return errors.Validation("either metadataUri or an image is required")
	}
	if r.MetadataURI != "" && len(r.Image) > 0 {
		return errors.Validation("metadataUri and image are mutually exclusive")
	}
	if len(r.Image) > MaxImageBytes {
		return errors.InvalidFormat("image", fmt.Sprintf("must be %d bytes or less", MaxImageBytes))
	}

	for _, u := range []struct{ field, value string }{
		{"externalUrl", r.ExternalURL},
		{"website", r.Website},
		{"twitter", r.Twitter},
		{"telegram", r.Telegram},
	} {
		if u.value != "" && !urlPattern.MatchString(u.value) {
			return errors.InvalidFormat(u.field, "must be a valid URL")
		}
	}

	if len(r.Attributes) > MaxAttributes {
		return errors.InvalidFormat("attributes", fmt.Sprintf("at most %d entries", MaxAttributes))
	}
	for _, a := range r.Attributes {
		if strings.TrimSpace(a.TraitType) == "" {
			return errors.InvalidFormat("attributes", "trait_type is required")
		}
	}

	if r.Decimals != nil && *r.Decimals > MaxDecimals {
		return errors.InvalidFormat("decimals", fmt.Sprintf("must be between 0 and %d", MaxDecimals))
	}
	return nil
}

// Creator decodes the creator keypair.
func (r *CreateTokenRequest) Creator() (*solana.Keypair, error) {
	kp, err := solana.KeypairFromBase58(r.CreatorSecret)
	if err != nil {
		return nil, errors.InvalidFormat("creatorSecret", err.Error())
	}
	return kp, nil
}

// TokenDecimals returns the requested decimals or the default.
func (r *CreateTokenRequest) TokenDecimals() uint8 {
	if r.Decimals == nil {
		return DefaultDecimals
	}
	return *r.Decimals
}

// Socials returns the non-empty social links.
func (r *CreateTokenRequest) Socials() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{"website": r.Website, "twitter": r.Twitter, "telegram": r.Telegram} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Result is the uniform CreateToken response.
type Result struct {
	Success     bool   `json:"success"`
	Signature   string `json:"signature,omitempty"`
	MintAddress string `json:"mintAddress,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`

	err error
}

// Err returns the classified failure behind an unsuccessful result.
func (r Result) Err() error {
	return r.err
}

func failure(err error) Result {
	res := Result{Success: false, Error: err.Error(), err: err}
	if se := errors.GetServiceError(err); se != nil {
		res.Code = string(se.Code)
	}
	return res
}
