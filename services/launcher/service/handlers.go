package service

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/httputil"
	"github.com/R3E-Network/launch_layer/internal/solana"
	"github.com/R3E-Network/launch_layer/services/launcher/programs"
	"github.com/R3E-Network/launch_layer/services/launcher/store"
)

// maxRequestBytes bounds a request body; the image limit applies on top.
const maxRequestBytes = MaxImageBytes + 64<<10

// =============================================================================
// HTTP Handlers
// =============================================================================

// handleCreateToken serves a launch. A non-empty kind pins the program for
// the per-program routes.
func (s *Service) handleCreateToken(kind programs.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeCreateRequest(w, r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if kind != "" {
			if req.Program != "" && req.Program != kind {
				httputil.WriteError(w, errors.InvalidFormat("program", "does not match route "+string(kind)))
				return
			}
			req.Program = kind
		}

		res := s.CreateToken(r.Context(), *req)
		if !res.Success {
			httputil.WriteJSON(w, errors.HTTPStatus(res.Err()), res)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func (s *Service) handleGetToken(w http.ResponseWriter, r *http.Request) {
	mint := mux.Vars(r)["mint"]
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		httputil.WriteError(w, errors.InvalidFormat("mint", "not a valid address"))
		return
	}

	tok, err := s.Token(r.Context(), mint)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenResponse(tok))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   ServiceName,
		"version":   Version,
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"pinning":   s.pinner != nil,
		"persisted": s.repo != nil,
	})
}

// =============================================================================
// Request decoding
// =============================================================================

func decodeCreateRequest(w http.ResponseWriter, r *http.Request) (*CreateTokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r)
	}

	var body createTokenBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, errors.Validation("invalid request body: %v", err)
	}
	req := body.CreateTokenRequest
	if err := applyNumerics(&req, body.InitialPurchaseAmount, body.Decimals); err != nil {
		return nil, err
	}
	return &req, nil
}

// createTokenBody is the JSON wire form. Numeric fields arrive as numbers
// or numeric strings and are parsed once by applyNumerics.
type createTokenBody struct {
	CreateTokenRequest
	InitialPurchaseAmount wireNumber `json:"initialPurchaseAmount"`
	Decimals              wireNumber `json:"decimals"`
}

// wireNumber holds the text of a JSON number or numeric string.
type wireNumber string

func (n *wireNumber) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = s
	}
	*n = wireNumber(strings.TrimSpace(raw))
	return nil
}

// applyNumerics parses the wire numerics into req. Empty values are unset.
func applyNumerics(req *CreateTokenRequest, amount, decimals wireNumber) error {
	if amount != "" {
		n, err := strconv.ParseUint(string(amount), 10, 64)
		if err != nil {
			return errors.InvalidFormat("initialPurchaseAmount", "must be a non-negative integer")
		}
		req.InitialPurchaseAmount = n
	}
	if decimals != "" {
		n, err := strconv.ParseUint(string(decimals), 10, 8)
		if err != nil {
			return errors.InvalidFormat("decimals", "must be an integer")
		}
		d := uint8(n)
		req.Decimals = &d
	}
	return nil
}

func decodeMultipart(r *http.Request) (*CreateTokenRequest, error) {
	if err := r.ParseMultipartForm(maxRequestBytes); err != nil {
		return nil, errors.Validation("invalid multipart body: %v", err)
	}

	req := &CreateTokenRequest{
		Program:       programs.Kind(r.FormValue("program")),
		Name:          r.FormValue("name"),
		Symbol:        r.FormValue("symbol"),
		Description:   r.FormValue("description"),
		MetadataURI:   r.FormValue("metadataUri"),
		CreatorSecret: r.FormValue("creatorSecret"),
		ExternalURL:   r.FormValue("externalUrl"),
		Website:       r.FormValue("website"),
		Twitter:       r.FormValue("twitter"),
		Telegram:      r.FormValue("telegram"),
	}

	amount := wireNumber(strings.TrimSpace(r.FormValue("initialPurchaseAmount")))
	decimals := wireNumber(strings.TrimSpace(r.FormValue("decimals")))
	if err := applyNumerics(req, amount, decimals); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(r.FormValue("attributes")); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Attributes); err != nil {
			return nil, errors.InvalidFormat("attributes", "must be a JSON array of {trait_type, value}")
		}
	}

	file, header, err := r.FormFile("image")
	switch {
	case err == http.ErrMissingFile:
	case err != nil:
		return nil, errors.InvalidFormat("image", err.Error())
	default:
		defer file.Close()
		data, err := httputil.ReadAllStrict(file, MaxImageBytes)
		if err != nil {
			return nil, errors.InvalidFormat("image", err.Error())
		}
		req.Image = data
		req.ImageFilename = header.Filename
	}
	return req, nil
}

// =============================================================================
// Responses
// =============================================================================

// TokenResponse is the public view of a launch record.
type TokenResponse struct {
	Mint                    string          `json:"mintAddress"`
	Program                 string          `json:"program"`
	Name                    string          `json:"name"`
	Symbol                  string          `json:"symbol"`
	Creator                 string          `json:"creator"`
	MetadataURI             string          `json:"metadataUri"`
	ImageURI                string          `json:"imageUri,omitempty"`
	Description             string          `json:"description,omitempty"`
	Attributes              json.RawMessage `json:"attributes,omitempty"`
	CurveAddress            string          `json:"curveAddress"`
	CurveVaultAddress       string          `json:"curveVaultAddress"`
	MetadataAddress         string          `json:"metadataAddress"`
	InitialPurchaseLamports int64           `json:"initialPurchaseLamports"`
	Signature               string          `json:"signature,omitempty"`
	Status                  string          `json:"status"`
	Error                   string          `json:"error,omitempty"`
	CreatedAt               time.Time       `json:"createdAt"`
	UpdatedAt               time.Time       `json:"updatedAt"`
}

func tokenResponse(t *store.Token) TokenResponse {
	return TokenResponse{
		Mint:                    t.Mint,
		Program:                 t.Program,
		Name:                    t.Name,
		Symbol:                  t.Symbol,
		Creator:                 t.Creator,
		MetadataURI:             t.MetadataURI,
		ImageURI:                t.ImageURI,
		Description:             t.Description,
		Attributes:              t.Attributes,
		CurveAddress:            t.CurveAddress,
		CurveVaultAddress:       t.CurveVaultAddress,
		MetadataAddress:         t.MetadataAddress,
		InitialPurchaseLamports: t.InitialPurchaseLamports,
		Signature:               t.Signature,
		Status:                  string(t.Status),
		Error:                   t.Error,
		CreatedAt:               t.CreatedAt,
		UpdatedAt:               t.UpdatedAt,
	}
}
