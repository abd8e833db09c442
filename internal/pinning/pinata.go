package pinning

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/R3E-Network/launch_layer/internal/errors"
	"github.com/R3E-Network/launch_layer/internal/httputil"
)

// PinataConfig configures the Pinata backend.
type PinataConfig struct {
	APIURL  string
	JWT     string
	Gateway string
	Timeout time.Duration
}

// Pinata pins content through the Pinata pinning API.
type Pinata struct {
	client  *httputil.ServiceClient
	gateway string
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	PinSize  int64  `json:"PinSize"`
}

// NewPinata creates a Pinata backend.
func NewPinata(cfg PinataConfig) (*Pinata, error) {
	if cfg.JWT == "" {
		return nil, fmt.Errorf("pinata: JWT required")
	}
	if cfg.Gateway == "" {
		return nil, fmt.Errorf("pinata: gateway required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.pinata.cloud"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Pinata{
		client: httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL:     cfg.APIURL,
			BearerToken: cfg.JWT,
			Timeout:     timeout,
		}),
		gateway: cfg.Gateway,
	}, nil
}

// UploadImage pins an image file.
func (p *Pinata) UploadImage(ctx context.Context, data []byte, filename string) (Pinned, error) {
	contentType, err := DetectImage(data)
	if err != nil {
		return Pinned{}, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return Pinned{}, errors.Internal("build pin request", err)
	}
	if _, err := part.Write(data); err != nil {
		return Pinned{}, errors.Internal("build pin request", err)
	}
	if err := mw.WriteField("pinataMetadata", fmt.Sprintf(`{"name":%q}`, filename)); err != nil {
		return Pinned{}, errors.Internal("build pin request", err)
	}
	if err := mw.Close(); err != nil {
		return Pinned{}, errors.Internal("build pin request", err)
	}

	resp, err := p.client.DoRaw(ctx, http.MethodPost, "/pinning/pinFileToIPFS", mw.FormDataContentType(), body.Bytes())
	if err != nil {
		return Pinned{}, fmt.Errorf("pin image: %w", err)
	}
	pinned, err := p.decode(resp)
	if err != nil {
		return Pinned{}, fmt.Errorf("pin image: %w", err)
	}
	pinned.ContentType = contentType
	return pinned, nil
}

// UploadJSON pins a JSON document.
func (p *Pinata) UploadJSON(ctx context.Context, name string, v interface{}) (Pinned, error) {
	payload := map[string]interface{}{
		"pinataContent":  v,
		"pinataMetadata": map[string]string{"name": name},
	}
	resp, err := p.client.Post(ctx, "/pinning/pinJSONToIPFS", payload)
	if err != nil {
		return Pinned{}, fmt.Errorf("pin metadata: %w", err)
	}
	pinned, err := p.decode(resp)
	if err != nil {
		return Pinned{}, fmt.Errorf("pin metadata: %w", err)
	}
	pinned.ContentType = "application/json"
	return pinned, nil
}

func (p *Pinata) decode(resp *http.Response) (Pinned, error) {
	var out pinResponse
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return Pinned{}, err
	}
	if out.IpfsHash == "" {
		return Pinned{}, fmt.Errorf("response carried no content id")
	}
	if err := ValidateCID(out.IpfsHash); err != nil {
		return Pinned{}, err
	}
	return Pinned{CID: out.IpfsHash, URI: GatewayURI(p.gateway, out.IpfsHash)}, nil
}
