package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/compose-network/verifier/x/aligned"
)

// ProofRequest is the body of POST /verify.
type ProofRequest struct {
	Proof           aligned.Bytes `json:"proof"`
	VerificationKey aligned.Bytes `json:"verification_key,omitempty"`
	PublicInput     aligned.Bytes `json:"pub_input,omitempty"`
	VMProgramCode   aligned.Bytes `json:"vm_program_code,omitempty"`
}

// Response is the gateway's answer. StatusCode carries the HTTP status so
// callers can tell infrastructure failures (5xx) from rejections (200).
type Response struct {
	StatusCode int `json:"-"`

	Success         bool    `json:"success"`
	Error           *string `json:"error"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
	SubmissionID    string  `json:"submission_id,omitempty"`
	BatchMerkleRoot string  `json:"batch_merkle_root,omitempty"`
	IndexInBatch    *uint64 `json:"index_in_batch,omitempty"`
	OnchainVerified bool    `json:"onchain_verified,omitempty"`
}

// ErrorMessage returns the error text, or "" on success.
func (r Response) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Identity is the body of GET /identity.
type Identity struct {
	Address       string `json:"address"`
	ChainID       uint64 `json:"chain_id"`
	Network       string `json:"network"`
	ProvingSystem string `json:"proving_system"`
	FeeStrategy   string `json:"fee_strategy"`
}

// HTTPClient talks to a verification gateway.
type HTTPClient struct {
	baseURL    *url.URL
	httpClient *http.Client
	log        zerolog.Logger
}

// NewHTTPClient constructs a gateway client for the given base URL. The
// default http.Client has no timeout since /verify blocks until the batch
// is reported; bound calls through the context instead.
func NewHTTPClient(rawURL string, httpClient *http.Client, log zerolog.Logger) (*HTTPClient, error) {
	if rawURL == "" {
		return nil, errors.New("base URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid gateway base URL %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPClient{
		baseURL:    parsed,
		httpClient: httpClient,
		log:        log.With().Str("component", "verify-client").Logger(),
	}, nil
}

// Verify submits a proof and waits for the gateway's answer. A non-nil
// error means no gateway answer was decoded; otherwise inspect Success.
func (c *HTTPClient) Verify(ctx context.Context, proof ProofRequest) (*Response, error) {
	endpoint := c.buildURL("verify")

	body, err := json.Marshal(proof)
	if err != nil {
		return nil, fmt.Errorf("marshal proof request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("prepare request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Info().
		Str("endpoint", endpoint).
		Int("proof_size", len(proof.Proof)).
		Int("pub_input_size", len(proof.PublicInput)).
		Msg("submitting proof to gateway")

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post verify request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("gateway returned %s: %s", res.Status, string(raw))
	}
	out.StatusCode = res.StatusCode

	c.log.Info().
		Int("status_code", res.StatusCode).
		Bool("success", out.Success).
		Str("error_kind", out.ErrorKind).
		Str("batch_merkle_root", out.BatchMerkleRoot).
		Dur("elapsed", time.Since(start)).
		Msg("gateway answered")

	return &out, nil
}

// Identity fetches the gateway's signing address and network.
func (c *HTTPClient) Identity(ctx context.Context) (Identity, error) {
	endpoint := c.buildURL("identity")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("prepare identity request: %w", err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("get identity: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return Identity{}, fmt.Errorf("gateway returned %s: %s", res.Status, string(msg))
	}

	var id Identity
	if err := json.NewDecoder(res.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode identity response: %w", err)
	}
	return id, nil
}

func (c *HTTPClient) buildURL(elem ...string) string {
	clone := *c.baseURL
	clone.Path = path.Join(append([]string{"/", c.baseURL.Path}, elem...)...)
	return clone.String()
}
