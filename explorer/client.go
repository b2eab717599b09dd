// Package explorer verifies contract sources on Etherscan compatible block explorers.
package explorer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ntzs/deployments/contracts"
)

// DefaultBaseURL is the Etherscan multichain API.
const DefaultBaseURL = "https://api.etherscan.io/v2/api"

var (
	ErrVerificationFailed = errors.New("source verification failed")
	errPending            = errors.New("verification pending")
	errNoBytecodeYet      = errors.New("explorer has not indexed the contract yet")
)

// Client represents an Etherscan API client for one chain.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    uint64
	httpClient *http.Client

	pollInterval time.Duration
	pollAttempts uint
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPolling sets how often and how many times the verification status is polled.
func WithPolling(interval time.Duration, attempts uint) Option {
	return func(c *Client) {
		c.pollInterval = interval
		c.pollAttempts = attempts
	}
}

// NewClient creates a new explorer client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, chainID uint64, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("explorer api key is required")
	}
	if chainID == 0 {
		return nil, errors.New("explorer chain id is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		chainID: chainID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		pollInterval: 5 * time.Second,
		pollAttempts: 24,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// VerifyRequest is a standard JSON input verification request.
type VerifyRequest struct {
	Address common.Address
	// ContractName is the fully qualified name, "contracts/Ntzs.sol:Ntzs".
	ContractName    string
	CompilerVersion string
	// SourceCode is the solc standard JSON input.
	SourceCode      json.RawMessage
	ConstructorArgs []byte
}

// NewVerifyRequest builds a request for the contract of art deployed at addr, reading sources
// and compiler version from the artifact's build info.
func NewVerifyRequest(art *contracts.Artifact, addr common.Address, constructorArgs []byte) (VerifyRequest, error) {
	info, err := art.BuildInfo()
	if err != nil {
		return VerifyRequest{}, err
	}

	return VerifyRequest{
		Address:         addr,
		ContractName:    art.FullyQualifiedName(),
		CompilerVersion: info.CompilerVersion(),
		SourceCode:      info.Input,
		ConstructorArgs: constructorArgs,
	}, nil
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

func isAlreadyVerified(result string) bool {
	return strings.Contains(strings.ToLower(result), "already verified")
}

// VerifySource submits req and returns the GUID to poll. An address the explorer reports as
// already verified returns an empty GUID and true. Submissions are retried while the explorer
// has not indexed the contract yet.
func (c *Client) VerifySource(ctx context.Context, req VerifyRequest) (string, bool, error) {
	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("apikey", c.apiKey)
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("sourceCode", string(req.SourceCode))
	form.Set("contractaddress", req.Address.Hex())
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	// Etherscan spells it this way.
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	type submitted struct {
		guid     string
		verified bool
	}

	out, err := retry.DoWithData(func() (submitted, error) {
		resp, err := c.do(ctx, http.MethodPost, nil, form)
		if err != nil {
			return submitted{}, retry.Unrecoverable(err)
		}

		switch {
		case resp.Status == "1":
			return submitted{guid: resp.Result}, nil
		case isAlreadyVerified(resp.Result):
			return submitted{verified: true}, nil
		case strings.Contains(resp.Result, "Unable to locate ContractCode"):
			return submitted{}, fmt.Errorf("%w: %s", errNoBytecodeYet, resp.Result)
		default:
			return submitted{}, retry.Unrecoverable(fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result))
		}
	},
		retry.Context(ctx),
		retry.Attempts(c.pollAttempts),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", false, fmt.Errorf("verify %s at %s: %w", req.ContractName, req.Address, err)
	}

	return out.guid, out.verified, nil
}

// Status is the state of a verification request.
type Status struct {
	Verified bool
	Pending  bool
	Message  string
}

// CheckStatus reads the state of a submitted verification.
func (c *Client) CheckStatus(ctx context.Context, guid string) (Status, error) {
	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "checkverifystatus")
	q.Set("guid", guid)
	q.Set("apikey", c.apiKey)

	resp, err := c.do(ctx, http.MethodGet, q, nil)
	if err != nil {
		return Status{}, err
	}

	switch {
	case resp.Status == "1", isAlreadyVerified(resp.Result):
		return Status{Verified: true, Message: resp.Result}, nil
	case strings.Contains(strings.ToLower(resp.Result), "pending"):
		return Status{Pending: true, Message: resp.Result}, nil
	default:
		return Status{Message: resp.Result}, nil
	}
}

// Verify submits req and returns a handle that polls the status until the source is verified.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Handle, error) {
	guid, verified, err := c.VerifySource(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Handle{client: c, guid: guid, address: req.Address, verified: verified}, nil
}

// Handle tracks a verification request.
type Handle struct {
	client   *Client
	guid     string
	address  common.Address
	verified bool
}

// ID returns the request GUID, or "verified:<address>" when nothing had to be submitted.
func (h *Handle) ID() string {
	if h.verified {
		return "verified:" + h.address.Hex()
	}

	return h.guid
}

// Wait polls the verification status and resolves to the verified address.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	if h.verified {
		return h.address, nil
	}

	_, err := retry.DoWithData(func() (Status, error) {
		s, err := h.client.CheckStatus(ctx, h.guid)
		switch {
		case err != nil:
			return s, err
		case s.Verified:
			return s, nil
		case s.Pending:
			return s, errPending
		default:
			return s, retry.Unrecoverable(fmt.Errorf("%w: %s", ErrVerificationFailed, s.Message))
		}
	},
		retry.Context(ctx),
		retry.Attempts(h.client.pollAttempts),
		retry.Delay(h.client.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("verification %s of %s: %w", h.guid, h.address, err)
	}

	return h.address, nil
}

func (c *Client) do(ctx context.Context, method string, query, form url.Values) (*response, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build request URL: %w", err)
	}
	q := u.Query()
	q.Set("chainid", strconv.FormatUint(c.chainID, 10))
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer API returned status %d: %s", resp.StatusCode, string(b))
	}

	var out response
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to parse explorer response: %w", err)
	}

	return &out, nil
}
