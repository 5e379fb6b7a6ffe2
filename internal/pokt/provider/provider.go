package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/httpx"
)

const (
	pathQueryApp    = "/v1/query/app"
	pathQueryHeight = "/v1/query/height"
	pathRawTx       = "/v1/client/rawtx"
)

// Staking status values reported for apps.
const (
	StatusUnstaked  = 0
	StatusUnstaking = 1
	StatusStaked    = 2
)

type App struct {
	Address       string   `json:"address"`
	PublicKey     string   `json:"public_key"`
	Jailed        bool     `json:"jailed"`
	Status        int      `json:"status"`
	Chains        []string `json:"chains"`
	StakedTokens  string   `json:"staked_tokens"`
	MaxRelays     string   `json:"max_relays"`
	UnstakingTime string   `json:"unstaking_time"`
}

type TxResponse struct {
	TxHash string          `json:"txhash"`
	Code   int             `json:"code"`
	RawLog string          `json:"raw_log"`
	Logs   json.RawMessage `json:"logs,omitempty"`
}

// Provider is the chain capability shared by every concurrent submission.
// Implementations must be safe for concurrent use.
type Provider interface {
	GetApp(ctx context.Context, address string) (App, error)
	GetHeight(ctx context.Context) (int64, error)
	SendTransaction(ctx context.Context, signerAddress string, rawTx []byte) (TxResponse, error)
}

type JSONRPCProvider struct {
	http   *httpx.Client
	rpcURL string
}

func New(client *httpx.Client, rpcURL string) (*JSONRPCProvider, error) {
	clean := strings.TrimRight(strings.TrimSpace(rpcURL), "/")
	if clean == "" {
		return nil, clierr.New(clierr.CodeUsage, "rpc provider url is required")
	}
	parsed, err := url.Parse(clean)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid rpc provider url %q", rpcURL))
	}
	if client == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing http client")
	}
	return &JSONRPCProvider{http: client, rpcURL: clean}, nil
}

func (p *JSONRPCProvider) URL() string { return p.rpcURL }

func (p *JSONRPCProvider) GetApp(ctx context.Context, address string) (App, error) {
	req := map[string]any{"address": address, "height": 0}
	var app App
	if err := p.post(ctx, pathQueryApp, req, &app); err != nil {
		return App{}, clierr.Wrap(clierr.CodeQuery, fmt.Sprintf("query app %s", address), err)
	}
	if strings.TrimSpace(app.Address) == "" {
		return App{}, clierr.New(clierr.CodeQuery, fmt.Sprintf("query app %s: empty response", address))
	}
	return app, nil
}

func (p *JSONRPCProvider) GetHeight(ctx context.Context) (int64, error) {
	var resp struct {
		Height int64 `json:"height"`
	}
	if err := p.post(ctx, pathQueryHeight, map[string]any{}, &resp); err != nil {
		return 0, clierr.Wrap(clierr.CodeQuery, "query height", err)
	}
	return resp.Height, nil
}

func (p *JSONRPCProvider) SendTransaction(ctx context.Context, signerAddress string, rawTx []byte) (TxResponse, error) {
	req := map[string]any{
		"address":       signerAddress,
		"raw_hex_bytes": hex.EncodeToString(rawTx),
	}
	var resp TxResponse
	if err := p.post(ctx, pathRawTx, req, &resp); err != nil {
		return TxResponse{}, err
	}
	if resp.Code != 0 {
		return resp, clierr.New(clierr.CodeSubmission, fmt.Sprintf("transaction rejected with code %d: %s", resp.Code, resp.RawLog))
	}
	if strings.TrimSpace(resp.TxHash) == "" {
		return resp, clierr.New(clierr.CodeSubmission, "transaction response missing txhash")
	}
	return resp, nil
}

func (p *JSONRPCProvider) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode rpc request", err)
	}
	_, err = httpx.DoBodyJSON(ctx, p.http, http.MethodPost, p.rpcURL+path, buf, nil, out)
	return err
}
