// Package httporacle implements chain.Oracle against an Esplora-style REST
// API (the interface served by Blockstream Esplora and compatible indexers).
//
// Endpoints used:
//
//	GET  /blocks/tip/height
//	GET  /tx/{txid}/hex
//	GET  /tx/{txid}/outspend/{vout}
//	GET  /address/{address}/utxo
//	POST /tx                      (body: raw transaction hex)
//
// Requests are rate limited client side and bounded by a per-request timeout.
// There is no retry loop here: transport faults are returned once and the
// caller decides.
package httporacle

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

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/time/rate"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/faults"
)

// maxBody bounds response bodies; the largest expected is a UTXO list.
const maxBody = 8 << 20

type Options struct {
	// BaseURL is the API root, e.g. https://example.org/api.
	BaseURL string
	// Timeout applies per request when non-zero (default 10s).
	Timeout time.Duration
	// RPS limits requests per second; 0 disables limiting.
	RPS   float64
	Burst int
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	limiter *rate.Limiter
}

var _ chain.Oracle = (*Client)(nil)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("httporacle: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httporacle: base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httporacle: unsupported scheme %q", base.Scheme)
	}
	c := &Client{base: base, http: opts.HTTPClient, timeout: opts.Timeout}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	return c, nil
}

func (c *Client) Height(ctx context.Context) (uint32, error) {
	body, err := c.do(ctx, http.MethodGet, "/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 32)
	if err != nil {
		return 0, faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-201", "tip height is not a number", err)
	}
	return uint32(h), nil
}

func (c *Client) RawTx(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/tx/"+txid.String()+"/hex", nil)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-202", "transaction is not hex", err)
	}
	return raw, nil
}

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint32 `json:"block_height"`
}

type outspend struct {
	Spent  bool      `json:"spent"`
	Txid   string    `json:"txid"`
	Vin    uint32    `json:"vin"`
	Status *txStatus `json:"status"`
}

func (c *Client) SpendStatus(ctx context.Context, outpoint wire.OutPoint) (chain.SpendStatus, error) {
	var out outspend
	path := fmt.Sprintf("/tx/%s/outspend/%d", outpoint.Hash, outpoint.Index)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return chain.SpendStatus{}, err
	}
	if !out.Spent {
		return chain.SpendStatus{}, nil
	}
	by, err := chainhash.NewHashFromStr(out.Txid)
	if err != nil {
		return chain.SpendStatus{}, faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-203", "spending txid", err)
	}
	st := chain.SpendStatus{Spent: true, SpentBy: *by}
	if out.Status != nil && out.Status.Confirmed {
		st.Height = out.Status.BlockHeight
	}
	return st, nil
}

type utxoJSON struct {
	Txid   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status txStatus `json:"status"`
}

func (c *Client) Unspent(ctx context.Context, address string) ([]chain.Utxo, error) {
	var list []utxoJSON
	if err := c.getJSON(ctx, "/address/"+url.PathEscape(address)+"/utxo", &list); err != nil {
		return nil, err
	}
	out := make([]chain.Utxo, 0, len(list))
	for _, u := range list {
		h, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return nil, faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-203", "utxo txid", err)
		}
		if u.Value <= 0 {
			return nil, faults.New(faults.KindMalformed, "ORACLE-HTTP-204", fmt.Sprintf("utxo %s:%d has value %d", u.Txid, u.Vout, u.Value))
		}
		utxo := chain.Utxo{OutPoint: wire.OutPoint{Hash: *h, Index: u.Vout}, Value: u.Value}
		if u.Status.Confirmed {
			utxo.Height = u.Status.BlockHeight
		}
		out = append(out, utxo)
	}
	return out, nil
}

func (c *Client) Broadcast(ctx context.Context, raw []byte) (chainhash.Hash, error) {
	body, err := c.do(ctx, http.MethodPost, "/tx", strings.NewReader(hex.EncodeToString(raw)))
	if err != nil {
		return chainhash.Hash{}, err
	}
	h, err := chainhash.NewHashFromStr(strings.TrimSpace(string(body)))
	if err != nil {
		return chainhash.Hash{}, faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-203", "broadcast txid", err)
	}
	return *h, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return faults.Wrap(faults.KindMalformed, "ORACLE-HTTP-205", "response from "+path+" is not the expected JSON", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, faults.Wrap(faults.KindTransport, "ORACLE-HTTP-101", "rate limiter", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "ORACLE-HTTP-102", "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, faults.Wrap(faults.KindTransport, "ORACLE-HTTP-103", method+" "+path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, faults.Wrap(faults.KindTransport, "ORACLE-HTTP-104", "read response", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, chain.NotFound(path)
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && method == http.MethodPost:
		return nil, chain.Rejected(strings.TrimSpace(string(data)))
	case resp.StatusCode >= 300:
		return nil, faults.Wrap(faults.KindTransport, "ORACLE-HTTP-105", method+" "+path,
			errors.New(resp.Status+": "+strings.TrimSpace(string(data))))
	}
	return data, nil
}
