package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/rpc"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/types"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// Client talks to a remote ledger node.
// It implements both the ledger gateway used by the synchronizer and the
// transaction submission used by sessions.
type Client struct {
	baseURL *url.URL
	client  *retryablehttp.Client
	dialer  *websocket.Dialer
	// registered caches positive membership answers only. Registration can
	// not be undone, so a cached "true" never goes stale.
	registered *lru.Cache

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

type newClientOptionFunc func(*newClientOptions)

type newClientOptions struct {
	cfg    Config
	logger *zap.Logger
}

func WithConfig(cfg Config) newClientOptionFunc {
	return func(opts *newClientOptions) {
		opts.cfg = cfg
	}
}

func WithLogger(logger *zap.Logger) newClientOptionFunc {
	return func(opts *newClientOptions) {
		opts.logger = logger
	}
}

// New returns a client of the node listening on baseURL.
func New(baseURL string, opts ...newClientOptionFunc) (*Client, error) {
	options := newClientOptions{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing address: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}

	cache, err := lru.New(options.cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating membership cache: %w", err)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = options.cfg.RetryMax
	client.RetryWaitMin = options.cfg.RetryWaitMin
	client.RetryWaitMax = options.cfg.RetryWaitMax
	client.Logger = leveledLogger{options.logger.Named("http").Sugar()}

	return &Client{
		baseURL:    u,
		client:     client,
		dialer:     &websocket.Dialer{HandshakeTimeout: options.cfg.DialTimeout},
		registered: cache,
		subs:       make(map[*subscription]struct{}),
	}, nil
}

// Close ends all open subscriptions.
func (c *Client) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[*subscription]struct{})
	c.mu.Unlock()

	var result *multierror.Error
	for sub := range subs {
		if err := sub.close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Client) Info(ctx context.Context) (*rpc.InfoResponse, error) {
	var resBody rpc.InfoResponse
	if err := c.req(ctx, http.MethodGet, rpc.PathInfo, nil, nil, &resBody); err != nil {
		return nil, fmt.Errorf("getting info: %w", err)
	}
	return &resBody, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.ChainID, nil
}

func (c *Client) RegistrationFee(ctx context.Context) (*big.Int, error) {
	info, err := c.Info(ctx)
	if err != nil {
		return nil, err
	}
	return info.Fee, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var resBody rpc.BlockNumberResponse
	if err := c.req(ctx, http.MethodGet, rpc.PathBlockNumber, nil, nil, &resBody); err != nil {
		return 0, fmt.Errorf("getting block number: %w", err)
	}
	return resBody.BlockNumber, nil
}

func (c *Client) Participants(ctx context.Context) ([]types.Address, error) {
	var resBody rpc.ParticipantsResponse
	if err := c.req(ctx, http.MethodGet, rpc.PathParticipants, nil, nil, &resBody); err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	return resBody.Participants, nil
}

func (c *Client) IsRegistered(ctx context.Context, addr types.Address) (bool, error) {
	logger := logging.FromContext(ctx).With(zap.Stringer("address", addr))
	if _, ok := c.registered.Get(addr); ok {
		logger.Debug("membership answered from cache")
		return true, nil
	}
	var resBody rpc.RegistrationResponse
	if err := c.req(ctx, http.MethodGet, rpc.PathParticipants+"/"+addr.String(), nil, nil, &resBody); err != nil {
		return false, fmt.Errorf("checking registration: %w", err)
	}
	if resBody.Registered {
		c.registered.Add(addr, struct{}{})
	}
	return resBody.Registered, nil
}

// QueryEvents returns the logs named name in blocks [from, to].
func (c *Client) QueryEvents(ctx context.Context, name string, from, to uint64) ([]types.Log, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("from", strconv.FormatUint(from, 10))
	query.Set("to", strconv.FormatUint(to, 10))
	var resBody rpc.EventsResponse
	if err := c.req(ctx, http.MethodGet, rpc.PathEvents, query, nil, &resBody); err != nil {
		return nil, fmt.Errorf("querying events [%d, %d]: %w", from, to, err)
	}
	return resBody.Logs, nil
}

func (c *Client) SendRegister(ctx context.Context, env signing.Envelope) (types.PendingTx, error) {
	return c.send(ctx, rpc.PathRegister, env)
}

func (c *Client) SendWithdraw(ctx context.Context, env signing.Envelope) (types.PendingTx, error) {
	return c.send(ctx, rpc.PathWithdraw, env)
}

func (c *Client) send(ctx context.Context, path string, env signing.Envelope) (types.PendingTx, error) {
	var resBody rpc.SubmitResponse
	if err := c.req(ctx, http.MethodPost, path, nil, env, &resBody); err != nil {
		return nil, fmt.Errorf("submitting transaction: %w", err)
	}
	return &pendingTx{id: resBody.TxID, client: c}, nil
}

type pendingTx struct {
	id     string
	client *Client
}

func (p *pendingTx) ID() string {
	return p.id
}

// Wait long-polls the node until the transaction is sealed.
func (p *pendingTx) Wait(ctx context.Context) (*types.Receipt, error) {
	var receipt types.Receipt
	if err := p.client.req(ctx, http.MethodGet, rpc.PathReceipts+"/"+p.id, nil, nil, &receipt); err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", p.id, err)
	}
	return &receipt, nil
}

func (c *Client) req(ctx context.Context, method, path string, query url.Values, reqBody, resBody any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", types.ErrTransport, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response body: %w", types.ErrTransport, err)
	}

	if res.StatusCode != http.StatusOK {
		return decodeError(res, data)
	}
	if resBody != nil {
		if err := json.Unmarshal(data, resBody); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}

func decodeError(res *http.Response, data []byte) error {
	var body rpc.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		body.Message = string(data)
	}
	switch res.StatusCode {
	case http.StatusConflict:
		sentinel := types.FromCode(body.Code)
		if sentinel == nil {
			sentinel = types.ErrPreconditionViolation
		}
		if body.Message == sentinel.Error() {
			return sentinel
		}
		return fmt.Errorf("%w (%s)", sentinel, body.Message)
	case http.StatusBadRequest:
		if body.Code == rpc.CodeInvalidTransaction {
			return fmt.Errorf("%w (%s)", types.ErrInvalidTransaction, body.Message)
		}
		return fmt.Errorf("%w: %s", ErrInvalidRequest, body.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, body.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: response status code: %s, body: %s", types.ErrTransport, res.Status, body.Message)
	default:
		return fmt.Errorf("unrecognized error: status code: %s, body: %s", res.Status, body.Message)
	}
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

// leveledLogger routes retryablehttp's logs into zap.
type leveledLogger struct {
	*zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.Errorw(msg, keysAndValues...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.Infow(msg, keysAndValues...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.Debugw(msg, keysAndValues...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.Warnw(msg, keysAndValues...)
}
