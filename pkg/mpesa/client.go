package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/urbanfoods/backend/pkg/config"
	pkgerrors "github.com/urbanfoods/backend/pkg/errors"
	"github.com/urbanfoods/backend/pkg/enums"
	"github.com/urbanfoods/backend/pkg/logger"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	timestampLayout = "20060102150405"
)

// Client is the Daraja gateway wrapper. It issues STK push requests and
// status queries with a cached bearer credential injected through TokenCache.
type Client struct {
	cfg        config.MpesaConfig
	baseURL    string
	httpClient *http.Client
	cache      TokenCache
	logger     *logger.Logger
	now        func() time.Time
}

// ClientParams wires the gateway client dependencies.
type ClientParams struct {
	Config     config.MpesaConfig
	Cache      TokenCache
	Logger     *logger.Logger
	HTTPClient *http.Client

	// BaseURL overrides the environment-derived host; tests point it at a
	// local server.
	BaseURL string
}

// NewClient validates credentials and builds the gateway wrapper.
func NewClient(params ClientParams) (*Client, error) {
	if strings.TrimSpace(params.Config.ConsumerKey) == "" || strings.TrimSpace(params.Config.ConsumerSecret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mpesa consumer credentials required")
	}
	if strings.TrimSpace(params.Config.Passkey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mpesa passkey required")
	}
	if params.Cache == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token cache required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = params.Config.BaseURL()
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.Config.HTTPTimeout}
	}

	return &Client{
		cfg:        params.Config,
		baseURL:    baseURL,
		httpClient: httpClient,
		cache:      params.Cache,
		logger:     params.Logger,
		now:        time.Now,
	}, nil
}

// STKPushParams describes one push-payment request.
type STKPushParams struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	TransactionDesc  string
	StoreType        enums.StoreType
}

// STKPushResult is the normalized acceptance returned by the provider.
type STKPushResult struct {
	CheckoutRequestID string
	CustomerMessage   string
}

// STKQueryResult is the normalized outcome of a status query.
type STKQueryResult struct {
	ResultCode int
	ResultDesc string
}

// resultCode tolerates the provider sending codes as either JSON numbers or
// strings.
type resultCode int

func (r *resultCode) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid result code %q", raw)
	}
	*r = resultCode(value)
	return nil
}

// InitiateSTKPush asks the provider to prompt the payer's device.
//
// The amount is truncated to whole shillings before transmission; Daraja only
// accepts integer amounts. Callers must not round on their side, the ledger
// keeps the exact decimal total.
func (c *Client) InitiateSTKPush(ctx context.Context, params STKPushParams) (*STKPushResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampLayout)
	shortcode, transactionType, reference := c.channelFor(params.StoreType, params.AccountReference)

	payload := map[string]any{
		"BusinessShortCode": shortcode,
		"Password":          c.generatePassword(shortcode, timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   transactionType,
		"Amount":            params.Amount.IntPart(),
		"PartyA":            params.PhoneNumber,
		"PartyB":            shortcode,
		"PhoneNumber":       params.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   truncate(params.TransactionDesc, 13),
	}

	var result struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	if err := c.postJSON(ctx, stkPushPath, token, payload, &result); err != nil {
		c.logger.Error(ctx, "mpesa stk push request failed", err)
		return nil, err
	}

	if result.ResponseCode != "0" {
		desc := result.ResponseDescription
		if desc == "" {
			desc = "stk push rejected"
		}
		return nil, pkgerrors.New(pkgerrors.CodeDependency, desc)
	}
	if result.CheckoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no checkout request id returned")
	}

	ctx = c.logger.WithCheckoutRequestID(ctx, result.CheckoutRequestID)
	c.logger.Info(ctx, "mpesa stk push accepted")

	return &STKPushResult{
		CheckoutRequestID: result.CheckoutRequestID,
		CustomerMessage:   result.CustomerMessage,
	}, nil
}

// QuerySTKStatus asks the provider for the current outcome of a push request.
func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().Format(timestampLayout)
	shortcode := c.cfg.PaybillNumber

	payload := map[string]any{
		"BusinessShortCode": shortcode,
		"Password":          c.generatePassword(shortcode, timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var result struct {
		ResultCode resultCode `json:"ResultCode"`
		ResultDesc string     `json:"ResultDesc"`
	}
	if err := c.postJSON(ctx, stkQueryPath, token, payload, &result); err != nil {
		c.logger.Error(ctx, "mpesa stk query failed", err)
		return nil, err
	}

	return &STKQueryResult{
		ResultCode: int(result.ResultCode),
		ResultDesc: result.ResultDesc,
	}, nil
}

// accessToken returns the cached credential, fetching a fresh one when the
// cache is empty or stale.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, err := c.cache.Get(ctx); err == nil && token != "" {
		return token, nil
	} else if err != nil && !errors.Is(err, ErrTokenMiss) {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "token cache read failed, fetching fresh credential")
	}

	tokenCtx, cancel := context.WithTimeout(ctx, c.cfg.TokenTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tokenCtx, http.MethodGet, c.baseURL+tokenPath, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build token request")
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch access token")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("token endpoint returned %d", resp.StatusCode))
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode token response")
	}
	if body.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "empty access token")
	}

	if err := c.cache.Set(ctx, body.AccessToken, c.cfg.TokenTTL); err != nil {
		c.logger.Warn(c.logger.WithField(ctx, "error", err.Error()), "token cache write failed")
	}

	return body.AccessToken, nil
}

// channelFor picks the shortcode and transaction type. Liquor settles against
// the paybill, food against the till; till references are capped at 12 chars.
func (c *Client) channelFor(storeType enums.StoreType, reference string) (shortcode, transactionType, ref string) {
	if storeType == enums.StoreTypeLiquor || c.cfg.TillNumber == "" {
		return c.cfg.PaybillNumber, "CustomerPayBillOnline", reference
	}
	return c.cfg.TillNumber, "CustomerBuyGoodsOnline", truncate(reference, 12)
}

func (c *Client) generatePassword(shortcode, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + c.cfg.Passkey + timestamp))
}

func (c *Client) postJSON(ctx context.Context, path, token string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mpesa request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorMessage string `json:"errorMessage"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.ErrorMessage
		if msg == "" {
			msg = fmt.Sprintf("mpesa endpoint returned %d", resp.StatusCode)
		}
		return pkgerrors.New(pkgerrors.CodeDependency, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode mpesa response")
	}
	return nil
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
