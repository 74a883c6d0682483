package mpesa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/transkenya/config"
	"github.com/Domenick1991/transkenya/internal/domain"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	authPath  = "/oauth/v1/generate"
	pushPath  = "/mpesa/stkpush/v1/processrequest"
	queryPath = "/mpesa/stkpushquery/v1/query"

	transactionType = "CustomerPayBillOnline"

	// CodeStillProcessing is returned by the push query while the payer has not answered yet.
	CodeStillProcessing = "500.001.1001"
)

var tracer = otel.Tracer("github.com/Domenick1991/transkenya/internal/mpesa")

type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

type PushRequest struct {
	Amount      int64
	PhoneNumber string
	Reference   string
	Description string
}

type PushResponse struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	CustomerMessage   string `json:"CustomerMessage"`
}

type PushStatus struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

// Succeeded reports whether the payer completed the payment.
func (s PushStatus) Succeeded() bool {
	return s.ResultCode == 0
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

type pushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type queryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type queryResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        string `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Client talks to the Daraja API. It holds no per-request state.
type Client struct {
	http *resty.Client
	cfg  config.MpesaConfig
	now  func() time.Time
}

type Option func(*Client)

// WithClock replaces the clock used for push timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(cfg config.MpesaConfig, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTransport(otelhttp.NewTransport(http.DefaultTransport)),
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Authenticate(ctx context.Context) (AccessToken, error) {
	ctx, span := tracer.Start(ctx, "mpesa.Authenticate")
	defer span.End()

	ctx, cancel := withTimeout(ctx, c.cfg.AuthTimeout())
	defer cancel()

	var out tokenResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret).
		SetQueryParam("grant_type", "client_credentials").
		SetResult(&out).
		SetError(&apiErr).
		Get(authPath)
	if err != nil {
		return AccessToken{}, fail(span, domain.AuthError{Err: transportError("authenticate", err)})
	}
	if resp.StatusCode() != http.StatusOK {
		return AccessToken{}, fail(span, domain.AuthError{Err: gatewayError(resp, apiErr)})
	}
	if out.AccessToken == "" {
		return AccessToken{}, fail(span, domain.AuthError{Err: errors.New("empty access token")})
	}

	seconds, err := strconv.Atoi(out.ExpiresIn.String())
	if err != nil || seconds <= 0 {
		seconds = 3599
	}
	return AccessToken{Value: out.AccessToken, ExpiresAt: c.now().Add(time.Duration(seconds) * time.Second)}, nil
}

// InitiatePush sends the STK push prompt to the payer's phone.
func (c *Client) InitiatePush(ctx context.Context, token string, req PushRequest) (*PushResponse, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ValidationError{Field: "amount", Msg: "must be positive"}
	}

	ctx, span := tracer.Start(ctx, "mpesa.InitiatePush", trace.WithAttributes(
		attribute.Int64("mpesa.amount", req.Amount),
	))
	defer span.End()

	ctx, cancel := withTimeout(ctx, c.cfg.PushTimeout())
	defer cancel()

	reference := req.Reference
	if reference == "" {
		reference = c.cfg.AccountReference
	}
	timestamp := Timestamp(c.now())
	body := pushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   req.Description,
	}

	var out PushResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(pushPath)
	if err != nil {
		return nil, fail(span, transportError("initiate push", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fail(span, gatewayError(resp, apiErr))
	}
	if out.ResponseCode != "0" {
		return nil, fail(span, domain.GatewayError{Code: out.ResponseCode, Message: out.ResponseDesc})
	}

	span.SetAttributes(attribute.String("mpesa.checkout_request_id", out.CheckoutRequestID))
	return &out, nil
}

// QueryPush asks the gateway for the outcome of an earlier push.
func (c *Client) QueryPush(ctx context.Context, token, checkoutRequestID string) (*PushStatus, error) {
	ctx, span := tracer.Start(ctx, "mpesa.QueryPush", trace.WithAttributes(
		attribute.String("mpesa.checkout_request_id", checkoutRequestID),
	))
	defer span.End()

	ctx, cancel := withTimeout(ctx, c.cfg.PushTimeout())
	defer cancel()

	timestamp := Timestamp(c.now())
	var out queryResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(queryBody{
			BusinessShortCode: c.cfg.ShortCode,
			Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
			Timestamp:         timestamp,
			CheckoutRequestID: checkoutRequestID,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post(queryPath)
	if err != nil {
		return nil, fail(span, transportError("query push", err))
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fail(span, gatewayError(resp, apiErr))
	}
	if out.ResponseCode != "0" {
		return nil, fail(span, domain.GatewayError{Code: out.ResponseCode, Message: out.ResponseDesc})
	}

	resultCode, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return nil, fail(span, domain.GatewayError{Code: out.ResultCode, Message: "unparseable result code"})
	}
	return &PushStatus{
		MerchantRequestID: out.MerchantRequestID,
		CheckoutRequestID: out.CheckoutRequestID,
		ResultCode:        resultCode,
		ResultDesc:        out.ResultDesc,
	}, nil
}

// IsStillProcessing reports whether a query failed only because the payer has not answered.
func IsStillProcessing(err error) bool {
	var gw domain.GatewayError
	return errors.As(err, &gw) && gw.Code == CodeStillProcessing
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.TimeoutError{Op: op, Err: err}
	}
	return domain.NetworkError{Op: op, Err: err}
}

func gatewayError(resp *resty.Response, apiErr errorResponse) error {
	if apiErr.ErrorCode != "" {
		return domain.GatewayError{Code: apiErr.ErrorCode, Message: apiErr.ErrorMessage}
	}
	return domain.GatewayError{Code: strconv.Itoa(resp.StatusCode()), Message: fmt.Sprintf("unexpected status %s", resp.Status())}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
