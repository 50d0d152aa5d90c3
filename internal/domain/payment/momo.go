package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hospital/hms/internal/config"
)

const momoRequestType = "captureWallet"

// MoMoOrder is what the hospital asks MoMo to collect.
type MoMoOrder struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	PartnerCode string `json:"partnerCode"`
	OrderID     string `json:"orderId"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	ResultCode  int    `json:"resultCode"`
	Message     string `json:"message"`
	PayURL      string `json:"payUrl"`
}

// MoMoIPN is the instant payment notification MoMo posts after checkout.
type MoMoIPN struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	OrderInfo    string `json:"orderInfo"`
	OrderType    string `json:"orderType"`
	TransID      int64  `json:"transId"`
	ResultCode   int    `json:"resultCode"`
	Message      string `json:"message"`
	PayType      string `json:"payType"`
	ResponseTime int64  `json:"responseTime"`
	ExtraData    string `json:"extraData"`
	Signature    string `json:"signature"`
}

// MoMoOption configures a MoMoClient.
type MoMoOption func(*MoMoClient)

// WithMoMoHTTPClient overrides the HTTP client used to reach the gateway.
func WithMoMoHTTPClient(c *http.Client) MoMoOption {
	return func(m *MoMoClient) { m.httpClient = c }
}

// MoMoClient talks to the MoMo v2 wallet API.
type MoMoClient struct {
	cfg        config.MoMoConfig
	httpClient *http.Client
}

func NewMoMoClient(cfg config.MoMoConfig, opts ...MoMoOption) *MoMoClient {
	m := &MoMoClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func hmacSHA256Hex(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func (m *MoMoClient) createSignature(o MoMoOrder) string {
	raw := "accessKey=" + m.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(o.Amount, 10) +
		"&extraData=" + o.ExtraData +
		"&ipnUrl=" + m.cfg.IPNURL +
		"&orderId=" + o.OrderID +
		"&orderInfo=" + o.OrderInfo +
		"&partnerCode=" + m.cfg.PartnerCode +
		"&redirectUrl=" + m.cfg.RedirectURL +
		"&requestId=" + o.RequestID +
		"&requestType=" + momoRequestType
	return hmacSHA256Hex(m.cfg.SecretKey, raw)
}

func (m *MoMoClient) ipnSignature(n *MoMoIPN) string {
	raw := "accessKey=" + m.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(n.Amount, 10) +
		"&extraData=" + n.ExtraData +
		"&message=" + n.Message +
		"&orderId=" + n.OrderID +
		"&orderInfo=" + n.OrderInfo +
		"&orderType=" + n.OrderType +
		"&partnerCode=" + n.PartnerCode +
		"&payType=" + n.PayType +
		"&requestId=" + n.RequestID +
		"&responseTime=" + strconv.FormatInt(n.ResponseTime, 10) +
		"&resultCode=" + strconv.Itoa(n.ResultCode) +
		"&transId=" + strconv.FormatInt(n.TransID, 10)
	return hmacSHA256Hex(m.cfg.SecretKey, raw)
}

// VerifyIPN reports whether n carries a valid signature from our partner account.
func (m *MoMoClient) VerifyIPN(n *MoMoIPN) bool {
	if n.PartnerCode != m.cfg.PartnerCode {
		return false
	}
	return hmac.Equal([]byte(m.ipnSignature(n)), []byte(n.Signature))
}

// CreatePayment registers the order with MoMo and returns the checkout URL.
func (m *MoMoClient) CreatePayment(ctx context.Context, o MoMoOrder) (string, error) {
	body, err := json.Marshal(momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		RequestID:   o.RequestID,
		Amount:      o.Amount,
		OrderID:     o.OrderID,
		OrderInfo:   o.OrderInfo,
		RedirectURL: m.cfg.RedirectURL,
		IPNURL:      m.cfg.IPNURL,
		RequestType: momoRequestType,
		ExtraData:   o.ExtraData,
		Lang:        "vi",
		Signature:   m.createSignature(o),
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("momo create: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("momo create: read response: %w", err)
	}
	var out momoCreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &GatewayError{Gateway: MethodMoMo, Code: resp.StatusCode, Message: "malformed response"}
	}
	if out.ResultCode != 0 || out.PayURL == "" {
		return "", &GatewayError{Gateway: MethodMoMo, Code: out.ResultCode, Message: out.Message}
	}
	return out.PayURL, nil
}
