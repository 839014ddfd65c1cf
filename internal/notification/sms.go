// Package notification sends SMS messages through Kavenegar.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/internal/config"
)

const defaultBaseURL = "https://api.kavenegar.com/v1"

// Notifier is the SMS surface used by the domain services. Every method
// reports success and never returns an error: delivery failures must not fail
// the operation that triggered them.
type Notifier interface {
	SendOTP(ctx context.Context, phone, code string) bool
	SendNotification(ctx context.Context, phone, message string) bool
	SendWithdrawalApproved(ctx context.Context, phone string, amount decimal.Decimal) bool
	SendDepositApproved(ctx context.Context, phone string, amount decimal.Decimal) bool
}

// SMSClient talks to the Kavenegar REST API
type SMSClient struct {
	apiKey  string
	sender  string
	debug   bool
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

var _ Notifier = (*SMSClient)(nil)

// NewSMSClient creates a client from configuration
func NewSMSClient(cfg config.SMSConfig, log *zap.Logger) *SMSClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sender := cfg.Sender
	if sender == "" {
		sender = "10008663"
	}
	return &SMSClient{
		apiKey:  cfg.APIKey,
		sender:  sender,
		debug:   cfg.Debug,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.Named("sms"),
	}
}

// WithBaseURL points the client at another API host.
func (c *SMSClient) WithBaseURL(baseURL string) *SMSClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type sendResponse struct {
	Return struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"return"`
}

func (c *SMSClient) SendOTP(ctx context.Context, phone, code string) bool {
	return c.send(ctx, phone, fmt.Sprintf("کد تایید تالابین: %s\nاین کد تا 5 دقیقه اعتبار دارد.", code))
}

func (c *SMSClient) SendNotification(ctx context.Context, phone, message string) bool {
	return c.send(ctx, phone, message)
}

func (c *SMSClient) SendWithdrawalApproved(ctx context.Context, phone string, amount decimal.Decimal) bool {
	return c.send(ctx, phone, fmt.Sprintf("درخواست برداشت شما به مبلغ %s تومان تایید شد و طی 24 ساعت به حساب شما واریز می‌شود.", FormatAmount(amount)))
}

func (c *SMSClient) SendDepositApproved(ctx context.Context, phone string, amount decimal.Decimal) bool {
	return c.send(ctx, phone, fmt.Sprintf("واریز شما به مبلغ %s تومان تایید شد و به کیف پول شما اضافه شد.", FormatAmount(amount)))
}

func (c *SMSClient) send(ctx context.Context, phone, message string) bool {
	if c.debug {
		c.log.Info("sms (debug mode)", zap.String("receptor", phone), zap.String("message", message))
		return true
	}
	if c.apiKey == "" {
		c.log.Error("kavenegar api key not configured")
		return false
	}

	form := url.Values{
		"receptor": {phone},
		"sender":   {c.sender},
		"message":  {message},
	}
	endpoint := fmt.Sprintf("%s/%s/sms/send.json", c.baseURL, url.PathEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		c.log.Error("failed to build sms request", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error("sms sending error", zap.String("receptor", phone), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		c.log.Error("sms sending failed", zap.Int("status_code", resp.StatusCode), zap.ByteString("body", body))
		return false
	}

	var result sendResponse
	if err := json.Unmarshal(body, &result); err != nil || result.Return.Status != http.StatusOK {
		c.log.Error("sms api returned error", zap.ByteString("body", body), zap.Error(err))
		return false
	}

	c.log.Info("sms sent", zap.String("receptor", phone))
	return true
}

// FormatAmount renders an amount as an integer with thousands separators.
func FormatAmount(amount decimal.Decimal) string {
	s := amount.Truncate(0).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
