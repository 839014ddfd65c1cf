package notification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/talabin/internal/config"
)

func TestSendPostsForm(t *testing.T) {
	var got http.Header
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/KEY/sms/send.json", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		got = r.Header
		form = map[string]string{
			"receptor": r.PostForm.Get("receptor"),
			"sender":   r.PostForm.Get("sender"),
			"message":  r.PostForm.Get("message"),
		}
		_, _ = w.Write([]byte(`{"return":{"status":200,"message":"ok"},"entries":[]}`))
	}))
	defer srv.Close()

	c := NewSMSClient(config.SMSConfig{APIKey: "KEY", Sender: "3000"}, zap.NewNop()).WithBaseURL(srv.URL)
	ok := c.SendDepositApproved(context.Background(), "+989121234567", decimal.NewFromInt(1500000))

	assert.True(t, ok)
	assert.Equal(t, "application/x-www-form-urlencoded", got.Get("Content-Type"))
	assert.Equal(t, "+989121234567", form["receptor"])
	assert.Equal(t, "3000", form["sender"])
	assert.Contains(t, form["message"], "1,500,000")
}

func TestSendFailsOnApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"return":{"status":418,"message":"invalid sender"}}`))
	}))
	defer srv.Close()

	c := NewSMSClient(config.SMSConfig{APIKey: "KEY"}, zap.NewNop()).WithBaseURL(srv.URL)
	assert.False(t, c.SendOTP(context.Background(), "+989121234567", "123456"))
}

func TestSendFailsOnHttpError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewSMSClient(config.SMSConfig{APIKey: "KEY"}, zap.NewNop()).WithBaseURL(srv.URL)
	assert.False(t, c.SendNotification(context.Background(), "+989121234567", "hi"))
}

func TestDebugModeAndMissingKey(t *testing.T) {
	debug := NewSMSClient(config.SMSConfig{Debug: true}, zap.NewNop())
	assert.True(t, debug.SendWithdrawalApproved(context.Background(), "+989121234567", decimal.NewFromInt(50000)))

	missing := NewSMSClient(config.SMSConfig{}, zap.NewNop())
	assert.False(t, missing.SendNotification(context.Background(), "+989121234567", "hi"))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(decimal.Zero))
	assert.Equal(t, "999", FormatAmount(decimal.NewFromInt(999)))
	assert.Equal(t, "1,000", FormatAmount(decimal.NewFromInt(1000)))
	assert.Equal(t, "1,005,000", FormatAmount(decimal.RequireFromString("1005000.75")))
	assert.Equal(t, "-50,000", FormatAmount(decimal.NewFromInt(-50000)))
}
