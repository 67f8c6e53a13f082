package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paykit-wallet/paykitd/internal/models"
	"github.com/paykit-wallet/paykitd/pkg/logger"
)

func TestPayLightning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, lightningPath, r.URL.Path)
		var body lightningRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "lnbc1", body.Invoice)
		require.NotNil(t, body.AmountSats)
		_ = json.NewEncoder(w).Encode(models.PaymentResult{PaymentHash: "h", Preimage: "p", AmountSats: *body.AmountSats, FeeSats: 2})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	amount := uint64(1000)
	res, err := c.PayLightning(context.Background(), "lnbc1", &amount)
	require.NoError(t, err)
	assert.Equal(t, "h", res.PaymentHash)
	assert.Equal(t, uint64(1000), res.AmountSats)
}

func TestPayOnchain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, onchainPath, r.URL.Path)
		var body onchainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.NotNil(t, body.FeeRate)
		assert.Equal(t, 3.5, *body.FeeRate)
		_ = json.NewEncoder(w).Encode(models.TxResult{TxID: "tx", AmountSats: body.AmountSats})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, logger.NewNop())
	rate := 3.5
	res, err := c.PayOnchain(context.Background(), "bc1q", 5000, &rate)
	require.NoError(t, err)
	assert.Equal(t, "tx", res.TxID)
}

func TestServiceErrorsBecomePaymentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == lightningPath {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"kind":"route_not_found","message":"no path"}`))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logger.NewNop())
	var perr *models.PaymentError

	_, err := c.PayLightning(context.Background(), "lnbc", nil)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrRouteNotFound, perr.Kind)
	assert.Equal(t, "no path", perr.Message)

	_, err = c.PayOnchain(context.Background(), "bc1q", 1, nil)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrUnknown, perr.Kind)
	assert.Contains(t, perr.Message, "500")
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, logger.NewNop())
	_, err := c.PayLightning(context.Background(), "lnbc", nil)
	var perr *models.PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, models.PaymentErrTransport, perr.Kind)
}
