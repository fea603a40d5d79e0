package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"lendboard/config"
	"lendboard/gateway/middleware"
	"lendboard/lending/catalog"
	"lendboard/lending/view"
	"lendboard/services/dashboardd/storage"
)

const (
	testSecret  = "dashboardd-test-secret"
	testAccount = "0x00000000000000000000000000000000000000Aa"
	usdcMarket  = "0x39AA39c021dfbaE8faC545936693aC917d5E7563"
	daiMarket   = "0x5d3a536E4D6DbD6114cc1Ead35777bAB948E3643"
)

func newTestServer(t *testing.T, strict bool) (*Server, *httptest.Server) {
	t.Helper()
	cat, err := catalog.New(&config.Config{
		DefaultChain: 1,
		Chains:       []config.Chain{{ChainID: 1, Name: "mainnet", BlocksPerDay: 5760, DaysPerYear: 365}},
		Markets: []config.Market{
			{ChainID: 1, Address: usdcMarket, Symbol: "cUSDC", Underlying: config.Underlying{Decimals: 6, Symbol: "USDC"}},
			{ChainID: 1, Address: daiMarket, Symbol: "cDAI", Underlying: config.Underlying{Decimals: 18, Symbol: "DAI"}},
		},
	})
	require.NoError(t, err)
	store, err := storage.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := New(Config{
		Strict:       strict,
		HistoryLimit: 10,
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
			Issuer:     "lendboard-fetcher",
		},
		IngestScope:  "snapshots:write",
		StreamBuffer: 4,
		WriteTimeout: time.Second,
	}, cat, store, nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func ingestToken(t *testing.T, scope string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":   "lendboard-fetcher",
		"sub":   "fetcher-1",
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// snapshotBody supplies 1000 USDC and borrows daiBorrow whole DAI.
func snapshotBody(daiBorrow string) string {
	return fmt.Sprintf(`{
  "chainId": 1,
  "records": [
    {"state": "exists", "market": %q,
     "supplyRatePerBlock": "10000000000", "borrowRatePerBlock": "20000000000",
     "exchangeRateMantissa": "200000000000000", "underlyingPriceMantissa": "1000000000000000000000000000000",
     "collateralFactorMantissa": "800000000000000000", "supplyBalance": "5000000000000", "borrowBalance": "0",
     "totalSupply": "50000000000000", "liquidity": "2000000000", "canBeCollateral": true, "isListed": true},
    {"state": "exists", "market": %q,
     "supplyRatePerBlock": "10000000000", "borrowRatePerBlock": "20000000000",
     "exchangeRateMantissa": "200000000000000000000000000", "underlyingPriceMantissa": "1000000000000000000",
     "collateralFactorMantissa": "750000000000000000", "supplyBalance": "0", "borrowBalance": %q,
     "totalSupply": "0", "liquidity": "0", "canBeCollateral": false, "isListed": true}
  ]
}`, usdcMarket, daiMarket, daiBorrow)
}

func post(t *testing.T, ts *httptest.Server, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/accounts/"+testAccount+"/snapshots", strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeView(t *testing.T, r io.Reader) view.View {
	t.Helper()
	var v view.View
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestIngestAndView(t *testing.T) {
	_, ts := newTestServer(t, false)
	token := ingestToken(t, "snapshots:write")
	body := snapshotBody("500000000000000000000")

	resp := post(t, ts, token, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeView(t, resp.Body)
	account, err := view.NormalizeAccount(testAccount)
	require.NoError(t, err)
	require.Equal(t, account, created.Account)
	require.NotEmpty(t, created.SnapshotID)
	require.Equal(t, "800.000000000000000000", *created.Totals.LimitUSD)
	require.InDelta(t, 62.5, *created.Health.UsedLimit.Percent, 1e-9)

	resp = post(t, ts, token, body)
	require.Equal(t, http.StatusOK, resp.StatusCode, "identical payload is a duplicate")
	require.Equal(t, created.SnapshotID, decodeView(t, resp.Body).SnapshotID)

	got, err := http.Get(ts.URL + "/v1/accounts/" + strings.ToLower(testAccount) + "/view")
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	current := decodeView(t, got.Body)
	require.Equal(t, created.SnapshotID, current.SnapshotID)
	require.Equal(t, "300.000000000000000000", *current.Health.AvailableToBorrowUSD)
	require.NotNil(t, current.AsOf)

	hist, err := http.Get(ts.URL + "/v1/accounts/" + testAccount + "/snapshots")
	require.NoError(t, err)
	defer hist.Body.Close()
	var history struct {
		Snapshots []historyItem `json:"snapshots"`
	}
	require.NoError(t, json.NewDecoder(hist.Body).Decode(&history))
	require.Len(t, history.Snapshots, 1)
	require.Equal(t, 2, history.Snapshots[0].Records)
}

func TestIngestAuth(t *testing.T) {
	_, ts := newTestServer(t, false)
	body := snapshotBody("0")
	require.Equal(t, http.StatusUnauthorized, post(t, ts, "", body).StatusCode)
	require.Equal(t, http.StatusUnauthorized, post(t, ts, "not-a-jwt", body).StatusCode)
	require.Equal(t, http.StatusForbidden, post(t, ts, ingestToken(t, "views:read"), body).StatusCode)
}

func TestIngestRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, false)
	token := ingestToken(t, "snapshots:write")

	cases := map[string]string{
		"json":    `{"chainId":`,
		"empty":   `{"chainId":1,"records":[]}`,
		"chain":   strings.Replace(snapshotBody("0"), `"chainId": 1`, `"chainId": 7`, 1),
		"account": strings.Replace(snapshotBody("0"), `"chainId": 1,`, `"chainId": 1, "account": "0x00000000000000000000000000000000000000bb",`, 1),
		"unknown": `{"chainId":1,"records":[],"extra":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, http.StatusBadRequest, post(t, ts, token, body).StatusCode)
		})
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/accounts/0x123/snapshots", strings.NewReader(snapshotBody("0")))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestDegradesBadRecords(t *testing.T) {
	_, ts := newTestServer(t, false)
	body := strings.Replace(snapshotBody("0"), `"borrowBalance": "0"`, `"borrowBalance": "1.5"`, 1)
	resp := post(t, ts, ingestToken(t, "snapshots:write"), body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	v := decodeView(t, resp.Body)
	require.Len(t, v.Warnings, 1)
	require.Equal(t, 1, v.Totals.Invalid)
}

func TestStrictIngestRejectsNegativeBalance(t *testing.T) {
	_, ts := newTestServer(t, true)
	resp := post(t, ts, ingestToken(t, "snapshots:write"), snapshotBody("-1"))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	got, err := http.Get(ts.URL + "/v1/accounts/" + testAccount + "/view")
	require.NoError(t, err)
	got.Body.Close()
	require.Equal(t, http.StatusNotFound, got.StatusCode, "rejected snapshots are not stored")
}

func TestViewErrors(t *testing.T) {
	_, ts := newTestServer(t, false)
	base := "/v1/accounts/" + testAccount + "/view"
	cases := []struct {
		path   string
		status int
	}{
		{base, http.StatusNotFound},
		{base + "?chainId=9", http.StatusNotFound},
		{base + "?chainId=one", http.StatusBadRequest},
		{"/v1/accounts/nope/view", http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, err := http.Get(ts.URL + tc.path)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
}

func TestMarketsAndHealth(t *testing.T) {
	_, ts := newTestServer(t, false)
	resp, err := http.Get(ts.URL + "/v1/chains/1/markets")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Markets []marketListing `json:"markets"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Markets, 2)
	require.Equal(t, "cUSDC", listing.Markets[0].Symbol)
	require.Equal(t, uint8(6), listing.Markets[0].UnderlyingDecimals)

	missing, err := http.Get(ts.URL + "/v1/chains/42/markets")
	require.NoError(t, err)
	missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, false)
	post(t, ts, ingestToken(t, "snapshots:write"), snapshotBody("500000000000000000000"))

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "lendboard_http_requests_total")
	require.Contains(t, string(raw), "lendboard_ingest_snapshots_total")
}

func TestStreamDeliversViews(t *testing.T) {
	srv, ts := newTestServer(t, false)
	token := ingestToken(t, "snapshots:write")
	require.Equal(t, http.StatusCreated, post(t, ts, token, snapshotBody("500000000000000000000")).StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/accounts/" + testAccount + "/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var initial view.View
	require.NoError(t, json.Unmarshal(data, &initial))
	require.Equal(t, "500.000000000000000000", *initial.Totals.BorrowValueUSD)
	account, err := view.NormalizeAccount(testAccount)
	require.NoError(t, err)
	require.Equal(t, 1, srv.hub.count(topicFor(1, account)))

	require.Equal(t, http.StatusCreated, post(t, ts, token, snapshotBody("700000000000000000000")).StatusCode)
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	var next view.View
	require.NoError(t, json.NewDecoder(bytes.NewReader(data)).Decode(&next))
	require.Equal(t, "700.000000000000000000", *next.Totals.BorrowValueUSD)
	require.NotEqual(t, initial.SnapshotID, next.SnapshotID)
}
