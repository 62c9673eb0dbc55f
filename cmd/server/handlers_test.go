package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/storecheck/purchase"
	"github.com/liamcoop/storecheck/rules"
	"github.com/liamcoop/storecheck/unlock"
)

// fakeVerifier answers every lookup the same way
type fakeVerifier struct {
	result *purchase.Verification
	err    error
}

func (f fakeVerifier) Verify(ctx context.Context, email string) (*purchase.Verification, error) {
	return f.result, f.err
}

func newTestServer(t *testing.T, verifier purchase.Verifier, opts Options) (*Server, *unlock.State) {
	t.Helper()
	state := unlock.NewState(nil)
	engine, err := rules.NewEngine(nil, state)
	require.NoError(t, err)

	opts.Engine = engine
	opts.State = state
	opts.Completer = purchase.NewCompleter(state, verifier)
	return NewServer(opts), state
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doRequestWithHeader(t, h, method, path, body, nil)
}

func doRequestWithHeader(t *testing.T, h http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(10), body["rules"])
	assert.Equal(t, false, body["unlocked"])
	assert.Contains(t, body, "counters")
}

func TestCheckLocked(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/check", CheckRequest{Text: "A short listing."})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CheckResponse](t, rec)
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err)
	assert.Len(t, resp.Results, 10)
	assert.Equal(t, 7, resp.Counts.Locked)
	assert.Equal(t, 10, resp.Counts.Total())
	assert.False(t, resp.Unlocked)
	assert.Contains(t, resp.CopyText, "[LOCKED]")
	assert.NotEmpty(t, resp.EvaluationTime)
}

func TestCheckInputErrors(t *testing.T) {
	testCases := []struct {
		name string
		body any
		want string
	}{
		{"Empty input", CheckRequest{Text: "   "}, rules.ErrNoInput.Error()},
		{"Reference only", CheckRequest{URL: "https://store.steampowered.com/app/1/"}, rules.ErrReferenceOnly.Error()},
		{"Invalid JSON", "{not json", "invalid request body"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, nil, Options{})
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/check", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.want, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestCheckReferencePlaceholder(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{Policy: rules.ReferencePlaceholder})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/check", CheckRequest{URL: "https://store.steampowered.com/app/1/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[CheckResponse](t, rec).Results, 10)
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestCheckoutUnlocksAndResets(t *testing.T) {
	verified := fakeVerifier{result: &purchase.Verification{Verified: true, TransactionCount: 1}}
	srv, state := newTestServer(t, verified, Options{AdminToken: "operator-secret"})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/unlock", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[UnlockResponse](t, rec).Unlocked)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", purchase.Event{Event: "checkout.loaded"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[UnlockResponse](t, rec).Unlocked)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", purchase.Event{Event: purchase.EventCheckoutCompleted, Email: "buyer@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[UnlockResponse](t, rec).Unlocked)
	assert.True(t, state.Unlocked())

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/check", CheckRequest{Text: "A short listing."})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[CheckResponse](t, rec).Counts.Locked)

	rec = doRequestWithHeader(t, srv, http.MethodDelete, "/api/v1/unlock", nil, bearer("operator-secret"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, state.Unlocked())
}

func TestCheckoutWithoutVerifierIsRefused(t *testing.T) {
	srv, state := newTestServer(t, nil, Options{})

	for _, ev := range []purchase.Event{
		{Event: purchase.EventCheckoutCompleted},
		{Event: purchase.EventCheckoutCompleted, Email: "buyer@example.com"},
	} {
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", ev)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	assert.False(t, state.Unlocked())

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/unlock", nil)
	assert.False(t, decode[UnlockResponse](t, rec).Unlocked)
}

func TestCheckoutTrustedWhenVerificationDisabled(t *testing.T) {
	state := unlock.NewState(nil)
	engine, err := rules.NewEngine(nil, state)
	require.NoError(t, err)
	srv := NewServer(Options{
		Engine:    engine,
		State:     state,
		Completer: purchase.NewCompleter(state, nil).TrustCheckoutEvents(),
	})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", purchase.Event{Event: purchase.EventCheckoutCompleted})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, state.Unlocked())
}

func TestResetUnlockRequiresAdminToken(t *testing.T) {
	testCases := []struct {
		name       string
		adminToken string
		header     http.Header
	}{
		{"Not configured", "", bearer("")},
		{"Missing header", "operator-secret", nil},
		{"Wrong scheme", "operator-secret", http.Header{"Authorization": []string{"Basic operator-secret"}}},
		{"Wrong token", "operator-secret", bearer("guess")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, state := newTestServer(t, nil, Options{AdminToken: tc.adminToken})
			require.NoError(t, state.Unlock(context.Background()))

			rec := doRequestWithHeader(t, srv, http.MethodDelete, "/api/v1/unlock", nil, tc.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.True(t, state.Unlocked())
		})
	}
}

func TestCheckoutVerificationErrors(t *testing.T) {
	testCases := []struct {
		name     string
		verifier fakeVerifier
		want     int
	}{
		{"No purchase", fakeVerifier{result: &purchase.Verification{}}, http.StatusPaymentRequired},
		{"Provider down", fakeVerifier{err: purchase.ErrVerificationUnavailable}, http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, state := newTestServer(t, tc.verifier, Options{})
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", purchase.Event{Event: purchase.EventCheckoutCompleted, Email: "buyer@example.com"})
			assert.Equal(t, tc.want, rec.Code)
			assert.False(t, state.Unlocked())
		})
	}
}

func TestVerifyPurchase(t *testing.T) {
	testCases := []struct {
		name         string
		verifier     purchase.Verifier
		method       string
		body         any
		wantStatus   int
		wantSuccess  bool
		wantError    string
		wantUnlocked bool
	}{
		{
			name:       "Method not allowed",
			verifier:   fakeVerifier{},
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantError:  "Method not allowed",
		},
		{
			name:       "Missing email",
			verifier:   fakeVerifier{},
			method:     http.MethodPost,
			body:       VerifyPurchaseRequest{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Email is required",
		},
		{
			name:       "Not configured",
			method:     http.MethodPost,
			body:       VerifyPurchaseRequest{Email: "buyer@example.com"},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Server configuration error",
		},
		{
			name:       "No purchase",
			verifier:   fakeVerifier{result: &purchase.Verification{Message: "No purchase found for this email"}},
			method:     http.MethodPost,
			body:       VerifyPurchaseRequest{Email: "buyer@example.com"},
			wantStatus: http.StatusOK,
			wantError:  "No purchase found for this email",
		},
		{
			name:       "Provider down",
			verifier:   fakeVerifier{err: purchase.ErrVerificationUnavailable},
			method:     http.MethodPost,
			body:       VerifyPurchaseRequest{Email: "buyer@example.com"},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Unable to verify purchase",
		},
		{
			name:         "Verified",
			verifier:     fakeVerifier{result: &purchase.Verification{Verified: true, TransactionCount: 2, Message: "Purchase verified"}},
			method:       http.MethodPost,
			body:         VerifyPurchaseRequest{Email: "buyer@example.com"},
			wantStatus:   http.StatusOK,
			wantSuccess:  true,
			wantUnlocked: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, state := newTestServer(t, tc.verifier, Options{})
			rec := doRequest(t, srv, tc.method, "/api/verify-purchase", tc.body)
			require.Equal(t, tc.wantStatus, rec.Code)

			resp := decode[VerifyPurchaseResponse](t, rec)
			assert.Equal(t, tc.wantSuccess, resp.Success)
			assert.Equal(t, tc.wantError, resp.Error)
			assert.Equal(t, tc.wantUnlocked, state.Unlocked())
			if tc.wantSuccess {
				assert.Equal(t, "Purchase verified", resp.Message)
				assert.Equal(t, 2, resp.TransactionCount)
			}
		})
	}
}

func TestVerifyPurchasePreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rec := doRequest(t, srv, http.MethodOptions, "/api/verify-purchase", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestVerifyPurchaseRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, fakeVerifier{result: &purchase.Verification{}}, Options{RateLimit: 0.001, RateBurst: 2})
	body := VerifyPurchaseRequest{Email: "buyer@example.com"}

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodPost, "/api/verify-purchase", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/verify-purchase", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, decode[VerifyPurchaseResponse](t, rec).Success)
}

func TestRateLimitIgnoresForwardedFor(t *testing.T) {
	srv, _ := newTestServer(t, fakeVerifier{result: &purchase.Verification{}}, Options{RateLimit: 0.001, RateBurst: 2})
	body := VerifyPurchaseRequest{Email: "buyer@example.com"}

	codes := make([]int, 0, 3)
	for _, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		rec := doRequestWithHeader(t, srv, http.MethodPost, "/api/verify-purchase", body, http.Header{"X-Forwarded-For": []string{ip}})
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	srv, _ := newTestServer(t, fakeVerifier{result: &purchase.Verification{}}, Options{RateLimit: 0.001, RateBurst: 1, TrustProxy: true})
	body := VerifyPurchaseRequest{Email: "buyer@example.com"}

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		rec := doRequestWithHeader(t, srv, http.MethodPost, "/api/verify-purchase", body, http.Header{"X-Forwarded-For": []string{ip}})
		assert.Equal(t, http.StatusOK, rec.Code, ip)
	}

	rec := doRequestWithHeader(t, srv, http.MethodPost, "/api/verify-purchase", body, http.Header{"X-Forwarded-For": []string{"203.0.113.1"}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCheckoutEventsRateLimited(t *testing.T) {
	srv, state := newTestServer(t, fakeVerifier{result: &purchase.Verification{}}, Options{RateLimit: 0.001, RateBurst: 1})
	ev := purchase.Event{Event: purchase.EventCheckoutCompleted, Email: "buyer@example.com"}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", ev)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/checkout/events", ev)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, state.Unlocked())
}

func TestCustomRuleLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})
	refund := DefinitionRequest{
		ID:          "refund-policy",
		Name:        "Refund Policy Reference",
		Expression:  `lower.contains("refund")`,
		FailMessage: "Mention the store refund policy",
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/rules/custom", refund)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[rules.Definition](t, rec)
	assert.True(t, created.Active)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/rules/custom", refund)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	catalogue := decode[struct {
		Rules []RuleSummary `json:"rules"`
	}](t, rec)
	require.Len(t, catalogue.Rules, 11)
	assert.Equal(t, "builtin", catalogue.Rules[0].Source)
	assert.Equal(t, RuleSummary{ID: "refund-policy", Name: "Refund Policy Reference", Source: "custom"}, catalogue.Rules[10])

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/check", CheckRequest{Text: "Refunds are handled by the store."})
	require.Equal(t, http.StatusOK, rec.Code)
	last := decode[CheckResponse](t, rec).Results[10]
	assert.Equal(t, rules.SeverityPass, last.Severity)

	refund.Name = "Refund Policy"
	rec = doRequest(t, srv, http.MethodPut, "/api/v1/rules/custom/refund-policy", refund)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Refund Policy", decode[rules.Definition](t, rec).Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/custom/refund-policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Refund Policy", decode[rules.Definition](t, rec).Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/custom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]rules.Definition](t, rec)["rules"], 1)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/rules/custom/refund-policy", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/rules/custom/refund-policy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rules/custom/refund-policy", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomRuleErrors(t *testing.T) {
	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"Syntax error", http.MethodPost, "/api/v1/rules/custom", DefinitionRequest{ID: "bad", Name: "Bad", Expression: "lower.contains("}, http.StatusBadRequest},
		{"Builtin ID", http.MethodPost, "/api/v1/rules/custom", DefinitionRequest{ID: rules.RuleExternalLinks, Name: "Links", Expression: "true"}, http.StatusBadRequest},
		{"Invalid JSON", http.MethodPost, "/api/v1/rules/custom", "{", http.StatusBadRequest},
		{"Update unknown", http.MethodPut, "/api/v1/rules/custom/missing", DefinitionRequest{Name: "Missing", Expression: "true"}, http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, nil, Options{})
			rec := doRequest(t, srv, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCustomRuleGeneratedID(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/rules/custom", DefinitionRequest{Name: "Controller Support", Expression: `lower.contains("controller")`})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode[rules.Definition](t, rec).ID, "rule-"))
}
