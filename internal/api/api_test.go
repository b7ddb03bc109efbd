package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wayfarelabs/faregate/internal/catalog"
	"github.com/wayfarelabs/faregate/internal/config"
	"github.com/wayfarelabs/faregate/internal/gateway"
)

// newChatUpstream fakes an OpenAI-compatible endpoint. The script gets
// the 1-based request ordinal and the wire model id.
func newChatUpstream(t *testing.T, script func(n int, model string, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	var n int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding upstream request: %v", err)
		}
		n++
		script(n, req.Model, w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func chatOK(w http.ResponseWriter, model string, inTok, outTok int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": "ok"},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": inTok, "completion_tokens": outTok, "total_tokens": inTok + outTok},
	})
}

func chatErr(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": code, "code": code},
	})
}

// newTestRouter builds a full gateway against the fake upstream and
// returns the wired router.
func newTestRouter(t *testing.T, upstreamURL, authToken string) (*gin.Engine, *gateway.Gateway) {
	t.Helper()
	cfg := config.Default()
	cfg.DefaultProvider = "upstream"
	cfg.Providers = map[string]config.ProviderConfig{
		"upstream": {
			Driver:  "openai",
			APIKey:  "test-key",
			BaseURL: upstreamURL,
			Routes:  []string{"anthropic", "openai", "google", "meta-llama", "mistralai"},
		},
	}
	cfg.Usage.Persist = false
	cfg.Usage.ReportSchedule = ""
	cfg.Settings.Persist = false
	cfg.Catalog.OverridesPath = ""
	cfg.API.AuthToken = authToken

	g, err := gateway.New(cfg)
	if err != nil {
		t.Fatalf("gateway.New failed: %v", err)
	}
	t.Cleanup(g.Shutdown)

	return NewRouter(g, cfg.API, "test"), g
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, g := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", w.Code)
	}

	var body struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Models  int    `json:"models"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body.Status != "healthy" || body.Service != "faregate" {
		t.Errorf("health = %+v, want healthy/faregate", body)
	}
	if body.Models != g.Registry().Len() {
		t.Errorf("models = %d, want %d", body.Models, g.Registry().Len())
	}
}

func TestChatEndpoint(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 40, 12) })
	router, _ := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodPost, "/v1/chat",
		`{"role":"categorize","tenantId":"trip-11","messages":[{"role":"user","content":"dinner 84.20 EUR, 4 people"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("POST /v1/chat = %d, body %s", w.Code, w.Body.String())
	}

	var reply gateway.Reply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if !reply.Success {
		t.Fatalf("reply not successful: %s", reply.Error)
	}
	if reply.ModelUsed != "anthropic/claude-3-haiku" {
		t.Errorf("modelUsed = %q, want role default", reply.ModelUsed)
	}
	if reply.InputTokens != 40 || reply.OutputTokens != 12 {
		t.Errorf("tokens = %d/%d, want 40/12", reply.InputTokens, reply.OutputTokens)
	}
	if reply.Cost <= 0 {
		t.Errorf("cost = %v, want > 0", reply.Cost)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, _ := newTestRouter(t, srv.URL, "")

	cases := []struct {
		// bad request bodies that must never reach the upstream
		name string
		body string
	}{
		{"missing role", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"no messages", `{"role":"categorize"}`},
		{"empty messages", `{"role":"categorize","messages":[]}`},
		{"malformed json", `{"role":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/chat", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("POST /v1/chat = %d, want 400", w.Code)
			}
		})
	}
}

func TestChatEndpointUpstreamFailure(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) {
		chatErr(w, http.StatusBadRequest, "invalid_request_error", "messages: too long")
	})
	router, _ := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodPost, "/v1/chat",
		`{"role":"receipt","messages":[{"role":"user","content":"scan"}]}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("POST /v1/chat = %d, want 502", w.Code)
	}

	var reply gateway.Reply
	if err := json.Unmarshal(w.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decoding reply: %v", err)
	}
	if reply.Success {
		t.Error("reply.Success = true on upstream failure")
	}
	if reply.Code != "invalid_request_error" {
		t.Errorf("reply.Code = %q, want invalid_request_error", reply.Code)
	}
}

func TestModelsEndpoint(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, g := newTestRouter(t, srv.URL, "")

	type listResponse struct {
		Count int                       `json:"count"`
		Data  []catalog.ModelDefinition `json:"data"`
	}

	w := doJSON(t, router, http.MethodGet, "/v1/models", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /v1/models = %d", w.Code)
	}
	var all listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decoding models: %v", err)
	}
	if all.Count != g.Registry().Len() {
		t.Errorf("count = %d, want %d", all.Count, g.Registry().Len())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/models?provider=anthropic", "")
	var byProvider listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &byProvider); err != nil {
		t.Fatalf("decoding provider filter: %v", err)
	}
	if byProvider.Count == 0 {
		t.Fatal("provider filter returned nothing")
	}
	for _, m := range byProvider.Data {
		if m.Provider != catalog.ProviderAnthropic {
			t.Errorf("provider filter leaked %s (%s)", m.ID, m.Provider)
		}
	}

	w = doJSON(t, router, http.MethodGet, "/v1/models?capability=vision", "")
	var byCap listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &byCap); err != nil {
		t.Fatalf("decoding capability filter: %v", err)
	}
	if byCap.Count == 0 {
		t.Fatal("capability filter returned nothing")
	}
	for _, m := range byCap.Data {
		if !m.Capabilities.Vision {
			t.Errorf("capability filter leaked non-vision model %s", m.ID)
		}
	}
}

func TestCheapestModelEndpoint(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, g := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodGet, "/v1/models/cheapest?task=simple", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /v1/models/cheapest = %d", w.Code)
	}
	var m catalog.ModelDefinition
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding model: %v", err)
	}
	if want := g.Registry().Cheapest(catalog.TaskSimple).ID; m.ID != want {
		t.Errorf("cheapest = %s, want %s", m.ID, want)
	}
}

func TestUsageEndpoints(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 100, 50) })
	router, _ := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodPost, "/v1/chat",
		`{"role":"settlement","tenantId":"trip-77","messages":[{"role":"user","content":"settle up"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("seeding chat failed: %d %s", w.Code, w.Body.String())
	}

	var summary struct {
		RequestCount int     `json:"requestCount"`
		TotalCost    float64 `json:"totalCost"`
	}
	w = doJSON(t, router, http.MethodGet, "/v1/usage/summary", "")
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.RequestCount != 1 || summary.TotalCost <= 0 {
		t.Errorf("summary = %+v, want 1 request with cost", summary)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/usage/summary?tenant=trip-77", "")
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding tenant summary: %v", err)
	}
	if summary.RequestCount != 1 {
		t.Errorf("tenant summary requestCount = %d, want 1", summary.RequestCount)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/usage/summary?tenant=someone-else", "")
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding empty tenant summary: %v", err)
	}
	if summary.RequestCount != 0 {
		t.Errorf("unknown tenant requestCount = %d, want 0", summary.RequestCount)
	}

	var entries struct {
		Count int `json:"count"`
		Data  []struct {
			Model    string `json:"model"`
			TenantID string `json:"tenantId"`
		} `json:"data"`
	}
	w = doJSON(t, router, http.MethodGet, "/v1/usage/entries", "")
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding entries: %v", err)
	}
	if entries.Count != 1 || entries.Data[0].TenantID != "trip-77" {
		t.Errorf("entries = %+v, want one entry for trip-77", entries)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/usage/entries?tenant=someone-else", "")
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decoding filtered entries: %v", err)
	}
	if entries.Count != 0 {
		t.Errorf("filtered entries count = %d, want 0", entries.Count)
	}
}

func TestTenantSettingsEndpoints(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, _ := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodGet, "/v1/tenants/trip-3/settings", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET before store = %d, want 404", w.Code)
	}

	// Two violations, both reported in one response.
	w = doJSON(t, router, http.MethodPut, "/v1/tenants/trip-3/settings",
		`{"defaults":{"temperature":9},"agents":{"categorize":{"modelId":"acme/ghost"}}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("PUT invalid = %d, want 422; body %s", w.Code, w.Body.String())
	}
	var invalid struct {
		Violations []string `json:"violations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &invalid); err != nil {
		t.Fatalf("decoding violations: %v", err)
	}
	if len(invalid.Violations) != 2 {
		t.Errorf("violations = %v, want 2", invalid.Violations)
	}

	w = doJSON(t, router, http.MethodPut, "/v1/tenants/trip-3/settings",
		`{"agents":{"categorize":{"modelId":"openai/gpt-4o-mini","maxTokens":512}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PUT valid = %d; body %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/v1/tenants/trip-3/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET after store = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "openai/gpt-4o-mini") {
		t.Errorf("stored settings missing model: %s", w.Body.String())
	}

	w = doJSON(t, router, http.MethodDelete, "/v1/tenants/trip-3/settings", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/v1/tenants/trip-3/settings", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", w.Code)
	}
}

func TestFallbackEstimateEndpoint(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, _ := newTestRouter(t, srv.URL, "")

	w := doJSON(t, router, http.MethodGet, "/v1/fallback/estimate", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing model = %d, want 400", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/fallback/estimate?model=acme/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown model = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodGet,
		"/v1/fallback/estimate?model=openai/gpt-4o-mini&inputTokens=2000&outputTokens=800", "")
	if w.Code != http.StatusOK {
		t.Fatalf("estimate = %d", w.Code)
	}
	var est gateway.ChainEstimate
	if err := json.Unmarshal(w.Body.Bytes(), &est); err != nil {
		t.Fatalf("decoding estimate: %v", err)
	}
	if len(est.Chain) == 0 || est.Chain[0] != "openai/gpt-4o-mini" {
		t.Errorf("chain = %v, want primary first", est.Chain)
	}
	if est.EstInputTokens != 2000 || est.EstOutputTokens != 800 {
		t.Errorf("token sizes = %d/%d, want 2000/800", est.EstInputTokens, est.EstOutputTokens)
	}
	if est.WorstCaseCost <= 0 {
		t.Errorf("worst case cost = %v, want > 0", est.WorstCaseCost)
	}
}

func TestBearerAuth(t *testing.T) {
	srv := newChatUpstream(t, func(n int, model string, w http.ResponseWriter) { chatOK(w, model, 1, 1) })
	router, _ := newTestRouter(t, srv.URL, "sekret")

	// Health stays open.
	if w := doJSON(t, router, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", w.Code)
	}

	if w := doJSON(t, router, http.MethodGet, "/v1/models", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/v1/models", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/v1/models", "", "Authorization", "Bearer sekret"); w.Code != http.StatusOK {
		t.Errorf("bearer token = %d, want 200", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/v1/models", "", "Authorization", "sekret"); w.Code != http.StatusOK {
		t.Errorf("bare token = %d, want 200", w.Code)
	}
}
