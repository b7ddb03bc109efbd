// Package gateway wires the catalog, resolver, fallback client, usage
// ledger and settings store into one service. The API server and the
// CLI both talk to a Gateway; nothing below this layer knows about
// HTTP or flags.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfarelabs/faregate/internal/agents"
	"github.com/wayfarelabs/faregate/internal/catalog"
	"github.com/wayfarelabs/faregate/internal/config"
	"github.com/wayfarelabs/faregate/internal/costs"
	"github.com/wayfarelabs/faregate/internal/llm"
	. "github.com/wayfarelabs/faregate/internal/logging"
	. "github.com/wayfarelabs/faregate/internal/metrics"
	"github.com/wayfarelabs/faregate/internal/paths"
	"github.com/wayfarelabs/faregate/internal/settings"
)

// Request is one inbound completion request. Role selects the model
// defaults; TenantID selects the settings overlay. Model, MaxTokens and
// Temperature override the resolved values for this call only.
type Request struct {
	Role     string
	TenantID string
	Messages []llm.Message

	Model       string
	MaxTokens   int
	Temperature *float64
	JSONMode    bool
}

// Reply is the terminal outcome of one request. Either Success is true
// and the payload fields are set, or Success is false and Error carries
// a user-presentable message with the provider code (when known) in
// Code.
type Reply struct {
	Success       bool    `json:"success"`
	Text          string  `json:"text,omitempty"`
	InputTokens   int     `json:"inputTokens,omitempty"`
	OutputTokens  int     `json:"outputTokens,omitempty"`
	ModelUsed     string  `json:"modelUsed,omitempty"`
	FallbackCount int     `json:"fallbackCount,omitempty"`
	Cost          float64 `json:"cost,omitempty"`
	Error         string  `json:"error,omitempty"`
	Code          string  `json:"code,omitempty"`
}

// ChainEstimate describes the fallback chain a primary model would walk
// and the worst-case spend if every candidate ran to completion.
type ChainEstimate struct {
	Chain             []string `json:"chain"`
	EstInputTokens    int      `json:"estInputTokens"`
	EstOutputTokens   int      `json:"estOutputTokens"`
	WorstCaseCost     float64  `json:"worstCaseCost"`
	WorstCaseCostText string   `json:"worstCaseCostText"`
}

// Gateway is the central service layer. One Registry, one Tracker, one
// Resolver, one SettingsCache, one Client, one Store; all construction
// happens in New so there is a single place to read the wiring.
type Gateway struct {
	config     *config.Config
	registry   *catalog.Registry
	controller *llm.Controller
	client     *llm.Client
	resolver   *agents.Resolver
	cache      *agents.SettingsCache
	tracker    *costs.Tracker
	reporter   *costs.Reporter
	store      settings.Store
	startTime  time.Time
}

// New builds a Gateway from a validated config. Transports are created
// per provider entry and aliased under each route, so a single
// OpenRouter entry can serve every catalog provider it routes for.
func New(cfg *config.Config) (*Gateway, error) {
	overrides := cfg.Catalog.OverridesPath
	if overrides != "" {
		expanded, err := paths.ExpandTilde(overrides)
		if err != nil {
			L_warn("gateway: cannot expand catalog overrides path", "path", overrides, "error", err)
			overrides = ""
		} else {
			overrides = expanded
		}
	}

	registry, err := catalog.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}
	L_info("catalog: ready", "models", registry.Len())

	transports := make(map[string]llm.Transport)
	for name, pc := range cfg.Providers {
		tr, err := llm.NewTransport(name, llm.TransportConfig{
			Driver:         pc.Driver,
			APIKey:         pc.APIKey,
			BaseURL:        pc.BaseURL,
			SkipValidation: cfg.SkipValidation,
		}, registry)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		transports[name] = tr
		for _, route := range pc.Routes {
			transports[route] = tr
		}
		L_debug("gateway: provider configured",
			"provider", name, "driver", pc.Driver, "routes", len(pc.Routes))
	}

	// Catalog providers nobody claimed go through the default provider,
	// which in the stock config is an OpenRouter-style gateway that can
	// serve any routing id verbatim.
	if def := cfg.DefaultProvider; def != "" {
		if fallback, ok := transports[def]; ok {
			for _, m := range registry.All() {
				provider := string(m.Provider)
				if _, claimed := transports[provider]; !claimed {
					L_debug("gateway: provider routed through default",
						"provider", provider, "via", def)
					transports[provider] = fallback
				}
			}
		}
	}

	controller := llm.NewController(registry)

	var store settings.Store
	if cfg.Settings.Persist {
		dataDir, err := paths.BaseDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		s, err := settings.NewSQLiteStore(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open settings store: %w", err)
		}
		store = s
		L_info("settings: sqlite store ready", "dir", dataDir)
	} else {
		store = settings.NewMemoryStore()
		L_debug("settings: using in-memory store")
	}

	g := &Gateway{
		config:     cfg,
		registry:   registry,
		controller: controller,
		client:     llm.NewClient(registry, controller, transports, 0),
		resolver:   agents.NewResolver(registry),
		cache:      agents.NewSettingsCache(cfg.Settings.CacheTTL()),
		tracker:    costs.NewTracker(registry),
		store:      store,
		startTime:  time.Now(),
	}

	if cfg.Usage.ReportSchedule != "" {
		rep, err := costs.NewReporter(g.tracker, cfg.Usage.ReportSchedule)
		if err != nil {
			return nil, fmt.Errorf("invalid report schedule %q: %w", cfg.Usage.ReportSchedule, err)
		}
		g.reporter = rep
	}

	return g, nil
}

// Start brings up the background pieces: ledger persistence and the
// scheduled usage report. Safe to skip entirely for ephemeral use.
func (g *Gateway) Start() error {
	if g.config.Usage.Persist {
		dataDir, err := paths.BaseDir()
		if err != nil {
			return fmt.Errorf("failed to resolve data directory: %w", err)
		}
		g.tracker.InitPersistence(dataDir)
	}

	if g.reporter != nil {
		if err := g.reporter.Start(); err != nil {
			return fmt.Errorf("failed to start usage reporter: %w", err)
		}
		L_info("gateway: usage reporter scheduled", "schedule", g.config.Usage.ReportSchedule)
	}

	return nil
}

// Shutdown flushes and closes every stateful component. Each close
// failure is logged, none abort the rest.
func (g *Gateway) Shutdown() {
	L_info("gateway: shutting down")

	if g.reporter != nil {
		g.reporter.Stop()
	}

	if err := g.tracker.Close(); err != nil {
		L_warn("gateway: usage ledger close failed", "error", err)
	}

	if err := g.store.Close(); err != nil {
		L_warn("gateway: settings store close failed", "error", err)
	}
}

// Complete runs one chat request end to end: tenant settings, effective
// config, fallback execution, cost recording. It never returns an error
// value; failures come back as a Reply with Success false.
func (g *Gateway) Complete(ctx context.Context, req Request) Reply {
	timing := MetricStart("gateway", "complete")
	defer MetricEnd(timing)

	ts, err := g.cache.Get(ctx, req.TenantID, g.store.Fetch)
	if err != nil {
		// Config must never take down the request path. Resolve from
		// role defaults and keep going.
		L_warn("gateway: settings fetch failed, using role defaults",
			"tenant", req.TenantID, "role", req.Role, "error", err)
		ts = nil
	}

	eff := g.resolver.Resolve(req.Role, ts)
	if req.Model != "" {
		if _, ok := g.registry.Get(req.Model); ok {
			eff.ModelID = req.Model
		} else {
			L_warn("gateway: requested model not in catalog, keeping resolved model",
				"requested", req.Model, "resolved", eff.ModelID)
		}
	}
	if req.MaxTokens > 0 {
		eff.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		eff.Temperature = *req.Temperature
	}

	L_debug("gateway: executing request",
		"role", req.Role,
		"tenant", req.TenantID,
		"model", eff.ModelID,
		"maxTokens", eff.MaxTokens,
		"fallback", eff.EnableFallback)

	res := g.client.Execute(ctx, llm.ChatOptions{
		Model:           eff.ModelID,
		Messages:        req.Messages,
		MaxTokens:       eff.MaxTokens,
		Temperature:     &eff.Temperature,
		JSONMode:        req.JSONMode,
		FallbackOrder:   eff.FallbackOrder,
		DisableFallback: !eff.EnableFallback,
	})

	if !res.Success {
		L_warn("gateway: request failed",
			"role", req.Role,
			"model", res.ModelUsed,
			"code", res.Code,
			"error", res.Err)
		MetricFailWithReason("gateway", "complete", res.Code)
		return Reply{
			Success: false,
			Error:   llm.FormatErrorForUser(res.Err),
			Code:    res.Code,
		}
	}

	entry := g.tracker.Record(costs.Usage{
		Model:        res.ModelUsed,
		Role:         req.Role,
		InputTokens:  res.Response.InputTokens,
		OutputTokens: res.Response.OutputTokens,
		TenantID:     req.TenantID,
	})
	MetricSuccess("gateway", "complete")

	return Reply{
		Success:       true,
		Text:          res.Response.Text,
		InputTokens:   res.Response.InputTokens,
		OutputTokens:  res.Response.OutputTokens,
		ModelUsed:     res.ModelUsed,
		FallbackCount: res.FallbackCount,
		Cost:          entry.Cost,
	}
}

// EstimateFallback reports the candidate chain for a primary model and
// the worst-case cost of exhausting it at the given token sizes.
func (g *Gateway) EstimateFallback(model string, vision bool, estInput, estOutput int) ChainEstimate {
	chain := g.controller.Chain(model, llm.Options{RequiresVision: vision})
	cost := g.controller.EstimateChainCost(chain, estInput, estOutput)
	return ChainEstimate{
		Chain:             chain,
		EstInputTokens:    estInput,
		EstOutputTokens:   estOutput,
		WorstCaseCost:     cost,
		WorstCaseCostText: costs.FormatCost(cost),
	}
}

// TenantSettings returns the stored settings for a tenant, bypassing
// the cache so reads always see the latest write. Absent settings are
// (nil, nil).
func (g *Gateway) TenantSettings(ctx context.Context, tenantID string) (*settings.TenantSettings, error) {
	return g.store.Fetch(ctx, tenantID)
}

// SaveTenantSettings validates and persists one tenant's settings. A
// non-empty violations slice means nothing was saved; the save is
// all-or-nothing so a tenant can never store a half-valid overlay.
func (g *Gateway) SaveTenantSettings(ctx context.Context, tenantID string, ts *settings.TenantSettings) ([]string, error) {
	if violations := g.resolver.ValidateSettings(ts); len(violations) > 0 {
		return violations, nil
	}
	if err := g.store.Save(ctx, tenantID, ts); err != nil {
		return nil, fmt.Errorf("failed to save tenant settings: %w", err)
	}
	g.cache.Invalidate(tenantID)
	L_info("gateway: tenant settings updated", "tenant", tenantID)
	return nil, nil
}

// DeleteTenantSettings removes a tenant's stored settings so the tenant
// is back on role defaults.
func (g *Gateway) DeleteTenantSettings(ctx context.Context, tenantID string) error {
	if err := g.store.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant settings: %w", err)
	}
	g.cache.Invalidate(tenantID)
	L_info("gateway: tenant settings deleted", "tenant", tenantID)
	return nil
}

// Registry exposes the model catalog to the API layer.
func (g *Gateway) Registry() *catalog.Registry {
	return g.registry
}

// Tracker exposes the usage ledger to the API layer.
func (g *Gateway) Tracker() *costs.Tracker {
	return g.tracker
}

// Resolver exposes effective-config resolution to the API layer.
func (g *Gateway) Resolver() *agents.Resolver {
	return g.resolver
}

// Uptime reports how long this Gateway has been alive.
func (g *Gateway) Uptime() time.Duration {
	return time.Since(g.startTime)
}
