// Package v1 exposes the citizen-facing REST API.
package v1

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/civicsense/ai"
	"github.com/hrygo/civicsense/ai/agents"
	"github.com/hrygo/civicsense/ai/classifier"
	"github.com/hrygo/civicsense/ai/core/llm"
	"github.com/hrygo/civicsense/ai/metrics"
	"github.com/hrygo/civicsense/ai/orchestrator"
	"github.com/hrygo/civicsense/ai/retrieval"
	"github.com/hrygo/civicsense/ai/validator"
	"github.com/hrygo/civicsense/internal/profile"
	"github.com/hrygo/civicsense/store"
)

// turnHandler is the orchestration dependency of the chat endpoint.
type turnHandler interface {
	HandleTurn(ctx context.Context, req *orchestrator.TurnRequest) *orchestrator.TurnResult
}

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *metrics.PrometheusExporter

	orchestrator turnHandler
}

// NewAPIV1Service assembles the request pipeline: generation clients,
// classifier, validator, agents, and orchestrator. When assistant
// features are disabled or misconfigured the service still starts;
// the chat endpoint reports unavailability instead.
func NewAPIV1Service(instanceProfile *profile.Profile, storeInstance *store.Store) *APIV1Service {
	service := &APIV1Service{
		Profile: instanceProfile,
		Store:   storeInstance,
		Metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
	}

	orch, err := buildOrchestrator(instanceProfile, storeInstance, service.Metrics)
	if err != nil {
		slog.Warn("assistant pipeline disabled", "error", err)
		return service
	}
	service.orchestrator = orch
	return service
}

func buildOrchestrator(instanceProfile *profile.Profile, storeInstance *store.Store, exporter *metrics.PrometheusExporter) (*orchestrator.Orchestrator, error) {
	aiConfig := ai.NewConfigFromProfile(instanceProfile)
	if !aiConfig.Enabled {
		return nil, errors.New("assistant features are not configured")
	}
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate assistant config")
	}

	mainSet, err := llm.NewService(&aiConfig.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "initialize generation service")
	}
	slog.Info("generation service initialized",
		"provider", aiConfig.LLM.Provider,
		"model", aiConfig.LLM.Model,
	)

	// The classifier fallback runs on a lightweight model when one is
	// configured, otherwise it shares the main client.
	intentSet := mainSet
	if aiConfig.Intent != aiConfig.LLM {
		intentSet, err = llm.NewService(&aiConfig.Intent)
		if err != nil {
			slog.Warn("intent model unavailable, classifier falls back to main model", "error", err)
			intentSet = mainSet
		}
	}

	safetySet := mainSet
	if aiConfig.Safety != aiConfig.LLM {
		safetySet, err = llm.NewService(&aiConfig.Safety)
		if err != nil {
			slog.Warn("safety endpoint unavailable, moderation uses main provider", "error", err)
			safetySet = mainSet
		}
	}

	// Warmup is best effort and off the startup path.
	go func() {
		warmupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mainSet.Generator.Warmup(warmupCtx)
	}()

	var sources []retrieval.KnowledgeSource
	if pg, ok := storeInstance.Driver().(interface{ DB() *sql.DB }); ok {
		vectorSource := retrieval.NewVectorSource(pg.DB(), mainSet.Embedder)
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := vectorSource.Migrate(migrateCtx); err != nil {
			slog.Warn("knowledge corpus schema migration failed, lookups disabled", "error", err)
		} else {
			sources = append(sources, vectorSource)
		}
	} else {
		slog.Info("knowledge corpus requires postgres, answers run without citations", "driver", instanceProfile.Driver)
	}

	factCheck := agents.NewFactCheckAgent(mainSet.Generator, sources, aiConfig.LookupTimeout, aiConfig.RetryAttempts)
	registry, err := orchestrator.NewRegistry(map[classifier.Intent]agents.Agent{
		classifier.IntentKnowledge: agents.NewKnowledgeAgent(mainSet.Generator, sources, factCheck, aiConfig.LookupTimeout, aiConfig.RetryAttempts),
		classifier.IntentFactCheck: factCheck,
		classifier.IntentGuidance:  agents.NewGuideAgent(mainSet.Generator, aiConfig.RetryAttempts),
		classifier.IntentComplaint: agents.NewComplaintAgent(mainSet.Generator, storeInstance, aiConfig.Policy.StoreTimeout, aiConfig.RetryAttempts),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build agent registry")
	}

	return orchestrator.New(
		storeInstance,
		classifier.New(intentSet.Generator, aiConfig.ConfidenceThreshold),
		validator.New(safetySet.Safety, aiConfig.AllowedDomains),
		registry,
		agents.NewLanguageAgent(intentSet.Generator, instanceProfile.DefaultLang, aiConfig.RetryAttempts),
		exporter,
		aiConfig.Policy,
	), nil
}

// RegisterRoutes attaches the v1 endpoints to the Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	apiGroup := echoServer.Group("/api/v1")
	apiGroup.POST("/chat", s.Chat)
	apiGroup.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
}
