package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/funnel-platform/internal/flow"
	"github.com/capitalize-ai/funnel-platform/internal/llm"
	"github.com/capitalize-ai/funnel-platform/internal/model"
	"github.com/capitalize-ai/funnel-platform/internal/store"
	"github.com/capitalize-ai/funnel-platform/pkg/logger"
	"github.com/capitalize-ai/funnel-platform/pkg/metrics"
)

const generationSystemPrompt = `You design conversational sales funnels. Reply with a single JSON object and nothing else. The object has this shape:
{"startBlockId": "<block id>", "stages": [{"id": "<stage id>", "name": "<STAGE_NAME>", "explanation": "<one sentence>", "blockIds": ["<block id>", ...]}], "blocks": {"<block id>": {"id": "<block id>", "message": "<bot message>", "options": [{"text": "<choice>", "nextBlockId": "<block id or null>"}], "resourceName": "<optional resource name>"}}}
Rules: every block belongs to exactly one stage; every nextBlockId refers to an existing block or is null; the graph must be acyclic and every block reachable from startBlockId; stage names are upper snake case like WELCOME, VALUE_DELIVERY, OFFER; offer blocks reference one of the merchant's resources by resourceName.`

// GenerationConfig holds the generation pipeline settings.
type GenerationConfig struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// GenerationService runs the AI flow generation pipeline for funnels.
type GenerationService struct {
	store  *store.Store
	llm    llm.Client
	cfg    GenerationConfig
	logger *logger.Logger
}

// NewGenerationService creates a new generation service. The LLM client may
// be nil when no provider key is configured; Start then fails fast.
func NewGenerationService(st *store.Store, client llm.Client, cfg GenerationConfig, log *logger.Logger) *GenerationService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &GenerationService{
		store:  st,
		llm:    client,
		cfg:    cfg,
		logger: log,
	}
}

// Start begins generating a flow for the funnel and returns the accepted
// snapshot. The status flip to "generating" is a single atomic store update,
// so two concurrent starts (two dashboard tabs) cannot both win: the loser
// gets ErrGenerationInProgress. The pipeline itself runs detached from the
// request with its own timeout.
func (s *GenerationService) Start(ctx context.Context, tenantID, funnelID string) (*model.Funnel, error) {
	if s.llm == nil {
		return nil, ErrLLMUnavailable
	}

	f, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		if f.GenerationStatus == model.GenerationInProgress {
			return ErrGenerationInProgress
		}
		f.GenerationStatus = model.GenerationInProgress
		f.GenerationError = ""
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFunnelNotFound
	}
	if err != nil {
		return nil, err
	}

	resources, err := s.attachedResources(ctx, f)
	if err != nil {
		// Roll the status back so the funnel is not stuck generating.
		s.finish(tenantID, funnelID, nil, err)
		return nil, err
	}

	go s.run(tenantID, funnelID, f.Name, resources)

	s.logger.Info("generation started",
		zap.String("funnel_id", funnelID),
		zap.String("tenant_id", tenantID),
	)

	return f, nil
}

// run executes the pipeline in the background: prompt, completion, JSON
// extraction, normalization, validation, store.
func (s *GenerationService) run(tenantID, funnelID, name string, resources []model.Resource) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	start := time.Now()

	generated, resp, err := s.generate(ctx, name, resources)
	s.finish(tenantID, funnelID, generated, err)

	status := "completed"
	tokensIn, tokensOut := 0, 0
	modelName := s.cfg.Model
	if resp != nil {
		tokensIn, tokensOut = resp.TokensIn, resp.TokensOut
		modelName = resp.Model
	}
	if err != nil {
		status = "failed"
		s.logger.Warn("generation failed",
			zap.String("funnel_id", funnelID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	} else {
		s.logger.Info("generation completed",
			zap.String("funnel_id", funnelID),
			zap.String("tenant_id", tenantID),
			zap.Int("blocks", len(generated.Blocks)),
			zap.Duration("duration", time.Since(start)),
		)
	}
	metrics.RecordGeneration(tenantID, modelName, status, time.Since(start).Seconds(), tokensIn, tokensOut)
}

// generate produces a validated flow from the LLM.
func (s *GenerationService) generate(ctx context.Context, name string, resources []model.Resource) (*model.FunnelFlow, *llm.CompletionResponse, error) {
	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Model:     s.cfg.Model,
		System:    generationSystemPrompt,
		MaxTokens: s.cfg.MaxTokens,
		Messages: []llm.ChatMessage{
			{Role: "user", Content: buildGenerationPrompt(name, resources)},
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("LLM request failed: %w", err)
	}

	raw, err := extractJSON(resp.Content)
	if err != nil {
		return nil, resp, err
	}

	var generated model.FunnelFlow
	if err := json.Unmarshal([]byte(raw), &generated); err != nil {
		return nil, resp, fmt.Errorf("generated flow is not valid JSON: %w", err)
	}

	if err := flow.Normalize(&generated); err != nil {
		return nil, resp, fmt.Errorf("generated flow is unusable: %w", err)
	}
	if res := flow.Validate(&generated); !res.Valid() {
		return nil, resp, fmt.Errorf("generated flow failed validation: %s", strings.Join(res.Errors, "; "))
	}

	return &generated, resp, nil
}

// finish records the pipeline outcome on the funnel. The dashboard polls the
// funnel and shows GenerationError verbatim on failure.
func (s *GenerationService) finish(tenantID, funnelID string, generated *model.FunnelFlow, genErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.store.UpdateFunnel(ctx, tenantID, funnelID, func(f *model.Funnel) error {
		now := time.Now().UTC()
		if genErr != nil {
			f.GenerationStatus = model.GenerationFailed
			f.GenerationError = genErr.Error()
		} else {
			f.GenerationStatus = model.GenerationCompleted
			f.GenerationError = ""
			f.Flow = generated
			f.LastGeneratedAt = &now
		}
		f.UpdatedAt = now
		return nil
	})
	if err != nil {
		s.logger.Error("failed to record generation outcome",
			zap.String("funnel_id", funnelID),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}

// attachedResources loads the funnel's resources for prompt building.
// Dangling references are skipped rather than failing the run.
func (s *GenerationService) attachedResources(ctx context.Context, f *model.Funnel) ([]model.Resource, error) {
	var out []model.Resource
	for _, id := range f.Resources {
		r, err := s.store.GetResource(ctx, f.TenantID, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// buildGenerationPrompt describes the merchant's funnel and resource library
// to the model.
func buildGenerationPrompt(name string, resources []model.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design a conversational funnel named %q.\n", name)
	if len(resources) == 0 {
		b.WriteString("The merchant has not attached any resources; end the funnel with a soft call to action.\n")
	} else {
		b.WriteString("The merchant's resources, to be offered in the funnel:\n")
		for _, r := range resources {
			fmt.Fprintf(&b, "- %s (type %s, category %s", r.Name, r.Type, r.Category)
			if r.PromoCode != "" {
				fmt.Fprintf(&b, ", promo code %s", r.PromoCode)
			}
			b.WriteString(")\n")
		}
	}
	b.WriteString("Use 3 to 5 stages and keep each bot message under 60 words.")
	return b.String()
}

// extractJSON pulls the first balanced JSON object out of an LLM reply,
// tolerating prose or code fences around it.
func extractJSON(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errors.New("reply contains no JSON object")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errors.New("reply contains an unterminated JSON object")
}
