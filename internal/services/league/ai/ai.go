// Package ai wraps text generation behind a single Generate operation. The
// gateway delegates to an Anthropic-backed client when configured and falls
// back to a deterministic mock otherwise, recording a usage row for every
// call in either mode.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// Purpose tags what a generation request is for. Usage accounting and mock
// fallbacks are keyed on it.
type Purpose string

const (
	// PurposeInterpreter turns proposal text into a structured effect spec.
	PurposeInterpreter Purpose = "interpreter"
	// PurposeCommentary narrates one game.
	PurposeCommentary Purpose = "commentary"
	// PurposeReportSim summarizes a round's simulation results.
	PurposeReportSim Purpose = "report_sim"
	// PurposeReportGov summarizes a round's governance activity.
	PurposeReportGov Purpose = "report_gov"
	// PurposeReportPrivate writes one governor's private briefing.
	PurposeReportPrivate Purpose = "report_private"
	// PurposeClassifier screens proposal text for prompt injection.
	PurposeClassifier Purpose = "classifier"
	// PurposeEvaluator scores a proposal's balance impact.
	PurposeEvaluator Purpose = "evaluator"
)

// ErrPermanent indicates generation failed in a way retrying will not fix.
// Callers decide whether to queue for async retry or degrade to the mock.
var ErrPermanent = errors.New("generation failed permanently")

// Request is one generation call.
type Request struct {
	Purpose   Purpose
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the generated text plus its accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	CacheTokens  int
	Latency      time.Duration
	Mock         bool
}

// Generator produces text for a request. Implemented by the Anthropic client
// and the deterministic mock.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Gateway routes generation requests to the configured client and records a
// usage row per call. With no client it runs entirely on the mock.
type Gateway struct {
	client Generator
	mock   *Mock
	usage  storage.UsageStore
	now    func() time.Time
}

// NewGateway builds a gateway. client may be nil to force the mock path;
// usage may be nil to skip accounting.
func NewGateway(client Generator, usage storage.UsageStore) *Gateway {
	return &Gateway{
		client: client,
		mock:   NewMock(),
		usage:  usage,
		now:    time.Now,
	}
}

// Generate produces text for the request. Client failures marked permanent
// surface to the caller; everything else already exhausted its retries inside
// the client, so the gateway does not retry again.
func (g *Gateway) Generate(ctx context.Context, req Request) (Response, error) {
	if g == nil {
		return Response{}, fmt.Errorf("gateway is not configured")
	}
	if req.Purpose == "" {
		return Response{}, fmt.Errorf("purpose is required")
	}

	resp, err := g.generate(ctx, req)
	if err != nil {
		return Response{}, err
	}
	g.recordUsage(ctx, req, resp)
	return resp, nil
}

// GenerateOrMock behaves like Generate but degrades to the mock on any client
// error. Used by narrative callers where losing a report is survivable.
func (g *Gateway) GenerateOrMock(ctx context.Context, req Request) (Response, error) {
	resp, err := g.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	log.Printf("ai %s degraded to mock: %v", req.Purpose, err)
	resp, mockErr := g.mock.Generate(ctx, req)
	if mockErr != nil {
		return Response{}, mockErr
	}
	g.recordUsage(ctx, req, resp)
	return resp, nil
}

func (g *Gateway) generate(ctx context.Context, req Request) (Response, error) {
	if g.client == nil {
		return g.mock.Generate(ctx, req)
	}
	return g.client.Generate(ctx, req)
}

// recordUsage writes the accounting row. Usage logging is best effort and
// never fails the generation.
func (g *Gateway) recordUsage(ctx context.Context, req Request, resp Response) {
	if g.usage == nil {
		return
	}
	err := g.usage.PutAIUsage(ctx, storage.AIUsageRecord{
		ID:           uuid.NewString(),
		Purpose:      string(req.Purpose),
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CacheTokens:  resp.CacheTokens,
		LatencyMS:    resp.Latency.Milliseconds(),
		Mock:         resp.Mock,
		CreatedAt:    g.now().UTC(),
	})
	if err != nil {
		log.Printf("record ai usage: %v", err)
	}
}
