package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/providers/llm"
	"github.com/yoockh/yoscreen/internal/utils"
)

type Phase1Input struct {
	AgeBand     string `json:"ageBand"`
	GenderLabel string `json:"genderLabel"`
}

type Phase1Output struct {
	Introduction string   `json:"introduction"`
	Questions    []string `json:"questions"`
	Disclaimer   string   `json:"disclaimer"`
}

type TeaserInput struct {
	AgeBand        string      `json:"ageBand"`
	GenderLabel    string      `json:"genderLabel"`
	RecipientLabel string      `json:"recipientLabel"`
	History        []models.QA `json:"history"`
}

type Phase2Input struct {
	AgeBand     string      `json:"ageBand"`
	GenderLabel string      `json:"genderLabel"`
	History     []models.QA `json:"history"`
}

type Phase2Output struct {
	Analysis  models.Analysis `json:"analysis"`
	Questions []string        `json:"questions"`
}

type FinalReportInput struct {
	AgeBand             string          `json:"ageBand"`
	GenderLabel         string          `json:"genderLabel"`
	Phase1History       []models.QA     `json:"phase1History"`
	Phase2History       []models.QA     `json:"phase2History"`
	PreliminaryAnalysis models.Analysis `json:"preliminaryAnalysis"`
}

// Generator produces the content of each phase from an external completion service.
type Generator interface {
	Phase1(ctx context.Context, in Phase1Input) (*Phase1Output, error)
	Teaser(ctx context.Context, in TeaserInput) (*models.Teaser, error)
	Phase2(ctx context.Context, in Phase2Input) (*Phase2Output, error)
	FinalReport(ctx context.Context, in FinalReportInput) (*models.FinalReport, error)
}

type generator struct {
	llm llm.Provider
	log *logrus.Logger
}

func NewGenerator(provider llm.Provider, log *logrus.Logger) Generator {
	return &generator{llm: provider, log: log}
}

func (g *generator) Phase1(ctx context.Context, in Phase1Input) (*Phase1Output, error) {
	const op = "Generator.Phase1"

	var out Phase1Output
	if err := g.call(ctx, op, phase1Prompt, in, &out); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(out.Introduction) == "":
		return nil, parseError(op, "introduction is empty", nil)
	case !countBetween(out.Questions, 6, 8):
		return nil, parseError(op, fmt.Sprintf("expected 6-8 questions, got %d", len(out.Questions)), nil)
	}
	return &out, nil
}

func (g *generator) Teaser(ctx context.Context, in TeaserInput) (*models.Teaser, error) {
	const op = "Generator.Teaser"

	var raw struct {
		Title       string   `json:"title"`
		Summary     string   `json:"summary"`
		Patterns    []string `json:"patterns"`
		ClosingLine string   `json:"closingLine"`
	}
	if err := g.call(ctx, op, teaserPrompt, in, &raw); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(raw.Title) == "" || strings.TrimSpace(raw.Summary) == "":
		return nil, parseError(op, "title and summary are required", nil)
	case !countBetween(raw.Patterns, 2, 4):
		return nil, parseError(op, fmt.Sprintf("expected 2-4 patterns, got %d", len(raw.Patterns)), nil)
	}
	return &models.Teaser{
		Title:       raw.Title,
		Summary:     raw.Summary,
		Patterns:    raw.Patterns,
		ClosingLine: raw.ClosingLine,
	}, nil
}

func (g *generator) Phase2(ctx context.Context, in Phase2Input) (*Phase2Output, error) {
	const op = "Generator.Phase2"

	var raw struct {
		Analysis struct {
			Strengths         string `json:"strengths"`
			Challenges        string `json:"challenges"`
			LeadingHypothesis string `json:"leadingHypothesis"`
			Justification     string `json:"justification"`
		} `json:"analysis"`
		Questions []string `json:"questions"`
	}
	if err := g.call(ctx, op, phase2Prompt, in, &raw); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(raw.Analysis.LeadingHypothesis) == "":
		return nil, parseError(op, "analysis.leadingHypothesis is empty", nil)
	case !countBetween(raw.Questions, 4, 6):
		return nil, parseError(op, fmt.Sprintf("expected 4-6 questions, got %d", len(raw.Questions)), nil)
	}
	return &Phase2Output{
		Analysis: models.Analysis{
			Strengths:         raw.Analysis.Strengths,
			Challenges:        raw.Analysis.Challenges,
			LeadingHypothesis: raw.Analysis.LeadingHypothesis,
			Justification:     raw.Analysis.Justification,
		},
		Questions: raw.Questions,
	}, nil
}

func (g *generator) FinalReport(ctx context.Context, in FinalReportInput) (*models.FinalReport, error) {
	const op = "Generator.FinalReport"

	var raw struct {
		Hypothesis            string   `json:"hypothesis"`
		Summary               string   `json:"summary"`
		Strengths             []string `json:"strengths"`
		Challenges            []string `json:"challenges"`
		Traits                []string `json:"traits"`
		HomeRecommendations   []string `json:"homeRecommendations"`
		SchoolRecommendations []string `json:"schoolRecommendations"`
		ProfessionalFollowUp  string   `json:"professionalFollowUp"`
	}
	if err := g.call(ctx, op, finalReportPrompt, in, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Hypothesis) == "" {
		return nil, parseError(op, "hypothesis is empty", nil)
	}
	return &models.FinalReport{
		Hypothesis:            raw.Hypothesis,
		Summary:               raw.Summary,
		Strengths:             nonNil(raw.Strengths),
		Challenges:            nonNil(raw.Challenges),
		Traits:                nonNil(raw.Traits),
		HomeRecommendations:   nonNil(raw.HomeRecommendations),
		SchoolRecommendations: nonNil(raw.SchoolRecommendations),
		ProfessionalFollowUp:  raw.ProfessionalFollowUp,
		Disclaimer:            ReportDisclaimer,
	}, nil
}

// call sends template+input to the provider and decodes the JSON reply into dst.
func (g *generator) call(ctx context.Context, op, template string, in any, dst any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to encode generation input", err)
	}

	text, err := g.llm.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Prompt:      template + string(payload),
		JSON:        true,
		Temperature: 0.7,
	})
	if err != nil {
		return g.upstreamError(op, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(stripFences(text))))
	if err := dec.Decode(dst); err != nil {
		g.log.WithError(err).WithField("op", op).Warn("generation returned malformed json")
		return parseError(op, "completion is not valid JSON", err)
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		g.log.WithField("op", op).Warn("generation returned trailing content after json")
		return parseError(op, "completion has content after the JSON object", nil)
	}
	return nil
}

func (g *generator) upstreamError(op string, err error) error {
	entry := g.log.WithError(err).WithField("op", op)
	switch {
	case errors.Is(err, llm.ErrRateLimited):
		entry.Warn("completion service rate limited")
		return utils.E(utils.CodeRateLimited, op, "the completion service is busy, try again shortly", err)
	case errors.Is(err, llm.ErrUnavailable):
		entry.Warn("completion service unavailable")
		return utils.E(utils.CodeUnavailable, op, "the completion service is unavailable", err)
	case errors.Is(err, llm.ErrEmpty):
		return parseError(op, "completion was empty", err)
	case errors.Is(err, context.Canceled):
		return utils.E(utils.CodeTimeout, op, "generation was canceled", err)
	}
	entry.Error("completion failed")
	return utils.E(utils.CodeUnavailable, op, "generation failed", err)
}

func parseError(op, msg string, err error) error {
	return utils.E(utils.CodeGenerationParse, op, msg, err)
}

// stripFences removes a ```json ... ``` wrapper some models add despite the mime type.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func countBetween(items []string, lo, hi int) bool {
	n := 0
	for _, it := range items {
		if strings.TrimSpace(it) != "" {
			n++
		}
	}
	return n == len(items) && n >= lo && n <= hi
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
