package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/storage"
	"github.com/yoockh/yoscreen/internal/utils"
)

// ReportArchive keeps a copy of every completed report in object storage.
type ReportArchive interface {
	Archive(ctx context.Context, s *models.ScreeningSession) (string, error)
}

type reportArchive struct {
	uploader storage.Uploader
}

func NewReportArchive(u storage.Uploader) ReportArchive {
	return &reportArchive{uploader: u}
}

type archivedReport struct {
	SessionID   string              `json:"session_id"`
	OwnerID     string              `json:"owner_id"`
	Profile     models.Profile      `json:"profile"`
	Phase1      []models.QA         `json:"phase1"`
	Phase2      []models.QA         `json:"phase2"`
	Analysis    *models.Analysis    `json:"analysis,omitempty"`
	FinalReport *models.FinalReport `json:"final_report"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

func (a *reportArchive) Archive(ctx context.Context, s *models.ScreeningSession) (string, error) {
	const op = "ReportArchive.Archive"

	if s == nil || s.FinalReport.Data() == nil {
		return "", utils.E(utils.CodeInvalidArgument, op, "session has no final report", nil)
	}

	doc := archivedReport{
		SessionID:   s.ID,
		OwnerID:     s.OwnerID,
		Profile:     s.Profile(),
		Phase1:      s.Phase1History(),
		Phase2:      s.Phase2History(),
		Analysis:    s.Analysis.Data(),
		FinalReport: s.FinalReport.Data(),
		CompletedAt: s.CompletedAt,
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", utils.E(utils.CodeInternal, op, "failed to encode report", err)
	}

	path, err := a.uploader.Upload(ctx, fmt.Sprintf("reports/%s/%s.json", s.OwnerID, s.ID), "application/json", bytes.NewReader(b))
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to upload report", err)
	}
	return path, nil
}
