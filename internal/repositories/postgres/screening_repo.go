package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yoockh/yoscreen/internal/models"
	"github.com/yoockh/yoscreen/internal/utils"
	"gorm.io/gorm"
)

type ScreeningRepository interface {
	Create(ctx context.Context, s *models.ScreeningSession) error
	GetByID(ctx context.Context, id string) (*models.ScreeningSession, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.ScreeningSession, error)
	// Patch writes cols only if the row still has the given version, and bumps it.
	Patch(ctx context.Context, id string, version int, cols map[string]any) error
	// MarkPaid flips paid false->true. It reports whether this call performed the write.
	MarkPaid(ctx context.Context, id string) (bool, error)
}

type screeningRepo struct {
	db *gorm.DB
}

func NewScreeningRepo(db *gorm.DB) ScreeningRepository {
	return &screeningRepo{db: db}
}

func (r *screeningRepo) Create(ctx context.Context, s *models.ScreeningSession) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *screeningRepo) GetByID(ctx context.Context, id string) (*models.ScreeningSession, error) {
	var row models.ScreeningSession
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *screeningRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.ScreeningSession, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []models.ScreeningSession
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *screeningRepo) Patch(ctx context.Context, id string, version int, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	cols["version"] = gorm.Expr("version + 1")
	if _, ok := cols["updated_at"]; !ok {
		cols["updated_at"] = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Model(&models.ScreeningSession{}).
		Where("id = ? AND version = ?", id, version).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ScreeningSession{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return utils.ErrNotFound
		}
		return utils.ErrConflict
	}
	return nil
}

func (r *screeningRepo) MarkPaid(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ScreeningSession{}).
		Where("id = ? AND paid = ?", id, false).
		Updates(map[string]any{
			"paid":       true,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
