package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type timetableReader interface {
	FindByID(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	LoadWithEntries(ctx context.Context, id string) (*models.GeneratedTimetable, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.GeneratedTimetable, int, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
	Delete(ctx context.Context, id string) error
}

type statisticsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// TimetableService serves the read surface over generated timetables
// and their derived statistics.
type TimetableService struct {
	timetables timetableReader
	validation validationStatusReader
	cache      statisticsCache
	logger     *zap.Logger
	cacheTTL   time.Duration
}

// NewTimetableService wires timetable read dependencies.
func NewTimetableService(timetables timetableReader, validation validationStatusReader, cache statisticsCache, logger *zap.Logger, cacheTTL time.Duration) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TimetableService{
		timetables: timetables,
		validation: validation,
		cache:      cache,
		logger:     logger,
		cacheTTL:   cacheTTL,
	}
}

// Get loads a timetable with entries and validation state.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.GeneratedTimetable, error) {
	timetable, err := s.timetables.LoadWithEntries(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}
	if status, err := s.validation.GetStatus(ctx, id); err == nil {
		timetable.Validation = status
	}
	return timetable, nil
}

// List returns timetables matching the query.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.GeneratedTimetable, *models.Pagination, error) {
	filter := models.TimetableFilter{
		FormationID: query.FormationID,
		SemesterID:  query.SemesterID,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	if query.Status != "" {
		status := models.TimetableStatus(query.Status)
		filter.Status = &status
	}

	timetables, total, err := s.timetables.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	return timetables, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Statistics computes aggregate figures for a timetable, cached in
// Redis until the timetable changes or the TTL lapses.
func (s *TimetableService) Statistics(ctx context.Context, id string) (*models.TimetableStatistics, error) {
	key := statisticsCacheKey(id)
	var cached models.TimetableStatistics
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("statistics cache read failed", zap.String("timetable_id", id), zap.Error(err))
	}

	timetable, err := s.timetables.LoadWithEntries(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}

	stats := computeStatistics(timetable.Entries)
	if err := s.cache.Set(ctx, key, stats, s.cacheTTL); err != nil {
		s.logger.Warn("statistics cache write failed", zap.String("timetable_id", id), zap.Error(err))
	}
	return stats, nil
}

// InvalidateStatistics drops the cached figures after a mutation.
func (s *TimetableService) InvalidateStatistics(ctx context.Context, id string) {
	if err := s.cache.DeleteByPattern(ctx, statisticsCacheKey(id)); err != nil {
		s.logger.Warn("statistics cache invalidation failed", zap.String("timetable_id", id), zap.Error(err))
	}
}

// Archive retires a timetable version.
func (s *TimetableService) Archive(ctx context.Context, id string) error {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "timetable not found")
	}
	if timetable.Status == models.TimetableStatusArchived {
		return nil
	}
	if err := s.timetables.UpdateStatus(ctx, nil, id, models.TimetableStatusArchived); err != nil {
		return err
	}
	s.InvalidateStatistics(ctx, id)
	return nil
}

func statisticsCacheKey(timetableID string) string {
	return fmt.Sprintf("timetable:stats:%s", timetableID)
}

func computeStatistics(entries []models.TimetableEntry) *models.TimetableStatistics {
	stats := &models.TimetableStatistics{
		TeacherLoadHours:    make(map[string]float64),
		InfrastructureHours: make(map[string]float64),
		ComputedAt:          time.Now().UTC(),
	}

	occupied := make(map[models.WeeklySlot]struct{})
	gridMinutes := 0
	for _, entry := range entries {
		if entry.Status == models.EntryStatusCancelled {
			continue
		}
		stats.EntryCount++
		hours := entry.DurationHours()
		stats.TotalHours += hours
		stats.TeacherLoadHours[entry.TeacherID] += hours
		stats.InfrastructureHours[entry.InfrastructureID] += hours
		if entry.ConflictLevel != models.ConflictNone {
			stats.ConflictCount++
		}
		slot := entry.Slot()
		if _, dup := occupied[slot]; !dup {
			occupied[slot] = struct{}{}
			gridMinutes += entry.EndMinute - entry.StartMinute
		}
	}

	// Utilization against a six day, ten hour teaching grid.
	const weeklyGridMinutes = 6 * 10 * 60
	stats.UtilizationRate = float64(gridMinutes) / weeklyGridMinutes
	if stats.UtilizationRate > 1 {
		stats.UtilizationRate = 1
	}
	return stats
}
