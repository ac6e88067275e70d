package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/acadplan/timetable-api/internal/models"
)

// InfrastructureRepository persists rooms and their maintenance windows.
type InfrastructureRepository struct {
	db *sqlx.DB
}

// NewInfrastructureRepository constructs repository.
func NewInfrastructureRepository(db *sqlx.DB) *InfrastructureRepository {
	return &InfrastructureRepository{db: db}
}

func (r *InfrastructureRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an infrastructure row.
func (r *InfrastructureRepository) Create(ctx context.Context, exec sqlx.ExtContext, infra *models.Infrastructure) error {
	if infra == nil {
		return fmt.Errorf("infrastructure payload is nil")
	}
	if infra.ID == "" {
		infra.ID = uuid.NewString()
	}
	if len(infra.Equipment) == 0 {
		infra.Equipment = types.JSONText(`[]`)
	}
	now := time.Now().UTC()
	infra.CreatedAt = now
	infra.UpdatedAt = now

	const query = `
INSERT INTO infrastructures (id, code, name, type, capacity, equipment, active, created_at, updated_at)
VALUES (:id, :code, :name, :type, :capacity, :equipment, :active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, infra); err != nil {
		return fmt.Errorf("insert infrastructure: %w", err)
	}
	return nil
}

// AddMaintenance registers a dated maintenance window.
func (r *InfrastructureRepository) AddMaintenance(ctx context.Context, exec sqlx.ExtContext, window *models.MaintenanceWindow) error {
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	window.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO maintenance_windows (id, infrastructure_id, starts_at, ends_at, reason, created_at)
VALUES (:id, :infrastructure_id, :starts_at, :ends_at, :reason, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, window); err != nil {
		return fmt.Errorf("insert maintenance window: %w", err)
	}
	return nil
}

// FindByID loads one infrastructure with its maintenance windows.
func (r *InfrastructureRepository) FindByID(ctx context.Context, id string) (*models.Infrastructure, error) {
	const query = `SELECT id, code, name, type, capacity, equipment, active, created_at, updated_at FROM infrastructures WHERE id = $1`
	var infra models.Infrastructure
	if err := r.db.GetContext(ctx, &infra, query, id); err != nil {
		return nil, err
	}
	const maintenanceQuery = `SELECT id, infrastructure_id, starts_at, ends_at, reason, created_at FROM maintenance_windows WHERE infrastructure_id = $1 ORDER BY starts_at`
	if err := r.db.SelectContext(ctx, &infra.Maintenance, maintenanceQuery, id); err != nil {
		return nil, fmt.Errorf("load maintenance windows: %w", err)
	}
	return &infra, nil
}

// ListActive returns every active room with maintenance attached. The
// engine treats this as its full placement pool.
func (r *InfrastructureRepository) ListActive(ctx context.Context) ([]models.Infrastructure, error) {
	const query = `SELECT id, code, name, type, capacity, equipment, active, created_at, updated_at FROM infrastructures WHERE active = TRUE ORDER BY code`
	var infras []models.Infrastructure
	if err := r.db.SelectContext(ctx, &infras, query); err != nil {
		return nil, fmt.Errorf("list active infrastructures: %w", err)
	}
	if len(infras) == 0 {
		return infras, nil
	}

	ids := make([]string, 0, len(infras))
	for _, infra := range infras {
		ids = append(ids, infra.ID)
	}
	maintenanceQuery, args, err := sqlx.In(`SELECT id, infrastructure_id, starts_at, ends_at, reason, created_at FROM maintenance_windows WHERE infrastructure_id IN (?) ORDER BY starts_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("build maintenance query: %w", err)
	}
	var windows []models.MaintenanceWindow
	if err := r.db.SelectContext(ctx, &windows, r.db.Rebind(maintenanceQuery), args...); err != nil {
		return nil, fmt.Errorf("load maintenance windows: %w", err)
	}
	byInfra := make(map[string][]models.MaintenanceWindow, len(infras))
	for _, window := range windows {
		byInfra[window.InfrastructureID] = append(byInfra[window.InfrastructureID], window)
	}
	for i := range infras {
		infras[i].Maintenance = byInfra[infras[i].ID]
	}
	return infras, nil
}

// List returns infrastructures matching the filter with a total count.
func (r *InfrastructureRepository) List(ctx context.Context, filter models.InfrastructureFilter) ([]models.Infrastructure, int, error) {
	baseQuery := `FROM infrastructures WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, *filter.Type)
	}
	if filter.MinCapacity > 0 {
		conditions = append(conditions, fmt.Sprintf("capacity >= $%d", len(args)+1))
		args = append(args, filter.MinCapacity)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count infrastructures: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	query := fmt.Sprintf(`SELECT id, code, name, type, capacity, equipment, active, created_at, updated_at %s ORDER BY code LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var infras []models.Infrastructure
	if err := r.db.SelectContext(ctx, &infras, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list infrastructures: %w", err)
	}
	return infras, total, nil
}

// SetActive toggles whether a room participates in scheduling.
func (r *InfrastructureRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE infrastructures SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set infrastructure active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("infrastructure rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
