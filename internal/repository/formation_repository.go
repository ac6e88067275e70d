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

// FormationRepository persists formation offers with their partition tree
// (sections, groups, subgroups).
type FormationRepository struct {
	db *sqlx.DB
}

// NewFormationRepository constructs repository.
func NewFormationRepository(db *sqlx.DB) *FormationRepository {
	return &FormationRepository{db: db}
}

func (r *FormationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a formation offer row.
func (r *FormationRepository) Create(ctx context.Context, exec sqlx.ExtContext, formation *models.FormationOffer) error {
	if formation == nil {
		return fmt.Errorf("formation payload is nil")
	}
	if formation.ID == "" {
		formation.ID = uuid.NewString()
	}
	if len(formation.Constraints) == 0 {
		formation.Constraints = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	formation.CreatedAt = now
	formation.UpdatedAt = now

	const query = `
INSERT INTO formations (id, name, level, duration_semesters, total_students, constraints, created_at, updated_at)
VALUES (:id, :name, :level, :duration_semesters, :total_students, :constraints, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, formation); err != nil {
		return fmt.Errorf("insert formation: %w", err)
	}
	return nil
}

// CreateSection inserts one section of a formation.
func (r *FormationRepository) CreateSection(ctx context.Context, exec sqlx.ExtContext, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	section.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO sections (id, formation_id, name, capacity, created_at)
VALUES (:id, :formation_id, :name, :capacity, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, section); err != nil {
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

// CreateGroup inserts one group of a section.
func (r *FormationRepository) CreateGroup(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO groups (id, section_id, name, type, capacity, created_at)
VALUES (:id, :section_id, :name, :type, :capacity, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, group); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// CreateSubGroup inserts one subgroup of a group.
func (r *FormationRepository) CreateSubGroup(ctx context.Context, exec sqlx.ExtContext, subGroup *models.SubGroup) error {
	if subGroup.ID == "" {
		subGroup.ID = uuid.NewString()
	}
	subGroup.CreatedAt = time.Now().UTC()

	const query = `
INSERT INTO sub_groups (id, group_id, name, size, created_at)
VALUES (:id, :group_id, :name, :size, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subGroup); err != nil {
		return fmt.Errorf("insert subgroup: %w", err)
	}
	return nil
}

// FindByID loads a formation without its partition tree.
func (r *FormationRepository) FindByID(ctx context.Context, id string) (*models.FormationOffer, error) {
	const query = `SELECT id, name, level, duration_semesters, total_students, constraints, created_at, updated_at FROM formations WHERE id = $1`
	var formation models.FormationOffer
	if err := r.db.GetContext(ctx, &formation, query, id); err != nil {
		return nil, err
	}
	return &formation, nil
}

// LoadPartition loads a formation together with its full section, group
// and subgroup tree. The engine needs the complete tree to enumerate
// module occurrences and audience sizes.
func (r *FormationRepository) LoadPartition(ctx context.Context, id string) (*models.FormationOffer, error) {
	formation, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	const sectionsQuery = `SELECT id, formation_id, name, capacity, created_at FROM sections WHERE formation_id = $1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &formation.Sections, sectionsQuery, id); err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	if len(formation.Sections) == 0 {
		return formation, nil
	}

	sectionIDs := make([]string, 0, len(formation.Sections))
	for _, section := range formation.Sections {
		sectionIDs = append(sectionIDs, section.ID)
	}

	groupsQuery, args, err := sqlx.In(`SELECT id, section_id, name, type, capacity, created_at FROM groups WHERE section_id IN (?) ORDER BY name`, sectionIDs)
	if err != nil {
		return nil, fmt.Errorf("build groups query: %w", err)
	}
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, r.db.Rebind(groupsQuery), args...); err != nil {
		return nil, fmt.Errorf("load groups: %w", err)
	}

	if len(groups) > 0 {
		groupIDs := make([]string, 0, len(groups))
		for _, group := range groups {
			groupIDs = append(groupIDs, group.ID)
		}
		subQuery, subArgs, err := sqlx.In(`SELECT id, group_id, name, size, created_at FROM sub_groups WHERE group_id IN (?) ORDER BY name`, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("build subgroups query: %w", err)
		}
		var subGroups []models.SubGroup
		if err := r.db.SelectContext(ctx, &subGroups, r.db.Rebind(subQuery), subArgs...); err != nil {
			return nil, fmt.Errorf("load subgroups: %w", err)
		}
		byGroup := make(map[string][]models.SubGroup, len(groups))
		for _, subGroup := range subGroups {
			byGroup[subGroup.GroupID] = append(byGroup[subGroup.GroupID], subGroup)
		}
		for i := range groups {
			groups[i].SubGroups = byGroup[groups[i].ID]
		}
	}

	bySection := make(map[string][]models.Group, len(formation.Sections))
	for _, group := range groups {
		bySection[group.SectionID] = append(bySection[group.SectionID], group)
	}
	for i := range formation.Sections {
		formation.Sections[i].Groups = bySection[formation.Sections[i].ID]
	}
	return formation, nil
}

// List returns formations matching the filter with a total count.
func (r *FormationRepository) List(ctx context.Context, filter models.FormationFilter) ([]models.FormationOffer, int, error) {
	baseQuery := `FROM formations WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Level != nil {
		conditions = append(conditions, fmt.Sprintf("level = $%d", len(args)+1))
		args = append(args, *filter.Level)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count formations: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	query := fmt.Sprintf(`SELECT id, name, level, duration_semesters, total_students, constraints, created_at, updated_at %s ORDER BY name LIMIT $%d OFFSET $%d`,
		baseQuery, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	var formations []models.FormationOffer
	if err := r.db.SelectContext(ctx, &formations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list formations: %w", err)
	}
	return formations, total, nil
}

// Delete removes a formation and cascades over its partition tree.
func (r *FormationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM formations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete formation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("formation rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
