package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type formationPartitionLoader interface {
	LoadPartition(ctx context.Context, id string) (*models.FormationOffer, error)
}

type subjectDemandLister interface {
	ListByFormationSemester(ctx context.Context, formationID string, semesterIndex int) ([]models.Subject, error)
}

type infrastructurePoolLister interface {
	ListActive(ctx context.Context) ([]models.Infrastructure, error)
}

type teacherPoolLister interface {
	ListActive(ctx context.Context) ([]models.TeacherProfile, error)
}

type semesterReader interface {
	FindByID(ctx context.Context, id string) (*models.Semester, error)
}

// moduleOccurrence is one demand unit the builder must place: a module
// taught to a concrete audience. Lectures address whole sections,
// tutorials and labs address groups.
type moduleOccurrence struct {
	Module       models.Module
	Subject      models.Subject
	AudienceID   string
	AudienceSize int
}

// engineInputs is the immutable snapshot the builder and optimizer work
// from. Assembled once per run; the engine never touches repositories
// mid-computation.
type engineInputs struct {
	Formation   *models.FormationOffer
	Semester    *models.Semester
	Constraints models.FormationConstraints
	Subjects    []models.Subject
	Occurrences []moduleOccurrence
	Rooms       []models.Infrastructure
	Teachers    []models.TeacherProfile

	roomsByID      map[string]models.Infrastructure
	teachersByID   map[string]models.TeacherProfile
	teacherWindows map[string][]models.TimeConstraint
	teacherQuals   map[string]map[string]struct{}
	audienceSizes  map[string]int
	modulesByID    map[string]models.Module
}

// evaluation returns the context the constraint evaluator consumes.
func (in *engineInputs) evaluation() EvaluationContext {
	return EvaluationContext{
		Constraints:    in.Constraints,
		Infrastructure: in.roomsByID,
		Teachers:       in.teachersByID,
		TeacherWindows: in.teacherWindows,
		AudienceSizes:  in.audienceSizes,
		Modules:        in.modulesByID,
	}
}

// teacherQualified reports whether the teacher holds the module's
// required qualification. Empty requirements match everyone.
func (in *engineInputs) teacherQualified(teacherID, qualification string) bool {
	if qualification == "" {
		return true
	}
	quals, ok := in.teacherQuals[teacherID]
	if !ok {
		return false
	}
	_, held := quals[qualification]
	return held
}

// semesterIndexWithin derives which semester index of the formation the
// calendar semester maps to. Odd-numbered semesters run September
// onwards, even ones from February.
func semesterIndexWithin(semester *models.Semester) int {
	if semester.StartDate.Month() >= 8 {
		return 1
	}
	return 2
}

// buildEngineInputs loads and indexes everything one engine run needs.
func buildEngineInputs(
	ctx context.Context,
	formations formationPartitionLoader,
	subjects subjectDemandLister,
	rooms infrastructurePoolLister,
	teachers teacherPoolLister,
	semesters semesterReader,
	formationID, semesterID string,
) (*engineInputs, error) {
	formation, err := formations.LoadPartition(ctx, formationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "formation not found")
	}
	semester, err := semesters.FindByID(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "semester not found")
	}

	subjectList, err := subjects.ListByFormationSemester(ctx, formationID, semesterIndexWithin(semester))
	if err != nil {
		return nil, err
	}
	roomList, err := rooms.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	teacherList, err := teachers.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	inputs := &engineInputs{
		Formation:      formation,
		Semester:       semester,
		Subjects:       subjectList,
		Rooms:          roomList,
		Teachers:       teacherList,
		roomsByID:      make(map[string]models.Infrastructure, len(roomList)),
		teachersByID:   make(map[string]models.TeacherProfile, len(teacherList)),
		teacherWindows: make(map[string][]models.TimeConstraint, len(teacherList)),
		teacherQuals:   make(map[string]map[string]struct{}, len(teacherList)),
		audienceSizes:  make(map[string]int),
		modulesByID:    make(map[string]models.Module),
	}

	if len(formation.Constraints) > 0 {
		if err := json.Unmarshal(formation.Constraints, &inputs.Constraints); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrStructural.Code, appErrors.ErrStructural.Status, "malformed formation constraints")
		}
	}

	for _, room := range roomList {
		inputs.roomsByID[room.ID] = room
	}
	for _, teacher := range teacherList {
		inputs.teachersByID[teacher.ID] = teacher

		var windows []models.TimeConstraint
		if len(teacher.TimeWindows) > 0 {
			if err := json.Unmarshal(teacher.TimeWindows, &windows); err != nil {
				return nil, fmt.Errorf("decode time windows for teacher %s: %w", teacher.ID, err)
			}
		}
		inputs.teacherWindows[teacher.ID] = windows

		var quals []string
		if len(teacher.Qualifications) > 0 {
			if err := json.Unmarshal(teacher.Qualifications, &quals); err != nil {
				return nil, fmt.Errorf("decode qualifications for teacher %s: %w", teacher.ID, err)
			}
		}
		held := make(map[string]struct{}, len(quals))
		for _, q := range quals {
			held[q] = struct{}{}
		}
		inputs.teacherQuals[teacher.ID] = held
	}

	for _, section := range formation.Sections {
		inputs.audienceSizes[section.ID] = section.Capacity
		for _, group := range section.Groups {
			inputs.audienceSizes[group.ID] = group.Capacity
			for _, subGroup := range group.SubGroups {
				inputs.audienceSizes[subGroup.ID] = subGroup.Size
			}
		}
	}

	inputs.Occurrences = enumerateOccurrences(formation, subjectList, inputs.modulesByID)
	return inputs, nil
}

// enumerateOccurrences expands the subject catalogue into concrete
// demand units. Exam modules are excluded: they are scheduled through
// dated reservations, not the weekly grid.
func enumerateOccurrences(formation *models.FormationOffer, subjects []models.Subject, moduleIndex map[string]models.Module) []moduleOccurrence {
	var occurrences []moduleOccurrence
	for _, subject := range subjects {
		for _, module := range subject.Modules {
			moduleIndex[module.ID] = module
			if module.IsExam() {
				continue
			}
			for _, section := range formation.Sections {
				if module.Type == models.ModuleTypeLecture {
					occurrences = append(occurrences, moduleOccurrence{
						Module:       module,
						Subject:      subject,
						AudienceID:   section.ID,
						AudienceSize: section.Capacity,
					})
					continue
				}
				for _, group := range section.Groups {
					if !groupMatchesModule(group.Type, module.Type) {
						continue
					}
					occurrences = append(occurrences, moduleOccurrence{
						Module:       module,
						Subject:      subject,
						AudienceID:   group.ID,
						AudienceSize: group.Capacity,
					})
				}
			}
		}
	}
	return occurrences
}

func groupMatchesModule(groupType models.GroupType, moduleType models.ModuleType) bool {
	switch moduleType {
	case models.ModuleTypeTutorial:
		return groupType == models.GroupTypeTutorial || groupType == models.GroupTypeLabMixed
	case models.ModuleTypeLab:
		return groupType == models.GroupTypeLabMixed
	default:
		return false
	}
}
