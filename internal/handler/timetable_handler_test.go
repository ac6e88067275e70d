package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/acadplan/timetable-api/internal/dto"
	"github.com/acadplan/timetable-api/internal/middleware"
	"github.com/acadplan/timetable-api/internal/models"
	appErrors "github.com/acadplan/timetable-api/pkg/errors"
)

type builderMock struct {
	captured dto.BuildTimetableRequest
	err      error
}

func (m *builderMock) Build(_ context.Context, req dto.BuildTimetableRequest) (*dto.BuildTimetableResponse, error) {
	m.captured = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.BuildTimetableResponse{
		Timetable: &models.GeneratedTimetable{ID: "tt-1", Status: models.TimetableStatusDraft},
	}, nil
}

type optimizerMock struct {
	captured dto.OptimizeTimetableRequest
}

func (m *optimizerMock) Optimize(_ context.Context, req dto.OptimizeTimetableRequest) (*dto.OptimizeResult, error) {
	m.captured = req
	return &dto.OptimizeResult{Iterations: 50}, nil
}

type validatorMock struct {
	status        *models.ValidationStatus
	err           error
	approvedLevel models.ApprovalLevel
	actor         models.UserInfo
	resolvedBy    string
}

func (m *validatorMock) Validate(_ context.Context, timetableID string) (*models.ValidationStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

func (m *validatorMock) ResolveIssue(_ context.Context, _, _, actor string) (*models.ValidationStatus, error) {
	m.resolvedBy = actor
	return m.status, nil
}

func (m *validatorMock) Recheck(_ context.Context, _ string) (*models.ValidationStatus, error) {
	return m.status, nil
}

func (m *validatorMock) Approve(_ context.Context, _ string, level models.ApprovalLevel, actor models.UserInfo) (*models.ValidationStatus, error) {
	m.approvedLevel = level
	m.actor = actor
	if m.err != nil {
		return nil, m.err
	}
	return m.status, nil
}

type readerMock struct {
	invalidated string
	archived    string
}

func (m *readerMock) Get(_ context.Context, id string) (*models.GeneratedTimetable, error) {
	return &models.GeneratedTimetable{ID: id}, nil
}

func (m *readerMock) List(_ context.Context, _ dto.TimetableQuery) ([]models.GeneratedTimetable, *models.Pagination, error) {
	return []models.GeneratedTimetable{{ID: "tt-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *readerMock) Statistics(_ context.Context, _ string) (*models.TimetableStatistics, error) {
	return &models.TimetableStatistics{EntryCount: 1}, nil
}

func (m *readerMock) InvalidateStatistics(_ context.Context, id string) {
	m.invalidated = id
}

func (m *readerMock) Archive(_ context.Context, id string) error {
	m.archived = id
	return nil
}

func plannerClaims() *models.JWTClaims {
	return &models.JWTClaims{
		UserID:   "user-1",
		Email:    "planner@acadplan.dz",
		FullName: "Nadia Planner",
		Role:     models.RolePlanner,
	}
}

func TestTimetableHandlerBuild(t *testing.T) {
	gin.SetMode(gin.TestMode)
	builder := &builderMock{}
	handler := &TimetableHandler{builder: builder}

	payload, _ := json.Marshal(dto.BuildTimetableRequest{FormationID: "form-1", SemesterID: "sem-1"})
	req, _ := http.NewRequest(http.MethodPost, "/timetables/build", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Build(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "form-1", builder.captured.FormationID)
}

func TestTimetableHandlerBuildRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{builder: &builderMock{}}

	req, _ := http.NewRequest(http.MethodPost, "/timetables/build", bytes.NewReader([]byte(`{"formationId":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Build(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerOptimizeTakesIDFromPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	optimizer := &optimizerMock{}
	reader := &readerMock{}
	handler := &TimetableHandler{optimizer: optimizer, reader: reader}

	payload, _ := json.Marshal(dto.OptimizeTimetableRequest{Seed: 42})
	req, _ := http.NewRequest(http.MethodPost, "/timetables/tt-9/optimize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tt-9"}}

	handler.Optimize(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "tt-9", optimizer.captured.TimetableID)
	// A fresh optimization invalidates the cached statistics.
	require.Equal(t, "tt-9", reader.invalidated)
}

func TestTimetableHandlerApproveUsesAuthenticatedActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &validatorMock{status: &models.ValidationStatus{TimetableID: "tt-1", IsValidated: true}}
	handler := &TimetableHandler{validator: validator}

	payload, _ := json.Marshal(dto.ApproveTimetableRequest{Level: models.ApprovalPartial})
	req, _ := http.NewRequest(http.MethodPost, "/timetables/tt-1/approve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	c.Set(middleware.ContextUserKey, plannerClaims())

	handler.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.ApprovalPartial, validator.approvedLevel)
	require.Equal(t, "user-1", validator.actor.ID)
	require.Equal(t, models.RolePlanner, validator.actor.Role)
}

func TestTimetableHandlerApproveWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{validator: &validatorMock{}}

	payload, _ := json.Marshal(dto.ApproveTimetableRequest{Level: models.ApprovalPartial})
	req, _ := http.NewRequest(http.MethodPost, "/timetables/tt-1/approve", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Approve(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimetableHandlerValidatePropagatesEngineError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{validator: &validatorMock{err: appErrors.ErrFinalized}}

	req, _ := http.NewRequest(http.MethodPost, "/timetables/tt-1/validate", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	handler.Validate(c)

	require.Equal(t, appErrors.ErrFinalized.Status, w.Code)
}

func TestTimetableHandlerRBACBlocksMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{builder: &builderMock{}}
	router := gin.New()
	router.POST("/timetables/build",
		middleware.RequireRoles(models.RoleAdmin, models.RolePlanner), handler.Build)

	payload, _ := json.Marshal(dto.BuildTimetableRequest{FormationID: "form-1", SemesterID: "sem-1"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/timetables/build", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimetableHandlerRBACBlocksWrongRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{reader: &readerMock{}}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		claims := plannerClaims()
		c.Set(middleware.ContextUserKey, claims)
	})
	router.DELETE("/timetables/:id", middleware.RequireRoles(models.RoleAdmin), handler.Archive)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/timetables/tt-1", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestTimetableHandlerArchive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reader := &readerMock{}
	handler := &TimetableHandler{reader: reader}

	req, _ := http.NewRequest(http.MethodDelete, "/timetables/tt-1", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	handler.Archive(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "tt-1", reader.archived)
}

func TestTimetableHandlerListBindsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{reader: &readerMock{}}

	req, _ := http.NewRequest(http.MethodGet, "/timetables?formationId=form-1&page=1", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Pagination)
	require.Equal(t, 1, envelope.Pagination.Page)
}

func TestTimetableHandlerOptimizeForwardsBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	optimizer := &optimizerMock{}
	handler := &TimetableHandler{optimizer: optimizer, reader: &readerMock{}}

	payload, _ := json.Marshal(dto.OptimizeTimetableRequest{
		Budget: dto.OptimizeBudget{MaxIterations: 500, TimeLimitSeconds: 2},
	})
	req, _ := http.NewRequest(http.MethodPost, "/timetables/tt-1/optimize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	handler.Optimize(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 500, optimizer.captured.Budget.MaxIterations)
	require.Equal(t, 2, optimizer.captured.Budget.TimeLimitSeconds)
}
