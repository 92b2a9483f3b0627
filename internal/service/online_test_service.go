package service

import (
	"context"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type OnlineTestService struct {
	Repo  *repository.OnlineTestRepository
	Cache StatusCache
}

func NewOnlineTestService(repo *repository.OnlineTestRepository, cache StatusCache) *OnlineTestService {
	if cache == nil {
		cache = noopStatusCache{}
	}
	return &OnlineTestService{Repo: repo, Cache: cache}
}

type ListTestsQuery struct {
	TestType   string `form:"testType"`
	Difficulty string `form:"difficulty"`
	Search     string `form:"search"`
	Sort       string `form:"sort"`
	Page       int    `form:"page"`
	PageSize   int    `form:"pageSize"`
	Scope      string `form:"scope"`
}

type CreateTestReq struct {
	Title        string           `json:"title" binding:"required"`
	Description  string           `json:"description" binding:"required"`
	Instructions string           `json:"instructions"`
	TestType     model.TestType   `json:"testType" binding:"required,testtype"`
	Difficulty   model.Difficulty `json:"difficulty" binding:"required,difficulty"`
	Duration     int              `json:"duration" binding:"required,gt=0"`
	Tags         []string         `json:"tags"`
}

// UpdateTestReq 部分更新，nil 字段保持不变
type UpdateTestReq struct {
	Title        *string           `json:"title"`
	Description  *string           `json:"description"`
	Instructions *string           `json:"instructions"`
	TestType     *model.TestType   `json:"testType"`
	Difficulty   *model.Difficulty `json:"difficulty"`
	Duration     *int              `json:"duration"`
	Tags         *[]string         `json:"tags"`
	IsPublished  *bool             `json:"isPublished"`
}

type TestDetail struct {
	model.OnlineTest
	QuestionCount int64 `json:"questionCount"`
	AttemptCount  int64 `json:"attemptCount"`
}

type TestStatus struct {
	TestID           uint                   `json:"testId"`
	QuestionCount    int64                  `json:"questionCount"`
	SectionBreakdown []model.SectionSummary `json:"sectionBreakdown"`
	IsPublished      bool                   `json:"isPublished"`
	IsReady          bool                   `json:"isReady"`
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

func (s *OnlineTestService) ListTests(p Principal, q ListTestsQuery) (*util.PageResponse, error) {
	f := repository.TestListFilter{
		Search: q.Search,
		Sort:   q.Sort,
	}
	if q.TestType != "" {
		if !model.TestType(q.TestType).Valid() {
			return nil, util.Validationf("unknown testType %q", q.TestType)
		}
		f.TestType = model.TestType(q.TestType)
	}
	if q.Difficulty != "" {
		if !model.Difficulty(q.Difficulty).Valid() {
			return nil, util.Validationf("unknown difficulty %q", q.Difficulty)
		}
		f.Difficulty = model.Difficulty(q.Difficulty)
	}
	switch q.Sort {
	case "":
		f.Sort = "popularity"
	case "newest", "popularity", "completion":
	default:
		return nil, util.Validationf("unknown sort %q", q.Sort)
	}
	switch q.Scope {
	case "", "published":
	case "all":
		if !p.IsStaff() {
			return nil, util.ErrPermissionDenied
		}
		f.IncludeUnready = true
	default:
		return nil, util.Validationf("unknown scope %q", q.Scope)
	}

	f.Page = q.Page
	if f.Page < 1 {
		f.Page = 1
	}
	f.PageSize = q.PageSize
	if f.PageSize < 1 {
		f.PageSize = util.DefaultPageSize
	}
	if f.PageSize > util.MaxPageSize {
		f.PageSize = util.MaxPageSize
	}

	rows, total, err := s.Repo.List(f)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []repository.OnlineTestListRow{}
	}
	return &util.PageResponse{Items: rows, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// GetTest 学员只能看到已发布且有题目的测试
func (s *OnlineTestService) GetTest(id uint, p Principal) (*TestDetail, error) {
	test, err := s.Repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	qc, err := s.Repo.CountQuestions(id)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() && (!test.IsPublished || qc == 0) {
		return nil, util.ErrTestNotFound
	}
	ac, err := s.Repo.CountAttempts(id)
	if err != nil {
		return nil, err
	}
	return &TestDetail{OnlineTest: *test, QuestionCount: qc, AttemptCount: ac}, nil
}

func (s *OnlineTestService) CreateTest(creatorID uint, req CreateTestReq) (*model.OnlineTest, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, util.Validationf("title is required")
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, util.Validationf("description is required")
	}
	if !req.TestType.Valid() {
		return nil, util.Validationf("unknown testType %q", req.TestType)
	}
	if !req.Difficulty.Valid() {
		return nil, util.Validationf("unknown difficulty %q", req.Difficulty)
	}
	if req.Duration <= 0 {
		return nil, util.Validationf("duration must be positive")
	}

	test := &model.OnlineTest{
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Instructions: req.Instructions,
		TestType:     req.TestType,
		Difficulty:   req.Difficulty,
		Duration:     req.Duration,
		Tags:         joinTags(req.Tags),
		Sections:     datatypes.NewJSONSlice([]model.SectionSummary{}),
		CreatorID:    creatorID,
	}
	if err := s.Repo.Create(test); err != nil {
		return nil, err
	}
	logger.Log.Info("online test created", zap.Uint("testId", test.ID), zap.Uint("creatorId", creatorID))
	return test, nil
}

func (s *OnlineTestService) UpdateTest(ctx context.Context, id uint, req UpdateTestReq) (*model.OnlineTest, error) {
	test, err := s.Repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, util.Validationf("title must not be empty")
		}
		test.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			return nil, util.Validationf("description must not be empty")
		}
		test.Description = *req.Description
	}
	if req.Instructions != nil {
		test.Instructions = *req.Instructions
	}
	if req.TestType != nil {
		if !req.TestType.Valid() {
			return nil, util.Validationf("unknown testType %q", *req.TestType)
		}
		test.TestType = *req.TestType
	}
	if req.Difficulty != nil {
		if !req.Difficulty.Valid() {
			return nil, util.Validationf("unknown difficulty %q", *req.Difficulty)
		}
		test.Difficulty = *req.Difficulty
	}
	if req.Duration != nil {
		if *req.Duration <= 0 {
			return nil, util.Validationf("duration must be positive")
		}
		test.Duration = *req.Duration
	}
	if req.Tags != nil {
		test.Tags = joinTags(*req.Tags)
	}
	if req.IsPublished != nil {
		if *req.IsPublished {
			qc, err := s.Repo.CountQuestions(id)
			if err != nil {
				return nil, err
			}
			if qc == 0 {
				return nil, util.Validationf("cannot publish a test without questions")
			}
		}
		test.IsPublished = *req.IsPublished
	}
	if test.Sections == nil {
		test.Sections = datatypes.NewJSONSlice([]model.SectionSummary{})
	}

	if err := s.Repo.Update(test); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(ctx, id)
	return test, nil
}

func (s *OnlineTestService) DeleteTest(ctx context.Context, id uint) (repository.DeleteResult, error) {
	if _, err := s.Repo.FindByID(id); err != nil {
		return repository.DeleteResult{}, err
	}
	res, err := s.Repo.DeleteCascade(id)
	if err != nil {
		return repository.DeleteResult{}, err
	}
	s.Cache.Invalidate(ctx, id)
	logger.Log.Info("online test deleted",
		zap.Uint("testId", id),
		zap.Int64("answers", res.Answers),
		zap.Int64("attempts", res.Attempts),
		zap.Int64("questions", res.Questions))
	return res, nil
}

func (s *OnlineTestService) GetTestStatus(ctx context.Context, id uint) (*TestStatus, error) {
	if status, ok := s.Cache.Get(ctx, id); ok {
		return status, nil
	}
	// 先取代数再读库，期间有写入时这次结果不会生效
	gen, cacheable := s.Cache.Generation(ctx, id)

	test, err := s.Repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	sections, err := s.Repo.SectionBreakdown(id)
	if err != nil {
		return nil, err
	}
	var qc int64
	for _, sec := range sections {
		qc += int64(sec.Questions)
	}

	status := &TestStatus{
		TestID:           id,
		QuestionCount:    qc,
		SectionBreakdown: sections,
		IsPublished:      test.IsPublished,
		IsReady:          test.IsPublished && qc > 0,
	}
	if cacheable {
		s.Cache.Set(ctx, status, gen)
	}
	return status, nil
}

// IsReady 学员可见、可开始作答
func (s *OnlineTestService) IsReady(test *model.OnlineTest) (bool, error) {
	if !test.IsPublished {
		return false, nil
	}
	qc, err := s.Repo.CountQuestions(test.ID)
	if err != nil {
		return false, err
	}
	return qc > 0, nil
}
