package service

import (
	"context"
	"encoding/json"
	"fmt"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"lingo_edu_backend/pkg/monitoring"
	"lingo_edu_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptState string

const (
	AttemptInProgress AttemptState = "in_progress"
	AttemptCompleted  AttemptState = "completed"
)

type AttemptService struct {
	Repo         *repository.AttemptRepository
	TestRepo     *repository.OnlineTestRepository
	QuestionRepo *repository.QuestionRepository
	// Now 便于测试替换
	Now func() time.Time
}

func NewAttemptService(repo *repository.AttemptRepository, testRepo *repository.OnlineTestRepository, questionRepo *repository.QuestionRepository) *AttemptService {
	return &AttemptService{Repo: repo, TestRepo: testRepo, QuestionRepo: questionRepo, Now: time.Now}
}

type AttemptView struct {
	model.OnlineTestAttempt
	State    AttemptState             `json:"state"`
	Deadline time.Time                `json:"deadline"`
	Answers  []model.OnlineTestAnswer `json:"answers"`
}

type RecordAnswerReq struct {
	SelectedAnswer   json.RawMessage `json:"selectedAnswer" binding:"required"`
	MarkedForReview  bool            `json:"markedForReview"`
	ExpectedRevision *int            `json:"expectedRevision"`
}

type FinalAnswer struct {
	QuestionID      uint            `json:"questionId" binding:"required"`
	SelectedAnswer  json.RawMessage `json:"selectedAnswer" binding:"required"`
	MarkedForReview bool            `json:"markedForReview"`
}

type CompleteAttemptReq struct {
	Answers []FinalAnswer `json:"answers" binding:"dive"`
}

type CompleteResult struct {
	Attempt model.OnlineTestAttempt `json:"attempt"`
	Grade   GradeResult             `json:"grade"`
}

type GradeAnswerReq struct {
	Score    *int   `json:"score" binding:"required"`
	Feedback string `json:"feedback"`
}

type NavigationView struct {
	AttemptID      uint              `json:"attemptId"`
	Groups         []NavigationGroup `json:"groups"`
	Progress       Progress          `json:"progress"`
	ConfirmMessage string            `json:"confirmMessage,omitempty"`
}

func stateOf(a *model.OnlineTestAttempt) AttemptState {
	if a.Completed {
		return AttemptCompleted
	}
	return AttemptInProgress
}

func (s *AttemptService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// StartAttempt 学员只能开始已就绪的测试，教师/管理员可预览任意测试
func (s *AttemptService) StartAttempt(ctx context.Context, testID uint, p Principal) (*model.OnlineTestAttempt, error) {
	_, span := tracing.Start(ctx, "AttemptService.StartAttempt", attribute.Int64("test.id", int64(testID)))
	defer span.End()

	test, err := s.TestRepo.FindByID(testID)
	if err != nil {
		return nil, err
	}
	if !p.IsStaff() {
		if !test.IsPublished {
			return nil, util.ErrTestNotReady
		}
		qc, err := s.TestRepo.CountQuestions(testID)
		if err != nil {
			return nil, err
		}
		if qc == 0 {
			return nil, util.ErrTestNotReady
		}
	}

	attempt := &model.OnlineTestAttempt{
		TestID:        testID,
		UserID:        p.UserID,
		StartTime:     s.now(),
		SectionScores: datatypes.NewJSONType(model.SectionScores{}),
	}
	if err := s.Repo.Create(attempt); err != nil {
		return nil, err
	}
	if err := s.TestRepo.IncrementPopularity(testID); err != nil {
		logger.Log.Warn("failed to increment popularity", zap.Uint("testId", testID), zap.Error(err))
	}
	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("attempt started", zap.Uint("attemptId", attempt.ID), zap.Uint("testId", testID), zap.Uint("userId", p.UserID))
	return attempt, nil
}

func (s *AttemptService) ListAttempts(testID, userID uint) ([]model.OnlineTestAttempt, error) {
	if _, err := s.TestRepo.FindByID(testID); err != nil {
		return nil, err
	}
	attempts, err := s.Repo.ListByTestAndUser(testID, userID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.OnlineTestAttempt{}
	}
	return attempts, nil
}

func (s *AttemptService) GetAttempt(attemptID uint, p Principal) (*AttemptView, error) {
	attempt, err := s.viewable(attemptID, p)
	if err != nil {
		return nil, err
	}
	test, err := s.TestRepo.FindByID(attempt.TestID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Repo.ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = []model.OnlineTestAnswer{}
	}
	return &AttemptView{
		OnlineTestAttempt: *attempt,
		State:             stateOf(attempt),
		Deadline:          attempt.StartTime.Add(time.Duration(test.Duration) * time.Minute),
		Answers:           answers,
	}, nil
}

func (s *AttemptService) viewable(attemptID uint, p Principal) (*model.OnlineTestAttempt, error) {
	attempt, err := s.Repo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if !p.CanView(attempt.UserID) {
		return nil, util.ErrPermissionDenied
	}
	return attempt, nil
}

// ownedInProgress 作答和提交只允许本人，且尝试未完成
func (s *AttemptService) ownedInProgress(attemptID uint, p Principal) (*model.OnlineTestAttempt, error) {
	attempt, err := s.Repo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != p.UserID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.Completed {
		return nil, util.ErrAttemptCompleted
	}
	return attempt, nil
}

// buildAnswer 校验作答结构并即时判分客观题
func buildAnswer(attempt *model.OnlineTestAttempt, q *model.OnlineTestQuestion, raw json.RawMessage, marked bool) (*model.OnlineTestAnswer, error) {
	payload, err := model.DecodeAnswerPayload(q.Type, raw)
	if err != nil {
		return nil, util.Validationf("selectedAnswer: %v", err)
	}
	if err := checkOptions(q, payload); err != nil {
		return nil, err
	}
	isCorrect, score := EvaluateAnswer(*q, payload)
	return &model.OnlineTestAnswer{
		AttemptID:       attempt.ID,
		QuestionID:      q.ID,
		UserID:          attempt.UserID,
		SelectedAnswer:  payload.JSON(),
		IsCorrect:       isCorrect,
		Score:           score,
		MarkedForReview: marked,
	}, nil
}

func (s *AttemptService) RecordAnswer(ctx context.Context, attemptID, questionID uint, p Principal, req RecordAnswerReq) (*model.OnlineTestAnswer, error) {
	_, span := tracing.Start(ctx, "AttemptService.RecordAnswer",
		attribute.Int64("attempt.id", int64(attemptID)),
		attribute.Int64("question.id", int64(questionID)))
	defer span.End()

	attempt, err := s.ownedInProgress(attemptID, p)
	if err != nil {
		return nil, err
	}
	q, err := s.QuestionRepo.FindInTest(attempt.TestID, questionID)
	if err != nil {
		return nil, err
	}
	ans, err := buildAnswer(attempt, q, req.SelectedAnswer, req.MarkedForReview)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.RecordAnswer(ans, req.ExpectedRevision); err != nil {
		return nil, err
	}
	monitoring.AnswersRecorded.WithLabelValues(string(q.Type)).Inc()
	return ans, nil
}

// CompleteAttempt 写入最后一批作答、判分并标记完成，全部在一个事务中
func (s *AttemptService) CompleteAttempt(ctx context.Context, attemptID uint, p Principal, req CompleteAttemptReq) (*CompleteResult, error) {
	_, span := tracing.Start(ctx, "AttemptService.CompleteAttempt", attribute.Int64("attempt.id", int64(attemptID)))
	defer span.End()

	attempt, err := s.ownedInProgress(attemptID, p)
	if err != nil {
		return nil, err
	}

	var result CompleteResult
	err = s.Repo.Transaction(func(tx *gorm.DB) error {
		repo := s.Repo.WithTx(tx)
		questionRepo := s.QuestionRepo.WithTx(tx)

		// 先锁行，之后读到的作答包含所有已提交的写入
		if _, err := repo.LockOpen(attemptID); err != nil {
			return err
		}
		for _, fa := range req.Answers {
			q, err := questionRepo.FindInTest(attempt.TestID, fa.QuestionID)
			if err != nil {
				return err
			}
			ans, err := buildAnswer(attempt, q, fa.SelectedAnswer, fa.MarkedForReview)
			if err != nil {
				return err
			}
			if err := repo.UpsertAnswer(ans, nil); err != nil {
				return err
			}
		}

		questions, err := questionRepo.ListByTest(attempt.TestID)
		if err != nil {
			return err
		}
		answers, err := repo.ListAnswers(attemptID)
		if err != nil {
			return err
		}
		grade := GradeAnswers(questions, answers)
		grade.AttemptID = attemptID

		end := s.now()
		if err := repo.MarkCompleted(attemptID, end, grade.TotalScore, grade.SectionScores); err != nil {
			return err
		}
		if err := s.TestRepo.WithTx(tx).RefreshCompletionRate(attempt.TestID); err != nil {
			return err
		}

		updated, err := repo.FindByID(attemptID)
		if err != nil {
			return err
		}
		result = CompleteResult{Attempt: *updated, Grade: grade}
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.AttemptsCompleted.Inc()
	logger.Log.Info("attempt completed",
		zap.Uint("attemptId", attemptID),
		zap.Uint("testId", attempt.TestID),
		zap.Float64("score", result.Grade.TotalScore))
	return &result, nil
}

// GradeAttempt 根据已保存的作答重新计算成绩，不修改数据
func (s *AttemptService) GradeAttempt(attemptID uint, p Principal) (*GradeResult, error) {
	attempt, err := s.viewable(attemptID, p)
	if err != nil {
		return nil, err
	}
	questions, err := s.QuestionRepo.ListByTest(attempt.TestID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Repo.ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}
	res := GradeAnswers(questions, answers)
	res.AttemptID = attemptID
	return &res, nil
}

// GradeAnswer 教师为作文/口语题人工评分
func (s *AttemptService) GradeAnswer(attemptID, questionID uint, grader Principal, req GradeAnswerReq) (*model.OnlineTestAnswer, error) {
	if !grader.IsStaff() {
		return nil, util.ErrPermissionDenied
	}
	attempt, err := s.Repo.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	// 进行中的作答还会被覆盖，只能在提交后评分
	if !attempt.Completed {
		return nil, util.ErrAttemptInProgress
	}
	q, err := s.QuestionRepo.FindInTest(attempt.TestID, questionID)
	if err != nil {
		return nil, err
	}
	if q.Type.Gradable() {
		return nil, util.Validationf("%s questions are graded automatically", q.Type)
	}
	if req.Score == nil {
		return nil, util.Validationf("score is required")
	}
	if *req.Score < 0 || *req.Score > q.Points {
		return nil, util.Validationf("score must be between 0 and %d", q.Points)
	}

	ans, err := s.Repo.FindAnswer(attemptID, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.SaveManualGrade(ans.ID, *req.Score, *req.Score > 0, req.Feedback, grader.UserID); err != nil {
		return nil, err
	}
	return s.Repo.FindAnswer(attemptID, questionID)
}

// Navigation 答题导航与进度，未答完时附带提交确认提示
func (s *AttemptService) Navigation(attemptID uint, p Principal, current int) (*NavigationView, error) {
	attempt, err := s.viewable(attemptID, p)
	if err != nil {
		return nil, err
	}
	questions, err := s.QuestionRepo.ListByTest(attempt.TestID)
	if err != nil {
		return nil, err
	}
	answers, err := s.Repo.ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}

	progress := ComputeProgress(len(questions), CountAnswered(questions, answers))
	view := &NavigationView{
		AttemptID: attemptID,
		Groups:    BuildNavigation(questions, answers, current),
		Progress:  progress,
	}
	if !progress.IsComplete {
		view.ConfirmMessage = fmt.Sprintf("You have answered %d of %d questions. Submit anyway?", progress.Answered, progress.Total)
	}
	return view, nil
}
