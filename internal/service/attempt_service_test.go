package service

import (
	"context"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestStartAttemptRequiresReadyTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.createTest(t, "Draft")

	_, err := f.attempts.StartAttempt(ctx, draft.ID, student)
	assert.ErrorIs(t, err, util.ErrTestNotReady)

	preview, err := f.attempts.StartAttempt(ctx, draft.ID, teacher)
	require.NoError(t, err)
	assert.False(t, preview.Completed)

	_, err = f.attempts.StartAttempt(ctx, 9999, student)
	assert.ErrorIs(t, err, util.ErrTestNotFound)
}

func TestStartAttemptAllowsParallelAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, _ := f.readyTest(t, "Ready", 1)

	first, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	second, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	attempts, err := f.attempts.ListAttempts(test.ID, student.UserID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, second.ID, attempts[0].ID)

	stored, err := f.testRepo.FindByID(test.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Popularity)
}

func TestAttemptLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Lifecycle", 4)

	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	for i, sel := range []string{"A", "A", "A", "B"} {
		ans, err := f.attempts.RecordAnswer(ctx, attempt.ID, qs[i].ID, student, RecordAnswerReq{SelectedAnswer: raw(sel)})
		require.NoError(t, err)
		require.NotNil(t, ans.IsCorrect)
		assert.Equal(t, sel == "A", *ans.IsCorrect)
	}

	view, err := f.attempts.GetAttempt(attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, AttemptInProgress, view.State)
	assert.Len(t, view.Answers, 4)
	assert.Equal(t, view.StartTime.Add(60*time.Minute), view.Deadline)

	res, err := f.attempts.CompleteAttempt(ctx, attempt.ID, student, CompleteAttemptReq{})
	require.NoError(t, err)
	assert.Equal(t, 75.0, res.Grade.TotalScore)
	assert.True(t, res.Attempt.Completed)
	require.NotNil(t, res.Attempt.Score)
	assert.Equal(t, 75.0, *res.Attempt.Score)
	assert.NotNil(t, res.Attempt.EndTime)
	assert.Equal(t, model.SectionScore{Correct: 3, Gradable: 4, Score: 75}, res.Attempt.SectionScores.Data()[model.SectionReading])

	grade, err := f.attempts.GradeAttempt(attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 75.0, grade.TotalScore)

	stored, err := f.testRepo.FindByID(test.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.CompletionRate)
}

func TestCompleteAttemptOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Once", 2)

	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	res, err := f.attempts.CompleteAttempt(ctx, attempt.ID, student, CompleteAttemptReq{
		Answers: []FinalAnswer{{QuestionID: qs[0].ID, SelectedAnswer: raw("A")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Grade.TotalScore)
	firstEnd := *res.Attempt.EndTime

	_, err = f.attempts.CompleteAttempt(ctx, attempt.ID, student, CompleteAttemptReq{
		Answers: []FinalAnswer{{QuestionID: qs[1].ID, SelectedAnswer: raw("A")}},
	})
	assert.ErrorIs(t, err, util.ErrAttemptCompleted)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[1].ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	assert.ErrorIs(t, err, util.ErrAttemptCompleted)

	view, err := f.attempts.GetAttempt(attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, AttemptCompleted, view.State)
	assert.Len(t, view.Answers, 1)
	assert.True(t, firstEnd.Equal(*view.EndTime))
	assert.Equal(t, 50.0, *view.Score)
}

func TestCompleteAttemptRollsBackOnBadFinalAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Rollback", 2)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	_, err = f.attempts.CompleteAttempt(ctx, attempt.ID, student, CompleteAttemptReq{
		Answers: []FinalAnswer{
			{QuestionID: qs[0].ID, SelectedAnswer: raw("A")},
			{QuestionID: qs[1].ID, SelectedAnswer: raw([]string{})},
		},
	})
	assert.ErrorIs(t, err, util.ErrValidation)

	view, err := f.attempts.GetAttempt(attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, AttemptInProgress, view.State)
	assert.Empty(t, view.Answers)
}

func TestRecordAnswerUpsertKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Upsert", 1)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	var last *model.OnlineTestAnswer
	for i, sel := range []string{"B", "C", "A"} {
		last, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw(sel)})
		require.NoError(t, err)
		assert.Equal(t, i+1, last.Revision)
	}
	assert.True(t, *last.IsCorrect)

	var n int64
	require.NoError(t, f.db.Model(&model.OnlineTestAnswer{}).Where("attempt_id = ?", attempt.ID).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestRecordAnswerConcurrentWritesKeepOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Concurrent", 1)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sel := "A"
			if i%2 == 0 {
				sel = "B"
			}
			_, err := f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw(sel)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	var answers []model.OnlineTestAnswer
	require.NoError(t, f.db.Where("attempt_id = ?", attempt.ID).Find(&answers).Error)
	require.Len(t, answers, 1)
	assert.Equal(t, 8, answers[0].Revision)
}

func TestRecordAnswerExpectedRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Revision", 1)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	first, err := f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("B"), ExpectedRevision: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("C"), ExpectedRevision: intPtr(0)})
	assert.ErrorIs(t, err, util.ErrStaleAnswer)

	second, err := f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A"), ExpectedRevision: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Revision)
}

func TestRecordAnswerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Validation", 1)
	otherTest, otherQs := f.readyTest(t, "Other", 1)
	_ = otherTest
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, other, RecordAnswerReq{SelectedAnswer: raw("A")})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, otherQs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("E")})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw(42)})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = f.attempts.RecordAnswer(ctx, 9999, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	assert.ErrorIs(t, err, util.ErrAttemptNotFound)
}

func TestAttemptAccessControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, _ := f.readyTest(t, "Access", 1)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	_, err = f.attempts.GetAttempt(attempt.ID, other)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.attempts.GetAttempt(attempt.ID, teacher)
	assert.NoError(t, err)

	_, err = f.attempts.CompleteAttempt(ctx, attempt.ID, teacher, CompleteAttemptReq{})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.attempts.GradeAttempt(attempt.ID, other)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestGradeAnswerManually(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test := f.createTest(t, "Writing")
	single := f.addSingle(t, test.ID, model.SectionReading, 1, "A")
	essay := f.addEssay(t, test.ID)
	f.publish(t, test.ID)

	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, single.ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	require.NoError(t, err)
	essayAns, err := f.attempts.RecordAnswer(ctx, attempt.ID, essay.ID, student, RecordAnswerReq{SelectedAnswer: raw("I went to the sea.")})
	require.NoError(t, err)
	assert.Nil(t, essayAns.IsCorrect)
	assert.Nil(t, essayAns.Score)

	res, err := f.attempts.CompleteAttempt(ctx, attempt.ID, student, CompleteAttemptReq{})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Grade.TotalScore)
	assert.Equal(t, []uint{essay.ID}, res.Grade.PendingReview)

	_, err = f.attempts.GradeAnswer(attempt.ID, essay.ID, student, GradeAnswerReq{Score: intPtr(5)})
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.attempts.GradeAnswer(attempt.ID, essay.ID, teacher, GradeAnswerReq{Score: intPtr(11)})
	assert.ErrorIs(t, err, util.ErrValidation)

	_, err = f.attempts.GradeAnswer(attempt.ID, single.ID, teacher, GradeAnswerReq{Score: intPtr(1)})
	assert.ErrorIs(t, err, util.ErrValidation)

	graded, err := f.attempts.GradeAnswer(attempt.ID, essay.ID, teacher, GradeAnswerReq{Score: intPtr(7), Feedback: "Good structure"})
	require.NoError(t, err)
	assert.Equal(t, 7, *graded.Score)
	assert.True(t, *graded.IsCorrect)
	assert.Equal(t, "Good structure", graded.Feedback)
	assert.Equal(t, teacher.UserID, *graded.GradedBy)

	grade, err := f.attempts.GradeAttempt(attempt.ID, student)
	require.NoError(t, err)
	assert.Equal(t, 100.0, grade.TotalScore)
	assert.Equal(t, 7, grade.ManualScore)
	assert.Empty(t, grade.PendingReview)
}

func TestNavigationView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Navigate", 3)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)

	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A"), MarkedForReview: true})
	require.NoError(t, err)

	view, err := f.attempts.Navigation(attempt.ID, student, 2)
	require.NoError(t, err)
	assert.Equal(t, Progress{Answered: 1, Total: 3, Percentage: 33}, view.Progress)
	assert.NotEmpty(t, view.ConfirmMessage)
	require.Len(t, view.Groups, 1)
	entries := view.Groups[0].Entries
	assert.Equal(t, NavAnswered, entries[0].Status)
	assert.True(t, entries[0].Flagged)
	assert.Equal(t, NavCurrent, entries[1].Status)
	assert.Equal(t, NavUnanswered, entries[2].Status)
}

func TestGradeAnswerRequiresCompletedAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test := f.createTest(t, "Writing")
	essay := f.addEssay(t, test.ID)
	f.publish(t, test.ID)

	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, essay.ID, student, RecordAnswerReq{SelectedAnswer: raw("Draft essay")})
	require.NoError(t, err)

	_, err = f.attempts.GradeAnswer(attempt.ID, essay.ID, teacher, GradeAnswerReq{Score: intPtr(6)})
	assert.ErrorIs(t, err, util.ErrAttemptInProgress)
	assert.ErrorIs(t, err, util.ErrInvalidState)

	ans, err := f.attempts.Repo.FindAnswer(attempt.ID, essay.ID)
	require.NoError(t, err)
	assert.Nil(t, ans.Score)
	assert.Nil(t, ans.GradedBy)
}

func TestRecordAnswerAfterConcurrentCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Race", 2)

	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	require.NoError(t, err)

	// 另一请求在本次校验之后完成了提交
	require.NoError(t, f.attempts.Repo.MarkCompleted(attempt.ID, time.Now(), 50, nil))

	err = f.attempts.Repo.RecordAnswer(&model.OnlineTestAnswer{
		AttemptID:      attempt.ID,
		QuestionID:     qs[1].ID,
		UserID:         student.UserID,
		SelectedAnswer: datatypes.JSON(`"A"`),
	}, nil)
	assert.ErrorIs(t, err, util.ErrAttemptCompleted)

	answers, err := f.attempts.Repo.ListAnswers(attempt.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
}
