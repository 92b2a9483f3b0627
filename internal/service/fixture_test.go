package service

import (
	"context"
	"encoding/json"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"lingo_edu_backend/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	student = Principal{UserID: 100, Role: model.Student}
	other   = Principal{UserID: 101, Role: model.Student}
	teacher = Principal{UserID: 1, Role: model.Teacher}
)

type fixture struct {
	db        *gorm.DB
	tests     *OnlineTestService
	questions *QuestionService
	attempts  *AttemptService
	testRepo  *repository.OnlineTestRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	testRepo := repository.NewOnlineTestRepository(db)
	questionRepo := repository.NewQuestionRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)

	attempts := NewAttemptService(attemptRepo, testRepo, questionRepo)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempts.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{
		db:        db,
		tests:     NewOnlineTestService(testRepo, nil),
		questions: NewQuestionService(questionRepo, testRepo, nil),
		attempts:  attempts,
		testRepo:  testRepo,
	}
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func (f *fixture) createTest(t *testing.T, title string) *model.OnlineTest {
	t.Helper()
	test, err := f.tests.CreateTest(teacher.UserID, CreateTestReq{
		Title:       title,
		Description: title + " description",
		TestType:    model.TestTypeTOEIC,
		Difficulty:  model.DifficultyIntermediate,
		Duration:    60,
		Tags:        []string{"practice"},
	})
	require.NoError(t, err)
	return test
}

func (f *fixture) addSingle(t *testing.T, testID uint, section model.SectionType, part int, key string) *model.OnlineTestQuestion {
	t.Helper()
	raw, _ := json.Marshal(key)
	q, err := f.questions.AddQuestion(context.Background(), testID, QuestionReq{
		Content:       "Choose the best answer",
		Type:          model.QuestionSingle,
		SectionType:   section,
		Part:          intPtr(part),
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: raw,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) addEssay(t *testing.T, testID uint) *model.OnlineTestQuestion {
	t.Helper()
	q, err := f.questions.AddQuestion(context.Background(), testID, QuestionReq{
		Content:     "Describe your last holiday",
		Type:        model.QuestionEssay,
		SectionType: model.SectionWriting,
		Points:      intPtr(10),
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) publish(t *testing.T, testID uint) {
	t.Helper()
	_, err := f.tests.UpdateTest(context.Background(), testID, UpdateTestReq{IsPublished: boolPtr(true)})
	require.NoError(t, err)
}

// readyTest 已发布、含 n 道阅读单选题（答案均为 A）
func (f *fixture) readyTest(t *testing.T, title string, n int) (*model.OnlineTest, []*model.OnlineTestQuestion) {
	t.Helper()
	test := f.createTest(t, title)
	qs := make([]*model.OnlineTestQuestion, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, f.addSingle(t, test.ID, model.SectionReading, 1, "A"))
	}
	f.publish(t, test.ID)
	return test, qs
}

func raw(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
