package service

import (
	"context"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTTLShortForNotReady(t *testing.T) {
	assert.Equal(t, 5*time.Minute, statusTTL(&TestStatus{IsReady: true}, 5*time.Minute))
	assert.Equal(t, notReadyStatusTTL, statusTTL(&TestStatus{}, 5*time.Minute))
	assert.Equal(t, 10*time.Second, statusTTL(&TestStatus{}, 10*time.Second))
}

func TestMemoryStatusCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryStatusCache(5 * time.Minute)
	c.Now = func() time.Time { return now }

	gen, ok := c.Generation(ctx, 1)
	require.True(t, ok)
	c.Set(ctx, &TestStatus{TestID: 1, IsReady: false}, gen)
	_, hit := c.Get(ctx, 1)
	assert.True(t, hit)

	now = now.Add(notReadyStatusTTL)
	_, hit = c.Get(ctx, 1)
	assert.False(t, hit)
}

func TestStatusCacheIgnoresWriteFromBeforeInvalidate(t *testing.T) {
	db := newFixture(t).db
	ctx := context.Background()
	cache := NewMemoryStatusCache(5 * time.Minute)
	testRepo := repository.NewOnlineTestRepository(db)
	tests := NewOnlineTestService(testRepo, cache)
	questions := NewQuestionService(repository.NewQuestionRepository(db), testRepo, cache)

	test, err := tests.CreateTest(teacher.UserID, CreateTestReq{
		Title: "Cached", Description: "d", TestType: model.TestTypeGeneral,
		Difficulty: model.DifficultyBeginner, Duration: 10,
	})
	require.NoError(t, err)

	// 慢读者在题目写入前读到了空状态
	gen, _ := cache.Generation(ctx, test.ID)
	staleStatus := &TestStatus{TestID: test.ID}

	_, err = questions.AddQuestion(ctx, test.ID, QuestionReq{
		Content: "Pick one", Type: model.QuestionSingle, SectionType: model.SectionReading,
		Options: []string{"A", "B"}, CorrectAnswer: raw("A"),
	})
	require.NoError(t, err)

	cache.Set(ctx, staleStatus, gen)

	status, err := tests.GetTestStatus(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.QuestionCount)

	cached, hit := cache.Get(ctx, test.ID)
	require.True(t, hit)
	assert.Equal(t, int64(1), cached.QuestionCount)

	_, err = tests.UpdateTest(ctx, test.ID, UpdateTestReq{IsPublished: boolPtr(true)})
	require.NoError(t, err)
	status, err = tests.GetTestStatus(ctx, test.ID)
	require.NoError(t, err)
	assert.True(t, status.IsReady)
}
