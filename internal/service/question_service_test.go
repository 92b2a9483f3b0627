package service

import (
	"context"
	"encoding/json"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListQuestionsGroupsAndRedacts(t *testing.T) {
	f := newFixture(t)
	test := f.createTest(t, "Grouped")

	_, err := f.questions.ListQuestions(test.ID, teacher)
	assert.ErrorIs(t, err, util.ErrNoQuestions)

	_, err = f.questions.ListQuestions(9999, teacher)
	assert.ErrorIs(t, err, util.ErrTestNotFound)

	f.addEssay(t, test.ID)
	f.addSingle(t, test.ID, model.SectionReading, 2, "B")
	f.addSingle(t, test.ID, model.SectionListening, 1, "C")
	f.addSingle(t, test.ID, model.SectionReading, 1, "D")
	f.publish(t, test.ID)

	sections, err := f.questions.ListQuestions(test.ID, student)
	require.NoError(t, err)
	require.Len(t, sections, 3)
	assert.Equal(t, model.SectionListening, sections[0].SectionType)
	assert.Equal(t, model.SectionReading, sections[1].SectionType)
	assert.Equal(t, model.SectionWriting, sections[2].SectionType)
	require.Len(t, sections[1].Parts, 2)
	assert.Equal(t, 1, sections[1].Parts[0].Part)
	assert.Equal(t, 2, sections[1].Parts[1].Part)

	for _, sec := range sections {
		for _, p := range sec.Parts {
			for _, q := range p.Questions {
				assert.Empty(t, q.CorrectAnswer)
				assert.Empty(t, q.Explanation)
			}
		}
	}

	withKey, err := f.questions.ListQuestions(test.ID, teacher)
	require.NoError(t, err)
	assert.JSONEq(t, `"C"`, string(withKey[0].Parts[0].Questions[0].CorrectAnswer))
	assert.Empty(t, withKey[2].Parts[0].Questions[0].CorrectAnswer)
}

func TestListQuestionsHidesDraftFromLearners(t *testing.T) {
	f := newFixture(t)
	test := f.createTest(t, "Draft")
	f.addSingle(t, test.ID, model.SectionReading, 1, "A")

	_, err := f.questions.ListQuestions(test.ID, student)
	assert.ErrorIs(t, err, util.ErrTestNotFound)
	_, err = f.questions.ListQuestions(test.ID, Principal{})
	assert.ErrorIs(t, err, util.ErrTestNotFound)

	sections, err := f.questions.ListQuestions(test.ID, teacher)
	require.NoError(t, err)
	assert.Len(t, sections, 1)

	f.publish(t, test.ID)
	sections, err = f.questions.ListQuestions(test.ID, student)
	require.NoError(t, err)
	assert.Len(t, sections, 1)
}

func TestAddQuestionDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test := f.createTest(t, "Questions")

	q, err := f.questions.AddQuestion(ctx, test.ID, QuestionReq{
		Content:       "She ___ to school yesterday.",
		Type:          model.QuestionFill,
		SectionType:   model.SectionReading,
		CorrectAnswer: raw("went"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Part)
	assert.Equal(t, 0, q.Order)
	assert.Equal(t, 1, q.GroupID)
	assert.Equal(t, 1, q.Points)

	q, err = f.questions.AddQuestion(ctx, test.ID, QuestionReq{
		Content:       "Pick two",
		Type:          model.QuestionMultiple,
		SectionType:   model.SectionListening,
		Part:          intPtr(3),
		Options:       []string{"red", "green", "blue"},
		CorrectAnswer: raw([]string{"red", "blue"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.GroupID)

	bad := []QuestionReq{
		{Content: "no options", Type: model.QuestionSingle, SectionType: model.SectionReading, Options: []string{"A"}, CorrectAnswer: raw("A")},
		{Content: "key not in options", Type: model.QuestionSingle, SectionType: model.SectionReading, Options: []string{"A", "B"}, CorrectAnswer: raw("C")},
		{Content: "no key", Type: model.QuestionFill, SectionType: model.SectionReading},
		{Content: "wrong key shape", Type: model.QuestionMultiple, SectionType: model.SectionReading, Options: []string{"A", "B"}, CorrectAnswer: raw("A")},
		{Content: "bad part", Type: model.QuestionEssay, SectionType: model.SectionWriting, Part: intPtr(0)},
		{Content: "bad section", Type: model.QuestionEssay, SectionType: "grammar"},
	}
	for _, req := range bad {
		_, err := f.questions.AddQuestion(ctx, test.ID, req)
		assert.ErrorIs(t, err, util.ErrValidation, req.Content)
	}

	_, err = f.questions.AddQuestion(ctx, 9999, QuestionReq{Content: "x", Type: model.QuestionEssay, SectionType: model.SectionWriting})
	assert.ErrorIs(t, err, util.ErrTestNotFound)
}

func TestQuestionMutationsRefreshSections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test := f.createTest(t, "Sections")
	q := f.addSingle(t, test.ID, model.SectionReading, 1, "A")

	speaking := model.SectionSpeaking
	updated, err := f.questions.UpdateQuestion(ctx, test.ID, q.ID, UpdateQuestionReq{SectionType: &speaking, Part: intPtr(2)})
	require.NoError(t, err)
	assert.Equal(t, model.SectionSpeaking, updated.SectionType)

	stored, err := f.testRepo.FindByID(test.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.SectionSummary{{SectionType: model.SectionSpeaking, Parts: 1, Questions: 1}}, []model.SectionSummary(stored.Sections))

	require.NoError(t, f.questions.DeleteQuestion(ctx, test.ID, q.ID))
	stored, err = f.testRepo.FindByID(test.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Sections)

	assert.ErrorIs(t, f.questions.DeleteQuestion(ctx, test.ID, q.ID), util.ErrQuestionNotFound)
}

func TestAnsweredQuestionIsLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, qs := f.readyTest(t, "Locked", 1)
	attempt, err := f.attempts.StartAttempt(ctx, test.ID, student)
	require.NoError(t, err)
	_, err = f.attempts.RecordAnswer(ctx, attempt.ID, qs[0].ID, student, RecordAnswerReq{SelectedAnswer: raw("A")})
	require.NoError(t, err)

	content := "changed"
	_, err = f.questions.UpdateQuestion(ctx, test.ID, qs[0].ID, UpdateQuestionReq{Content: &content})
	assert.ErrorIs(t, err, util.ErrQuestionLocked)
	assert.ErrorIs(t, f.questions.DeleteQuestion(ctx, test.ID, qs[0].ID), util.ErrQuestionLocked)
}

func TestQuestionViewMarshalsWithoutKey(t *testing.T) {
	q := question(1, model.QuestionSingle, model.SectionReading, `"A"`)
	q.Explanation = "because"

	b, err := json.Marshal(NewQuestionView(q, false))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "correctAnswer")
	assert.NotContains(t, string(b), "because")
}
