package service

import (
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"strings"
)

// GradeResult 自动判分结果，只依赖已保存的作答与题目答案，可重复计算
type GradeResult struct {
	AttemptID     uint                `json:"attemptId"`
	TotalScore    float64             `json:"totalScore"`
	Correct       int                 `json:"correct"`
	Gradable      int                 `json:"gradable"`
	SectionScores model.SectionScores `json:"sectionScores"`
	// 主观题（作文/口语）已作答但还未人工评分的题目
	PendingReview []uint `json:"pendingReview"`
	ManualScore   int    `json:"manualScore"`
}

// normalize 小写、去首尾空白并合并中间空白
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[normalize(v)] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[normalize(v)] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for k := range as {
		if _, ok := bs[k]; !ok {
			return false
		}
	}
	return true
}

// IsCorrect 比较作答与标准答案；题型不可自动判分或答案无法解析时返回 false
func IsCorrect(q model.OnlineTestQuestion, selected model.AnswerPayload) bool {
	if !q.Type.Gradable() {
		return false
	}
	key, err := model.DecodeAnswerPayload(q.Type, q.CorrectAnswer)
	if err != nil {
		return false
	}
	switch q.Type {
	case model.QuestionSingle:
		return normalize(selected.Choice) == normalize(key.Choice)
	case model.QuestionMultiple:
		return sameSet(selected.Choices, key.Choices)
	case model.QuestionFill:
		return normalize(selected.Text) == normalize(key.Text)
	}
	return false
}

// EvaluateAnswer 作答时即时判分；主观题返回 nil，等待人工评分
func EvaluateAnswer(q model.OnlineTestQuestion, selected model.AnswerPayload) (*bool, *int) {
	if !q.Type.Gradable() {
		return nil, nil
	}
	ok := IsCorrect(q, selected)
	score := 0
	if ok {
		score = q.Points
	}
	return &ok, &score
}

// GradeAnswers 客观题得分 = 答对数 / 客观题总数 * 100，未作答按答错计
func GradeAnswers(questions []model.OnlineTestQuestion, answers []model.OnlineTestAnswer) GradeResult {
	byQuestion := make(map[uint]model.OnlineTestAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	res := GradeResult{
		SectionScores: model.SectionScores{},
		PendingReview: []uint{},
	}

	for _, q := range OrderQuestions(questions) {
		ans, answered := byQuestion[q.ID]

		if !q.Type.Gradable() {
			if !answered {
				continue
			}
			if ans.GradedBy == nil {
				res.PendingReview = append(res.PendingReview, q.ID)
			} else if ans.Score != nil {
				res.ManualScore += *ans.Score
			}
			continue
		}

		sec := res.SectionScores[q.SectionType]
		sec.Gradable++
		res.Gradable++

		if answered {
			selected, err := model.DecodeAnswerPayload(q.Type, ans.SelectedAnswer)
			if err == nil && IsCorrect(q, selected) {
				sec.Correct++
				res.Correct++
			}
		}
		res.SectionScores[q.SectionType] = sec
	}

	for k, sec := range res.SectionScores {
		sec.Score = percentage(sec.Correct, sec.Gradable)
		res.SectionScores[k] = sec
	}
	res.TotalScore = percentage(res.Correct, res.Gradable)
	return res
}

func percentage(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return util.Round2(float64(correct) * 100 / float64(total))
}
