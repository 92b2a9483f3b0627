package service

import (
	"lingo_edu_backend/internal/model"
	"math"
)

const (
	NavCurrent    = "current"
	NavAnswered   = "answered"
	NavUnanswered = "unanswered"
)

type NavigationEntry struct {
	QuestionID     uint   `json:"questionId"`
	QuestionNumber int    `json:"questionNumber"`
	Status         string `json:"status"`
	Flagged        bool   `json:"flagged"`
}

type NavigationGroup struct {
	SectionType model.SectionType `json:"sectionType"`
	Part        int               `json:"part"`
	Entries     []NavigationEntry `json:"entries"`
}

type Progress struct {
	Answered   int  `json:"answered"`
	Total      int  `json:"total"`
	Percentage int  `json:"percentage"`
	IsComplete bool `json:"isComplete"`
}

// BuildNavigation 生成答题导航；current 为当前题号（从 1 开始），0 表示没有当前题
func BuildNavigation(questions []model.OnlineTestQuestion, answers []model.OnlineTestAnswer, current int) []NavigationGroup {
	byQuestion := make(map[uint]model.OnlineTestAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	groups := make([]NavigationGroup, 0)
	for i, q := range OrderQuestions(questions) {
		number := i + 1
		if len(groups) == 0 {
			groups = append(groups, NavigationGroup{SectionType: q.SectionType, Part: q.Part})
		} else if last := groups[len(groups)-1]; last.SectionType != q.SectionType || last.Part != q.Part {
			groups = append(groups, NavigationGroup{SectionType: q.SectionType, Part: q.Part})
		}

		ans, ok := byQuestion[q.ID]
		entry := NavigationEntry{QuestionID: q.ID, QuestionNumber: number, Status: NavUnanswered, Flagged: ok && ans.MarkedForReview}
		switch {
		case number == current:
			entry.Status = NavCurrent
		case ok && hasResponse(q, ans):
			entry.Status = NavAnswered
		}

		g := &groups[len(groups)-1]
		g.Entries = append(g.Entries, entry)
	}
	return groups
}

// CountAnswered 有实际内容的作答数
func CountAnswered(questions []model.OnlineTestQuestion, answers []model.OnlineTestAnswer) int {
	byQuestion := make(map[uint]model.OnlineTestAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	n := 0
	for _, q := range questions {
		if ans, ok := byQuestion[q.ID]; ok && hasResponse(q, ans) {
			n++
		}
	}
	return n
}

func hasResponse(q model.OnlineTestQuestion, ans model.OnlineTestAnswer) bool {
	p, err := model.DecodeAnswerPayload(q.Type, ans.SelectedAnswer)
	return err == nil && !p.IsEmpty()
}

func ComputeProgress(total, answered int) Progress {
	p := Progress{Answered: answered, Total: total}
	if total <= 0 {
		return p
	}
	pct := int(math.Round(100 * float64(answered) / float64(total)))
	if pct > 100 {
		pct = 100
	}
	p.Percentage = pct
	p.IsComplete = answered >= total
	return p
}
