package service

import (
	"lingo_edu_backend/internal/model"
	"sort"
)

type PartGroup struct {
	Part      int                        `json:"part"`
	Questions []model.OnlineTestQuestion `json:"questions"`
}

type SectionGroup struct {
	SectionType model.SectionType `json:"sectionType"`
	Parts       []PartGroup       `json:"parts"`
}

// OrderQuestions 按 分区 -> part -> order -> id 排序，返回新切片
func OrderQuestions(qs []model.OnlineTestQuestion) []model.OnlineTestQuestion {
	out := make([]model.OnlineTestQuestion, len(qs))
	copy(out, qs)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := a.SectionType.Rank(), b.SectionType.Rank(); ra != rb {
			return ra < rb
		}
		if a.Part != b.Part {
			return a.Part < b.Part
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})
	return out
}

// GroupQuestions 把题目分组为 分区 -> part 两级结构
func GroupQuestions(qs []model.OnlineTestQuestion) []SectionGroup {
	ordered := OrderQuestions(qs)
	groups := make([]SectionGroup, 0)
	for _, q := range ordered {
		if len(groups) == 0 || groups[len(groups)-1].SectionType != q.SectionType {
			groups = append(groups, SectionGroup{SectionType: q.SectionType})
		}
		sec := &groups[len(groups)-1]
		if len(sec.Parts) == 0 || sec.Parts[len(sec.Parts)-1].Part != q.Part {
			sec.Parts = append(sec.Parts, PartGroup{Part: q.Part})
		}
		part := &sec.Parts[len(sec.Parts)-1]
		part.Questions = append(part.Questions, q)
	}
	return groups
}

// Flatten 还原为展示顺序的题目列表
func (g SectionGroup) Flatten() []model.OnlineTestQuestion {
	var out []model.OnlineTestQuestion
	for _, p := range g.Parts {
		out = append(out, p.Questions...)
	}
	return out
}
