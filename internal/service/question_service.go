package service

import (
	"context"
	"encoding/json"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"lingo_edu_backend/internal/util"
	"strings"

	"gorm.io/datatypes"
)

type QuestionService struct {
	Repo     *repository.QuestionRepository
	TestRepo *repository.OnlineTestRepository
	Cache    StatusCache
}

func NewQuestionService(repo *repository.QuestionRepository, testRepo *repository.OnlineTestRepository, cache StatusCache) *QuestionService {
	if cache == nil {
		cache = noopStatusCache{}
	}
	return &QuestionService{Repo: repo, TestRepo: testRepo, Cache: cache}
}

type QuestionReq struct {
	Content       string             `json:"content" binding:"required"`
	Type          model.QuestionType `json:"type" binding:"required,questiontype"`
	SectionType   model.SectionType  `json:"sectionType" binding:"required,sectiontype"`
	Part          *int               `json:"part"`
	Order         *int               `json:"order"`
	Options       []string           `json:"options"`
	CorrectAnswer json.RawMessage    `json:"correctAnswer"`
	Explanation   string             `json:"explanation"`
	AudioURL      string             `json:"audioUrl"`
	ImageURL      string             `json:"imageUrl"`
	GroupID       *int               `json:"groupId"`
	Points        *int               `json:"points"`
}

// UpdateQuestionReq 部分更新
type UpdateQuestionReq struct {
	Content       *string             `json:"content"`
	Type          *model.QuestionType `json:"type"`
	SectionType   *model.SectionType  `json:"sectionType"`
	Part          *int                `json:"part"`
	Order         *int                `json:"order"`
	Options       *[]string           `json:"options"`
	CorrectAnswer json.RawMessage     `json:"correctAnswer"`
	Explanation   *string             `json:"explanation"`
	AudioURL      *string             `json:"audioUrl"`
	ImageURL      *string             `json:"imageUrl"`
	GroupID       *int                `json:"groupId"`
	Points        *int                `json:"points"`
}

// QuestionView 返回给客户端的题目，学员视图不含答案与解析
type QuestionView struct {
	ID            uint               `json:"id"`
	TestID        uint               `json:"testId"`
	Content       string             `json:"content"`
	Type          model.QuestionType `json:"type"`
	SectionType   model.SectionType  `json:"sectionType"`
	Part          int                `json:"part"`
	Order         int                `json:"order"`
	Options       []string           `json:"options,omitempty"`
	CorrectAnswer json.RawMessage    `json:"correctAnswer,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
	AudioURL      string             `json:"audioUrl,omitempty"`
	ImageURL      string             `json:"imageUrl,omitempty"`
	GroupID       int                `json:"groupId"`
	Points        int                `json:"points"`
}

type PartView struct {
	Part      int            `json:"part"`
	Questions []QuestionView `json:"questions"`
}

type SectionView struct {
	SectionType model.SectionType `json:"sectionType"`
	Parts       []PartView        `json:"parts"`
}

func NewQuestionView(q model.OnlineTestQuestion, withKey bool) QuestionView {
	v := QuestionView{
		ID:          q.ID,
		TestID:      q.TestID,
		Content:     q.Content,
		Type:        q.Type,
		SectionType: q.SectionType,
		Part:        q.Part,
		Order:       q.Order,
		Options:     []string(q.Options),
		AudioURL:    q.AudioURL,
		ImageURL:    q.ImageURL,
		GroupID:     q.GroupID,
		Points:      q.Points,
	}
	if withKey {
		if len(q.CorrectAnswer) > 0 && string(q.CorrectAnswer) != "null" {
			v.CorrectAnswer = json.RawMessage(q.CorrectAnswer)
		}
		v.Explanation = q.Explanation
	}
	return v
}

// ListQuestions 按 分区 -> part 分组返回；只有教师能看到答案，学生看不到未发布的测试
func (s *QuestionService) ListQuestions(testID uint, p Principal) ([]SectionView, error) {
	test, err := s.TestRepo.FindByID(testID)
	if err != nil {
		return nil, err
	}
	withKey := p.IsStaff()
	if !withKey && !test.IsPublished {
		return nil, util.ErrTestNotFound
	}
	qs, err := s.Repo.ListByTest(testID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		if !withKey {
			return nil, util.ErrTestNotFound
		}
		return nil, util.ErrNoQuestions
	}

	groups := GroupQuestions(qs)
	out := make([]SectionView, 0, len(groups))
	for _, g := range groups {
		sv := SectionView{SectionType: g.SectionType}
		for _, part := range g.Parts {
			pv := PartView{Part: part.Part, Questions: make([]QuestionView, 0, len(part.Questions))}
			for _, q := range part.Questions {
				pv.Questions = append(pv.Questions, NewQuestionView(q, withKey))
			}
			sv.Parts = append(sv.Parts, pv)
		}
		out = append(out, sv)
	}
	return out, nil
}

func (s *QuestionService) AddQuestion(ctx context.Context, testID uint, req QuestionReq) (*model.OnlineTestQuestion, error) {
	if _, err := s.TestRepo.FindByID(testID); err != nil {
		return nil, err
	}

	q := model.OnlineTestQuestion{
		TestID:      testID,
		Content:     strings.TrimSpace(req.Content),
		Type:        req.Type,
		SectionType: req.SectionType,
		Part:        1,
		Points:      1,
		Options:     datatypes.NewJSONSlice(cleanOptions(req.Options)),
		Explanation: req.Explanation,
		AudioURL:    req.AudioURL,
		ImageURL:    req.ImageURL,
	}
	if req.Part != nil {
		q.Part = *req.Part
	}
	if req.Order != nil {
		q.Order = *req.Order
	}
	q.GroupID = q.Part
	if req.GroupID != nil {
		q.GroupID = *req.GroupID
	}
	if req.Points != nil {
		q.Points = *req.Points
	}
	if len(req.CorrectAnswer) > 0 {
		q.CorrectAnswer = datatypes.JSON(req.CorrectAnswer)
	}

	if err := ValidateQuestion(&q); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(&q); err != nil {
		return nil, err
	}
	if err := s.afterMutation(ctx, testID); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *QuestionService) UpdateQuestion(ctx context.Context, testID, questionID uint, req UpdateQuestionReq) (*model.OnlineTestQuestion, error) {
	q, err := s.lockedCheck(testID, questionID)
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		q.Content = strings.TrimSpace(*req.Content)
	}
	if req.Type != nil {
		q.Type = *req.Type
	}
	if req.SectionType != nil {
		q.SectionType = *req.SectionType
	}
	if req.Part != nil {
		q.Part = *req.Part
	}
	if req.Order != nil {
		q.Order = *req.Order
	}
	if req.Options != nil {
		q.Options = datatypes.NewJSONSlice(cleanOptions(*req.Options))
	}
	if len(req.CorrectAnswer) > 0 {
		q.CorrectAnswer = datatypes.JSON(req.CorrectAnswer)
	}
	if req.Explanation != nil {
		q.Explanation = *req.Explanation
	}
	if req.AudioURL != nil {
		q.AudioURL = *req.AudioURL
	}
	if req.ImageURL != nil {
		q.ImageURL = *req.ImageURL
	}
	if req.GroupID != nil {
		q.GroupID = *req.GroupID
	}
	if req.Points != nil {
		q.Points = *req.Points
	}

	if err := ValidateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(q); err != nil {
		return nil, err
	}
	if err := s.afterMutation(ctx, testID); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) DeleteQuestion(ctx context.Context, testID, questionID uint) error {
	q, err := s.lockedCheck(testID, questionID)
	if err != nil {
		return err
	}
	if err := s.Repo.Delete(q.ID); err != nil {
		return err
	}
	return s.afterMutation(ctx, testID)
}

// lockedCheck 已有作答引用的题目不允许修改
func (s *QuestionService) lockedCheck(testID, questionID uint) (*model.OnlineTestQuestion, error) {
	if _, err := s.TestRepo.FindByID(testID); err != nil {
		return nil, err
	}
	q, err := s.Repo.FindInTest(testID, questionID)
	if err != nil {
		return nil, err
	}
	n, err := s.Repo.CountAnswers(q.ID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, util.ErrQuestionLocked
	}
	return q, nil
}

// afterMutation 分区摘要写完后再失效缓存
func (s *QuestionService) afterMutation(ctx context.Context, testID uint) error {
	defer s.Cache.Invalidate(ctx, testID)
	return s.TestRepo.RefreshSections(testID)
}

func cleanOptions(opts []string) []string {
	out := make([]string, 0, len(opts))
	for _, o := range opts {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// ValidateQuestion 校验题目结构与标准答案
func ValidateQuestion(q *model.OnlineTestQuestion) error {
	if q.Content == "" {
		return util.Validationf("content is required")
	}
	if !q.Type.Valid() {
		return util.Validationf("unknown question type %q", q.Type)
	}
	if !q.SectionType.Valid() {
		return util.Validationf("unknown sectionType %q", q.SectionType)
	}
	if q.Part < 1 {
		return util.Validationf("part must be at least 1")
	}
	if q.Points < 0 {
		return util.Validationf("points must not be negative")
	}

	if q.Type.IsChoice() && len(q.Options) < 2 {
		return util.Validationf("%s question needs at least 2 options", q.Type)
	}

	if len(q.CorrectAnswer) == 0 || string(q.CorrectAnswer) == "null" {
		if q.Type.Gradable() {
			return util.Validationf("%s question needs a correct answer", q.Type)
		}
		q.CorrectAnswer = datatypes.JSON("null")
		return nil
	}

	key, err := model.DecodeAnswerPayload(q.Type, q.CorrectAnswer)
	if err != nil {
		return util.Validationf("correctAnswer: %v", err)
	}
	if err := checkOptions(q, key); err != nil {
		return err
	}
	q.CorrectAnswer = key.JSON()
	return nil
}

// checkOptions 选择题的值必须来自题目选项
func checkOptions(q *model.OnlineTestQuestion, p model.AnswerPayload) error {
	if len(q.Options) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		allowed[normalize(o)] = struct{}{}
	}
	for _, v := range p.Values() {
		if _, ok := allowed[normalize(v)]; !ok {
			return util.Validationf("%q is not one of the options", v)
		}
	}
	return nil
}
