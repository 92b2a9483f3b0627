package service

import (
	"context"
	"encoding/json"
	"fmt"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/repository"
	"lingo_edu_backend/internal/util"
	"lingo_edu_backend/pkg/logger"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultGenerateCount = 10
	maxGenerateCount     = 30
	generatedDuration    = 30
)

// ChatCompleter 大模型补全接口，AIService 实现
type ChatCompleter interface {
	Complete(ctx context.Context, messages []AIChatMessage) (string, error)
}

type TestGeneratorService struct {
	AI           ChatCompleter
	TestRepo     *repository.OnlineTestRepository
	QuestionRepo *repository.QuestionRepository
}

func NewTestGeneratorService(ai ChatCompleter, testRepo *repository.OnlineTestRepository, questionRepo *repository.QuestionRepository) *TestGeneratorService {
	return &TestGeneratorService{AI: ai, TestRepo: testRepo, QuestionRepo: questionRepo}
}

type GenerateTestReq struct {
	Title       string            `json:"title"`
	TestType    model.TestType    `json:"testType" binding:"required,testtype"`
	Difficulty  model.Difficulty  `json:"difficulty" binding:"required,difficulty"`
	SectionType model.SectionType `json:"sectionType" binding:"omitempty,sectiontype"`
	Topic       string            `json:"topic" binding:"required"`
	Count       int               `json:"count"`
}

type GeneratedTest struct {
	Test      model.OnlineTest           `json:"test"`
	Questions []model.OnlineTestQuestion `json:"questions"`
	Dropped   int                        `json:"dropped"`
}

// generatedQuestion 模型返回的单题结构，字段类型尽量宽松
type generatedQuestion struct {
	Question    string            `json:"question"`
	Content     string            `json:"content"`
	Options     []json.RawMessage `json:"options"`
	Answer      json.RawMessage   `json:"answer"`
	Explanation string            `json:"explanation"`
}

const generatorSystemPrompt = "You are an experienced English test writer. " +
	"Reply with a JSON array only, no prose and no markdown. " +
	`Each item: {"question": string, "options": [4 strings], "answer": the correct option letter or text, "explanation": string}.`

func (s *TestGeneratorService) Generate(ctx context.Context, creatorID uint, req GenerateTestReq) (*GeneratedTest, error) {
	if !req.TestType.Valid() {
		return nil, util.Validationf("unknown testType %q", req.TestType)
	}
	if !req.Difficulty.Valid() {
		return nil, util.Validationf("unknown difficulty %q", req.Difficulty)
	}
	if req.SectionType == "" {
		req.SectionType = model.SectionReading
	}
	if !req.SectionType.Valid() {
		return nil, util.Validationf("unknown sectionType %q", req.SectionType)
	}
	if strings.TrimSpace(req.Topic) == "" {
		return nil, util.Validationf("topic is required")
	}
	if req.Count == 0 {
		req.Count = defaultGenerateCount
	}
	if req.Count < 1 || req.Count > maxGenerateCount {
		return nil, util.Validationf("count must be between 1 and %d", maxGenerateCount)
	}

	prompt := fmt.Sprintf("Write %d %s-level single-choice %s questions for a %s practice test about: %s.",
		req.Count, req.Difficulty, req.SectionType, req.TestType, req.Topic)
	reply, err := s.AI.Complete(ctx, []AIChatMessage{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		return nil, err
	}

	questions, dropped := ParseGeneratedQuestions(reply, req.SectionType)
	if len(questions) == 0 {
		return nil, util.Upstreamf("AI reply contained no usable questions")
	}
	if len(questions) > req.Count {
		dropped += len(questions) - req.Count
		questions = questions[:req.Count]
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("%s %s practice: %s", req.TestType, req.SectionType, req.Topic)
	}
	test := model.OnlineTest{
		Title:         title,
		Description:   fmt.Sprintf("AI generated %s practice about %s", req.SectionType, req.Topic),
		TestType:      req.TestType,
		Difficulty:    req.Difficulty,
		Duration:      generatedDuration,
		Tags:          "ai-generated",
		Sections:      datatypes.NewJSONSlice([]model.SectionSummary{}),
		IsAIGenerated: true,
		CreatorID:     creatorID,
	}

	err = s.TestRepo.DB.Transaction(func(tx *gorm.DB) error {
		testRepo := s.TestRepo.WithTx(tx)
		if err := testRepo.Create(&test); err != nil {
			return err
		}
		for i := range questions {
			questions[i].TestID = test.ID
		}
		if err := s.QuestionRepo.WithTx(tx).CreateBatch(questions); err != nil {
			return err
		}
		return testRepo.RefreshSections(test.ID)
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("AI test generated",
		zap.Uint("testId", test.ID),
		zap.Int("questions", len(questions)),
		zap.Int("dropped", dropped))
	return &GeneratedTest{Test: test, Questions: questions, Dropped: dropped}, nil
}

// stripFences 去掉 ```json ... ``` 包裹，并截取第一个 JSON 数组
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start, end := strings.Index(s, "["), strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// ParseGeneratedQuestions 解析模型回复，返回可用题目与丢弃数量
func ParseGeneratedQuestions(reply string, section model.SectionType) ([]model.OnlineTestQuestion, int) {
	var items []generatedQuestion
	if err := json.Unmarshal([]byte(stripFences(reply)), &items); err != nil {
		return nil, 0
	}

	out := make([]model.OnlineTestQuestion, 0, len(items))
	dropped := 0
	for _, item := range items {
		q, ok := coerceQuestion(item, section)
		if !ok {
			dropped++
			continue
		}
		q.Order = len(out)
		out = append(out, q)
	}
	return out, dropped
}

func coerceQuestion(item generatedQuestion, section model.SectionType) (model.OnlineTestQuestion, bool) {
	content := strings.TrimSpace(item.Question)
	if content == "" {
		content = strings.TrimSpace(item.Content)
	}
	if content == "" {
		return model.OnlineTestQuestion{}, false
	}

	options := make([]string, 0, len(item.Options))
	for _, raw := range item.Options {
		if o := rawToString(raw); o != "" {
			options = append(options, o)
		}
	}
	if len(options) < 2 {
		return model.OnlineTestQuestion{}, false
	}

	answer := resolveAnswer(rawToString(item.Answer), options)
	if answer == "" {
		return model.OnlineTestQuestion{}, false
	}

	q := model.OnlineTestQuestion{
		Content:     content,
		Type:        model.QuestionSingle,
		SectionType: section,
		Part:        1,
		GroupID:     1,
		Points:      1,
		Options:     datatypes.NewJSONSlice(options),
		Explanation: strings.TrimSpace(item.Explanation),
	}
	key := model.AnswerPayload{Kind: model.PayloadChoice, Choice: answer}
	q.CorrectAnswer = key.JSON()
	if err := ValidateQuestion(&q); err != nil {
		return model.OnlineTestQuestion{}, false
	}
	return q, true
}

// rawToString 兼容字符串、数字等标量
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 {
		return rawToString(arr[0])
	}
	return ""
}

// resolveAnswer 答案可以是选项字母（A/B/C...）、"A." 前缀或选项原文
func resolveAnswer(answer string, options []string) string {
	if answer == "" {
		return ""
	}
	for _, o := range options {
		if normalize(o) == normalize(answer) {
			return o
		}
	}
	letter := strings.ToUpper(strings.TrimRight(strings.TrimSpace(answer), ".):"))
	if len(letter) > 2 && (letter[1] == '.' || letter[1] == ')') {
		letter = letter[:1]
	}
	if len(letter) == 1 && letter[0] >= 'A' && int(letter[0]-'A') < len(options) {
		return options[letter[0]-'A']
	}
	for _, o := range options {
		if strings.HasPrefix(strings.ToUpper(o), letter+".") || strings.HasPrefix(strings.ToUpper(o), letter+")") {
			return o
		}
	}
	return ""
}
