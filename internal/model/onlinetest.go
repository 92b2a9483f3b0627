package model

import (
	"time"

	"gorm.io/datatypes"
)

type TestType string

const (
	TestTypeTOEIC     TestType = "TOEIC"
	TestTypeIELTS     TestType = "IELTS"
	TestTypeGeneral   TestType = "General"
	TestTypePlacement TestType = "Placement"
)

func (t TestType) Valid() bool {
	switch t {
	case TestTypeTOEIC, TestTypeIELTS, TestTypeGeneral, TestTypePlacement:
		return true
	}
	return false
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
	DifficultyExpert       Difficulty = "Expert"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert:
		return true
	}
	return false
}

type SectionType string

const (
	SectionListening SectionType = "listening"
	SectionReading   SectionType = "reading"
	SectionWriting   SectionType = "writing"
	SectionSpeaking  SectionType = "speaking"
)

// SectionOrder 题目分区的展示顺序
var SectionOrder = []SectionType{SectionListening, SectionReading, SectionWriting, SectionSpeaking}

func (s SectionType) Valid() bool {
	return s.Rank() >= 0
}

// Rank 返回分区在 SectionOrder 中的位置，未知分区返回 -1
func (s SectionType) Rank() int {
	for i, v := range SectionOrder {
		if v == s {
			return i
		}
	}
	return -1
}

type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMultiple QuestionType = "multiple"
	QuestionFill     QuestionType = "fill"
	QuestionEssay    QuestionType = "essay"
	QuestionSpeaking QuestionType = "speaking"
)

func (q QuestionType) Valid() bool {
	switch q {
	case QuestionSingle, QuestionMultiple, QuestionFill, QuestionEssay, QuestionSpeaking:
		return true
	}
	return false
}

// Gradable 可自动判分的题型
func (q QuestionType) Gradable() bool {
	return q == QuestionSingle || q == QuestionMultiple || q == QuestionFill
}

// IsChoice 需要选项的题型
func (q QuestionType) IsChoice() bool {
	return q == QuestionSingle || q == QuestionMultiple
}

// SectionSummary 每个分区的 part 数与题目数
type SectionSummary struct {
	SectionType SectionType `json:"sectionType"`
	Parts       int         `json:"parts"`
	Questions   int         `json:"questions"`
}

// swagger:model OnlineTest
type OnlineTest struct {
	BaseModel
	Title          string                               `gorm:"size:255;not null" json:"title"`
	Description    string                               `gorm:"type:text" json:"description"`
	Instructions   string                               `gorm:"type:text" json:"instructions"`
	TestType       TestType                             `gorm:"size:20;index;not null" json:"testType"`
	Difficulty     Difficulty                           `gorm:"size:20;index;not null" json:"difficulty"`
	Duration       int                                  `gorm:"not null" json:"duration"` // Minutes
	Tags           string                               `gorm:"size:500" json:"tags"`     // 逗号分隔
	Sections       datatypes.JSONSlice[SectionSummary] `json:"sections"`
	Popularity     int                                  `gorm:"default:0;index" json:"popularity"`
	CompletionRate float64                              `gorm:"default:0" json:"completionRate"`
	IsPublished    bool                                 `gorm:"default:false;index" json:"isPublished"`
	IsAIGenerated  bool                                 `gorm:"default:false" json:"isAIGenerated"`
	CreatorID      uint                                 `gorm:"index" json:"creatorId"`
}

func (OnlineTest) TableName() string {
	return "online_tests"
}

// swagger:model OnlineTestQuestion
type OnlineTestQuestion struct {
	BaseModel
	TestID        uint                         `gorm:"index:idx_question_display,priority:1;not null" json:"testId"`
	Content       string                       `gorm:"type:text;not null" json:"content"`
	Type          QuestionType                 `gorm:"size:20;not null" json:"type"`
	SectionType   SectionType                  `gorm:"size:20;index:idx_question_display,priority:2;not null" json:"sectionType"`
	Part          int                          `gorm:"default:1;index:idx_question_display,priority:3" json:"part"`
	Order         int                          `gorm:"column:position;default:0;index:idx_question_display,priority:4" json:"order"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer datatypes.JSON              `json:"correctAnswer,omitempty"`
	Explanation   string                       `gorm:"type:text" json:"explanation,omitempty"`
	AudioURL      string                       `gorm:"size:500" json:"audioUrl,omitempty"`
	ImageURL      string                       `gorm:"size:500" json:"imageUrl,omitempty"`
	GroupID       int                          `json:"groupId"`
	Points        int                          `gorm:"default:1" json:"points"`
}

func (OnlineTestQuestion) TableName() string {
	return "online_test_questions"
}

// swagger:model OnlineTestAttempt
type OnlineTestAttempt struct {
	BaseModel
	TestID        uint                              `gorm:"index;not null" json:"testId"`
	UserID        uint                              `gorm:"index;not null" json:"userId"`
	StartTime     time.Time                         `json:"startTime"`
	EndTime       *time.Time                        `json:"endTime"`
	Completed     bool                              `gorm:"default:false" json:"completed"`
	Score         *float64                          `json:"score"`
	SectionScores datatypes.JSONType[SectionScores] `json:"sectionScores"`
	Feedback      string                            `gorm:"type:text" json:"feedback,omitempty"`
}

func (OnlineTestAttempt) TableName() string {
	return "online_test_attempts"
}

// SectionScore 分区得分
type SectionScore struct {
	Correct  int     `json:"correct"`
	Gradable int     `json:"gradable"`
	Score    float64 `json:"score"`
}

type SectionScores map[SectionType]SectionScore

// swagger:model OnlineTestAnswer
type OnlineTestAnswer struct {
	BaseModel
	AttemptID       uint           `gorm:"uniqueIndex:idx_answer_attempt_question,priority:1;not null" json:"attemptId"`
	QuestionID      uint           `gorm:"uniqueIndex:idx_answer_attempt_question,priority:2;index;not null" json:"questionId"`
	UserID          uint           `gorm:"index" json:"userId"`
	SelectedAnswer  datatypes.JSON `json:"selectedAnswer"`
	IsCorrect       *bool          `json:"isCorrect"`
	Score           *int           `json:"score"`
	Feedback        string         `gorm:"type:text" json:"feedback,omitempty"`
	MarkedForReview bool           `gorm:"default:false" json:"markedForReview"`
	Revision        int            `gorm:"default:1" json:"revision"`
	GradedBy        *uint          `json:"gradedBy,omitempty"`
}

func (OnlineTestAnswer) TableName() string {
	return "online_test_answers"
}
