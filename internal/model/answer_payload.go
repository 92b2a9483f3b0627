package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

type PayloadKind string

const (
	PayloadChoice  PayloadKind = "choice"
	PayloadChoices PayloadKind = "choices"
	PayloadText    PayloadKind = "text"
	PayloadAudio   PayloadKind = "audio"
)

var ErrMalformedPayload = errors.New("malformed answer payload")

// AnswerPayload 题目作答/标准答案的统一表示，具体字段由 Kind 决定
//
//	single   -> "B"
//	multiple -> ["A","C"]
//	fill     -> "went"
//	essay    -> "free text"
//	speaking -> "https://.../a.mp3" 或 {"audioUrl": "..."}
type AnswerPayload struct {
	Kind     PayloadKind
	Choice   string
	Choices  []string
	Text     string
	AudioURL string
}

// PayloadKindFor 返回题型对应的作答结构
func PayloadKindFor(t QuestionType) PayloadKind {
	switch t {
	case QuestionSingle:
		return PayloadChoice
	case QuestionMultiple:
		return PayloadChoices
	case QuestionSpeaking:
		return PayloadAudio
	default:
		return PayloadText
	}
}

// DecodeAnswerPayload 按题型解析 JSON，结构不符时返回 ErrMalformedPayload
func DecodeAnswerPayload(t QuestionType, raw []byte) (AnswerPayload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return AnswerPayload{}, fmt.Errorf("%w: empty", ErrMalformedPayload)
	}

	p := AnswerPayload{Kind: PayloadKindFor(t)}
	switch p.Kind {
	case PayloadChoice:
		if err := json.Unmarshal(raw, &p.Choice); err != nil {
			// 兼容只有一个元素的数组
			var arr []string
			if err := json.Unmarshal(raw, &arr); err != nil || len(arr) != 1 {
				return AnswerPayload{}, fmt.Errorf("%w: %s expects a string", ErrMalformedPayload, t)
			}
			p.Choice = arr[0]
		}
		if strings.TrimSpace(p.Choice) == "" {
			return AnswerPayload{}, fmt.Errorf("%w: empty choice", ErrMalformedPayload)
		}
	case PayloadChoices:
		if err := json.Unmarshal(raw, &p.Choices); err != nil {
			return AnswerPayload{}, fmt.Errorf("%w: %s expects an array of strings", ErrMalformedPayload, t)
		}
		if len(p.Choices) == 0 {
			return AnswerPayload{}, fmt.Errorf("%w: no choices selected", ErrMalformedPayload)
		}
	case PayloadText:
		if err := json.Unmarshal(raw, &p.Text); err != nil {
			return AnswerPayload{}, fmt.Errorf("%w: %s expects a string", ErrMalformedPayload, t)
		}
	case PayloadAudio:
		if err := json.Unmarshal(raw, &p.AudioURL); err != nil {
			var obj struct {
				AudioURL string `json:"audioUrl"`
			}
			if err := json.Unmarshal(raw, &obj); err != nil {
				return AnswerPayload{}, fmt.Errorf("%w: speaking expects an audio url", ErrMalformedPayload)
			}
			p.AudioURL = obj.AudioURL
		}
		if strings.TrimSpace(p.AudioURL) == "" {
			return AnswerPayload{}, fmt.Errorf("%w: empty audio url", ErrMalformedPayload)
		}
	}
	return p, nil
}

// Values 选择题的所有选项值，便于与题目选项比对
func (p AnswerPayload) Values() []string {
	switch p.Kind {
	case PayloadChoice:
		return []string{p.Choice}
	case PayloadChoices:
		return p.Choices
	}
	return nil
}

// IsEmpty 是否为未作答（空文本）
func (p AnswerPayload) IsEmpty() bool {
	switch p.Kind {
	case PayloadChoice:
		return strings.TrimSpace(p.Choice) == ""
	case PayloadChoices:
		return len(p.Choices) == 0
	case PayloadText:
		return strings.TrimSpace(p.Text) == ""
	case PayloadAudio:
		return strings.TrimSpace(p.AudioURL) == ""
	}
	return true
}

func (p AnswerPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadChoice:
		return json.Marshal(p.Choice)
	case PayloadChoices:
		return json.Marshal(p.Choices)
	case PayloadText:
		return json.Marshal(p.Text)
	case PayloadAudio:
		return json.Marshal(map[string]string{"audioUrl": p.AudioURL})
	}
	return []byte("null"), nil
}

// JSON 转为可入库的 JSON 列
func (p AnswerPayload) JSON() datatypes.JSON {
	b, _ := p.MarshalJSON()
	return datatypes.JSON(b)
}
