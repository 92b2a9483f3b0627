package repository

import (
	"errors"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) WithTx(tx *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: tx}
}

func (r *QuestionRepository) Create(q *model.OnlineTestQuestion) error {
	return r.DB.Create(q).Error
}

func (r *QuestionRepository) CreateBatch(qs []model.OnlineTestQuestion) error {
	if len(qs) == 0 {
		return nil
	}
	return r.DB.Create(&qs).Error
}

// FindInTest 查询属于指定测试的题目
func (r *QuestionRepository) FindInTest(testID, questionID uint) (*model.OnlineTestQuestion, error) {
	var q model.OnlineTestQuestion
	err := r.DB.Where("id = ? AND test_id = ?", questionID, testID).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuestionNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) Update(q *model.OnlineTestQuestion) error {
	return r.DB.Save(q).Error
}

func (r *QuestionRepository) Delete(id uint) error {
	return r.DB.Delete(&model.OnlineTestQuestion{}, id).Error
}

// ListByTest 按 分区、part、order、id 的展示顺序返回
// 分区顺序由业务层按 SectionOrder 重排
func (r *QuestionRepository) ListByTest(testID uint) ([]model.OnlineTestQuestion, error) {
	var qs []model.OnlineTestQuestion
	err := r.DB.Where("test_id = ?", testID).
		Order("part asc").
		Order("position asc").
		Order("id asc").
		Find(&qs).Error
	return qs, err
}

// CountAnswers 引用该题目的作答数，大于 0 时题目被锁定
func (r *QuestionRepository) CountAnswers(questionID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.OnlineTestAnswer{}).Where("question_id = ?", questionID).Count(&n).Error
	return n, err
}
