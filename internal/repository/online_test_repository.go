package repository

import (
	"errors"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OnlineTestRepository struct {
	DB *gorm.DB
}

func NewOnlineTestRepository(db *gorm.DB) *OnlineTestRepository {
	return &OnlineTestRepository{DB: db}
}

// TestListFilter 列表筛选条件，Sort 取值 newest / popularity / completion
type TestListFilter struct {
	TestType   model.TestType
	Difficulty model.Difficulty
	Search     string
	Sort       string
	Page       int
	PageSize   int
	// 为 true 时包含未发布或没有题目的测试（管理端）
	IncludeUnready bool
}

type OnlineTestListRow struct {
	model.OnlineTest
	QuestionCount int `json:"questionCount"`
}

// DeleteResult 级联删除的各表行数
type DeleteResult struct {
	Answers   int64 `json:"answers"`
	Attempts  int64 `json:"attempts"`
	Questions int64 `json:"questions"`
	Tests     int64 `json:"tests"`
}

func (d DeleteResult) Total() int64 {
	return d.Answers + d.Attempts + d.Questions + d.Tests
}

var sortColumns = map[string]string{
	"newest":     "t.created_at",
	"popularity": "t.popularity",
	"completion": "t.completion_rate",
}

// WithTx 返回绑定到事务的仓储
func (r *OnlineTestRepository) WithTx(tx *gorm.DB) *OnlineTestRepository {
	return &OnlineTestRepository{DB: tx}
}

func (r *OnlineTestRepository) Create(test *model.OnlineTest) error {
	return r.DB.Create(test).Error
}

func (r *OnlineTestRepository) FindByID(id uint) (*model.OnlineTest, error) {
	var test model.OnlineTest
	if err := r.DB.First(&test, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return &test, nil
}

func (r *OnlineTestRepository) Update(test *model.OnlineTest) error {
	return r.DB.Save(test).Error
}

func (r *OnlineTestRepository) List(f TestListFilter) ([]OnlineTestListRow, int64, error) {
	query := r.DB.Table("online_tests t")

	if !f.IncludeUnready {
		query = query.Where("t.is_published = ?", true).
			Where("EXISTS (SELECT 1 FROM online_test_questions q WHERE q.test_id = t.id)")
	}
	if f.TestType != "" {
		query = query.Where("t.test_type = ?", f.TestType)
	}
	if f.Difficulty != "" {
		query = query.Where("t.difficulty = ?", f.Difficulty)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("(LOWER(t.title) LIKE ? OR LOWER(t.description) LIKE ? OR LOWER(t.tags) LIKE ?)", like, like, like)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[f.Sort]
	if !ok {
		column = sortColumns["popularity"]
	}

	var rows []OnlineTestListRow
	err := query.
		Select("t.*, (SELECT COUNT(*) FROM online_test_questions q WHERE q.test_id = t.id) AS question_count").
		Order(column + " DESC").
		Order("t.id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Scan(&rows).Error
	return rows, total, err
}

func (r *OnlineTestRepository) CountQuestions(testID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.OnlineTestQuestion{}).Where("test_id = ?", testID).Count(&n).Error
	return n, err
}

func (r *OnlineTestRepository) CountAttempts(testID uint) (int64, error) {
	var n int64
	err := r.DB.Model(&model.OnlineTestAttempt{}).Where("test_id = ?", testID).Count(&n).Error
	return n, err
}

// SectionBreakdown 按分区统计 part 数与题目数，结果按 SectionOrder 排序
func (r *OnlineTestRepository) SectionBreakdown(testID uint) ([]model.SectionSummary, error) {
	var rows []struct {
		SectionType model.SectionType
		Parts       int
		Questions   int
	}
	err := r.DB.Model(&model.OnlineTestQuestion{}).
		Select("section_type, COUNT(DISTINCT part) AS parts, COUNT(*) AS questions").
		Where("test_id = ?", testID).
		Group("section_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.SectionSummary, 0, len(rows))
	for _, sec := range model.SectionOrder {
		for _, row := range rows {
			if row.SectionType == sec {
				out = append(out, model.SectionSummary{SectionType: row.SectionType, Parts: row.Parts, Questions: row.Questions})
			}
		}
	}
	return out, nil
}

// RefreshSections 题目变化后同步 online_tests.sections
func (r *OnlineTestRepository) RefreshSections(testID uint) error {
	sections, err := r.SectionBreakdown(testID)
	if err != nil {
		return err
	}
	return r.DB.Model(&model.OnlineTest{}).Where("id = ?", testID).
		Update("sections", datatypes.NewJSONSlice(sections)).Error
}

func (r *OnlineTestRepository) IncrementPopularity(testID uint) error {
	return r.DB.Model(&model.OnlineTest{}).Where("id = ?", testID).
		UpdateColumn("popularity", gorm.Expr("popularity + ?", 1)).Error
}

// RefreshCompletionRate 已完成的尝试占全部尝试的百分比
func (r *OnlineTestRepository) RefreshCompletionRate(testID uint) error {
	var stats struct {
		Total     int64
		Completed int64
	}
	err := r.DB.Model(&model.OnlineTestAttempt{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN completed THEN 1 ELSE 0 END), 0) AS completed").
		Where("test_id = ?", testID).
		Scan(&stats).Error
	if err != nil {
		return err
	}

	rate := 0.0
	if stats.Total > 0 {
		rate = util.Round2(float64(stats.Completed) * 100 / float64(stats.Total))
	}
	return r.DB.Model(&model.OnlineTest{}).Where("id = ?", testID).
		UpdateColumn("completion_rate", rate).Error
}

// DeleteCascade 在一个事务中按 答案 -> 尝试 -> 题目 -> 测试 的顺序删除
func (r *OnlineTestRepository) DeleteCascade(testID uint) (DeleteResult, error) {
	var res DeleteResult
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		attemptIDs := tx.Model(&model.OnlineTestAttempt{}).Select("id").Where("test_id = ?", testID)
		questionIDs := tx.Model(&model.OnlineTestQuestion{}).Select("id").Where("test_id = ?", testID)

		d := tx.Where("attempt_id IN (?) OR question_id IN (?)", attemptIDs, questionIDs).Delete(&model.OnlineTestAnswer{})
		if d.Error != nil {
			return d.Error
		}
		res.Answers = d.RowsAffected

		d = tx.Where("test_id = ?", testID).Delete(&model.OnlineTestAttempt{})
		if d.Error != nil {
			return d.Error
		}
		res.Attempts = d.RowsAffected

		d = tx.Where("test_id = ?", testID).Delete(&model.OnlineTestQuestion{})
		if d.Error != nil {
			return d.Error
		}
		res.Questions = d.RowsAffected

		d = tx.Delete(&model.OnlineTest{}, testID)
		if d.Error != nil {
			return d.Error
		}
		if d.RowsAffected == 0 {
			return util.ErrTestNotFound
		}
		res.Tests = d.RowsAffected
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}
	return res, nil
}
