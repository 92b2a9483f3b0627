package repository

import (
	"errors"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/internal/util"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 并发写同一道题时的重试次数
const upsertRetries = 3

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) WithTx(tx *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: tx}
}

// Transaction 在同一事务中执行多步写入
func (r *AttemptRepository) Transaction(fn func(tx *gorm.DB) error) error {
	return r.DB.Transaction(fn)
}

func (r *AttemptRepository) Create(attempt *model.OnlineTestAttempt) error {
	return r.DB.Create(attempt).Error
}

func (r *AttemptRepository) FindByID(id uint) (*model.OnlineTestAttempt, error) {
	var attempt model.OnlineTestAttempt
	if err := r.DB.First(&attempt, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// LockOpen 在事务内锁住尝试行，已完成返回 ErrAttemptCompleted。
// sqlite 不支持 FOR UPDATE，方言会忽略该子句，靠单写者串行。
func (r *AttemptRepository) LockOpen(id uint) (*model.OnlineTestAttempt, error) {
	var attempt model.OnlineTestAttempt
	err := r.DB.Clauses(clause.Locking{Strength: "UPDATE"}).First(&attempt, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.Completed {
		return nil, util.ErrAttemptCompleted
	}
	return &attempt, nil
}

// RecordAnswer 持有尝试行锁写入作答，与 MarkCompleted 互斥
func (r *AttemptRepository) RecordAnswer(ans *model.OnlineTestAnswer, expectedRevision *int) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		repo := r.WithTx(tx)
		if _, err := repo.LockOpen(ans.AttemptID); err != nil {
			return err
		}
		return repo.UpsertAnswer(ans, expectedRevision)
	})
}

// ListByTestAndUser 按开始时间倒序
func (r *AttemptRepository) ListByTestAndUser(testID, userID uint) ([]model.OnlineTestAttempt, error) {
	var attempts []model.OnlineTestAttempt
	err := r.DB.Where("test_id = ? AND user_id = ?", testID, userID).
		Order("start_time desc").
		Order("id desc").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListAnswers(attemptID uint) ([]model.OnlineTestAnswer, error) {
	var answers []model.OnlineTestAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Order("id asc").Find(&answers).Error
	return answers, err
}

func (r *AttemptRepository) FindAnswer(attemptID, questionID uint) (*model.OnlineTestAnswer, error) {
	var ans model.OnlineTestAnswer
	err := r.DB.Where("attempt_id = ? AND question_id = ?", attemptID, questionID).First(&ans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAnswerNotFound
		}
		return nil, err
	}
	return &ans, nil
}

// UpsertAnswer 同一 (attempt, question) 只保留一行，写入时 revision 自增。
// expectedRevision 非空时做乐观锁校验，不一致返回 ErrStaleAnswer；为空则后写覆盖。
// 新建行时 expectedRevision 只能是 0。并发插入冲突时改走更新分支。
func (r *AttemptRepository) UpsertAnswer(ans *model.OnlineTestAnswer, expectedRevision *int) error {
	for i := 0; i < upsertRetries; i++ {
		var existing model.OnlineTestAnswer
		err := r.DB.Where("attempt_id = ? AND question_id = ?", ans.AttemptID, ans.QuestionID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if expectedRevision != nil && *expectedRevision != 0 {
				return util.ErrStaleAnswer
			}
			ans.ID = 0
			ans.Revision = 1
			err = r.DB.Create(ans).Error
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if expectedRevision != nil {
					return util.ErrStaleAnswer
				}
				continue
			}
			return err
		}
		if err != nil {
			return err
		}

		if expectedRevision != nil && *expectedRevision != existing.Revision {
			return util.ErrStaleAnswer
		}

		fields := map[string]interface{}{
			"selected_answer":   ans.SelectedAnswer,
			"is_correct":        ans.IsCorrect,
			"score":             ans.Score,
			"marked_for_review": ans.MarkedForReview,
			"feedback":          "",
			"graded_by":         nil,
			"revision":          gorm.Expr("revision + ?", 1),
			"updated_at":        time.Now(),
		}
		query := r.DB.Model(&model.OnlineTestAnswer{}).Where("id = ?", existing.ID)
		if expectedRevision != nil {
			query = query.Where("revision = ?", existing.Revision)
		}
		res := query.Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrStaleAnswer
		}

		var saved model.OnlineTestAnswer
		if err := r.DB.First(&saved, existing.ID).Error; err != nil {
			return err
		}
		*ans = saved
		return nil
	}
	return util.ErrStaleAnswer
}

// SaveManualGrade 人工评分只更新得分相关字段，不改变 revision
func (r *AttemptRepository) SaveManualGrade(answerID uint, score int, isCorrect bool, feedback string, graderID uint) error {
	return r.DB.Model(&model.OnlineTestAnswer{}).Where("id = ?", answerID).
		Updates(map[string]interface{}{
			"score":      score,
			"is_correct": isCorrect,
			"feedback":   feedback,
			"graded_by":  graderID,
		}).Error
}

// MarkCompleted 只在未完成时生效，返回 ErrAttemptCompleted 表示已被提交过
func (r *AttemptRepository) MarkCompleted(attemptID uint, endTime time.Time, score float64, sections model.SectionScores) error {
	res := r.DB.Model(&model.OnlineTestAttempt{}).
		Where("id = ? AND completed = ?", attemptID, false).
		Updates(map[string]interface{}{
			"completed":      true,
			"end_time":       endTime,
			"score":          score,
			"section_scores": datatypes.NewJSONType(sections),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrAttemptCompleted
	}
	return nil
}
