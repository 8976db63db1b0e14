package implementation

import (
	"context"
	"errors"

	"repoinsight/internal/entity"
	"repoinsight/internal/mapper"
	"repoinsight/internal/model"
	"repoinsight/internal/repository/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStoreImpl is the Postgres-backed SessionStore shared by every
// instance of the service.
type SessionStoreImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewSessionStore(db *gorm.DB) contract.SessionStore {
	return &SessionStoreImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

// Migrate creates or updates the session tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.AnalysisTask{}, &model.UserState{})
}

func (r *SessionStoreImpl) SaveTask(ctx context.Context, task *entity.AnalysisTask) error {
	m := r.mapper.TaskToModel(task)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"repo_url", "user_origin", "status", "embedding", "updated_at"}),
		}).
		Create(m).Error
}

func (r *SessionStoreImpl) UpdateTaskStatus(ctx context.Context, sessionID string, status entity.TaskStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.AnalysisTask{}).
		Where("session_id = ?", sessionID).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return contract.ErrTaskNotFound
	}
	return nil
}

func (r *SessionStoreImpl) DeleteTask(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Delete(&model.AnalysisTask{}, "session_id = ?", sessionID).Error
}

func (r *SessionStoreImpl) ListTasksByStatus(ctx context.Context, status entity.TaskStatus) ([]*entity.AnalysisTask, error) {
	var models []*model.AnalysisTask
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.TasksToEntities(models), nil
}

func (r *SessionStoreImpl) ListUserTasks(ctx context.Context, userOrigin string) ([]*entity.AnalysisTask, error) {
	var models []*model.AnalysisTask
	if err := r.db.WithContext(ctx).Where("user_origin = ?", userOrigin).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.TasksToEntities(models), nil
}

func (r *SessionStoreImpl) GetUserState(ctx context.Context, userID string) (*entity.UserState, error) {
	var m model.UserState
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.UserStateToEntity(&m), nil
}

func (r *SessionStoreImpl) SaveUserState(ctx context.Context, state *entity.UserState) error {
	m := r.mapper.UserStateToModel(state)
	return r.db.WithContext(ctx).Save(m).Error
}

func (r *SessionStoreImpl) DeleteUserState(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Delete(&model.UserState{}, "user_id = ?", userID).Error
}

func (r *SessionStoreImpl) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
