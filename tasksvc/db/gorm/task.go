package gorm

import (
	"github.com/ichigozero/sicatat/tasksvc"
	stdgorm "gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// taskRecord is the local mirror row of a backend task.
type taskRecord struct {
	ID       string `gorm:"primaryKey"`
	Name     string
	Category string
	UserID   string `gorm:"index"`
	Finish   bool
	Position int
}

func (taskRecord) TableName() string { return "task_snapshots" }

type taskRepository struct {
	db *stdgorm.DB
}

func NewTaskRepository(db *stdgorm.DB) tasksvc.SnapshotRepository {
	return &taskRepository{db}
}

func Migrate(db *stdgorm.DB) error {
	return db.AutoMigrate(&taskRecord{})
}

func (t taskRepository) Replace(userID string, tasks []tasksvc.Task) error {
	return t.db.Transaction(func(tx *stdgorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&taskRecord{}).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		records := make([]taskRecord, 0, len(tasks))
		for i, task := range tasks {
			records = append(records, toRecord(task, i))
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error
	})
}

// Upsert stores the task. Fields the task leaves empty keep the values of
// the existing row, so a partial toggle reply does not blank the record.
func (t taskRepository) Upsert(task tasksvc.Task) error {
	var existing taskRecord
	result := t.db.Where("id = ?", task.ID.String()).Limit(1).Find(&existing)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		record := merge(existing, task)
		return t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
	}

	var position int64
	if err := t.db.Model(&taskRecord{}).Where("user_id = ?", task.UserID).Count(&position).Error; err != nil {
		return err
	}
	record := toRecord(task, int(position))
	return t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error
}

func (t taskRepository) Delete(taskID tasksvc.TaskID) error {
	return t.db.Where("id = ?", taskID.String()).Delete(&taskRecord{}).Error
}

func (t taskRepository) FindAll(userID string) ([]tasksvc.Task, error) {
	var records []taskRecord
	result := t.db.Where("user_id = ?", userID).Order("position").Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}

	tasks := make([]tasksvc.Task, 0, len(records))
	for _, r := range records {
		tasks = append(tasks, tasksvc.Task{
			ID:       tasksvc.TaskID(r.ID),
			Name:     r.Name,
			Category: r.Category,
			UserID:   r.UserID,
			Finish:   r.Finish,
		})
	}
	return tasks, nil
}

func toRecord(task tasksvc.Task, position int) taskRecord {
	return taskRecord{
		ID:       task.ID.String(),
		Name:     task.Name,
		Category: task.Category,
		UserID:   task.UserID,
		Finish:   task.Finish,
		Position: position,
	}
}

func merge(existing taskRecord, task tasksvc.Task) taskRecord {
	existing.Finish = task.Finish
	if task.Name != "" {
		existing.Name = task.Name
	}
	if task.Category != "" {
		existing.Category = task.Category
	}
	if task.UserID != "" {
		existing.UserID = task.UserID
	}
	return existing
}
