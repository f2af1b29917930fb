package store

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Submission is one transaction handed to the ledger.
type Submission struct {
	Id           uint64 `gorm:"primaryKey;autoIncrement"`
	Label        string `gorm:"size:64;index"`
	Signature    string `gorm:"size:96;index"`
	Slot         uint64
	Instructions int
	Ops          string `gorm:"size:1024"`
	Simulate     bool
	Failed       bool
	FailedIndex  int
	Error        string `gorm:"type:text"`
	SendTime     time.Time
	FinishTime   time.Time
}

type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

// NewStore opens the journal database and migrates the submissions table.
func NewStore(dsn string, log *zap.SugaredLogger) (*Store, error) {
	return NewStoreWithDialector(mysql.Open(dsn), log)
}

func NewStoreWithDialector(dialector gorm.Dialector, log *zap.SugaredLogger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Submission{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db, logger: log}, nil
}

func NewSubmission(label string, ops []string, simulate bool) *Submission {
	return &Submission{
		Label:        label,
		Instructions: len(ops),
		Ops:          strings.Join(ops, ","),
		Simulate:     simulate,
		FailedIndex:  -1,
		SendTime:     time.Now(),
	}
}

// Fail marks the submission failed at instruction index (-1 when the whole
// transaction was rejected).
func (s *Submission) Fail(index int, err error) {
	s.Failed = true
	s.FailedIndex = index
	if err != nil {
		s.Error = err.Error()
	}
	s.FinishTime = time.Now()
}

func (s *Submission) Finish(signature string, slot uint64) {
	s.Signature = signature
	s.Slot = slot
	s.FinishTime = time.Now()
}

func (s *Store) StoreSubmission(submission *Submission) {
	if err := s.db.Create(submission).Error; err != nil {
		s.logger.Errorf("store submission %s: %s", submission.Label, err)
	}
}

func (s *Store) Submissions(label string, limit int) ([]*Submission, error) {
	out := make([]*Submission, 0)
	tx := s.db.Order("id desc").Limit(limit)
	if label != "" {
		tx = tx.Where("label = ?", label)
	}
	if err := tx.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
