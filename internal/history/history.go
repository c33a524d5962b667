// Package history keeps the session transcript: one row per user prompt
// and how its turn ended.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Turn outcomes recorded in Entry.Outcome.
const (
	OutcomePending   = "pending"
	OutcomeCompleted = "completed"
	OutcomeDenied    = "denied"
	OutcomeFailed    = "failed"
)

type HistoryManager struct {
	db         *gorm.DB
	versionDir string
	sessionID  string
}

type Entry struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	SessionID  string `gorm:"index"`
	UserID     string `gorm:"index"`
	Prompt     string
	Outcome    string
	DeniedTool string
	Error      string

	PromptTokens     int
	CompletionTokens int
	FinishedAt       *time.Time
}

// TableName keeps the table name stable if the type is renamed.
func (Entry) TableName() string {
	return "transcript_entries"
}

// Result is how a turn ended, passed to FinishTurn.
type Result struct {
	Outcome          string
	DeniedTool       string
	Err              error
	PromptTokens     int
	CompletionTokens int
}

const (
	historySchemaVersion = 1
)

func NewHistoryManager(dbFilePath string) (*HistoryManager, error) {
	dbFileExists := true
	if _, err := os.Stat(dbFilePath); errors.Is(err, os.ErrNotExist) {
		dbFileExists = false
	} else if err != nil {
		return nil, fmt.Errorf("error checking transcript db: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("error opening transcript db: %w", err)
	}

	manager := &HistoryManager{
		db:         db,
		versionDir: filepath.Dir(dbFilePath),
		sessionID:  uuid.NewString(),
	}

	if manager.needsMigration(dbFileExists) {
		if err := db.AutoMigrate(&Entry{}); err != nil {
			return nil, fmt.Errorf("error migrating transcript schema: %w", err)
		}
		if err := manager.writeSchemaVersion(historySchemaVersion); err != nil {
			return nil, fmt.Errorf("error writing transcript schema version: %w", err)
		}
	}

	return manager, nil
}

func (historyManager *HistoryManager) needsMigration(dbFileExists bool) bool {
	if !dbFileExists {
		return true
	}

	versionMatches, err := historyManager.schemaVersionMatches()
	if err != nil || !versionMatches {
		return true
	}

	// If the version marker is present but the table is missing (corruption or manual deletion),
	// re-run migrations to restore the schema.
	return !historyManager.db.Migrator().HasTable(&Entry{})
}

func (historyManager *HistoryManager) writeSchemaVersion(version int) error {
	return os.WriteFile(historyManager.schemaVersionPath(), []byte(strconv.Itoa(version)), 0644)
}

func (historyManager *HistoryManager) schemaVersionMatches() (bool, error) {
	data, err := os.ReadFile(historyManager.schemaVersionPath())
	if err != nil {
		return false, err
	}
	version, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, err
	}
	if version != historySchemaVersion {
		return false, fmt.Errorf("transcript schema version mismatch: got %d, want %d", version, historySchemaVersion)
	}
	return true, nil
}

func (historyManager *HistoryManager) schemaVersionPath() string {
	return filepath.Join(historyManager.versionDir, "transcript_schema_version")
}

// StartTurn records a prompt before its turn runs.
func (historyManager *HistoryManager) StartTurn(userID string, prompt string) (*Entry, error) {
	entry := Entry{
		SessionID: historyManager.sessionID,
		UserID:    userID,
		Prompt:    prompt,
		Outcome:   OutcomePending,
	}

	result := historyManager.db.Create(&entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return &entry, nil
}

// FinishTurn stores how the turn for entry ended.
func (historyManager *HistoryManager) FinishTurn(entry *Entry, res Result) (*Entry, error) {
	finishedAt := time.Now()
	entry.Outcome = res.Outcome
	entry.DeniedTool = res.DeniedTool
	entry.PromptTokens = res.PromptTokens
	entry.CompletionTokens = res.CompletionTokens
	entry.FinishedAt = &finishedAt
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}

	result := historyManager.db.Save(entry)
	if result.Error != nil {
		return nil, result.Error
	}

	return entry, nil
}

// Close releases the database connection.
func (historyManager *HistoryManager) Close() error {
	sqlDB, err := historyManager.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
