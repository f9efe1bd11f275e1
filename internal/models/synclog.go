package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SyncType is one of the three orchestrator modes from spec.md §4.F.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
	SyncSelective   SyncType = "selective"
)

// SyncStatus is the lifecycle state of a SyncLog row.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncPaused    SyncStatus = "paused"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
	SyncCancelled SyncStatus = "cancelled"
)

// SyncStats is the running counters for a sync attempt.
type SyncStats struct {
	TotalRecords    int `json:"totalRecords"`
	CreatedRecords  int `json:"createdRecords"`
	UpdatedRecords  int `json:"updatedRecords"`
	DeletedRecords  int `json:"deletedRecords"`
	ProcessedImages int `json:"processedImages"`
	FailedImages    int `json:"failedImages"`
	ProcessedRecords int `json:"processedRecords"`
	Errors          int `json:"errors"`
}

func (s SyncStats) Value() (driver.Value, error) { return json.Marshal(s) }

func (s *SyncStats) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: SyncStats.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, s)
}

// ErrorLogEntry is one entry in SyncLog.errorLogs.
type ErrorLogEntry struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	ProductID *string   `json:"productId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorLogList is the append-only per-record error trail.
type ErrorLogList []ErrorLogEntry

func (e ErrorLogList) Value() (driver.Value, error) { return json.Marshal(e) }

func (e *ErrorLogList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: ErrorLogList.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, e)
}

// SyncConfig is a redacted copy of the upstream config and sync options in
// effect for a run. Secrets (app secret, store credentials) are never
// copied in here: the orchestrator fills it from the run's options plus the
// app token and table id only.
type SyncConfig struct {
	Mode             SyncType `json:"mode"`
	ProductIDs       []string `json:"productIds,omitempty"`
	DownloadImages   bool     `json:"downloadImages"`
	ValidateData     bool     `json:"validateData"`
	DryRun           bool     `json:"dryRun"`
	BatchSize        int      `json:"batchSize"`
	ConcurrentImages int      `json:"concurrentImages"`
	AppToken         string   `json:"appToken"`
	TableID          string   `json:"tableId"`
}

func (c SyncConfig) Value() (driver.Value, error) { return json.Marshal(c) }

func (c *SyncConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: SyncConfig.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, c)
}

// SyncProgress is the current stage/percentage snapshot of a running sync.
type SyncProgress struct {
	Percentage       int    `json:"percentage"`
	CurrentOperation string `json:"currentOperation"`
}

func (p SyncProgress) Value() (driver.Value, error) { return json.Marshal(p) }

func (p *SyncProgress) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("models: SyncProgress.Scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, p)
}

// SyncLog is the append-only record of one sync run, per spec.md §3.
type SyncLog struct {
	LogID     string     `json:"logId" db:"log_id"`
	SyncType  SyncType   `json:"syncType" db:"sync_type"`
	StartTime time.Time  `json:"startTime" db:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" db:"end_time"`
	Status    SyncStatus `json:"status" db:"status"`

	Stats     SyncStats    `json:"stats" db:"stats"`
	ErrorLogs ErrorLogList `json:"errorLogs" db:"error_logs"`
	Config    SyncConfig   `json:"config" db:"config"`
	Progress  SyncProgress `json:"progress" db:"progress"`
}
