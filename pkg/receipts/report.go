package receipts

import (
	"os"
	"path/filepath"
	"time"

	"github.com/windowsadmins/cimian/pkg/plist"
)

// Action names which side of the plan an ItemResult recorded.
type Action string

const (
	ActionInstall Action = "install"
	ActionRemove  Action = "remove"
)

// ItemResult is one executed item's outcome, appended to the report as
// the executor works through the plan.
type ItemResult struct {
	Name            string    `plist:"Name"`
	Version         string    `plist:"Version"`
	Action          Action    `plist:"Action"`
	Status          string    `plist:"Status"`
	ExitCode        int       `plist:"ExitCode"`
	DurationSeconds float64   `plist:"DurationSeconds"`
	RestartAction   string    `plist:"RestartAction"`
	Timestamp       time.Time `plist:"Timestamp"`
}

// ReportDoc is the on-disk shape of ManagedInstallReport.plist.
type ReportDoc struct {
	Items         []ItemResult `plist:"Items"`
	RestartNeeded bool         `plist:"RestartNeeded"`
	OfflineCheck  bool         `plist:"OfflineCheck"`
}

// ReportStore persists the session report, updated incrementally so a
// crashed run leaves a diagnosable partial report.
type ReportStore struct {
	Path string
}

// NewReportStore opens a report store at path.
func NewReportStore(path string) *ReportStore {
	return &ReportStore{Path: path}
}

// Load reads back the current report, or a zero-value one if none has
// been written for this session yet.
func (s *ReportStore) Load() (ReportDoc, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return ReportDoc{}, nil
	}
	if err != nil {
		return ReportDoc{}, err
	}
	var doc ReportDoc
	if err := plist.Unmarshal(data, &doc); err != nil {
		return ReportDoc{}, err
	}
	return doc, nil
}

// Save overwrites the report document.
func (s *ReportStore) Save(doc ReportDoc) error {
	data, err := plist.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// Append adds one item result and persists the updated report
// immediately, so the report reflects progress even if the session
// crashes mid-install.
func (s *ReportStore) Append(result ItemResult) error {
	doc, err := s.Load()
	if err != nil {
		return err
	}
	doc.Items = append(doc.Items, result)
	if result.RestartAction == "restart_required" || result.RestartAction == "logout_required" {
		doc.RestartNeeded = true
	}
	return s.Save(doc)
}
