package store

import "time"

// ServiceTypeBackend is the only service type derived from report paths.
const ServiceTypeBackend = "backend"

// Tester is a person or agent that runs the suite.
type Tester struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TestRunSession is one ingested report, unique per content checksum.
type TestRunSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TesterID    uint      `gorm:"not null;index" json:"tester_id"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Build       *string   `json:"build"`
	Environment string    `gorm:"not null;index" json:"environment"`
	Origin      string    `json:"origin"`
	Hostname    string    `json:"hostname"`
	Checksum    string    `gorm:"uniqueIndex;size:64;not null" json:"checksum"`
	CreatedAt   time.Time `json:"created_at"`
}

// ServiceList is a logical service under test.
type ServiceList struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Type      string    `gorm:"not null" json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TestSuite is a top-level describe block of a service.
type TestSuite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ServiceID uint      `gorm:"not null;uniqueIndex:idx_suites_service_title" json:"service_id"`
	Title     string    `gorm:"not null;uniqueIndex:idx_suites_service_title" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TestSuiteRunTime is the timing of one suite within one session.
type TestSuiteRunTime struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	SuiteID             uint      `gorm:"not null;uniqueIndex:idx_srt_suite_session" json:"suite_id"`
	SessionID           uint      `gorm:"not null;uniqueIndex:idx_srt_suite_session" json:"session_id"`
	ServiceID           uint      `gorm:"not null;index" json:"service_id"`
	Duration            int64     `gorm:"not null;default:0" json:"duration"`
	BeforeHooksDuration int64     `json:"before_hooks_duration"`
	AfterHooksDuration  int64     `json:"after_hooks_duration"`
	CreatedAt           time.Time `json:"created_at"`
}

// ParentStory is an issue-tracker ticket referenced by test cases.
type ParentStory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	IssueID   string    `gorm:"uniqueIndex;not null" json:"issue_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TestCase is one test within a suite.
type TestCase struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SuiteID       uint      `gorm:"not null;uniqueIndex:idx_cases_suite_title" json:"suite_id"`
	ParentStoryID *uint     `gorm:"index" json:"parent_story_id"`
	Title         string    `gorm:"not null;uniqueIndex:idx_cases_suite_title" json:"title"`
	Type          *string   `json:"type"`
	IsManual      bool      `json:"is_manual"`
	Severity      string    `json:"severity"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TestResult is one outcome of a test case in one session. Results are
// append-only.
type TestResult struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TestCaseID     uint      `gorm:"not null;index" json:"test_case_id"`
	SuiteRunTimeID uint      `gorm:"not null;index" json:"suite_run_time_id"`
	Status         string    `gorm:"not null;index" json:"status"`
	ResponseTime   *string   `json:"response_time"`
	TotalRunTime   int64     `json:"total_run_time"`
	UserAgent      string    `json:"user_agent"`
	Context        string    `gorm:"type:text" json:"context"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RowCounts reports the number of rows per table.
type RowCounts struct {
	Testers       int64 `json:"testers"`
	Sessions      int64 `json:"sessions"`
	Services      int64 `json:"services"`
	Suites        int64 `json:"suites"`
	SuiteRunTimes int64 `json:"suite_run_times"`
	ParentStories int64 `json:"parent_stories"`
	TestCases     int64 `json:"test_cases"`
	TestResults   int64 `json:"test_results"`
}
