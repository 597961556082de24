package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSession is returned when a session with the same
	// checksum already exists.
	ErrDuplicateSession = errors.New("session with this checksum already exists")
)

// Store provides persistence for ingested test reports.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Transaction runs fn against a Store bound to a single database
	// transaction. fn returning an error rolls everything back.
	Transaction(ctx context.Context, fn func(Store) error) error

	CreateTester(ctx context.Context, name string) (*Tester, error)
	GetTesterByName(ctx context.Context, name string) (*Tester, error)
	ListTesters(ctx context.Context) ([]Tester, error)

	SessionExists(ctx context.Context, checksum string) (bool, error)
	CreateSession(ctx context.Context, session *TestRunSession) error
	GetSession(ctx context.Context, id uint) (*TestRunSession, error)
	ListSessions(ctx context.Context, limit int) ([]TestRunSession, error)

	FindOrCreateService(ctx context.Context, name string) (*ServiceList, error)
	FindOrCreateSuite(ctx context.Context, serviceID uint, title string) (*TestSuite, error)
	FindOrCreateSuiteRunTime(ctx context.Context, rt *TestSuiteRunTime) error
	FinalizeSuiteRunTime(ctx context.Context, id uint, duration int64) error
	ListSuiteRunTimes(ctx context.Context, sessionID uint) ([]TestSuiteRunTime, error)

	FindOrCreateParentStory(ctx context.Context, issueID string) (*ParentStory, error)
	FindOrCreateTestCase(ctx context.Context, tc *TestCase) error
	ListTestCases(ctx context.Context, suiteID uint) ([]TestCase, error)

	CreateTestResult(ctx context.Context, r *TestResult) error
	ListTestResults(ctx context.Context, sessionID uint) ([]TestResult, error)

	CountRows(ctx context.Context) (*RowCounts, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dialector = postgres.Open(s.cfg.Postgres.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if s.cfg.Driver == "sqlite" {
		// SQLite allows one writer; pinning a single connection also keeps
		// :memory: databases alive across queries.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("getting underlying db: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Tester{},
		&TestRunSession{},
		&ServiceList{},
		&TestSuite{},
		&TestSuiteRunTime{},
		&ParentStory{},
		&TestCase{},
		&TestResult{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) Transaction(
	ctx context.Context, fn func(Store) error,
) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{log: s.log, cfg: s.cfg, db: tx})
	})
}

// findOrCreate returns the row matching the natural key in query, inserting
// row when there is none. The insert runs in a nested transaction so that a
// unique-key conflict with a concurrent writer only rolls back the
// savepoint; the winning row is then fetched instead.
func findOrCreate[T any](
	ctx context.Context, db *gorm.DB, row *T, query string, args ...any,
) error {
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where(query, args...).FirstOrCreate(row).Error
	})
	if err == nil {
		return nil
	}

	var existing T
	if lookupErr := db.WithContext(ctx).
		Where(query, args...).
		First(&existing).Error; lookupErr != nil {
		return err
	}

	*row = existing

	return nil
}

// --- Testers ---

func (s *store) CreateTester(
	ctx context.Context, name string,
) (*Tester, error) {
	tester := &Tester{Name: name}
	if err := s.db.WithContext(ctx).Create(tester).Error; err != nil {
		return nil, fmt.Errorf("creating tester: %w", err)
	}

	return tester, nil
}

func (s *store) GetTesterByName(
	ctx context.Context, name string,
) (*Tester, error) {
	var tester Tester
	if err := s.db.WithContext(ctx).
		Where("name = ?", name).
		First(&tester).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("tester %q: %w", name, ErrNotFound)
		}

		return nil, fmt.Errorf("getting tester by name: %w", err)
	}

	return &tester, nil
}

func (s *store) ListTesters(ctx context.Context) ([]Tester, error) {
	var testers []Tester
	if err := s.db.WithContext(ctx).
		Order("name ASC").
		Find(&testers).Error; err != nil {
		return nil, fmt.Errorf("listing testers: %w", err)
	}

	return testers, nil
}

// --- Sessions ---

func (s *store) SessionExists(
	ctx context.Context, checksum string,
) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&TestRunSession{}).
		Where("checksum = ?", checksum).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking session checksum: %w", err)
	}

	return count > 0, nil
}

// CreateSession inserts a session. A checksum that already exists, whether
// it was committed before or by a concurrent ingestion, yields
// ErrDuplicateSession.
func (s *store) CreateSession(
	ctx context.Context, session *TestRunSession,
) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("checksum %s: %w", session.Checksum, ErrDuplicateSession)
	}

	if exists, lookupErr := s.SessionExists(ctx, session.Checksum); lookupErr == nil && exists {
		return fmt.Errorf("checksum %s: %w", session.Checksum, ErrDuplicateSession)
	}

	return fmt.Errorf("creating session: %w", err)
}

func (s *store) GetSession(
	ctx context.Context, id uint,
) (*TestRunSession, error) {
	var session TestRunSession
	if err := s.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session %d: %w", id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting session: %w", err)
	}

	return &session, nil
}

// ListSessions returns the most recent sessions first.
func (s *store) ListSessions(
	ctx context.Context, limit int,
) ([]TestRunSession, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var sessions []TestRunSession
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return sessions, nil
}

// --- Services and suites ---

func (s *store) FindOrCreateService(
	ctx context.Context, name string,
) (*ServiceList, error) {
	svc := &ServiceList{Name: name, Type: ServiceTypeBackend}
	if err := findOrCreate(ctx, s.db, svc, "name = ?", name); err != nil {
		return nil, fmt.Errorf("upserting service %q: %w", name, err)
	}

	return svc, nil
}

func (s *store) FindOrCreateSuite(
	ctx context.Context, serviceID uint, title string,
) (*TestSuite, error) {
	suite := &TestSuite{ServiceID: serviceID, Title: title}
	if err := findOrCreate(ctx, s.db, suite,
		"service_id = ? AND title = ?", serviceID, title); err != nil {
		return nil, fmt.Errorf("upserting suite %q: %w", title, err)
	}

	return suite, nil
}

func (s *store) FindOrCreateSuiteRunTime(
	ctx context.Context, rt *TestSuiteRunTime,
) error {
	if err := findOrCreate(ctx, s.db, rt,
		"suite_id = ? AND session_id = ?", rt.SuiteID, rt.SessionID); err != nil {
		return fmt.Errorf("upserting suite run time: %w", err)
	}

	return nil
}

// FinalizeSuiteRunTime adds duration to the run time's placeholder
// duration. Suites sharing a run-time row accumulate.
func (s *store) FinalizeSuiteRunTime(
	ctx context.Context, id uint, duration int64,
) error {
	result := s.db.WithContext(ctx).
		Model(&TestSuiteRunTime{}).
		Where("id = ?", id).
		UpdateColumn("duration", gorm.Expr("duration + ?", duration))
	if result.Error != nil {
		return fmt.Errorf("finalizing suite run time: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("suite run time %d: %w", id, ErrNotFound)
	}

	return nil
}

func (s *store) ListSuiteRunTimes(
	ctx context.Context, sessionID uint,
) ([]TestSuiteRunTime, error) {
	var rts []TestSuiteRunTime
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&rts).Error; err != nil {
		return nil, fmt.Errorf("listing suite run times: %w", err)
	}

	return rts, nil
}

// --- Stories, cases and results ---

func (s *store) FindOrCreateParentStory(
	ctx context.Context, issueID string,
) (*ParentStory, error) {
	story := &ParentStory{IssueID: issueID}
	if err := findOrCreate(ctx, s.db, story, "issue_id = ?", issueID); err != nil {
		return nil, fmt.Errorf("upserting parent story %q: %w", issueID, err)
	}

	return story, nil
}

// FindOrCreateTestCase looks the case up by (title, suite). An existing
// case is returned unchanged.
func (s *store) FindOrCreateTestCase(
	ctx context.Context, tc *TestCase,
) error {
	if err := findOrCreate(ctx, s.db, tc,
		"suite_id = ? AND title = ?", tc.SuiteID, tc.Title); err != nil {
		return fmt.Errorf("upserting test case %q: %w", tc.Title, err)
	}

	return nil
}

func (s *store) ListTestCases(
	ctx context.Context, suiteID uint,
) ([]TestCase, error) {
	var cases []TestCase
	if err := s.db.WithContext(ctx).
		Where("suite_id = ?", suiteID).
		Order("id ASC").
		Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("listing test cases: %w", err)
	}

	return cases, nil
}

func (s *store) CreateTestResult(
	ctx context.Context, r *TestResult,
) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("creating test result: %w", err)
	}

	return nil
}

// ListTestResults returns all results recorded for a session.
func (s *store) ListTestResults(
	ctx context.Context, sessionID uint,
) ([]TestResult, error) {
	runTimes := s.db.WithContext(ctx).
		Model(&TestSuiteRunTime{}).
		Select("id").
		Where("session_id = ?", sessionID)

	var results []TestResult
	if err := s.db.WithContext(ctx).
		Where("suite_run_time_id IN (?)", runTimes).
		Order("id ASC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing test results: %w", err)
	}

	return results, nil
}

func (s *store) CountRows(ctx context.Context) (*RowCounts, error) {
	var counts RowCounts

	targets := []struct {
		model any
		dest  *int64
	}{
		{&Tester{}, &counts.Testers},
		{&TestRunSession{}, &counts.Sessions},
		{&ServiceList{}, &counts.Services},
		{&TestSuite{}, &counts.Suites},
		{&TestSuiteRunTime{}, &counts.SuiteRunTimes},
		{&ParentStory{}, &counts.ParentStories},
		{&TestCase{}, &counts.TestCases},
		{&TestResult{}, &counts.TestResults},
	}

	for _, t := range targets {
		if err := s.db.WithContext(ctx).
			Model(t.model).
			Count(t.dest).Error; err != nil {
			return nil, fmt.Errorf("counting rows: %w", err)
		}
	}

	return &counts, nil
}
