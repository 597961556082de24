package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func TestStore_UnsupportedDriver(t *testing.T) {
	s := store.NewStore(logrus.New(), &config.DatabaseConfig{Driver: "mysql"})
	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestStore_Testers(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTester(ctx, "alice")
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := s.GetTesterByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = s.GetTesterByName(ctx, "mallory")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = s.CreateTester(ctx, "alice")
	assert.Error(t, err, "tester names are unique")

	_, err = s.CreateTester(ctx, "bob")
	require.NoError(t, err)

	testers, err := s.ListTesters(ctx)
	require.NoError(t, err)
	require.Len(t, testers, 2)
	assert.Equal(t, "alice", testers[0].Name)
	assert.Equal(t, "bob", testers[1].Name)
}

func TestStore_SessionChecksumUnique(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	tester, err := s.CreateTester(ctx, "alice")
	require.NoError(t, err)

	exists, err := s.SessionExists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, exists)

	session := &store.TestRunSession{
		TesterID:    tester.ID,
		StartedAt:   time.Now().UTC(),
		EndedAt:     time.Now().UTC(),
		Environment: "qa",
		Checksum:    "abc",
	}
	require.NoError(t, s.CreateSession(ctx, session))
	assert.NotZero(t, session.ID)

	exists, err = s.SessionExists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &store.TestRunSession{TesterID: tester.ID, Environment: "qa", Checksum: "abc"}
	err = s.CreateSession(ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateSession))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Checksum)

	_, err = s.GetSession(ctx, 999)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Sessions)
}

func TestStore_FindOrCreateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	svcA, err := s.FindOrCreateService(ctx, "auth")
	require.NoError(t, err)
	svcB, err := s.FindOrCreateService(ctx, "auth")
	require.NoError(t, err)
	assert.Equal(t, svcA.ID, svcB.ID)
	assert.Equal(t, store.ServiceTypeBackend, svcB.Type)

	suiteA, err := s.FindOrCreateSuite(ctx, svcA.ID, "login")
	require.NoError(t, err)
	suiteB, err := s.FindOrCreateSuite(ctx, svcA.ID, "login")
	require.NoError(t, err)
	assert.Equal(t, suiteA.ID, suiteB.ID)

	other, err := s.FindOrCreateService(ctx, "loans")
	require.NoError(t, err)
	suiteC, err := s.FindOrCreateSuite(ctx, other.ID, "login")
	require.NoError(t, err)
	assert.NotEqual(t, suiteA.ID, suiteC.ID, "suite key includes the service")

	storyA, err := s.FindOrCreateParentStory(ctx, "NH-570")
	require.NoError(t, err)
	storyB, err := s.FindOrCreateParentStory(ctx, "NH-570")
	require.NoError(t, err)
	assert.Equal(t, storyA.ID, storyB.ID)

	smoke := "smoke"
	first := &store.TestCase{
		SuiteID: suiteA.ID, Title: "logs in", Type: &smoke,
		Severity: "major", ParentStoryID: &storyA.ID,
	}
	require.NoError(t, s.FindOrCreateTestCase(ctx, first))

	second := &store.TestCase{SuiteID: suiteA.ID, Title: "logs in", Severity: "minor"}
	require.NoError(t, s.FindOrCreateTestCase(ctx, second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "major", second.Severity, "existing case is returned unchanged")
	require.NotNil(t, second.ParentStoryID)
	assert.Equal(t, storyA.ID, *second.ParentStoryID)

	cases, err := s.ListTestCases(ctx, suiteA.ID)
	require.NoError(t, err)
	assert.Len(t, cases, 1)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Services)
	assert.Equal(t, int64(2), counts.Suites)
	assert.Equal(t, int64(1), counts.ParentStories)
	assert.Equal(t, int64(1), counts.TestCases)
}

func TestStore_SuiteRunTimeAndResults(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	svc, err := s.FindOrCreateService(ctx, "auth")
	require.NoError(t, err)
	suite, err := s.FindOrCreateSuite(ctx, svc.ID, "login")
	require.NoError(t, err)

	rt := &store.TestSuiteRunTime{
		SuiteID: suite.ID, SessionID: 1, ServiceID: svc.ID,
		BeforeHooksDuration: 4, AfterHooksDuration: 2,
	}
	require.NoError(t, s.FindOrCreateSuiteRunTime(ctx, rt))
	assert.Zero(t, rt.Duration)

	tc := &store.TestCase{SuiteID: suite.ID, Title: "logs in", Severity: "-"}
	require.NoError(t, s.FindOrCreateTestCase(ctx, tc))

	rtime := "120"
	for range 2 {
		require.NoError(t, s.CreateTestResult(ctx, &store.TestResult{
			TestCaseID: tc.ID, SuiteRunTimeID: rt.ID, Status: "passed",
			ResponseTime: &rtime, TotalRunTime: 15, UserAgent: "unknown",
		}))
	}

	require.NoError(t, s.FinalizeSuiteRunTime(ctx, rt.ID, 30))
	require.NoError(t, s.FinalizeSuiteRunTime(ctx, rt.ID, 5))

	err = s.FinalizeSuiteRunTime(ctx, 999, 1)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	rts, err := s.ListSuiteRunTimes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rts, 1)
	assert.Equal(t, int64(35), rts[0].Duration)
	assert.Equal(t, int64(4), rts[0].BeforeHooksDuration)

	results, err := s.ListTestResults(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, results, 2, "results are never deduplicated")

	none, err := s.ListTestResults(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_TransactionRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.FindOrCreateService(ctx, "auth"); err != nil {
			return err
		}

		if _, err := tx.FindOrCreateParentStory(ctx, "NH-1"); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	counts, err := s.CountRows(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Services)
	assert.Zero(t, counts.ParentStories)

	require.NoError(t, s.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.FindOrCreateService(ctx, "auth")

		return err
	}))

	counts, err = s.CountRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Services)
}

func TestStore_ListSessionsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, sum := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSession(ctx, &store.TestRunSession{
			TesterID: 1, Environment: "qa", Checksum: sum,
		}))
	}

	all, err := s.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Checksum)

	limited, err := s.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
