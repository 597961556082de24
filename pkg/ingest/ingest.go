// Package ingest writes a parsed report into the store as one test run
// session.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/facts"
	"github.com/ethpandaops/reportoor/pkg/origin"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateReport is returned when a report with the same checksum
	// was already ingested. Nothing is written.
	ErrDuplicateReport = errors.New("report already ingested")

	// ErrUnknownTester is returned when the tester is not registered.
	// Nothing is written.
	ErrUnknownTester = errors.New("unknown tester")
)

// Options identify the run being ingested.
type Options struct {
	Environment string
	Tester      string
	// Build is stored as NULL when empty.
	Build            string
	DefaultUserAgent string
	Hostname         string
	// Preflight, when set, runs once the report is known to be new and the
	// tester is registered, before anything is resolved or written.
	Preflight func(ctx context.Context) error
}

// Summary describes a completed ingestion.
type Summary struct {
	SessionID uint          `json:"session_id"`
	Checksum  string        `json:"checksum"`
	Suites    int           `json:"suites"`
	Tests     int           `json:"tests"`
	Results   int           `json:"results"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Ingester writes reports into a store.
type Ingester interface {
	Ingest(ctx context.Context, doc *report.Document) (*Summary, error)
}

// Compile-time interface check.
var _ Ingester = (*ingester)(nil)

type ingester struct {
	log      logrus.FieldLogger
	store    store.Store
	resolver origin.Resolver
	opts     Options
}

// NewIngester creates a new Ingester.
func NewIngester(
	log logrus.FieldLogger,
	st store.Store,
	resolver origin.Resolver,
	opts Options,
) Ingester {
	return &ingester{
		log:      log.WithField("component", "ingest"),
		store:    st,
		resolver: resolver,
		opts:     opts,
	}
}

// Ingest checks the checksum and the tester, runs the preflight hook,
// resolves the origin and then
// writes the session with all of its suites and results in a single
// transaction. Any failure after the checks rolls the whole report back.
func (i *ingester) Ingest(
	ctx context.Context, doc *report.Document,
) (*Summary, error) {
	start := time.Now()
	log := i.log.WithField("checksum", doc.Checksum)

	exists, err := i.store.SessionExists(ctx, doc.Checksum)
	if err != nil {
		return nil, err
	}

	if exists {
		return nil, fmt.Errorf("checksum %s: %w", doc.Checksum, ErrDuplicateReport)
	}

	tester, err := i.store.GetTesterByName(ctx, i.opts.Tester)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w %q: %w", ErrUnknownTester, i.opts.Tester, err)
		}

		return nil, err
	}

	if i.opts.Preflight != nil {
		if err := i.opts.Preflight(ctx); err != nil {
			return nil, fmt.Errorf("preflight: %w", err)
		}
	}

	where, err := i.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving origin: %w", err)
	}

	session := &store.TestRunSession{
		TesterID:    tester.ID,
		StartedAt:   doc.Report.Stats.Start,
		EndedAt:     doc.Report.Stats.End,
		Build:       optional(i.opts.Build),
		Environment: i.opts.Environment,
		Origin:      where,
		Hostname:    i.opts.Hostname,
		Checksum:    doc.Checksum,
	}

	summary := &Summary{Checksum: doc.Checksum}

	err = i.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateSession(ctx, session); err != nil {
			if errors.Is(err, store.ErrDuplicateSession) {
				return fmt.Errorf("checksum %s: %w", doc.Checksum, ErrDuplicateReport)
			}

			return err
		}

		suites := doc.Suites()
		for idx := range suites {
			if err := i.writeSuite(ctx, log, tx, session, &suites[idx], summary); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	summary.SessionID = session.ID
	summary.Elapsed = time.Since(start)

	log.WithFields(logrus.Fields{
		"session_id": summary.SessionID,
		"suites":     summary.Suites,
		"results":    summary.Results,
		"elapsed":    summary.Elapsed.String(),
	}).Info("Report ingested")

	return summary, nil
}

func (i *ingester) writeSuite(
	ctx context.Context,
	log logrus.FieldLogger,
	tx store.Store,
	session *store.TestRunSession,
	s *report.Suite,
	summary *Summary,
) error {
	name, err := report.ServiceName(s.File)
	if err != nil {
		return err
	}

	svc, err := tx.FindOrCreateService(ctx, name)
	if err != nil {
		return err
	}

	suite, err := tx.FindOrCreateSuite(ctx, svc.ID, strings.ToLower(s.Title))
	if err != nil {
		return err
	}

	before, after := s.HookDurations()

	rt := &store.TestSuiteRunTime{
		SuiteID:             suite.ID,
		SessionID:           session.ID,
		ServiceID:           svc.ID,
		BeforeHooksDuration: before,
		AfterHooksDuration:  after,
	}
	if err := tx.FindOrCreateSuiteRunTime(ctx, rt); err != nil {
		return err
	}

	log = log.WithFields(logrus.Fields{
		"service": name,
		"suite":   suite.Title,
	})

	tests := s.AllTests()

	var total int64

	for idx := range tests {
		t := &tests[idx]

		if err := i.writeResult(ctx, log, tx, suite, rt, t); err != nil {
			return err
		}

		total += t.Duration
		summary.Results++
	}

	// The duration is only known once every result of the suite is written.
	if err := tx.FinalizeSuiteRunTime(ctx, rt.ID, total); err != nil {
		return err
	}

	summary.Suites++
	summary.Tests += len(tests)

	log.WithFields(logrus.Fields{
		"tests":    len(tests),
		"duration": total,
	}).Debug("Suite written")

	return nil
}

func (i *ingester) writeResult(
	ctx context.Context,
	log logrus.FieldLogger,
	tx store.Store,
	suite *store.TestSuite,
	rt *store.TestSuiteRunTime,
	t *report.Test,
) error {
	out := facts.Derive(t, i.opts.DefaultUserAgent)

	var storyID *uint

	switch {
	case out.IssueErr != nil:
		log.WithError(out.IssueErr).
			WithField("test", t.Title).
			Warn("Ignoring issue id that cannot be normalized")
	case out.IssueID != nil:
		story, err := tx.FindOrCreateParentStory(ctx, *out.IssueID)
		if err != nil {
			return err
		}

		storyID = &story.ID
	}

	tc := &store.TestCase{
		SuiteID:       suite.ID,
		ParentStoryID: storyID,
		Title:         t.Title,
		Type:          out.Type,
		IsManual:      out.Manual,
		Severity:      out.Severity,
	}
	if err := tx.FindOrCreateTestCase(ctx, tc); err != nil {
		return err
	}

	return tx.CreateTestResult(ctx, &store.TestResult{
		TestCaseID:     tc.ID,
		SuiteRunTimeID: rt.ID,
		Status:         out.Status,
		ResponseTime:   out.Facts.ResponseTime,
		TotalRunTime:   t.Duration,
		UserAgent:      out.UserAgent,
		Context:        out.Context,
	})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
