package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/target/healwright/internal/data/pgxutil"
	"github.com/target/healwright/internal/domain/model"
	apperrors "github.com/target/healwright/internal/errors"
)

const findingColumns = `id, test_run_id, project_id,
  test_name, test_file, failed_selector, selector_type, error_message, dom_snapshot_before, dom_snapshot_after,
  proposed_selector, proposed_selector_type, confidence, reasoning, source, decision,
  pr_url, pr_branch, publish_reason, applied_at, created_at, updated_at`

// FindingRepo persists healing findings and their pull request records.
type FindingRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewFindingRepo creates a FindingRepo. A nil TimeProvider uses the system clock.
func NewFindingRepo(db *sql.DB, tp TimeProvider) *FindingRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &FindingRepo{DB: db, timeProvider: tp}
}

type findingRowData struct {
	domBefore, domAfter                    sql.NullString
	proposed, proposedType, reasoning      sql.NullString
	source, prURL, prBranch, publishReason sql.NullString
	confidence                             sql.NullFloat64
	appliedAt                              sql.NullTime
}

func scanFinding(scanner rowScanner) (*model.HealingFinding, error) {
	var (
		f model.HealingFinding
		d findingRowData
	)
	if err := scanner.Scan(
		&f.ID, &f.TestRunID, &f.ProjectID,
		&f.Failure.TestName, &f.Failure.TestFile, &f.Failure.FailedSelector, &f.Failure.SelectorType,
		&f.Failure.ErrorMessage, &d.domBefore, &d.domAfter,
		&d.proposed, &d.proposedType, &d.confidence, &d.reasoning, &d.source, &f.Decision,
		&d.prURL, &d.prBranch, &d.publishReason, &d.appliedAt, &f.CreatedAt, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}

	f.Failure.DOMSnapshotBefore = d.domBefore.String
	f.Failure.DOMSnapshotAfter = d.domAfter.String
	f.ProposedSelector = cloneNullableString(d.proposed)
	if d.proposedType.Valid {
		t := model.SelectorType(d.proposedType.String)
		f.ProposedSelectorType = &t
	}
	f.Confidence = cloneNullableFloat(d.confidence)
	f.Reasoning = cloneNullableString(d.reasoning)
	f.Source = model.SuggestionSource(d.source.String)
	f.PRURL = cloneNullableString(d.prURL)
	f.PRBranch = cloneNullableString(d.prBranch)
	f.PublishReason = cloneNullableString(d.publishReason)
	f.AppliedAt = cloneNullableTime(d.appliedAt)
	f.CreatedAt = f.CreatedAt.UTC()
	f.UpdatedAt = f.UpdatedAt.UTC()
	return &f, nil
}

// CreateIfAbsent inserts an ANALYZING finding, or returns the row already stored under params.ID.
func (r *FindingRepo) CreateIfAbsent(ctx context.Context, params model.CreateFindingParams) (*model.HealingFinding, error) {
	if strings.TrimSpace(params.ID) == "" || strings.TrimSpace(params.TestRunID) == "" {
		return nil, errors.New("finding id and test run id are required")
	}

	fl := params.Failure
	selectorType := fl.SelectorType
	if !selectorType.Valid() {
		selectorType = model.SelectorUnknown
	}
	now := r.timeProvider.Now().UTC()
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO healing_findings (
			id, test_run_id, project_id, test_name, test_file, failed_selector, selector_type,
			error_message, dom_snapshot_before, dom_snapshot_after, decision, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'ANALYZING', $11, $11)
		ON CONFLICT (id) DO NOTHING
	`, params.ID, params.TestRunID, params.ProjectID, fl.TestName, fl.TestFile, fl.FailedSelector,
		selectorType, fl.ErrorMessage, nullableString(fl.DOMSnapshotBefore), nullableString(fl.DOMSnapshotAfter), now,
	); err != nil {
		return nil, fmt.Errorf("insert healing finding: %w", apperrors.MapDBError(err))
	}
	return r.GetByID(ctx, params.ID)
}

// GetByID retrieves a finding by id.
func (r *FindingRepo) GetByID(ctx context.Context, id string) (*model.HealingFinding, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+findingColumns+` FROM healing_findings WHERE id = $1`, id)
	f, err := scanFinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrFindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get healing finding: %w", err)
	}
	return f, nil
}

// ListByTestRun returns the findings of a test run in creation order.
func (r *FindingRepo) ListByTestRun(ctx context.Context, testRunID string) ([]*model.HealingFinding, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+findingColumns+`
		FROM healing_findings
		WHERE test_run_id = $1
		ORDER BY created_at, id
	`, testRunID)
	if err != nil {
		return nil, fmt.Errorf("list healing findings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.HealingFinding
	for rows.Next() {
		f, scanErr := scanFinding(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan healing finding: %w", scanErr)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate healing findings: %w", err)
	}
	return out, nil
}

// Decide applies a suggestion and decision to a finding that is still ANALYZING.
func (r *FindingRepo) Decide(ctx context.Context, params model.DecideFindingParams) (*model.HealingFinding, error) {
	if !params.Decision.Terminal() {
		return nil, fmt.Errorf("decide healing finding: %q is not a terminal decision", params.Decision)
	}

	s := params.Suggestion
	var (
		confidence   sql.NullFloat64
		proposed     sql.NullString
		proposedType sql.NullString
	)
	if s.Source != "" {
		confidence = sql.NullFloat64{Float64: s.Confidence, Valid: true}
	}
	if s.HasSelector() {
		proposed = nullableString(strings.TrimSpace(s.NewSelector))
		if s.SelectorType != "" {
			proposedType = sql.NullString{String: string(s.SelectorType), Valid: true}
		}
	}

	now := r.timeProvider.Now().UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE healing_findings
		SET proposed_selector = $2,
		    proposed_selector_type = $3,
		    confidence = $4,
		    reasoning = $5,
		    source = $6,
		    decision = $7,
		    updated_at = $8
		WHERE id = $1 AND decision = 'ANALYZING'
		RETURNING `+findingColumns,
		params.ID, proposed, proposedType, confidence,
		nullableString(s.Reasoning), nullableString(string(s.Source)), params.Decision, now,
	)
	f, err := scanFinding(row)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decide healing finding: %w", err)
	}
	if _, getErr := r.GetByID(ctx, params.ID); getErr != nil {
		return nil, getErr
	}
	return nil, model.ErrFindingDecided
}

// AttachPullRequest records the PR for a finding at most once. It returns false when a PR url is
// already present, leaving the existing record untouched.
func (r *FindingRepo) AttachPullRequest(ctx context.Context, params model.AttachPullRequestParams) (bool, error) {
	if strings.TrimSpace(params.URL) == "" {
		return false, errors.New("pull request url is required")
	}

	var attached bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
				UPDATE healing_findings
				SET pr_url = $2, pr_branch = $3, publish_reason = NULL, applied_at = $4, updated_at = $4
				WHERE id = $1 AND pr_url IS NULL
			`, params.FindingID, params.URL, params.Branch, now)
			if err != nil {
				return fmt.Errorf("attach pull request: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("attach pull request rows affected: %w", err)
			}
			if n == 0 {
				return nil
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pull_requests (finding_id, url, branch_name, created_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (finding_id) DO NOTHING
			`, params.FindingID, params.URL, params.Branch, now); err != nil {
				return fmt.Errorf("insert pull request record: %w", err)
			}
			attached = true
			return nil
		},
	})
	return attached, err
}

// GetPullRequest returns the pull request record of a finding.
func (r *FindingRepo) GetPullRequest(ctx context.Context, findingID string) (*model.PullRequestRecord, error) {
	var pr model.PullRequestRecord
	err := r.DB.QueryRowContext(ctx, `
		SELECT finding_id, url, branch_name, created_at FROM pull_requests WHERE finding_id = $1
	`, findingID).Scan(&pr.FindingID, &pr.URL, &pr.BranchName, &pr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrFindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request record: %w", err)
	}
	pr.CreatedAt = pr.CreatedAt.UTC()
	return &pr, nil
}

// SetPublishReason records why a finding was not published. Published findings are left alone.
func (r *FindingRepo) SetPublishReason(ctx context.Context, id, reason string) error {
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE healing_findings
		SET publish_reason = $2, updated_at = $3
		WHERE id = $1 AND pr_url IS NULL
	`, id, reason, r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("set publish reason: %w", err)
	}
	return nil
}
