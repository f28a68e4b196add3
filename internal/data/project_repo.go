package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/healwright/internal/data/cryptoutil"
	"github.com/target/healwright/internal/domain/model"
)

// ProjectRepo reads projects and source-control credentials maintained by the surrounding app.
type ProjectRepo struct {
	DB     *sql.DB
	tokens cryptoutil.TokenCipher
}

// NewProjectRepo creates a ProjectRepo. Stored access tokens are opened with tokens; nil
// reads them as plaintext.
func NewProjectRepo(db *sql.DB, tokens cryptoutil.TokenCipher) *ProjectRepo {
	if tokens == nil {
		tokens = cryptoutil.Plaintext{}
	}
	return &ProjectRepo{DB: db, tokens: tokens}
}

// GetProject retrieves a project by id.
func (r *ProjectRepo) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var (
		p    model.Project
		repo sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, name, repository_url, owner_user_id FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &repo, &p.OwnerUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.RepositoryURL = cloneNullableString(repo)
	return &p, nil
}

// GetCredential retrieves a user's credential for a provider.
func (r *ProjectRepo) GetCredential(ctx context.Context, userID, provider string) (*model.SourceControlCredential, error) {
	c := model.SourceControlCredential{UserID: userID, Provider: provider}
	err := r.DB.QueryRowContext(ctx, `
		SELECT access_token FROM source_control_credentials WHERE user_id = $1 AND provider = $2
	`, userID, provider).Scan(&c.AccessToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source control credential: %w", err)
	}
	if c.AccessToken, err = r.tokens.Open(c.AccessToken); err != nil {
		return nil, fmt.Errorf("open source control credential: %w", err)
	}
	return &c, nil
}
