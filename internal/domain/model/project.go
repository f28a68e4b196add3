package model

import "errors"

// Project errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrCredentialNotFound = errors.New("source control credential not found")
)

// Project is the test project a run belongs to. Projects are managed outside this service.
type Project struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	RepositoryURL *string `json:"repositoryUrl,omitempty"`
	OwnerUserID   string  `json:"ownerUserId"`
}

// SourceControlCredential is a user's access token for a source-control provider.
type SourceControlCredential struct {
	UserID      string `json:"userId"`
	Provider    string `json:"provider"`
	AccessToken string `json:"-"`
}

// ProviderGitHub is the only supported source-control provider.
const ProviderGitHub = "github"
