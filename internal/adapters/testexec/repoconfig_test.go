package testexec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRepoConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    RepoConfig
		wantErr bool
	}{
		{name: "missing file"},
		{
			name: "full",
			content: "testCommand: \" npx playwright test --reporter=json \"\n" +
				"installCommand: npm ci\n" +
				"workingDir: web/./e2e\n" +
				"reportGlobs:\n  - out/*.json\n",
			want: RepoConfig{
				TestCommand:    "npx playwright test --reporter=json",
				InstallCommand: "npm ci",
				WorkingDir:     filepath.Join("web", "e2e"),
				ReportGlobs:    []string{"out/*.json"},
			},
		},
		{name: "dot working dir", content: "workingDir: .\n"},
		{name: "escaping working dir", content: "workingDir: ../other\n", wantErr: true},
		{name: "absolute working dir", content: "workingDir: /etc\n", wantErr: true},
		{name: "malformed", content: "testCommand: [unterminated\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, RepoConfigFile), []byte(tt.content), 0o600))
			}
			got, err := loadRepoConfig(dir)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
