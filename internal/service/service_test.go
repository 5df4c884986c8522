package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/config"
	"github.com/CerberoGS/CATAI-sub000/internal/filestore"
	"github.com/CerberoGS/CATAI-sub000/internal/pkg/secretbox"
	"github.com/CerberoGS/CATAI-sub000/internal/repo"
	"github.com/CerberoGS/CATAI-sub000/internal/testutil"
)

type testEnv struct {
	users     *repo.UserRepo
	docs      *repo.DocumentRepo
	indexes   *repo.IndexRepo
	knowledge *repo.KnowledgeRepo
	settings  *repo.SettingsRepo
	usage     *repo.UsageRepo
	store     filestore.Store
	box       *secretbox.Box
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	conn, cleanup := testutil.OpenTestDB(t)
	t.Cleanup(cleanup)
	store, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	box, err := secretbox.New("test-secret-key")
	require.NoError(t, err)
	return &testEnv{
		users:     repo.NewUserRepo(conn),
		docs:      repo.NewDocumentRepo(conn),
		indexes:   repo.NewIndexRepo(conn, NewID),
		knowledge: repo.NewKnowledgeRepo(conn),
		settings:  repo.NewSettingsRepo(conn),
		usage:     repo.NewUsageRepo(conn),
		store:     store,
		box:       box,
	}
}

func (e *testEnv) documentService() *DocumentService {
	return NewDocumentService(e.docs, e.knowledge, e.indexes, e.store, config.UploadConfig{
		MaxBytes:   1024,
		AllowedExt: []string{".pdf", ".txt", ".md", ".docx"},
	})
}

func (e *testEnv) settingsService() *SettingsService {
	return NewSettingsService(e.settings, e.box)
}
