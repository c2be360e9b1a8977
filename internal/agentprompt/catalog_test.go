package agentprompt

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

type memStore struct {
	mu     sync.Mutex
	agents map[string]models.Agent
}

func newMemStore() *memStore { return &memStore{agents: map[string]models.Agent{}} }

func (m *memStore) UpsertAgent(_ context.Context, a models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = a
	return nil
}

func (m *memStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.agents, id)
	return nil
}

func (m *memStore) AgentChecksums(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.agents))
	for id, a := range m.agents {
		out[id] = a.Checksum
	}
	return out, nil
}

func (m *memStore) get(id string) (models.Agent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	return a, ok
}

const writerYAML = `name: Writer
description: Drafts prose.
prompt:
  mode: append
  blocks:
    - id: style
      template: "Write in a {{vars.tone}} voice."
  variables:
    - key: tone
      defaultValue: plain
`

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func catalogDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir, storage.WithExtensions(".yaml", ".yml"))
	require.NoError(t, err)
	return dir, files
}

func TestDecode(t *testing.T) {
	a, err := Decode("writer", []byte(writerYAML))
	require.NoError(t, err)
	assert.Equal(t, "Writer", a.Name)
	assert.Equal(t, "Drafts prose.", a.Description)
	require.NotNil(t, a.PromptConfig)

	cfg := Parse(a.PromptConfig)
	require.Len(t, cfg.Blocks, 1)
	assert.Equal(t, "style", cfg.Blocks[0].ID)
	assert.Equal(t, "plain", cfg.Variables[0].DefaultValue)

	plain, err := Decode("plain", []byte("description: no prompt\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain", plain.Name)
	assert.Nil(t, plain.PromptConfig)

	_, err = Decode("bad", []byte("name: [unclosed"))
	assert.Error(t, err)
}

func TestSync(t *testing.T) {
	dir, files := catalogDir(t)
	st := newMemStore()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "writer.yaml"), []byte(writerYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coder.yml"), []byte("name: Coder\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [unclosed"), 0o644))

	changes, err := Sync(ctx, st, files, discard())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Change{{ChangeCreated, "writer"}, {ChangeCreated, "coder"}}, changes)

	changes, err = Sync(ctx, st, files, discard())
	require.NoError(t, err)
	assert.Empty(t, changes, "unchanged files must not be re-synced")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "coder.yml"), []byte("name: Coder 2\n"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "writer.yaml")))

	changes, err = Sync(ctx, st, files, discard())
	require.NoError(t, err)
	assert.ElementsMatch(t, []Change{{ChangeUpdated, "coder"}, {ChangeDeleted, "writer"}}, changes)

	coder, ok := st.get("coder")
	require.True(t, ok)
	assert.Equal(t, "Coder 2", coder.Name)
	_, ok = st.get("writer")
	assert.False(t, ok)
}

func TestWatch_ResyncsOnChange(t *testing.T) {
	dir, files := catalogDir(t)
	st := newMemStore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []Change
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Watch(ctx, st, files, discard(), func(c Change) {
			mu.Lock()
			seen = append(seen, c)
			mu.Unlock()
		})
	}()
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "writer.yaml"), []byte(writerYAML), 0o644))

	assert.Eventually(t, func() bool {
		_, ok := st.get("writer")
		return ok
	}, 5*time.Second, 50*time.Millisecond)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range seen {
			if c == (Change{ChangeCreated, "writer"}) {
				return true
			}
		}
		return false
	}, 2*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}
