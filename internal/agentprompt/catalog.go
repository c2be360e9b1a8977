package agentprompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

// Store persists the agent catalog.
type Store interface {
	UpsertAgent(ctx context.Context, a models.Agent) error
	DeleteAgent(ctx context.Context, id string) error
	// AgentChecksums maps agent id to the checksum of its definition file.
	AgentChecksums(ctx context.Context) (map[string]string, error)
}

// Definition is the on-disk YAML form of an agent.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Prompt      any    `yaml:"prompt"`
}

// Change kinds reported by Sync.
const (
	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Change is one catalog mutation.
type Change struct {
	Kind string
	ID   string
}

// AgentID derives the agent id from a definition path: the file name
// without its extension.
func AgentID(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Decode parses a definition file into an agent. The prompt is stored only
// when it differs from the default configuration.
func Decode(id string, data []byte) (models.Agent, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return models.Agent{}, fmt.Errorf("agentprompt: decode %s: %w", id, err)
	}
	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = id
	}
	a := models.Agent{
		ID:          id,
		Name:        clamp(name, MaxLabelLen),
		Description: clamp(strings.TrimSpace(def.Description), MaxDescriptionLen),
	}
	cfg := Normalize(def.Prompt)
	if !IsDefault(cfg) {
		raw, err := json.Marshal(cfg)
		if err != nil {
			return models.Agent{}, fmt.Errorf("agentprompt: encode %s: %w", id, err)
		}
		a.PromptConfig = raw
	}
	return a, nil
}

// Sync brings the stored catalog in line with the definition files:
// changed files are decoded and upserted, agents whose file is gone are
// deleted. A single unreadable file is logged and skipped.
func Sync(ctx context.Context, st Store, files storage.Provider, logger *slog.Logger) ([]Change, error) {
	metas, err := files.List("")
	if err != nil {
		return nil, fmt.Errorf("agentprompt: sync: %w", err)
	}
	known, err := st.AgentChecksums(ctx)
	if err != nil {
		return nil, fmt.Errorf("agentprompt: sync: %w", err)
	}

	var changes []Change
	onDisk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		id := AgentID(m.Path)
		if _, dup := onDisk[id]; dup {
			logger.Warn("agents: duplicate id, skipping", slog.String("path", m.Path), slog.String("id", id))
			continue
		}
		onDisk[id] = struct{}{}

		prev, existed := known[id]
		if existed && prev == m.Checksum {
			continue
		}
		data, err := files.Read(m.Path)
		if err != nil {
			logger.Warn("agents: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		a, err := Decode(id, data)
		if err != nil {
			logger.Warn("agents: decode failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		a.Checksum = m.Checksum
		if err := st.UpsertAgent(ctx, a); err != nil {
			return changes, fmt.Errorf("agentprompt: sync %s: %w", id, err)
		}
		kind := ChangeCreated
		if existed {
			kind = ChangeUpdated
		}
		logger.Debug("agents: synced", slog.String("id", id), slog.String("op", kind))
		changes = append(changes, Change{Kind: kind, ID: id})
	}

	for id := range known {
		if _, ok := onDisk[id]; ok {
			continue
		}
		if err := st.DeleteAgent(ctx, id); err != nil {
			return changes, fmt.Errorf("agentprompt: sync delete %s: %w", id, err)
		}
		logger.Debug("agents: removed", slog.String("id", id))
		changes = append(changes, Change{Kind: ChangeDeleted, ID: id})
	}
	return changes, nil
}
