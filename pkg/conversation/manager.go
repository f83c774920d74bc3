// Package conversation persists conversations on disk: a folder per
// conversation holding metadata.json, messages.json, downloaded materials,
// and generated outputs.
package conversation

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nexagent/nexagent/pkg/models"
	"github.com/nexagent/nexagent/pkg/services"
)

const (
	metadataFile = "metadata.json"
	messagesFile = "messages.json"
	materialsDir = "materials"
	outputsDir   = "outputs"
)

// Manager owns the conversation folder tree under {root}/conversations/.
type Manager struct {
	root string

	// mu serializes metadata read-modify-write cycles. File writes are
	// atomic on their own; the lock keeps two mutations from clobbering
	// each other's metadata.
	mu sync.Mutex
}

func NewManager(dataRoot string) (*Manager, error) {
	root := filepath.Join(dataRoot, "conversations")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create conversation root: %w", err)
	}
	return &Manager{root: root}, nil
}

func (m *Manager) dir(id string) string { return filepath.Join(m.root, id) }

// Create builds the folder tree and writes the initial metadata.
func (m *Manager) Create(id, title string) error {
	if err := validateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := m.dir(id)
	for _, sub := range []string{materialsDir, outputsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create conversation folders: %w", err)
		}
	}

	now := time.Now().UTC()
	meta := models.ConversationMetadata{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Materials: []models.MaterialEntry{},
	}
	return writeJSONAtomic(filepath.Join(dir, metadataFile), meta)
}

// Exists reports whether the conversation has been created.
func (m *Manager) Exists(id string) bool {
	if validateID(id) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(m.dir(id), metadataFile))
	return err == nil
}

// Metadata loads metadata.json.
func (m *Manager) Metadata(id string) (*models.ConversationMetadata, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var meta models.ConversationMetadata
	if err := readJSON(filepath.Join(m.dir(id), metadataFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, services.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation metadata: %w", err)
	}
	return &meta, nil
}

// SaveMessages atomically replaces messages.json and advances the
// metadata counters.
func (m *Manager) SaveMessages(id string, messages []models.Message) error {
	if err := validateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := writeJSONAtomic(filepath.Join(m.dir(id), messagesFile), messages); err != nil {
		return err
	}
	return m.touch(id, func(meta *models.ConversationMetadata) {
		meta.MessageCount = len(messages)
	})
}

// Messages loads the transcript; a conversation with no saved messages
// yields an empty slice.
func (m *Manager) Messages(id string) ([]models.Message, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	var messages []models.Message
	err := readJSON(filepath.Join(m.dir(id), messagesFile), &messages)
	if os.IsNotExist(err) {
		if !m.Exists(id) {
			return nil, services.ErrNotFound
		}
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return messages, nil
}

// SaveMaterial writes content under materials/ after sanitizing the name.
func (m *Manager) SaveMaterial(id, name string, content []byte) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	clean, err := sanitizeName(name)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.dir(id), materialsDir, clean)
	if err := writeFileAtomic(path, content); err != nil {
		return "", err
	}
	err = m.touch(id, func(meta *models.ConversationMetadata) {
		meta.Materials = append(meta.Materials, models.MaterialEntry{
			Name:    clean,
			Path:    path,
			AddedAt: time.Now().UTC(),
		})
	})
	return path, err
}

// IngestDownloadedFile copies a downloaded file into materials/ and records
// its provenance in the metadata.
func (m *Manager) IngestDownloadedFile(id, sourceURL, localPath string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	clean, err := sanitizeName(filepath.Base(localPath))
	if err != nil {
		return "", err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open downloaded file: %w", err)
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("failed to read downloaded file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dest := filepath.Join(m.dir(id), materialsDir, clean)
	if err := writeFileAtomic(dest, content); err != nil {
		return "", err
	}
	err = m.touch(id, func(meta *models.ConversationMetadata) {
		meta.Materials = append(meta.Materials, models.MaterialEntry{
			Name:      clean,
			Path:      dest,
			SourceURL: sourceURL,
			AddedAt:   time.Now().UTC(),
		})
	})
	return dest, err
}

// List returns all conversations, most recently updated first.
func (m *Manager) List() ([]models.Conversation, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	var out []models.Conversation
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.Metadata(e.Name())
		if err != nil {
			slog.Warn("Skipping unreadable conversation", "id", e.Name(), "error", err)
			continue
		}
		out = append(out, models.Conversation{
			ID:           meta.ID,
			Title:        meta.Title,
			CreatedAt:    meta.CreatedAt,
			UpdatedAt:    meta.UpdatedAt,
			MessageCount: meta.MessageCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Detail returns the full conversation projection.
func (m *Manager) Detail(id string) (*models.ConversationDetail, error) {
	meta, err := m.Metadata(id)
	if err != nil {
		return nil, err
	}
	messages, err := m.Messages(id)
	if err != nil {
		return nil, err
	}
	return &models.ConversationDetail{
		ID:        meta.ID,
		Title:     meta.Title,
		Messages:  messages,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}, nil
}

// touch applies a metadata mutation and advances updated_at; callers hold
// m.mu.
func (m *Manager) touch(id string, mutate func(*models.ConversationMetadata)) error {
	var meta models.ConversationMetadata
	path := filepath.Join(m.dir(id), metadataFile)
	if err := readJSON(path, &meta); err != nil {
		if os.IsNotExist(err) {
			return services.ErrNotFound
		}
		return fmt.Errorf("failed to read conversation metadata: %w", err)
	}
	if mutate != nil {
		mutate(&meta)
	}
	meta.UpdatedAt = time.Now().UTC()
	return writeJSONAtomic(path, meta)
}

// TitleFromPrompt derives a conversation title: the first sentence,
// trimmed to 40 characters on a word boundary.
func TitleFromPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "New conversation"
	}
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if idx := strings.Index(prompt, sep); idx > 0 {
			prompt = prompt[:idx+1]
			break
		}
	}
	prompt = strings.TrimRight(prompt, " .!?")
	if len(prompt) <= 40 {
		return prompt
	}
	cut := prompt[:40]
	if idx := strings.LastIndexByte(cut, ' '); idx > 20 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// validateID rejects ids that could escape the conversation root.
func validateID(id string) error {
	if id == "" {
		return services.NewValidationError("conversation_id", "must not be empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return services.NewValidationError("conversation_id", "contains path separators")
	}
	return nil
}

// sanitizeName reduces a material name to a single safe filename component.
func sanitizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", services.NewValidationError("name", "must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", services.NewValidationError("name", "contains path separators")
	}
	if filepath.Ext(name) == "" {
		name += ".txt"
	}
	return name, nil
}

// writeJSONAtomic marshals v with two-space indentation and renames into
// place, so readers never observe a half-written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
