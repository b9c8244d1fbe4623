package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jaat-ai/ledger/app/models"
)

var _ Store = (*FileStore)(nil)

// ledgerDocument is the on-disk layout of the file-backed store.
type ledgerDocument struct {
	Entitlements map[string]*models.EntitlementRecord `json:"entitlements"`
	Usage        map[string]*models.UsageCounters     `json:"usage"`
	History      map[string][]models.EntitlementEvent `json:"history,omitempty"`
}

// FileStore keeps the whole ledger in one JSON document. Every write replaces
// the document through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a file-backed store at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the location of the ledger document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) GetEntitlement(ctx context.Context, subscriberID string) (*models.EntitlementRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	rec, ok := doc.Entitlements[subscriberID]
	if !ok || rec == nil {
		return nil, nil
	}
	rec.SubscriberID = subscriberID
	return rec, nil
}

func (s *FileStore) PutEntitlement(ctx context.Context, rec *models.EntitlementRecord) error {
	if rec == nil || strings.TrimSpace(rec.SubscriberID) == "" {
		return errors.New("entitlement record with subscriber id is required")
	}
	return s.update(ctx, func(doc *ledgerDocument) {
		doc.Entitlements[rec.SubscriberID] = rec.Clone()
	})
}

func (s *FileStore) GetUsage(ctx context.Context, subscriberID string) (*models.UsageCounters, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	u, ok := doc.Usage[subscriberID]
	if !ok || u == nil {
		return nil, nil
	}
	u.SubscriberID = subscriberID
	return u, nil
}

func (s *FileStore) PutUsage(ctx context.Context, usage *models.UsageCounters) error {
	if usage == nil || strings.TrimSpace(usage.SubscriberID) == "" {
		return errors.New("usage counters with subscriber id are required")
	}
	return s.update(ctx, func(doc *ledgerDocument) {
		u := *usage
		doc.Usage[usage.SubscriberID] = &u
	})
}

func (s *FileStore) AppendHistory(ctx context.Context, ev *models.EntitlementEvent) error {
	if ev == nil || strings.TrimSpace(ev.SubscriberID) == "" {
		return errors.New("history entry with subscriber id is required")
	}
	return s.update(ctx, func(doc *ledgerDocument) {
		entries := doc.History[ev.SubscriberID]
		e := *ev
		e.ID = uint(len(entries) + 1)
		doc.History[ev.SubscriberID] = append(entries, e)
	})
}

func (s *FileStore) ListHistory(ctx context.Context, subscriberID string, limit int) ([]models.EntitlementEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	entries := doc.History[subscriberID]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]models.EntitlementEvent, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

// Snapshot returns the raw ledger document as currently committed.
func (s *FileStore) Snapshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (s *FileStore) update(ctx context.Context, mutate func(doc *ledgerDocument)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	mutate(doc)
	return s.write(doc)
}

// read must be called with mu held.
func (s *FileStore) read() (*ledgerDocument, error) {
	doc := &ledgerDocument{
		Entitlements: map[string]*models.EntitlementRecord{},
		Usage:        map[string]*models.UsageCounters{},
		History:      map[string][]models.EntitlementEvent{},
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return nil, fmt.Errorf("read ledger %q: %w", s.path, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode ledger %q: %w", s.path, err)
	}
	if doc.Entitlements == nil {
		doc.Entitlements = map[string]*models.EntitlementRecord{}
	}
	if doc.Usage == nil {
		doc.Usage = map[string]*models.UsageCounters{}
	}
	if doc.History == nil {
		doc.History = map[string][]models.EntitlementEvent{}
	}
	return doc, nil
}

// write must be called with mu held for writing.
func (s *FileStore) write(doc *ledgerDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}
