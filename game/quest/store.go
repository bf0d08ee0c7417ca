package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/philsgames/questtracker/docstore"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
)

// Store is the typed quest accessor over the document store. It is
// delta-agnostic: it persists records and never inspects transitions;
// reacting to changes is the watcher's job.
type Store struct {
	docs   *docstore.Store
	folder string
	logger *zap.Logger
}

// NewStore creates a quest Store over docs, scoped to the given folder.
func NewStore(docs *docstore.Store, folder string, logger *zap.Logger) *Store {
	return &Store{docs: docs, folder: folder, logger: logger}
}

// Folder returns the collection folder this store is scoped to.
func (s *Store) Folder() string { return s.folder }

// Docs exposes the underlying document store.
func (s *Store) Docs() *docstore.Store { return s.docs }

// Create merges partial over the schema defaults, assigns the created
// timestamp if absent, and persists a new quest document. The full
// record with its assigned id is returned.
func (s *Store) Create(ctx context.Context, partial map[string]interface{}) (*Quest, error) {
	data := docstore.MergeMaps(DefaultData(), partial)

	dates, _ := data["dates"].(map[string]interface{})
	if dates == nil {
		dates = map[string]interface{}{}
		data["dates"] = dates
	}
	if created, ok := dates["created"]; !ok || created == nil {
		dates["created"] = time.Now().UnixMilli()
	}

	title, _ := data["title"].(string)
	doc, err := s.docs.Create(ctx, docstore.CreateInput{
		Name:   title,
		Folder: s.folder,
		Flags:  map[string]interface{}{Namespace: map[string]interface{}{FlagKey: data}},
	})
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// Get returns the quest stored on the given document id.
func (s *Store) Get(ctx context.Context, id string) (*Quest, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// List returns every quest record in the collection, unordered.
// Documents in the folder that carry no quest flag are skipped.
func (s *Store) List(ctx context.Context) ([]*Quest, error) {
	docs, err := s.docs.List(ctx, s.folder)
	if err != nil {
		return nil, err
	}
	quests := make([]*Quest, 0, len(docs))
	for i := range docs {
		q, err := FromDocument(&docs[i])
		if err != nil {
			s.logger.Warn("skipping unreadable quest record",
				zap.String("id", docs[i].ID), zap.Error(err))
			continue
		}
		if q == nil || q.Type != "quest" {
			continue
		}
		quests = append(quests, q)
	}
	return quests, nil
}

// Update deep-merges patch onto the stored record and persists it.
// Nested maps merge key by key; arrays are replaced wholesale. A title
// change also renames the owning document so the two stay mirrored.
func (s *Store) Update(ctx context.Context, id string, patch map[string]interface{}, actorID int64) (*Quest, error) {
	delta := map[string]interface{}{
		"flags": map[string]interface{}{
			Namespace: map[string]interface{}{FlagKey: patch},
		},
	}
	if title, ok := patch["title"].(string); ok && title != "" {
		delta["name"] = title
	}
	doc, err := s.docs.Update(ctx, id, delta, actorID)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc)
}

// SetPermission writes the document's default permission level.
func (s *Store) SetPermission(ctx context.Context, id string, level model.PermissionLevel, actorID int64) error {
	_, err := s.docs.Update(ctx, id, map[string]interface{}{"permission": level}, actorID)
	return err
}

// Delete removes the backing document; the post-delete notification
// carries the last-known record for cascades.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.docs.Delete(ctx, id)
}

// FromDocument decodes the quest record attached to doc, running the
// schema migration. Returns (nil, nil) when doc carries no quest flag.
func FromDocument(doc *model.Document) (*Quest, error) {
	raw, ok := docstore.GetFlag(doc, Namespace, FlagKey)
	if !ok {
		return nil, nil
	}
	return Decode(doc.ID, raw)
}

// Encode renders q back into a metadata bag value, without the
// deprecated source field.
func Encode(q *Quest) (map[string]interface{}, error) {
	clone := *q
	clone.Source = nil
	b, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("quest: encode %s: %w", q.ID, err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("quest: encode %s: %w", q.ID, err)
	}
	return m, nil
}
