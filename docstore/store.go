package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/philsgames/questtracker/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

// CreateInput describes a new document.
type CreateInput struct {
	Name       string
	Folder     string
	Permission model.PermissionLevel
	Flags      map[string]interface{} // {"<namespace>": {"<key>": {...}}}
}

// CreateEvent is the payload of EventPostCreate.
type CreateEvent struct {
	Doc *model.Document
}

// UpdateEvent is the payload of EventPreUpdate and EventPostUpdate.
// On pre-update Doc is the document as currently stored; on post-update
// it is the committed result. Delta is the raw update payload in both.
type UpdateEvent struct {
	Doc     *model.Document
	Delta   map[string]interface{}
	ActorID int64
}

// DeleteEvent is the payload of EventPostDelete; Doc is the last-known
// record before deletion.
type DeleteEvent struct {
	Doc *model.Document
}

// Store persists generic documents with a structured metadata bag and
// publishes lifecycle notifications on its Bus.
type Store struct {
	db     *gorm.DB
	bus    *Bus
	logger *zap.Logger
}

// New creates a document Store.
func New(db *gorm.DB, bus *Bus, logger *zap.Logger) *Store {
	return &Store{db: db, bus: bus, logger: logger}
}

// Bus returns the notification bus of this store.
func (s *Store) Bus() *Bus { return s.bus }

// Create persists a new document and publishes post-create.
func (s *Store) Create(ctx context.Context, in CreateInput) (*model.Document, error) {
	flagsJSON, err := json.Marshal(in.Flags)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal flags: %w", err)
	}
	doc := &model.Document{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Folder:     in.Folder,
		Permission: in.Permission,
		Flags:      datatypes.JSON(flagsJSON),
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, fmt.Errorf("docstore: create: %w", err)
	}
	if err := s.bus.Publish(ctx, EventPostCreate, &CreateEvent{Doc: doc}); err != nil {
		s.logger.Warn("post-create handlers reported errors", zap.Error(err))
	}
	return doc, nil
}

// Get returns the document with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get: %w", err)
	}
	return &doc, nil
}

// List returns all documents in the given folder, unordered.
func (s *Store) List(ctx context.Context, folder string) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.WithContext(ctx).Where("folder = ?", folder).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("docstore: list: %w", err)
	}
	return docs, nil
}

// Update deep-merges delta onto the stored document and publishes
// pre-update (with the stored state) and post-update (with the
// committed state). Recognized delta keys: "name" (string),
// "permission" (number), "flags" (nested map merged into the metadata
// bag; arrays are replaced wholesale). Handlers that write back into
// the store re-enter Update on the same goroutine.
func (s *Store) Update(ctx context.Context, id string, delta map[string]interface{}, actorID int64) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.bus.Publish(ctx, EventPreUpdate, &UpdateEvent{Doc: doc, Delta: delta, ActorID: actorID}); err != nil {
		s.logger.Warn("pre-update handlers reported errors", zap.String("id", id), zap.Error(err))
	}

	var cols []string
	if name, ok := delta["name"].(string); ok {
		doc.Name = name
		cols = append(cols, "name")
	}
	if perm, ok := numeric(delta["permission"]); ok {
		doc.Permission = perm
		cols = append(cols, "permission")
	}
	if flagDelta, ok := delta["flags"].(map[string]interface{}); ok {
		merged, err := mergeFlags(doc.Flags, flagDelta)
		if err != nil {
			return nil, err
		}
		doc.Flags = merged
		cols = append(cols, "flags")
	}

	// Only the touched columns go back to the database, so concurrent
	// writers of unrelated columns are never clobbered.
	if len(cols) > 0 {
		cols = append(cols, "updated_at")
		if err := s.db.WithContext(ctx).Model(doc).Select(cols).Updates(doc).Error; err != nil {
			return nil, fmt.Errorf("docstore: update: %w", err)
		}
	}

	if err := s.bus.Publish(ctx, EventPostUpdate, &UpdateEvent{Doc: doc, Delta: delta, ActorID: actorID}); err != nil {
		s.logger.Warn("post-update handlers reported errors", zap.String("id", id), zap.Error(err))
	}
	return doc, nil
}

// Delete removes the document and publishes post-delete with the
// last-known record. Deleting a missing id is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("docstore: delete: %w", err)
	}
	if err := s.bus.Publish(ctx, EventPostDelete, &DeleteEvent{Doc: doc}); err != nil {
		s.logger.Warn("post-delete handlers reported errors", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// GetFlag extracts the raw metadata value stored under namespace/key,
// or false when the bag has no such entry.
func GetFlag(doc *model.Document, namespace, key string) (json.RawMessage, bool) {
	if doc == nil || len(doc.Flags) == 0 {
		return nil, false
	}
	var bag map[string]map[string]json.RawMessage
	if err := json.Unmarshal(doc.Flags, &bag); err != nil {
		return nil, false
	}
	ns, ok := bag[namespace]
	if !ok {
		return nil, false
	}
	raw, ok := ns[key]
	return raw, ok
}

// DeltaFlag extracts the namespace/key sub-map of an update delta, or
// nil when the delta does not touch that flag.
func DeltaFlag(delta map[string]interface{}, namespace, key string) map[string]interface{} {
	flags, ok := delta["flags"].(map[string]interface{})
	if !ok {
		return nil
	}
	ns, ok := flags[namespace].(map[string]interface{})
	if !ok {
		return nil
	}
	sub, _ := ns[key].(map[string]interface{})
	return sub
}

func mergeFlags(current datatypes.JSON, delta map[string]interface{}) (datatypes.JSON, error) {
	bag := make(map[string]interface{})
	if len(current) > 0 {
		if err := json.Unmarshal(current, &bag); err != nil {
			return nil, fmt.Errorf("docstore: corrupt flags: %w", err)
		}
	}
	merged := MergeMaps(bag, delta)
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("docstore: marshal flags: %w", err)
	}
	return datatypes.JSON(out), nil
}

// MergeMaps deep-merges src into dst and returns dst. Nested maps merge
// key by key; every other value, including arrays, replaces the old one
// wholesale. A nil src value deletes the key.
func MergeMaps(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{})
	}
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		srcMap, srcIsMap := v.(map[string]interface{})
		dstMap, dstIsMap := dst[k].(map[string]interface{})
		if srcIsMap && dstIsMap {
			dst[k] = MergeMaps(dstMap, srcMap)
			continue
		}
		dst[k] = v
	}
	return dst
}

func numeric(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
