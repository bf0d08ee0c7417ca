package transfer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/philsgames/questtracker/game/quest"
	"go.uber.org/zap"
)

// ErrNotAList is returned when an import payload's top level is not a
// JSON array; nothing is written in that case.
var ErrNotAList = errors.New("transfer: import payload is not a list of quests")

// Service exports and imports the quest collection as JSON.
type Service struct {
	quests *quest.Store
	logger *zap.Logger
}

// New creates a transfer Service.
func New(quests *quest.Store, logger *zap.Logger) *Service {
	return &Service{quests: quests, logger: logger}
}

// Export renders every quest record as a JSON array matching the quest
// schema. Document ids are not included; import reassigns them.
func (s *Service) Export(ctx context.Context) ([]byte, error) {
	quests, err := s.quests.List(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]map[string]interface{}, 0, len(quests))
	for _, q := range quests {
		record, err := quest.Encode(q)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return json.MarshalIndent(records, "", "  ")
}

// Import creates quests from a JSON array of records through the normal
// create path, so defaults and migrations apply uniformly. A malformed
// top level aborts before any write; entries with an empty title are
// skipped silently. The count of successful creations is returned.
func (s *Service) Import(ctx context.Context, data []byte) (int, error) {
	var entries []map[string]interface{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return 0, ErrNotAList
	}

	imported := 0
	for _, entry := range entries {
		title, _ := entry["title"].(string)
		if title == "" {
			continue
		}
		if _, err := s.quests.Create(ctx, entry); err != nil {
			s.logger.Warn("import entry failed", zap.String("title", title), zap.Error(err))
			continue
		}
		imported++
	}
	s.logger.Info("quest import finished", zap.Int("imported", imported), zap.Int("total", len(entries)))
	return imported, nil
}
