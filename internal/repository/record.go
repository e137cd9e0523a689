package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"EntryGate/internal/domain/models"
)

// versionRecord is the stored form of one document version. The document is
// kept as raw JSON so that it is decoded through the strict decoder on read.
type versionRecord struct {
	Version  int64           `json:"version"`
	SavedAt  time.Time       `json:"saved_at"`
	Document json.RawMessage `json:"document"`
}

func encodeRecord(v *models.VersionedConditions) ([]byte, error) {
	doc, err := json.Marshal(v.Document)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return json.Marshal(versionRecord{Version: v.Version, SavedAt: v.SavedAt, Document: doc})
}

func decodeRecord(b []byte) (*models.VersionedConditions, error) {
	var rec versionRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("decode version record: %w", err)
	}
	return toVersioned(rec.Version, rec.SavedAt, rec.Document)
}

func toVersioned(version int64, savedAt time.Time, doc []byte) (*models.VersionedConditions, error) {
	tc, err := models.DecodeConditions(doc)
	if err != nil {
		return nil, fmt.Errorf("stored version %d: %w", version, err)
	}
	return &models.VersionedConditions{Version: version, SavedAt: savedAt.UTC(), Document: tc}, nil
}

func emptyVersion() *models.VersionedConditions {
	return &models.VersionedConditions{Document: &models.TradeConditions{}}
}
