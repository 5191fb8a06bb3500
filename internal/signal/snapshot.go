package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

// snapshotVersion is bumped when the SymbolState JSON layout changes.
const snapshotVersion = 1

// EngineSnapshot holds the full state of the signal engine for checkpoint
// persistence. Armed fields are carried over, so a pending arming survives a
// restart.
type EngineSnapshot struct {
	EngineID string        `json:"engine_id"`
	Version  int           `json:"version"`
	TakenAt  time.Time     `json:"taken_at"`
	Symbols  []SymbolState `json:"symbols"`
}

// Snapshot captures the state of every symbol.
func (e *Engine) Snapshot() *EngineSnapshot {
	return &EngineSnapshot{
		EngineID: e.id,
		Version:  snapshotVersion,
		TakenAt:  time.Now().UTC(),
		Symbols:  e.States(),
	}
}

// SnapshotJSON returns the JSON-encoded engine snapshot.
func (e *Engine) SnapshotJSON() ([]byte, error) {
	return json.Marshal(e.Snapshot())
}

// Restore loads symbol states from a snapshot. Symbols already tracked by
// the engine are overwritten. Snapshots from another engine ID or schema
// version are rejected.
func (e *Engine) Restore(snap *EngineSnapshot) (int, error) {
	if snap == nil {
		return 0, nil
	}
	if snap.EngineID != e.id {
		return 0, fmt.Errorf("snapshot engine %q does not match %q", snap.EngineID, e.id)
	}
	if snap.Version != snapshotVersion {
		return 0, fmt.Errorf("snapshot version %d not supported (want %d)", snap.Version, snapshotVersion)
	}

	restored := 0
	for _, st := range snap.Symbols {
		if st.Symbol == "" {
			continue
		}
		if st.Position == "" {
			st.Position = newSymbolState(st.Symbol).Position
		}
		s := e.slot(st.Symbol)
		s.mu.Lock()
		s.state = st.clone()
		s.mu.Unlock()
		restored++
	}
	log.Printf("[signal] restored %d symbol states from snapshot taken %s", restored, snap.TakenAt.Format(time.RFC3339))
	return restored, nil
}

// RestoreJSON decodes and restores a JSON snapshot. Empty data is a no-op.
func (e *Engine) RestoreJSON(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	var snap EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return e.Restore(&snap)
}
