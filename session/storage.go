package session

import (
	"encoding/json"
	"fmt"
	"time"

	"tabscope/config"
	"tabscope/log"
)

// TabData represents the serializable data of a Tab
type TabData struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Program   string    `json:"program"`
	CreatedAt time.Time `json:"created_at"`
}

// ToTabData converts a Tab to its serializable form
func (t *Tab) ToTabData() TabData {
	return TabData{
		ID:        t.ID,
		Title:     t.Title,
		Path:      t.Path,
		Program:   t.Program,
		CreatedAt: t.CreatedAt,
	}
}

// Options converts stored tab data back into open options. The stored id is
// not reused; a reopened tab gets a fresh pipeline and a fresh id.
func (d TabData) Options() TabOptions {
	return TabOptions{
		Title:   d.Title,
		Path:    d.Path,
		Program: d.Program,
	}
}

// Storage handles saving and loading tabs using the state interface
type Storage struct {
	state config.TabStorage
}

// NewStorage creates a new storage instance
func NewStorage(state config.TabStorage) (*Storage, error) {
	return &Storage{
		state: state,
	}, nil
}

// SaveTabs saves the list of tabs to disk
func (s *Storage) SaveTabs(tabs []*Tab) error {
	// Deduplicate by title; a duplicate means the same project/program pair
	// was opened twice and one entry is enough to restore it.
	data := make([]TabData, 0, len(tabs))
	seenTitles := make(map[string]bool)
	for _, tab := range tabs {
		td := tab.ToTabData()
		if seenTitles[td.Title] {
			log.WarningLog.Printf("Skipping duplicate tab when saving: %s", td.Title)
			continue
		}
		seenTitles[td.Title] = true
		data = append(data, td)
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal tabs: %w", err)
	}

	return s.state.SaveTabs(jsonData)
}

// LoadTabs loads the stored tab list. State written by another process since
// the last read is picked up first. Entries missing a path are skipped and
// the cleaned list is saved back.
func (s *Storage) LoadTabs() ([]TabData, error) {
	if _, err := s.state.RefreshFromDisk(); err != nil {
		log.WarningLog.Printf("Failed to refresh state from disk: %v", err)
	}

	jsonData := s.state.GetTabs()

	var tabsData []TabData
	if err := json.Unmarshal(jsonData, &tabsData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tabs: %w", err)
	}

	valid := make([]TabData, 0, len(tabsData))
	skipped := 0
	for _, d := range tabsData {
		if d.Path == "" {
			log.WarningLog.Printf("Skipping invalid stored tab %q: no path", d.Title)
			skipped++
			continue
		}
		valid = append(valid, d)
	}

	if skipped > 0 {
		log.InfoLog.Printf("Removed %d invalid tab(s) from state", skipped)
		jsonData, err := json.Marshal(valid)
		if err == nil {
			if err := s.state.SaveTabs(jsonData); err != nil {
				log.WarningLog.Printf("Failed to save cleaned state: %v", err)
			}
		}
	}

	return valid, nil
}

// DeleteAllTabs removes all stored tabs
func (s *Storage) DeleteAllTabs() error {
	return s.state.DeleteAllTabs()
}
