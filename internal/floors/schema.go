package floors

import (
	"fmt"
	"strings"
)

const (
	CatalogKind            = "catalog"
	SupportedSchemaVersion = 1

	FirstFloor    = 1
	MaxDifficulty = 5
)

type Catalog struct {
	Kind          string  `yaml:"kind"`
	SchemaVersion int     `yaml:"schema_version"`
	Wings         []Wing  `yaml:"wings"`
	Floors        []Floor `yaml:"floors"`
}

// Floor is one scripted challenge stage. Ordering by ID is story and difficulty order.
type Floor struct {
	ID             int      `yaml:"id"`
	Name           string   `yaml:"name"`
	Character      string   `yaml:"character"`
	CharacterTitle string   `yaml:"character_title"`
	Wing           string   `yaml:"wing"`
	Difficulty     int      `yaml:"difficulty"`
	Description    string   `yaml:"description"`
	Technique      string   `yaml:"technique"`
	Objective      string   `yaml:"objective"`
	AccentColor    string   `yaml:"accent_color"`
	Avatar         string   `yaml:"avatar"`
	Tips           []string `yaml:"tips"`
}

// Wing groups contiguous floors that share a theme and difficulty band.
type Wing struct {
	Name        string `yaml:"name"`
	FloorIDs    []int  `yaml:"floors"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}

func (c Catalog) Validate() error {
	if c.Kind != CatalogKind {
		return fmt.Errorf("kind must be %q", CatalogKind)
	}
	if c.SchemaVersion == 0 {
		return fmt.Errorf("schema_version is required")
	}
	if c.SchemaVersion > SupportedSchemaVersion {
		return fmt.Errorf("unsupported catalog schema_version %d (max supported %d)", c.SchemaVersion, SupportedSchemaVersion)
	}
	if len(c.Floors) == 0 {
		return fmt.Errorf("floors must contain at least one item")
	}
	for i, f := range c.Floors {
		if err := f.Validate(); err != nil {
			return err
		}
		if f.ID != FirstFloor+i {
			return fmt.Errorf("floor ids must be contiguous from %d: position %d has id %d", FirstFloor, i, f.ID)
		}
	}

	owner := map[int]string{}
	seenWing := map[string]bool{}
	for _, w := range c.Wings {
		if strings.TrimSpace(w.Name) == "" {
			return fmt.Errorf("wings[].name is required")
		}
		if seenWing[w.Name] {
			return fmt.Errorf("duplicate wing %q", w.Name)
		}
		seenWing[w.Name] = true
		if len(w.FloorIDs) == 0 {
			return fmt.Errorf("wing %q must contain at least one floor", w.Name)
		}
		for i, id := range w.FloorIDs {
			if i > 0 && id != w.FloorIDs[i-1]+1 {
				return fmt.Errorf("wing %q floors must be contiguous", w.Name)
			}
			if id < FirstFloor || id > len(c.Floors) {
				return fmt.Errorf("wing %q references unknown floor %d", w.Name, id)
			}
			if prev, ok := owner[id]; ok {
				return fmt.Errorf("floor %d belongs to both %q and %q", id, prev, w.Name)
			}
			owner[id] = w.Name
		}
	}
	for _, f := range c.Floors {
		wing, ok := owner[f.ID]
		if !ok {
			return fmt.Errorf("floor %d is not part of any wing", f.ID)
		}
		if wing != f.Wing {
			return fmt.Errorf("floor %d declares wing %q but is listed under %q", f.ID, f.Wing, wing)
		}
	}
	return nil
}

func (f Floor) Validate() error {
	if f.ID < FirstFloor {
		return fmt.Errorf("floor id must be >= %d", FirstFloor)
	}
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("floor %d: name is required", f.ID)
	}
	if strings.TrimSpace(f.Character) == "" {
		return fmt.Errorf("floor %d: character is required", f.ID)
	}
	if f.Difficulty < 1 || f.Difficulty > MaxDifficulty {
		return fmt.Errorf("floor %d: difficulty must be 1..%d", f.ID, MaxDifficulty)
	}
	if strings.TrimSpace(f.Wing) == "" {
		return fmt.Errorf("floor %d: wing is required", f.ID)
	}
	return nil
}
