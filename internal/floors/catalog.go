package floors

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed floors.yaml
var builtinCatalog []byte

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(builtinCatalog)
		if err != nil {
			panic(fmt.Sprintf("builtin floor catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

func Parse(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &c, nil
}

// Count is the number of floors, which is also the id of the final floor.
func (c *Catalog) Count() int {
	return len(c.Floors)
}

func (c *Catalog) LastFloor() int {
	return FirstFloor + len(c.Floors) - 1
}

func (c *Catalog) Floor(id int) (Floor, bool) {
	idx := id - FirstFloor
	if idx < 0 || idx >= len(c.Floors) {
		return Floor{}, false
	}
	return c.Floors[idx], true
}

func (c *Catalog) Wing(name string) (Wing, bool) {
	for _, w := range c.Wings {
		if w.Name == name {
			return w, true
		}
	}
	return Wing{}, false
}

func (c *Catalog) WingForFloor(id int) (Wing, bool) {
	for _, w := range c.Wings {
		if slices.Contains(w.FloorIDs, id) {
			return w, true
		}
	}
	return Wing{}, false
}

// IsWingCleared reports whether every floor of w is in completed.
func IsWingCleared(w Wing, completed []int) bool {
	if len(w.FloorIDs) == 0 {
		return false
	}
	for _, id := range w.FloorIDs {
		if !slices.Contains(completed, id) {
			return false
		}
	}
	return true
}

// ClearedWings lists the wings fully contained in completed, in catalog order.
func (c *Catalog) ClearedWings(completed []int) []Wing {
	out := make([]Wing, 0, len(c.Wings))
	for _, w := range c.Wings {
		if IsWingCleared(w, completed) {
			out = append(out, w)
		}
	}
	return out
}
