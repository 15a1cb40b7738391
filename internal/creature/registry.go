package creature

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Creature is a selectable fighter.
type Creature struct {
	Name string `json:"name"`
}

// Default is picked when a player leaves the choice empty.
const Default = "Agumon"

// Starters is the roster offered on the create and join forms.
var Starters = []string{"Agumon", "Gabumon", "Biyomon", "Tentomon", "Palmon", "Gomamon"}

var ErrUnknown = errors.New("unknown creature")

// Registry holds the creatures players may choose.
type Registry struct {
	mu        sync.RWMutex
	creatures map[string]Creature
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{creatures: make(map[string]Creature)}
}

// NewStarterRegistry returns a registry loaded with Starters.
func NewStarterRegistry() *Registry {
	r := NewRegistry()
	for _, name := range Starters {
		r.Register(Creature{Name: name})
	}
	return r
}

// Register adds a creature. Panics on duplicate names.
func (r *Registry) Register(c Creature) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(c.Name)
	if _, exists := r.creatures[key]; exists {
		panic(fmt.Sprintf("creature %q already registered", c.Name))
	}
	r.creatures[key] = c
	r.order = append(r.order, key)
}

// Get looks a creature up by name, ignoring case.
func (r *Registry) Get(name string) (Creature, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.creatures[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// Resolve maps a player's choice to a registered creature name. An empty
// choice selects Default.
func (r *Registry) Resolve(choice string) (string, error) {
	if strings.TrimSpace(choice) == "" {
		choice = Default
	}
	c, ok := r.Get(choice)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknown, choice)
	}
	return c.Name, nil
}

// List returns all creatures in registration order.
func (r *Registry) List() []Creature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Creature, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.creatures[key])
	}
	return out
}
