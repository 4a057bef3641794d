package agent

import (
	"fmt"
	"sync"
)

// Registry manages named sub-agent presets.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates a new agent registry seeded with the built-in
// presets.
func NewRegistry() *Registry {
	r := &Registry{
		agents: make(map[string]*Agent),
	}

	for name, agent := range BuiltInAgents() {
		r.agents[name] = agent
	}

	return r
}

// Get retrieves a preset by name.
func (r *Registry) Get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", name)
	}

	return agent, nil
}

// Register adds or updates a preset.
func (r *Registry) Register(agent *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[agent.Name] = agent
}

// Unregister removes a preset by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// List returns all registered presets.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, agent)
	}
	return agents
}

// Names returns all preset names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Exists checks if a preset exists.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// Count returns the number of registered presets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// LoadFromConfig loads custom sub-agent presets from configuration,
// merging overrides into any existing (including built-in) preset of the
// same name without mutating the built-in original.
func (r *Registry) LoadFromConfig(config map[string]AgentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, cfg := range config {
		agent, exists := r.agents[name]
		if !exists {
			agent = &Agent{
				Name:    name,
				BuiltIn: false,
				Tools:   make(map[string]bool),
			}
		} else {
			agent = agent.Clone()
			agent.BuiltIn = false
		}

		if cfg.Description != "" {
			agent.Description = cfg.Description
		}
		if cfg.Model != nil {
			agent.Model = cfg.Model
		}
		if cfg.Tools != nil {
			if agent.Tools == nil {
				agent.Tools = make(map[string]bool)
			}
			for k, v := range cfg.Tools {
				agent.Tools[k] = v
			}
		}

		r.agents[name] = agent
	}
}

// AgentConfig represents user configuration overriding or adding a
// sub-agent preset.
type AgentConfig struct {
	Description string          `json:"description,omitempty"`
	Model       *ModelRef       `json:"model,omitempty"`
	Tools       map[string]bool `json:"tools,omitempty"`
}
