package plugin

import (
	"fmt"

	"github.com/viant/construct/model"
	"github.com/viant/construct/model/graph"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/service/hub"
)

// Manifest declares registrations composed from tasks already known to a hub
type Manifest struct {
	URL     string          `yaml:"-"`
	ID      string          `yaml:"name"`
	Actions []*ActionEntry  `yaml:"actions,omitempty"`
	Aliases []*AliasEntry   `yaml:"aliases,omitempty"`
	Connect []*ConnectEntry `yaml:"connect,omitempty"`
}

// ActionEntry declares an action
type ActionEntry struct {
	ID          string   `yaml:"id"`
	Label       string   `yaml:"label,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Tasks       []string `yaml:"tasks"`
}

// AliasEntry declares an alias
type AliasEntry struct {
	Name   string   `yaml:"name"`
	Target string   `yaml:"target"`
	Tasks  []string `yaml:"tasks,omitempty"`
}

// ConnectEntry connects tasks to an action or alias
type ConnectEntry struct {
	Action string   `yaml:"action"`
	Tasks  []string `yaml:"tasks"`
}

// Name returns manifest name, falling back to its URL
func (m *Manifest) Name() string {
	if m.ID != "" {
		return m.ID
	}
	return m.URL
}

// Register registers actions, then aliases, then connections
func (m *Manifest) Register(h *hub.Hub) error {
	for _, entry := range m.Actions {
		tasks, err := m.tasks(h, entry.Tasks)
		if err != nil {
			return err
		}
		action := model.NewAction(entry.ID).
			WithLabel(entry.Label).
			WithDescription(entry.Description).
			WithTasks(tasks...)
		if err = h.Register(action); err != nil {
			return fmt.Errorf("plugin %v: %w", m.Name(), err)
		}
	}
	for _, entry := range m.Aliases {
		tasks, err := m.tasks(h, entry.Tasks)
		if err != nil {
			return err
		}
		if err = h.Alias(entry.Name, entry.Target, tasks...); err != nil {
			return fmt.Errorf("plugin %v: %w", m.Name(), err)
		}
	}
	for _, entry := range m.Connect {
		tasks, err := m.tasks(h, entry.Tasks)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if err = h.Connect(entry.Action, task); err != nil {
				return fmt.Errorf("plugin %v: %w", m.Name(), err)
			}
		}
	}
	return nil
}

func (m *Manifest) tasks(h *hub.Hub, ids []string) ([]*graph.Task, error) {
	ret := make([]*graph.Task, 0, len(ids))
	for _, id := range ids {
		task, ok := h.LookupTask(id)
		if !ok {
			return nil, fmt.Errorf("plugin %v: %w: unknown task %v", m.Name(), types.ErrRegistration, id)
		}
		ret = append(ret, task.Clone())
	}
	return ret, nil
}
