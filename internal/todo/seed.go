package todo

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/the-dev-tools/socketapi/pkg/idwrap"
	"github.com/the-dev-tools/socketapi/pkg/store"
)

// SeedFile is the YAML document accepted by LoadSeed:
//
//	todos:
//	  - text: buy milk
//	  - text: write docs
//	    completed: true
type SeedFile struct {
	Todos []SeedTodo `yaml:"todos"`
}

type SeedTodo struct {
	Text      string `yaml:"text"`
	Completed bool   `yaml:"completed"`
}

func LoadSeed(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// Seed saves every entry of f as a new todo, in file order.
func (s *Service) Seed(ctx context.Context, f *SeedFile) (int, error) {
	for i, e := range f.Todos {
		t := &Todo{ID: idwrap.NewNow(), Text: e.Text, Completed: e.Completed}
		if err := s.store.Save(ctx, store.Key{Collection: Collection, ID: t.ID.String()}, t); err != nil {
			return i, fmt.Errorf("seed todo %d: %w", i, err)
		}
	}
	s.logger.Info("seeded todos", "count", len(f.Todos))
	return len(f.Todos), nil
}
