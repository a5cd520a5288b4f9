// Package scenario loads a world and its actors from a YAML file.
package scenario

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"

	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/scripting"
	"gopkg.in/yaml.v3"
)

//go:embed demo
var demoFS embed.FS

// WorldSpec sizes the world.
type WorldSpec struct {
	Width    int `yaml:"width"`
	Height   int `yaml:"height"`
	CellSize int `yaml:"cell_size"`
}

// ActorSpec places Count actors of a kind around (X, Y). Each copy lands at
// a random offset of at most Spread cells in each direction.
type ActorSpec struct {
	Kind   string `yaml:"kind"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Count  int    `yaml:"count"`
	Spread int    `yaml:"spread"`
}

// A Scenario is a world size, a script directory, and the initial actors.
type Scenario struct {
	Name    string      `yaml:"name"`
	Seed    uint64      `yaml:"seed"`
	World   WorldSpec   `yaml:"world"`
	Scripts string      `yaml:"scripts"`
	Actors  []ActorSpec `yaml:"actors"`

	scripts fs.FS
}

// Load reads a scenario file. Scripts are looked up relative to the file.
func Load(file string) (*Scenario, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	dir := s.Scripts
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(filepath.Dir(file), dir)
	}
	s.scripts = os.DirFS(dir)

	return s, nil
}

// Demo returns the built-in scenario.
func Demo() (*Scenario, error) {
	data, err := demoFS.ReadFile("demo/scenario.yaml")
	if err != nil {
		return nil, err
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}

	s.scripts, err = fs.Sub(demoFS, path.Join("demo", s.Scripts))
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	s := &Scenario{
		Scripts: "scripts",
		World:   WorldSpec{CellSize: 1},
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	for i := range s.Actors {
		if s.Actors[i].Count == 0 {
			s.Actors[i].Count = 1
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks the world size and actor placements.
func (s *Scenario) Validate() error {
	w := s.World
	if w.Width <= 0 || w.Height <= 0 || w.CellSize <= 0 {
		return fmt.Errorf("invalid world size %dx%d, cell size %d",
			w.Width, w.Height, w.CellSize)
	}

	var errs []error
	for i, a := range s.Actors {
		switch {
		case a.Kind == "":
			errs = append(errs, fmt.Errorf("actor %d: missing kind", i))
		case a.Count < 0 || a.Spread < 0:
			errs = append(errs, fmt.Errorf("actor %d: negative count or spread", i))
		case a.X < 0 || a.X >= w.Width || a.Y < 0 || a.Y >= w.Height:
			errs = append(errs, fmt.Errorf("actor %d: %w", i, grid.ErrOutOfBounds))
		}
	}

	return errors.Join(errs...)
}

// Build loads the scripts into the engine, then creates and populates the
// world. The engine is bound to the new world.
func (s *Scenario) Build(engine *scripting.Engine) (*grid.World, error) {
	if s.scripts != nil {
		if err := engine.LoadFS(s.scripts); err != nil {
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}

	world, err := grid.NewWorld(s.World.Width, s.World.Height, s.World.CellSize)
	if err != nil {
		return nil, err
	}
	engine.Bind(world)

	rng := rand.New(rand.NewPCG(s.Seed, s.Seed))
	for _, entry := range s.Actors {
		for range entry.Count {
			a, err := engine.NewActor(entry.Kind)
			if err != nil {
				return nil, err
			}

			x, y := entry.X, entry.Y
			if entry.Spread > 0 {
				x += rng.IntN(2*entry.Spread+1) - entry.Spread
				y += rng.IntN(2*entry.Spread+1) - entry.Spread
			}

			if err := world.AddObject(a, clamp(x, world.Width()), clamp(y, world.Height())); err != nil {
				return nil, err
			}
		}
	}

	return world, nil
}

func clamp(v, n int) int {
	return max(0, min(v, n-1))
}
