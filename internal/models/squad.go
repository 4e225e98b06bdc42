package models

// Squad is a team owning a set of components inside a DFG.
type Squad struct {
	Name       string   `yaml:"name"`
	DFG        string   `yaml:"-"`
	Components []string `yaml:"components"`
}

// DFG is a delivery flow group grouping squads.
type DFG struct {
	Name   string  `yaml:"name"`
	Squads []Squad `yaml:"squads"`
}
