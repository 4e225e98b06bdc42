// Package taxonomy seeds the DFG and squad entities used to scope ingestion.
package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rhoci/rhoci/internal/models"
)

// Store persists squads.
type Store interface {
	InsertSquadIfAbsent(ctx context.Context, squad models.Squad) (bool, error)
}

// Builtin returns the default DFG set.
func Builtin() []models.DFG {
	return []models.DFG{
		{Name: "Compute", Squads: []models.Squad{
			{Name: "Compute-Virt", Components: []string{"nova", "libvirt", "qemu"}},
			{Name: "Compute-Placement", Components: []string{"placement"}},
		}},
		{Name: "Networking", Squads: []models.Squad{
			{Name: "Networking-OVN", Components: []string{"neutron", "ovn", "networking-ovn"}},
			{Name: "Networking-Octavia", Components: []string{"octavia"}},
		}},
		{Name: "Storage", Squads: []models.Squad{
			{Name: "Storage-Cinder", Components: []string{"cinder"}},
			{Name: "Storage-Glance", Components: []string{"glance"}},
			{Name: "Storage-Manila", Components: []string{"manila"}},
		}},
		{Name: "DF", Squads: []models.Squad{
			{Name: "DF-Deployment", Components: []string{"tripleo", "director", "ironic"}},
		}},
	}
}

type fileFormat struct {
	DFGs []models.DFG `yaml:"dfgs"`
}

// LoadFile reads a YAML file with a top-level dfgs list.
func LoadFile(path string) ([]models.DFG, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read squads: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse squads: %w", err)
	}
	return f.DFGs, nil
}

// Squads flattens DFGs into squads, stamping each squad with its DFG name.
func Squads(dfgs []models.DFG) []models.Squad {
	var out []models.Squad
	for _, dfg := range dfgs {
		for _, squad := range dfg.Squads {
			squad.DFG = dfg.Name
			squad.Components = append([]string(nil), squad.Components...)
			out = append(out, squad)
		}
	}
	return out
}

// Seed inserts every squad that is not stored yet and returns how many were new.
func Seed(ctx context.Context, logger *slog.Logger, store Store, dfgs []models.DFG) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	created := 0
	for _, squad := range Squads(dfgs) {
		if squad.Name == "" {
			logger.Warn("skipping squad without a name", slog.String("dfg", squad.DFG))
			continue
		}
		inserted, err := store.InsertSquadIfAbsent(ctx, squad)
		if err != nil {
			return created, fmt.Errorf("seed squad %s: %w", squad.Name, err)
		}
		if inserted {
			created++
			logger.Debug("seeded squad", slog.String("squad", squad.Name), slog.String("dfg", squad.DFG))
		}
	}
	return created, nil
}
