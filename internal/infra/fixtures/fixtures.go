// Package fixtures seeds the catalog from a YAML file through the command bus.
package fixtures

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"activityhub/internal/app/commands"
	availabilityapp "activityhub/internal/app/handlers/availability"
	catalogapp "activityhub/internal/app/handlers/catalog"
	"activityhub/internal/domain/lifecycle"
	"activityhub/internal/domain/shared/apperr"
)

type File struct {
	Vendors   []Vendor   `yaml:"vendors"`
	Resources []Resource `yaml:"resources"`
	Windows   []Window   `yaml:"windows"`
}

type Vendor struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	OwnerID string `yaml:"owner_id"`
	Approve bool   `yaml:"approve"`
}

type Resource struct {
	ID              string    `yaml:"id"`
	VendorID        string    `yaml:"vendor_id"`
	Title           string    `yaml:"title"`
	Kind            string    `yaml:"kind"`
	DurationMinutes int       `yaml:"duration_minutes"`
	MaxParticipants int       `yaml:"max_participants"`
	TotalUnits      *int      `yaml:"total_units"`
	ValidFrom       time.Time `yaml:"valid_from"`
	ValidTo         time.Time `yaml:"valid_to"`
	Total           int       `yaml:"total"`
	BasePriceCents  int64     `yaml:"base_price_cents"`
	Publish         bool      `yaml:"publish"`
	Approve         bool      `yaml:"approve"`
}

type Window struct {
	ID            string    `yaml:"id"`
	ResourceID    string    `yaml:"resource_id"`
	Start         time.Time `yaml:"start"`
	End           time.Time `yaml:"end"`
	AvailableFrom time.Time `yaml:"available_from"`
	ValidFrom     time.Time `yaml:"valid_from"`
	ValidTo       time.Time `yaml:"valid_to"`
	Capacity      *int      `yaml:"capacity"`
}

func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fixtures: read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("fixtures: parse: %w", err)
	}
	return &f, nil
}

// Summary counts what Apply created; entries that already existed are skipped.
type Summary struct {
	Vendors   int
	Resources int
	Windows   int
	Skipped   int
}

// Apply dispatches the fixture entries in dependency order. An entry whose id
// already exists is skipped, so reseeding a persistent store is harmless.
func Apply(ctx context.Context, bus commands.Bus, f *File, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var sum Summary
	for _, v := range f.Vendors {
		created, err := seed(ctx, bus, catalogapp.RegisterVendorCommand{VendorID: v.ID, Name: v.Name, OwnerID: v.OwnerID, Submit: v.Approve}, &sum)
		if err != nil {
			return sum, fmt.Errorf("fixtures: vendor %s: %w", v.ID, err)
		}
		if !created {
			continue
		}
		sum.Vendors++
		if !v.Approve {
			continue
		}
		for _, to := range []lifecycle.Status{lifecycle.StatusPendingApproval, lifecycle.StatusApproved} {
			if _, err := bus.Dispatch(ctx, catalogapp.ReviewVendorCommand{VendorID: v.ID, Status: string(to)}); err != nil {
				return sum, fmt.Errorf("fixtures: approve vendor %s: %w", v.ID, err)
			}
		}
	}
	for _, r := range f.Resources {
		created, err := seed(ctx, bus, catalogapp.CreateResourceCommand{
			ResourceID:      r.ID,
			VendorID:        r.VendorID,
			Title:           r.Title,
			Kind:            r.Kind,
			DurationMinutes: r.DurationMinutes,
			MaxParticipants: r.MaxParticipants,
			TotalUnits:      r.TotalUnits,
			ValidFrom:       r.ValidFrom,
			ValidTo:         r.ValidTo,
			Total:           r.Total,
			BasePriceCents:  r.BasePriceCents,
		}, &sum)
		if err != nil {
			return sum, fmt.Errorf("fixtures: resource %s: %w", r.ID, err)
		}
		if !created {
			continue
		}
		sum.Resources++
		var follow []commands.Command
		if r.Approve {
			follow = append(follow,
				catalogapp.ReviewResourceCommand{ResourceID: r.ID, Status: string(lifecycle.StatusPendingApproval)},
				catalogapp.ReviewResourceCommand{ResourceID: r.ID, Status: string(lifecycle.StatusApproved)})
		}
		if r.Publish {
			follow = append(follow, catalogapp.SetResourceStatusCommand{ResourceID: r.ID, Status: string(lifecycle.StatusPublished)})
		}
		for _, cmd := range follow {
			if _, err := bus.Dispatch(ctx, cmd); err != nil {
				return sum, fmt.Errorf("fixtures: resource %s: %w", r.ID, err)
			}
		}
	}
	for _, w := range f.Windows {
		created, err := seed(ctx, bus, availabilityapp.CreateWindowCommand{
			WindowID:      w.ID,
			ResourceID:    w.ResourceID,
			Start:         w.Start,
			End:           w.End,
			AvailableFrom: w.AvailableFrom,
			ValidFrom:     w.ValidFrom,
			ValidTo:       w.ValidTo,
			Capacity:      w.Capacity,
		}, &sum)
		if err != nil {
			return sum, fmt.Errorf("fixtures: window %s: %w", w.ID, err)
		}
		if created {
			sum.Windows++
		}
	}
	logger.InfoContext(ctx, "fixtures applied",
		slog.Int("vendors", sum.Vendors),
		slog.Int("resources", sum.Resources),
		slog.Int("windows", sum.Windows),
		slog.Int("skipped", sum.Skipped))
	return sum, nil
}

func seed(ctx context.Context, bus commands.Bus, cmd commands.Command, sum *Summary) (bool, error) {
	_, err := bus.Dispatch(ctx, cmd)
	if errors.Is(err, apperr.ErrConflict) {
		sum.Skipped++
		return false, nil
	}
	return err == nil, err
}
