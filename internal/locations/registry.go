package locations

import (
	"errors"
	"fmt"
	"strings"

	"camtrap/internal/config"
	"camtrap/internal/models"
)

var ErrNotFound = errors.New("location not found")

// Registry is the fixed set of monitoring locations loaded at startup.
type Registry struct {
	ordered []models.Location
	byID    map[int]models.Location
}

func NewRegistry(cfgs []config.LocationConfig) (*Registry, error) {
	r := &Registry{byID: make(map[int]models.Location, len(cfgs))}

	var errs []error
	for i, c := range cfgs {
		loc := models.Location{
			ID:          c.ID,
			Name:        strings.TrimSpace(c.Name),
			Coordinates: models.Coordinates{Lat: c.Lat, Lng: c.Lng},
			StoragePath: strings.TrimSpace(c.Path),
			Description: c.Description,
		}
		if err := validate(loc); err != nil {
			errs = append(errs, fmt.Errorf("locations[%d]: %w", i, err))
			continue
		}
		if _, dup := r.byID[loc.ID]; dup {
			errs = append(errs, fmt.Errorf("locations[%d]: duplicate id %d", i, loc.ID))
			continue
		}
		r.byID[loc.ID] = loc
		r.ordered = append(r.ordered, loc)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func validate(loc models.Location) error {
	switch {
	case loc.ID <= 0:
		return fmt.Errorf("id must be positive, got %d", loc.ID)
	case loc.Name == "":
		return errors.New("name is required")
	case !strings.HasPrefix(loc.StoragePath, "/"):
		return fmt.Errorf("storage path %q must be absolute", loc.StoragePath)
	case loc.Coordinates.Lat < -90 || loc.Coordinates.Lat > 90 || loc.Coordinates.Lng < -180 || loc.Coordinates.Lng > 180:
		return fmt.Errorf("coordinates %v out of range", loc.Coordinates)
	}
	return nil
}

// List returns the locations in configuration order.
func (r *Registry) List() []models.Location {
	out := make([]models.Location, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Get(id int) (models.Location, error) {
	loc, ok := r.byID[id]
	if !ok {
		return models.Location{}, ErrNotFound
	}
	return loc, nil
}
