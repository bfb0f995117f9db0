package sync

import (
	"context"
	"errors"

	"github.com/cultivarhq/trace-sync-server/internal/store"
)

// LocationSource says which rung of the fallback chain produced a location.
type LocationSource string

const (
	// LocationSourceManual is an explicit override on the request.
	LocationSourceManual LocationSource = "manual_override"

	// LocationSourceRoom is the external location configured on the batch's
	// assigned room.
	LocationSourceRoom LocationSource = "room"

	// LocationSourceSiteDefault is the site's configured default external
	// location.
	LocationSourceSiteDefault LocationSource = "site_default"
)

// LocationResolution is the outcome of the location fallback chain. When
// RequiresManualInput is set no location name is returned and the caller must
// prompt a human or abort the push; the resolver never invents a location.
type LocationResolution struct {
	LocationName        string
	Source              LocationSource
	RequiresManualInput bool
}

// resolveLocation maps a batch to an external facility location name.
// Fallback chain, first match wins: manual override on the request, the
// batch's assigned room (if it carries an external location name), the
// site's default external location.
func (e *Engine) resolveLocation(
	ctx context.Context,
	batch *store.Batch,
	site *store.Site,
	manualOverride string,
) (LocationResolution, error) {
	if manualOverride != "" {
		return LocationResolution{LocationName: manualOverride, Source: LocationSourceManual}, nil
	}

	if batch.RoomID != nil {
		room, err := e.store.Rooms().Get(ctx, *batch.RoomID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return LocationResolution{}, err
		}
		if room != nil && room.ExternalLocationName != "" {
			return LocationResolution{LocationName: room.ExternalLocationName, Source: LocationSourceRoom}, nil
		}
	}

	if site.DefaultLocationName != "" {
		return LocationResolution{LocationName: site.DefaultLocationName, Source: LocationSourceSiteDefault}, nil
	}

	return LocationResolution{RequiresManualInput: true}, nil
}
