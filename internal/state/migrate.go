package state

import (
	"context"
	"fmt"
	"sort"
)

// Copy moves every record from src into dst and returns how many were
// copied. Records are copied in remote-ID order so a failure message
// always points at a deterministic position. dst keeps records that src
// does not have; matching IDs are overwritten.
func Copy(ctx context.Context, src, dst Store) (int, error) {
	recs, err := src.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source store: %w", err)
	}

	ids := make([]string, 0, len(recs))
	for id := range recs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i, id := range ids {
		if err := dst.Put(ctx, id, recs[id]); err != nil {
			return i, fmt.Errorf("copy record %s: %w", id, err)
		}
	}
	return len(ids), nil
}
