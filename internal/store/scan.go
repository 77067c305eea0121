package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/inkwell-ai/inkwell/internal/storage"
	"github.com/inkwell-ai/inkwell/pkg/types"
)

// scanInto unmarshals every record at a storage path into out, in key order.
func scanInto[T any](ctx context.Context, s *storage.Storage, path []string, out *[]*T) error {
	return s.Scan(ctx, path, func(key string, data json.RawMessage) error {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*out = append(*out, &v)
		return nil
	})
}

func sortChapters(chapters []*types.Chapter) {
	sort.Slice(chapters, func(i, j int) bool {
		if chapters[i].Number != chapters[j].Number {
			return chapters[i].Number < chapters[j].Number
		}
		return chapters[i].ID < chapters[j].ID
	})
}
