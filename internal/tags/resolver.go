// Package tags maps free-form tag titles to stable org-scoped tag
// identifiers, creating identifiers for titles not seen before.
package tags

import (
	"context"
	"log"

	"conductor/api/internal/store"
	"conductor/api/internal/util"
)

const tagIDLength = 12

type Store interface {
	TagsByTitles(ctx context.Context, orgID string, titles []string) ([]store.Tag, error)
	InsertTags(ctx context.Context, tags []store.Tag) error
}

type Resolver struct {
	store Store
	orgID string
}

func NewResolver(s Store, orgID string) *Resolver {
	return &Resolver{store: s, orgID: orgID}
}

// Resolve returns one tag identifier per input title, in input order.
// Titles already known to the org reuse their stored identifier (exact,
// case-sensitive match); the rest get fresh identifiers written in a single
// bulk insert. A failed insert is logged but does not fail resolution, so
// a project save never breaks on tag bookkeeping.
func (r *Resolver) Resolve(ctx context.Context, titles []string) ([]string, error) {
	if len(titles) == 0 {
		return []string{}, nil
	}

	existing, err := r.store.TagsByTitles(ctx, r.orgID, titles)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]string, len(existing))
	for _, tag := range existing {
		byTitle[tag.Title] = tag.TagID
	}

	ids := make([]string, 0, len(titles))
	var created []store.Tag
	for _, title := range titles {
		if id, ok := byTitle[title]; ok {
			ids = append(ids, id)
			continue
		}
		id := util.NewBase62(tagIDLength)
		byTitle[title] = id
		ids = append(ids, id)
		created = append(created, store.Tag{TagID: id, OrgID: r.orgID, Title: title})
	}

	if len(created) > 0 {
		if err := r.store.InsertTags(ctx, created); err != nil {
			log.Printf("tags: bulk insert failed: %v", err)
		}
	}
	return ids, nil
}
