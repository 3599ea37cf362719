package domain

import (
	"context"
	"fmt"
	"strings"

	"example.com/tracker/internal/observability"
)

// DeleteResult summarises a cascade delete.
type DeleteResult struct {
	Source          SourceType
	EntityID        string
	ChildrenDeleted int64
	Warnings        []error
}

type childMirror struct {
	source SourceType
	id     string
}

// Confirmer asks the user to approve a destructive action.
type Confirmer func(ctx context.Context, prompt string) (bool, error)

// CascadeDeleter removes an entity together with its children and mirror.
type CascadeDeleter struct {
	entities EntityRepository
	calendar *CalendarService
	settings
}

// NewCascadeDeleter constructs a CascadeDeleter.
func NewCascadeDeleter(entities EntityRepository, calendar *CalendarService, opts ...Option) *CascadeDeleter {
	return &CascadeDeleter{entities: entities, calendar: calendar, settings: newSettings("cascade", opts)}
}

// DeleteWithChildren deletes children in registry order, then the parent,
// then its calendar mirror and the mirrors of mirrored children. A child
// failure aborts before the parent is touched; a mirror failure is reported
// as a warning.
func (d *CascadeDeleter) DeleteWithChildren(ctx context.Context, source SourceType, entityID, userID string) (DeleteResult, error) {
	desc, err := Resolve(source)
	if err != nil {
		return DeleteResult{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return DeleteResult{}, invalid("userId", "is required")
	}
	if strings.TrimSpace(entityID) == "" {
		return DeleteResult{}, invalid("id", "is required")
	}

	// Children are keyed by parent id only, so ownership is checked first.
	exists, err := d.entities.EntityExists(ctx, desc, userID, entityID)
	if err != nil {
		return DeleteResult{}, err
	}
	if !exists {
		return DeleteResult{}, ErrEntityNotFound
	}

	result := DeleteResult{Source: source, EntityID: entityID}
	var mirrors []childMirror
	for _, rel := range desc.Children {
		if rel.Mirrored != "" {
			ids, err := d.entities.ChildIDs(ctx, rel, entityID)
			if err != nil {
				observability.RecordCascadeDelete(string(source), "child_failed")
				return DeleteResult{}, fmt.Errorf("list %s of %s %s: %w", rel.Table, source, entityID, err)
			}
			for _, id := range ids {
				mirrors = append(mirrors, childMirror{source: rel.Mirrored, id: id})
			}
		}
		removed, err := d.entities.DeleteChildren(ctx, rel, entityID)
		if err != nil {
			observability.RecordCascadeDelete(string(source), "child_failed")
			return DeleteResult{}, fmt.Errorf("delete %s of %s %s: %w", rel.Table, source, entityID, err)
		}
		result.ChildrenDeleted += removed
	}

	deleted, err := d.entities.DeleteEntity(ctx, desc, userID, entityID)
	if err != nil {
		observability.RecordCascadeDelete(string(source), "parent_failed")
		return DeleteResult{}, fmt.Errorf("delete %s %s: %w", source, entityID, err)
	}
	if !deleted {
		return DeleteResult{}, ErrEntityNotFound
	}

	if err := d.calendar.DeleteForEntity(ctx, userID, source, entityID); err != nil {
		result.Warnings = append(result.Warnings, err)
	}
	for _, m := range mirrors {
		if err := d.calendar.DeleteForEntity(ctx, userID, m.source, m.id); err != nil {
			result.Warnings = append(result.Warnings, err)
		}
	}
	observability.RecordCascadeDelete(string(source), "deleted")
	return result, nil
}

// DeleteConfirmed runs DeleteWithChildren once confirm approves it.
func (d *CascadeDeleter) DeleteConfirmed(ctx context.Context, confirm Confirmer, source SourceType, entityID, userID string) (DeleteResult, error) {
	desc, err := Resolve(source)
	if err != nil {
		return DeleteResult{}, err
	}
	if confirm != nil {
		ok, err := confirm(ctx, fmt.Sprintf("Delete this %s and everything attached to it?", strings.ToLower(desc.Label)))
		if err != nil {
			return DeleteResult{}, err
		}
		if !ok {
			return DeleteResult{}, ErrDeleteDeclined
		}
	}
	return d.DeleteWithChildren(ctx, source, entityID, userID)
}
