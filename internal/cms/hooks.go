// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cms

import (
	"context"
	"errors"
	"fmt"

	"cmskit/internal/models"
)

// EventType names the operation that produced an Event.
type EventType string

const (
	EventCreate               EventType = "create"
	EventUpdate               EventType = "update"
	EventPublish              EventType = "publish"
	EventTrash                EventType = "trash"
	EventRestore              EventType = "restore"
	EventDelete               EventType = "delete"
	EventHistoryRestore       EventType = "history.restore"
	EventLock                 EventType = "lock"
	EventUnlock               EventType = "unlock"
	EventCollaboratorsReplace EventType = "collaborators.replace"
)

// Event describes a committed write. Row is the state after the write; for
// deletes it is the row that was removed. Previous is the state before.
type Event struct {
	Type         EventType
	UID          string
	Row          *models.Head
	Previous     *models.Head
	ActorUserUID string
}

// Hook runs after a write has been persisted. Its error is logged and never
// changes the result of the write.
type Hook func(ctx context.Context, ev Event) error

// Hooks fans an event out to every hook. Each hook runs even if an earlier
// one failed or panicked; the failures are joined.
func Hooks(hooks ...Hook) Hook {
	return func(ctx context.Context, ev Event) error {
		var errs []error
		for i, h := range hooks {
			if h == nil {
				continue
			}
			if res := attempt(func() (struct{}, error) { return struct{}{}, h(ctx, ev) }); !res.OK() {
				errs = append(errs, fmt.Errorf("hook %d: %w", i, res.Err))
			}
		}
		return errors.Join(errs...)
	}
}

// notify invokes the after-write hook without letting it affect the caller.
func (s *Service) notify(ctx context.Context, ev Event) {
	if s.onAfterWrite == nil {
		return
	}
	res := attempt(func() (struct{}, error) { return struct{}{}, s.onAfterWrite(ctx, ev) })
	if !res.OK() {
		s.logger.Warn("after-write hook failed", "uid", ev.UID, "op", ev.Type, "error", res.Err)
	}
}
