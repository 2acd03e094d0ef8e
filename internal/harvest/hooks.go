// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package harvest

import "context"

// Extension hooks let source-specific harvesters adjust records at fixed
// lifecycle boundaries. A handler registers once and implements only the
// methods it cares about; unimplemented hooks are no-ops.

type BeforeModifyHook interface {
	BeforeModifyPackage(ctx context.Context, d *Dataset) error
}

type ModifyPackageHook interface {
	ModifyPackage(ctx context.Context, d *Dataset) error
}

type BeforeCreateHook interface {
	BeforeCreate(ctx context.Context, d *Dataset) error
}

type AfterCreateHook interface {
	AfterCreate(ctx context.Context, packageID string, d *Dataset) error
}

type BeforeUpdateHook interface {
	BeforeUpdate(ctx context.Context, d *Dataset) error
}

type AfterUpdateHook interface {
	AfterUpdate(ctx context.Context, packageID string, d *Dataset) error
}

// HookSet dispatches to an explicit ordered list of handlers. The first
// handler error aborts processing of the record at hand, never the batch.
type HookSet struct {
	handlers []any
}

// NewHookSet registers handlers in invocation order.
func NewHookSet(handlers ...any) *HookSet {
	return &HookSet{handlers: handlers}
}

func (h *HookSet) BeforeModifyPackage(ctx context.Context, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(BeforeModifyHook); ok {
			if err := hook.BeforeModifyPackage(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HookSet) ModifyPackage(ctx context.Context, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(ModifyPackageHook); ok {
			if err := hook.ModifyPackage(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HookSet) BeforeCreate(ctx context.Context, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(BeforeCreateHook); ok {
			if err := hook.BeforeCreate(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HookSet) AfterCreate(ctx context.Context, packageID string, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(AfterCreateHook); ok {
			if err := hook.AfterCreate(ctx, packageID, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HookSet) BeforeUpdate(ctx context.Context, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(BeforeUpdateHook); ok {
			if err := hook.BeforeUpdate(ctx, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *HookSet) AfterUpdate(ctx context.Context, packageID string, d *Dataset) error {
	for _, handler := range h.handlers {
		if hook, ok := handler.(AfterUpdateHook); ok {
			if err := hook.AfterUpdate(ctx, packageID, d); err != nil {
				return err
			}
		}
	}
	return nil
}
