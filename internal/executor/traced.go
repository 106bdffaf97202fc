/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package executor

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/powerdown/internal/telemetry"
)

type tracedExecutor struct {
	next   Executor
	dryRun bool
}

// Traced wraps next in a "shutdown.execute" span.
func Traced(next Executor, dryRun bool) Executor {
	return &tracedExecutor{next: next, dryRun: dryRun}
}

func (t *tracedExecutor) Execute(ctx context.Context) error {
	ctx, span := telemetry.StartSpan(ctx, "powerdown/executor", "shutdown.execute")
	defer span.End()

	span.SetAttributes(attribute.Bool("powerdown.dry_run", t.dryRun))

	err := t.next.Execute(ctx)
	telemetry.RecordError(span, err)
	return err
}
