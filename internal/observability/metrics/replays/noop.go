package replaymetrics

import (
	"context"
	"time"
)

type noop struct{}

// NewNoop returns metrics that record nothing.
func NewNoop() ReplayMetrics { return noop{} }

func (noop) RecordOperationAttempt(context.Context, string, string)                 {}
func (noop) RecordOperationSuccess(context.Context, string, string)                 {}
func (noop) RecordOperationFailure(context.Context, string, string)                 {}
func (noop) RecordOperationDuration(context.Context, string, string, time.Duration) {}
func (noop) RecordAPIRequest(context.Context, string, int, time.Duration)           {}
func (noop) RecordCandidate(context.Context, string)                                {}
func (noop) RecordDroppedParticipant(context.Context)                               {}
func (noop) RecordRunOutcome(context.Context, string)                               {}
func (noop) RecordQueueDepth(context.Context, int)                                  {}
func (noop) RecordSeriesPublished(context.Context, string)                          {}
