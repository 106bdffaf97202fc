/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import "github.com/friendsincode/powerdown/internal/models"

var validTransitions = map[models.ScheduleState][]models.ScheduleState{
	models.ScheduleStateIdle: {
		models.ScheduleStateAwaitingConfirmation,
		models.ScheduleStateArmed,
	},
	models.ScheduleStateAwaitingConfirmation: {
		models.ScheduleStateArmed,
		models.ScheduleStateIdle,
		models.ScheduleStateCancelled,
	},
	models.ScheduleStateArmed: {
		models.ScheduleStateFiring,
		models.ScheduleStateCancelled,
	},
	models.ScheduleStateFiring: {
		models.ScheduleStateCompleted,
		models.ScheduleStateFailed,
	},
	models.ScheduleStateCancelled: {
		models.ScheduleStateIdle,
	},
	models.ScheduleStateCompleted: {
		models.ScheduleStateIdle,
	},
	models.ScheduleStateFailed: {
		models.ScheduleStateIdle,
	},
}

// isValidTransition checks if a state transition is allowed.
func isValidTransition(from, to models.ScheduleState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
