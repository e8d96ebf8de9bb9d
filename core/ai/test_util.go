package ai

import (
	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

// NewServiceMock returns a Service that sends its usage notifications synchronously.
func NewServiceMock(assistant Assistant, gate *policy.Gate, userSvc user.Service, logger core.Logger) Service {
	return &service{
		assistant: assistant,
		gate:      gate,
		userSvc:   userSvc,
		logger:    logger,
		notify:    func(usr user.User, report usage.Report) { userSvc.NotifyUsageLimitReached(usr, report) },
	}
}
