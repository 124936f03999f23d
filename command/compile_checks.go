package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

var (
	_ gocmd.Commander[DispatchMessage]           = (*DispatchCommand)(nil)
	_ gocmd.Commander[RecoverAndRetryMessage]    = (*RecoverAndRetryCommand)(nil)
	_ gocmd.Commander[RefreshIntegrationMessage] = (*RefreshIntegrationCommand)(nil)
	_ MutatingService                            = (*core.Service)(nil)
)
