package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/Phavyajai/webhook-transaction-processor/core"
)

var _ gocmd.Querier[GetTransactionMessage, core.Transaction] = (*GetTransactionQuery)(nil)
