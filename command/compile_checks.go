package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[AcceptTransactionMessage] = (*AcceptTransactionCommand)(nil)
	_ gocmd.Commander[SettleTransactionMessage] = (*SettleTransactionCommand)(nil)
)
