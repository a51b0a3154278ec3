package core

import (
	"github.com/google/uuid"

	"pkt.systems/quilix/schema"
)

func newTabID() schema.TabID {
	return schema.TabID(uuid.NewString())
}

func newTransferToken() schema.TransferToken {
	return schema.TransferToken(uuid.NewString())
}
