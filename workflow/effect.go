package workflow

import "leaveflow/notify"

// Effect is a side effect declared by a committed transition, to be applied
// by the caller. Implemented by BalanceChange and Notify.
type Effect interface {
	effect()
}

// BalanceChange charges Days against the owner's Category balance. RequestID
// is the idempotence key.
type BalanceChange struct {
	RequestID uint
	OwnerID   uint
	Category  string
	Days      float64
}

type Notify struct {
	notify.Notification
}

func (BalanceChange) effect() {}
func (Notify) effect()        {}
