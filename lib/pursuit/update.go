package pursuit

// defines pursuit update's structure.
// It is published as JSON

import (
	"time"

	. "github.com/iotaledger/iota.go/trinary"
)

type State string

const (
	StateConfirmed    State = "confirmed"
	StateDisqualified State = "disqualified"
	StateTimedOut     State = "timeout"
	StateCancelled    State = "cancelled"
)

type UpdateType string

const (
	UPD_START        UpdateType = "start"
	UPD_PROMOTE      UpdateType = "promote"
	UPD_REATTACH     UpdateType = "reattach"
	UPD_NO_ACTION    UpdateType = "no action"
	UPD_CONFIRM      UpdateType = "confirm"
	UPD_TIMEOUT      UpdateType = "timeout"
	UPD_DISQUALIFIED UpdateType = "disqualified"
	UPD_CANCELLED    UpdateType = "cancelled"
)

type Update struct {
	UpdType       UpdateType `json:"updtype"`  // update type
	Bundle        Hash       `json:"bundle"`   // bundle hash
	TxHash        Hash       `json:"tx"`       // transaction which started the pursuit
	Value         int64      `json:"value"`    // value of the transfer, iotas
	StartTs       int64      `json:"start"`    // unix time miliseconds when pursuit started
	UpdateTs      int64      `json:"ts"`       // unix time miliseconds when update was created
	Attempt       int        `json:"attempt"`  // attempt counter at the moment of update
	Round         int        `json:"round"`    // number of rounds so far
	Promotions    int        `json:"numpromo"` // total promotions so far
	Reattachments int        `json:"numreatt"` // total reattachments so far
	Tails         Hashes     `json:"tails"`    // tails acted upon in this round
	Reason        string     `json:"reason"`   // disqualification reason, if any
	ElapsedSec    int64      `json:"elapsed"`  // seconds since start
}

type UpdateHandler func(*Update)

// Outcome is the final result of one pursuit
type Outcome struct {
	State         State
	BundleHash    Hash
	TxHash        Hash
	Value         int64
	Started       time.Time
	Elapsed       time.Duration
	Rounds        int
	Promotions    int
	Reattachments int
	Reason        string
}

func (o *Outcome) updateType() UpdateType {
	switch o.State {
	case StateConfirmed:
		return UPD_CONFIRM
	case StateDisqualified:
		return UPD_DISQUALIFIED
	case StateTimedOut:
		return UPD_TIMEOUT
	}
	return UPD_CANCELLED
}
