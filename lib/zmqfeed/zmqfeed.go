// Package zmqfeed reads transactions pushed by the IRI ZMQ stream
package zmqfeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/iotaledger/iota.go/transaction"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

const (
	topicTx             = "tx"
	openSockTimeoutSec  = 5
	defaultReconnectSec = 5
)

type TxHandler func(tx *transaction.Transaction)

type Feed struct {
	uri       string
	log       *logging.Logger
	handler   TxHandler
	received  uint64
	malformed uint64
}

func NewFeed(uri string, handler TxHandler, log *logging.Logger) *Feed {
	return &Feed{
		uri:     uri,
		log:     log,
		handler: handler,
	}
}

// Counts returns number of tx messages received and number of malformed ones among them
func (f *Feed) Counts() (uint64, uint64) {
	return atomic.LoadUint64(&f.received), atomic.LoadUint64(&f.malformed)
}

func (f *Feed) openSocket(ctx context.Context) (zmq4.Socket, error) {
	f.debugf("ZMQFEED: opening ZMQ socket for %v", f.uri)
	socket := zmq4.NewSub(ctx, zmq4.WithDialerTimeout(openSockTimeoutSec*time.Second))
	if err := socket.Dial(f.uri); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "can't open ZMQ socket for %v", f.uri)
	}
	if err := socket.SetOption(zmq4.OptionSubscribe, topicTx); err != nil {
		_ = socket.Close()
		return nil, errors.Wrapf(err, "can't subscribe to '%v' at %v", topicTx, f.uri)
	}
	return socket, nil
}

// Run reads the socket until ctx is cancelled or the socket fails.
// Returns nil if ctx is cancelled
func (f *Feed) Run(ctx context.Context) error {
	socket, err := f.openSocket(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = socket.Close()
	}()
	f.infof("ZMQFEED: listening to %v", f.uri)
	for {
		msg, err := socket.Recv()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "reading ZMQ socket %v", f.uri)
		}
		if len(msg.Frames) > 0 {
			f.processMessage(msg.Frames[0])
		}
	}
}

// processMessage counts 'tx' messages and passes parsed ones to the handler. Other topics are ignored
func (f *Feed) processMessage(data []byte) {
	msgSplit := strings.Split(string(data), " ")
	if msgSplit[0] != topicTx {
		return
	}
	atomic.AddUint64(&f.received, 1)
	tx, err := ParseTxMessage(msgSplit)
	if err != nil {
		atomic.AddUint64(&f.malformed, 1)
		f.debugf("ZMQFEED: %v", err)
		return
	}
	if f.handler != nil {
		f.handler(tx)
	}
}

// RunWithReconnect repeats Run after a pause until ctx is cancelled
func (f *Feed) RunWithReconnect(ctx context.Context, pause time.Duration) {
	if pause <= 0 {
		pause = defaultReconnectSec * time.Second
	}
	for ctx.Err() == nil {
		if err := f.Run(ctx); err != nil {
			received, malformed := f.Counts()
			f.errorf("ZMQFEED: %v. Received %d tx messages, %d malformed. Reconnect in %v",
				err, received, malformed, pause)
		}
		select {
		case <-ctx.Done():
		case <-time.After(pause):
		}
	}
}

// ParseTxMessage parses split 'tx' message of IRI:
// tx <hash> <address> <value> <obsoleteTag> <timestamp> <currentIndex> <lastIndex> <bundle> ...
func ParseTxMessage(msgSplit []string) (*transaction.Transaction, error) {
	if len(msgSplit) < 9 || msgSplit[0] != topicTx {
		return nil, fmt.Errorf("unexpected 'tx' message: %v", strings.Join(msgSplit, " "))
	}
	value, err := strconv.ParseInt(msgSplit[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expected value, found '%v'", msgSplit[3])
	}
	ts, err := strconv.ParseUint(msgSplit[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expected timestamp, found '%v'", msgSplit[5])
	}
	currentIndex, err := strconv.ParseUint(msgSplit[6], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expected current index, found '%v'", msgSplit[6])
	}
	lastIndex, err := strconv.ParseUint(msgSplit[7], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expected last index, found '%v'", msgSplit[7])
	}
	if currentIndex > lastIndex {
		return nil, fmt.Errorf("current index %d > last index %d", currentIndex, lastIndex)
	}
	return &transaction.Transaction{
		Hash:         msgSplit[1],
		Address:      msgSplit[2],
		Value:        value,
		ObsoleteTag:  msgSplit[4],
		Timestamp:    ts,
		CurrentIndex: currentIndex,
		LastIndex:    lastIndex,
		Bundle:       msgSplit[8],
	}, nil
}

func (f *Feed) debugf(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Debugf(format, args...)
	}
}

func (f *Feed) infof(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Infof(format, args...)
	}
}

func (f *Feed) errorf(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Errorf(format, args...)
	}
}
