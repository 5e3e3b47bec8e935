package nanomsg

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"
	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	_ "go.nanomsg.org/mangos/v3/transport/inproc"
	_ "go.nanomsg.org/mangos/v3/transport/tcp"
)

const publishTimeout = 5 * time.Second

// Publisher sends byte messages to PUB socket. Nil publisher discards everything
type Publisher struct {
	chIn      chan []byte
	sock      mangos.Socket
	url       string
	log       *logging.Logger
	closeOnce sync.Once
	done      chan struct{}
}

func (p *Publisher) errorf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Errorf(format, args...)
	}
}

func (p *Publisher) infof(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Infof(format, args...)
	}
}

// NewPublisher listens on all interfaces on the port
func NewPublisher(port int, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	return NewPublisherURL(fmt.Sprintf("tcp://:%v", port), bufflen, localLog)
}

func NewPublisherURL(url string, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	ret := &Publisher{
		url:  url,
		log:  localLog,
		chIn: make(chan []byte, bufflen),
		done: make(chan struct{}),
	}
	var err error
	if ret.sock, err = pub.NewSocket(); err != nil {
		return nil, fmt.Errorf("can't get new pub socket: %v", err)
	}
	if err = ret.sock.Listen(ret.url); err != nil {
		_ = ret.sock.Close()
		return nil, fmt.Errorf("can't listen new pub socket on %v: %v", ret.url, err)
	}
	ret.infof("Publisher: PUB socket listening on %v", ret.url)
	go func() {
		ret.loop()
		_ = ret.sock.Close()
		close(ret.done)
	}()
	return ret, nil
}

func (p *Publisher) loop() {
	for data := range p.chIn {
		if err := p.sock.Send(data); err != nil {
			p.errorf("Nanomsg publisher of %v: %v", p.url, err)
		}
	}
}

func (p *Publisher) PublishData(data []byte) error {
	if p == nil {
		return nil
	}
	select {
	case p.chIn <- data:
	case <-time.After(publishTimeout):
		return fmt.Errorf("timeout %v on sending to publish channel at %v", publishTimeout, p.url)
	}
	return nil
}

func (p *Publisher) PublishAsJSON(obj interface{}) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		p.errorf("Publisher: marshal error %v", err)
		return err
	}
	return p.PublishData(data)
}

// Close sends what is buffered and closes the socket. Publishing after Close panics
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.chIn)
	})
	<-p.done
}
