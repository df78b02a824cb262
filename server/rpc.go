package server

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nodelog/slogd/data"
	natsc "github.com/nodelog/slogd/nats"
)

// how long a receive blocks before the stop channel is checked
const rpcPollInterval = 500 * time.Millisecond

// RPC serves level requests for one instance. It subscribes, then handles
// requests one at a time. A subscribe failure is retried after a fixed delay
// and a receive error drops the subscription and starts over.
type RPC struct {
	nc       *nats.Conn
	subject  string
	svc      *Service
	retry    time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewRPC returns a RPC loop serving svc on the subject for devID
func NewRPC(nc *nats.Conn, devID int32, svc *Service, retry time.Duration) *RPC {
	if retry <= 0 {
		retry = time.Second
	}
	return &RPC{
		nc:      nc,
		subject: natsc.SubjectLevel(devID),
		svc:     svc,
		retry:   retry,
		stop:    make(chan struct{}),
	}
}

// Run until stopped
func (r *RPC) Run() error {
	for {
		sub, err := r.nc.SubscribeSync(r.subject)
		if err != nil {
			log.Printf("Error subscribing to %v: %v", r.subject, err)
			if !natsc.Sleep(r.stop, r.retry) {
				return nil
			}
			continue
		}

		err = r.serve(sub)
		if uErr := sub.Unsubscribe(); uErr != nil && !errors.Is(uErr, nats.ErrConnectionClosed) {
			log.Println("Error unsubscribing level requests: ", uErr)
		}

		if err == nil {
			return nil
		}

		log.Println("Level request receive error, resubscribing: ", err)
		if !natsc.Sleep(r.stop, r.retry) {
			return nil
		}
	}
}

// serve returns nil when stopped
func (r *RPC) serve(sub *nats.Subscription) error {
	for {
		select {
		case <-r.stop:
			return nil
		default:
		}

		m, err := sub.NextMsg(rpcPollInterval)
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		r.handle(m)
	}
}

func (r *RPC) handle(m *nats.Msg) {
	var resp data.LevelMsg

	req, err := data.DecodeLevelMsg(m.Data)
	if err != nil {
		log.Println("Error decoding level request: ", err)
		requestErrors.Inc()
		resp = data.LevelMsg{
			Type:    data.MsgTypeFeedback,
			DevID:   data.AllDevices,
			Payload: data.ReplyLevelError,
		}
	} else {
		resp = r.svc.Dispatch(req)
	}

	if m.Reply == "" {
		return
	}

	if err := m.Respond(encodeReply(resp)); err != nil {
		log.Println("Error replying to level request: ", err)
	}
}

// encodeReply encodes resp. A payload that does not fit the envelope is
// replaced with the string copy error.
func encodeReply(resp data.LevelMsg) []byte {
	out, err := resp.Encode()
	if err == nil {
		return out
	}

	err = fmt.Errorf("%w: %v", data.ErrStringCopy, err)
	log.Println("Error encoding level reply: ", err)
	requestErrors.Inc()

	resp.Payload = data.ReplyString(err, "")
	out, _ = resp.Encode()
	return out
}

// Stop the loop. It exits within one poll interval.
func (r *RPC) Stop(_ error) {
	r.stopOnce.Do(func() { close(r.stop) })
}
