package mqtt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/halspa/halspa.go/pkg/repl"
)

// Defaults of the client side.
const (
	DefaultDiscoverTimeout = 500 * time.Millisecond
	DefaultReplyTimeout    = 15 * time.Second
)

// Connector finds and connects to jigs served over MQTT.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// Discover lists the jigs currently served, sorted by ID.
func (c *Connector) Discover(ctx context.Context) ([]*Meta, error) {
	q := NewQueue(c.options, c.topicPrefix)
	resCh := make(chan *Meta, 16)
	q.Sub("+/"+TopicMeta, func(topic string, payload []byte) {
		if meta, ok := parseMeta(topic, payload); ok {
			select {
			case resCh <- meta:
			case <-time.After(time.Second):
			}
		}
	})
	if err := q.Connect(); err != nil {
		return nil, err
	}
	defer q.Close()

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	found := make(map[string]*Meta)
	for {
		select {
		case meta := <-resCh:
			found[meta.ID] = meta
		case <-timeout:
			res := make([]*Meta, 0, len(found))
			for _, meta := range found {
				res = append(res, meta)
			}
			sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
			return res, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Connect returns a session executing on the jig with the given ID.
func (c *Connector) Connect(ctx context.Context, jigID string) (*RemoteSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := newRemoteSession(NewQueue(c.options, c.topicPrefix), jigID)
	if err := r.queue.Connect(); err != nil {
		r.Close()
		return nil, &repl.ConnectionError{Op: "broker", Err: err}
	}
	return r, nil
}

// RemoteSession executes on a jig served by a bridge Server. It offers the
// same contract as repl.Session and is safe for concurrent use.
type RemoteSession struct {
	JigID string
	// ReplyTimeout is how long a reply may take beyond the execution itself,
	// which is bounded by repl.ExecutionBound.
	ReplyTimeout time.Duration

	queue   *Queue
	sub     *Subscription
	publish func(topic string, payload []byte) error
	bound   func(timeout time.Duration) time.Duration

	lock    sync.Mutex
	waiting map[string]chan *Reply
}

var _ repl.Executor = (*RemoteSession)(nil)

func newRemoteSession(q *Queue, jigID string) *RemoteSession {
	r := &RemoteSession{
		JigID:        jigID,
		ReplyTimeout: DefaultReplyTimeout,
		bound:        repl.ExecutionBound,
		queue:        q,
		waiting:      make(map[string]chan *Reply),
	}
	r.publish = func(topic string, payload []byte) error {
		return Wait(q.PubWith(topic, payload, 1, false), DefaultTokenTimeout)
	}
	r.sub = q.Sub(jigTopic(jigID, TopicResult), r.onResult)
	return r
}

// Execute runs code on the jig.
func (r *RemoteSession) Execute(code string) (string, error) {
	return r.ExecuteTimeout(code, 0)
}

// ExecuteTimeout runs code on the jig with the read timeout overridden.
func (r *RemoteSession) ExecuteTimeout(code string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("%w: empty program text", repl.ErrArgument)
	}
	if timeout < 0 {
		return "", fmt.Errorf("%w: negative timeout %v", repl.ErrArgument, timeout)
	}
	req := &Request{ID: uuid.New().String(), Code: code, Timeout: timeout}
	payload, err := EncodeRequest(req)
	if err != nil {
		return "", err
	}
	ch := make(chan *Reply, 1)
	r.lock.Lock()
	r.waiting[req.ID] = ch
	r.lock.Unlock()
	defer func() {
		r.lock.Lock()
		delete(r.waiting, req.ID)
		r.lock.Unlock()
	}()

	glog.V(2).Infof("exec %s on %s", req.ID, r.JigID)
	if err = r.publish(jigTopic(r.JigID, TopicExec), payload); err != nil {
		return "", &repl.ConnectionError{Op: "publish", Err: err}
	}
	timer := time.NewTimer(r.replyWait(timeout))
	defer timer.Stop()
	select {
	case reply := <-ch:
		if err = reply.Error.Err(); err != nil {
			return "", err
		}
		return reply.Output, nil
	case <-timer.C:
		return "", &repl.TimeoutError{Stage: "bridge reply"}
	}
}

func (r *RemoteSession) replyWait(timeout time.Duration) time.Duration {
	return r.ReplyTimeout + r.bound(timeout)
}

// Call invokes a function on the jig and parses the literal it returns.
func (r *RemoteSession) Call(name string, args ...interface{}) (interface{}, error) {
	return repl.Call(r, name, args...)
}

// Close disconnects from the broker.
func (r *RemoteSession) Close() error {
	r.sub.Close()
	if r.queue.Client == nil {
		return nil
	}
	return r.queue.Close()
}

func (r *RemoteSession) onResult(topic string, payload []byte) {
	reply, err := DecodeReply(payload)
	if err != nil {
		glog.Warningf("ignoring result on %s: %v", topic, err)
		return
	}
	r.lock.Lock()
	ch := r.waiting[reply.ID]
	r.lock.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- reply:
	default:
	}
}
