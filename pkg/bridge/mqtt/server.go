package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/repl"
)

// Topics relative to a jig.
const (
	TopicMeta   = "meta"
	TopicExec   = "exec"
	TopicResult = "result"
)

// Meta describes a served jig. It is published retained, so late
// subscribers discover the jig; the broker clears it when the server leaves.
type Meta struct {
	ID        string `json:"id"`
	Transport string `json:"transport,omitempty"`
	Host      string `json:"host,omitempty"`
	Firmware  string `json:"firmware,omitempty"`
}

func jigTopic(jigID, name string) string {
	return jigID + "/" + name
}

// parseMeta extracts the meta of a jig from a message on <jig>/meta. Empty
// payloads are the leftovers of jigs that went away.
func parseMeta(topic string, payload []byte) (*Meta, bool) {
	items := strings.Split(topic, "/")
	if len(items) != 2 || items[1] != TopicMeta || len(payload) == 0 {
		return nil, false
	}
	var meta Meta
	if err := json.Unmarshal(payload, &meta); err != nil {
		glog.Warningf("ignoring meta of %s: %v", items[0], err)
		return nil, false
	}
	meta.ID = items[0]
	return &meta, true
}

// Server exposes a local session to remote clients. Requests are executed
// one at a time: the session is not safe for concurrent use.
type Server struct {
	Queue    *Queue
	Meta     Meta
	Executor repl.TextExecutor

	lock sync.Mutex
}

// NewServer creates a Server for the jig described by meta.
func NewServer(brokerURL string, meta Meta, ex repl.TextExecutor) (*Server, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+jigTopic(meta.ID, TopicMeta), nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("halspa:" + meta.ID)
	}
	s := &Server{
		Queue:    NewQueue(opts, topicPrefix),
		Meta:     meta,
		Executor: ex,
	}
	s.Queue.OnConnect = func(*Queue) { s.publishMeta() }
	return s, nil
}

// Run implements framework.Runnable.
func (s *Server) Run(ctx context.Context) error {
	sub := s.Queue.Sub(jigTopic(s.Meta.ID, TopicExec), s.onExec)
	defer sub.Close()
	if err := s.Queue.Connect(); err != nil {
		return err
	}
	glog.Infof("serving jig %s", s.Meta.ID)
	<-ctx.Done()
	if err := Wait(s.Queue.PubWith(jigTopic(s.Meta.ID, TopicMeta), nil, 1, true), DefaultTokenTimeout); err != nil {
		glog.Warningf("clearing meta: %v", err)
	}
	return s.Queue.Close()
}

func (s *Server) publishMeta() {
	payload, err := json.Marshal(&s.Meta)
	if err != nil {
		glog.Errorf("encode meta: %v", err)
		return
	}
	s.Queue.PubWith(jigTopic(s.Meta.ID, TopicMeta), payload, 1, true)
}

func (s *Server) onExec(topic string, payload []byte) {
	go func() {
		reply, err := s.handle(payload)
		if err != nil {
			glog.Errorf("exec request on %s: %v", topic, err)
			return
		}
		s.Queue.PubWith(jigTopic(s.Meta.ID, TopicResult), reply, 1, false)
	}()
}

// handle runs one encoded request and returns the encoded reply.
func (s *Server) handle(payload []byte) ([]byte, error) {
	req, err := DecodeRequest(payload)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	out, err := s.Executor.ExecuteTimeout(req.Code, req.Timeout)
	s.lock.Unlock()
	if err != nil {
		glog.V(2).Infof("request %s failed: %v", req.ID, err)
	}
	return EncodeReply(&Reply{ID: req.ID, Output: out, Error: NewErrorInfo(err)})
}
