package sh

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/halspa/halspa.go/pkg/bridge/mqtt"
	"github.com/halspa/halspa.go/pkg/env"
	"github.com/halspa/halspa.go/pkg/repl"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn
}

// Conn is the jig the shell talks to, local or bridged.
type Conn struct {
	Name     string
	Executor repl.Executor
	// Session is set for local connections only.
	Session *repl.Session

	close func() error
}

// Close releases the connection.
func (c *Conn) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&PortsCmd,
		&ConnectCmd,
		&RemoteCmd,
		&DiscoverCmd,
		&DisconnectCmd,
		&ResetCmd,
		&ExecCmd,
		&PasteCmd,
		&RunCmd,
		&CallCmd,
		&InfoCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(repl.ErrNotConnected)
			return
		}
		fn(c)
	}
}

// Executor returns the executor of the current connection.
func Executor(c *ishell.Context) repl.Executor {
	return ShellFrom(c).Conn.Executor
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// ConnectLocal opens a session on a serial port or WebREPL endpoint. An
// empty target uses the configured channel.
func (s *Shell) ConnectLocal(target string) error {
	conf := *s.Config
	switch {
	case target == "":
	case strings.HasPrefix(target, "ws://") || strings.HasPrefix(target, "wss://"):
		conf.WebREPL = target
	default:
		conf.WebREPL, conf.Port = "", target
	}
	session := conf.NewSession()
	if err := session.Connect(); err != nil {
		return err
	}
	name := conf.Port
	if conf.WebREPL != "" {
		name = conf.WebREPL
	} else if name == "" {
		name = "auto"
	}
	s.setConn(&Conn{Name: name, Executor: session, Session: session, close: session.Close})
	return nil
}

// ConnectRemote connects to a jig served over the bridge.
func (s *Shell) ConnectRemote(ctx context.Context, jigID string) error {
	connector, err := s.Config.NewConnector()
	if err != nil {
		return err
	}
	r, err := connector.Connect(ctx, jigID)
	if err != nil {
		return err
	}
	s.setConn(&Conn{Name: jigID + "@mqtt", Executor: r, close: r.Close})
	return nil
}

// Discover lists the jigs served over the bridge.
func (s *Shell) Discover(ctx context.Context) ([]*mqtt.Meta, error) {
	connector, err := s.Config.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Discover(ctx)
}

// SelectJig discovers jigs and asks for a choice.
func (s *Shell) SelectJig(ctx context.Context) (*mqtt.Meta, error) {
	jigs, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(jigs) == 0 {
		return nil, nil
	}
	var index int
	if len(jigs) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 jigs discovered in non-interactive mode")
		}
		items := make([]string, len(jigs))
		for n, meta := range jigs {
			items[n] = FormatMeta(meta)
		}
		index = s.Shell.MultiChoice(items, "Which one to connect?")
		if index < 0 {
			return nil, nil
		}
	}
	return jigs[index], nil
}

func (s *Shell) setConn(conn *Conn) {
	s.Disconnect()
	s.Conn = conn
	if s.Shell != nil {
		s.Shell.SetPrompt(fmt.Sprintf("%s > ", conn.Name))
	}
}

// Disconnect disconnects current jig.
func (s *Shell) Disconnect() {
	if s.Conn == nil {
		return
	}
	if err := s.Conn.Close(); err != nil {
		glog.Warningf("disconnect %s: %v", s.Conn.Name, err)
	}
	s.Conn = nil
	if s.Shell != nil {
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Disconnect()
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Println("Connecting ...")
		}
		if err := s.ConnectLocal(""); err != nil {
			glog.Exitf("connect failed: %v", err)
		}
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

// Main is a helper to provide a single call in main.
func Main(flags *env.Flags) {
	flag.Parse()
	conf, err := flags.Resolve()
	if err != nil {
		glog.Exit(err)
	}
	New(conf).WithAutoConnect(conf.Port != "" || conf.WebREPL != "").Run(flag.Args()...)
}
