package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/groupctl/internal/config"
	"github.com/danmuck/groupctl/internal/dispatch"
	"github.com/danmuck/groupctl/internal/logging"
	"github.com/danmuck/groupctl/internal/observability"
	"github.com/danmuck/groupctl/internal/session"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/danmuck/groupctl/internal/transport/tcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	configPath string
	user       string
	host       string
	port       int
	statusAddr string
}

func newChatCmd() *cobra.Command {
	var flags chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Connect and chat interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveChatConfig(cmd, flags)
			if err != nil {
				return configError{err}
			}
			return runChat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", "", "config file (defaults and env only when empty)")
	cmd.Flags().StringVar(&flags.user, "user", "", "user name sent on connect")
	cmd.Flags().StringVar(&flags.host, "host", "", "daemon host")
	cmd.Flags().IntVar(&flags.port, "port", 0, "daemon port")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve status and metrics on this address")
	return cmd
}

func resolveChatConfig(cmd *cobra.Command, flags chatFlags) (config.ClientConfig, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return config.ClientConfig{}, err
	}
	if cmd.Flags().Changed("user") {
		cfg.User = strings.TrimSpace(flags.user)
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = strings.TrimSpace(flags.host)
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = flags.port
	}
	if cmd.Flags().Changed("status-addr") {
		cfg.StatusAddr = strings.TrimSpace(flags.statusAddr)
	}
	if err := cfg.Validate(); err != nil {
		return config.ClientConfig{}, err
	}
	if cfg.User == "" {
		return config.ClientConfig{}, errors.New("user is required (--user, GROUPCTL_USER or config)")
	}
	return cfg, nil
}

func runChat(ctx context.Context, cfg config.ClientConfig, in io.Reader, out io.Writer) error {
	observability.InitLogger("groupctl")
	if cfg.Log.Level != "" {
		logging.SetLevel(cfg.Log.Level)
	}
	log := logging.Component("chat")

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewSessionMetrics(reg)
	if err != nil {
		return err
	}
	dialer := tcp.NewDialer(cfg.Session.TCP(), logging.Component("tcp"))
	s := session.New(dialer,
		session.WithLogger(logging.Component("session")),
		session.WithConfig(cfg.Session.Options()),
		session.WithRecorder(metrics),
	)
	defer s.Close()

	if err := s.Connect(ctx, cfg.User, cfg.Host, cfg.Port); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newChat(s, out, log)
	for _, g := range cfg.Groups {
		if err := c.join(g); err != nil {
			c.printf("join %s: %v\n", g, err)
		}
	}

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr: cfg.StatusAddr,
			Handler: observability.NewStatusRouter(s, observability.StatusRouterConfig{
				Logger:      logging.Component("status"),
				Metrics:     metrics,
				Gatherer:    reg,
				CORSOrigins: cfg.CORSOrigins,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.StatusAddr).Msg("status server failed")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", cfg.StatusAddr).Msg("status server listening")
	}

	go func() {
		_ = c.dispatcher.Run(ctx, s.Deliveries())
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("connected to %s as %s (private group %s); /help for commands\n", s.Hostname(), cfg.User, s.PrivateGroup())
	for {
		select {
		case <-ctx.Done():
			return s.Disconnect()
		case fault, ok := <-s.Faults():
			if !ok {
				return nil
			}
			c.printf("connection lost: %v\n", fault)
			_ = s.Disconnect()
			return fault
		case line, ok := <-lines:
			if !ok {
				return s.Disconnect()
			}
			quit, err := c.handle(line)
			if err != nil && !errors.Is(err, errEmptyLine) {
				c.printf("%v\n", err)
			}
			if quit {
				return s.Disconnect()
			}
		}
	}
}

// chat is the interactive state: the session, the routing table and the
// group plain text goes to.
type chat struct {
	session    *session.Session
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger

	outMu   sync.Mutex
	out     io.Writer
	current string
}

func newChat(s *session.Session, out io.Writer, log zerolog.Logger) *chat {
	c := &chat{
		session:    s,
		dispatcher: dispatch.New(log),
		log:        log,
		out:        out,
	}
	c.dispatcher.SetFallback(dispatch.SubscriberFunc(c.render))
	return c
}

func (c *chat) handle(line string) (bool, error) {
	cmd, err := parseLine(line)
	if err != nil {
		return false, err
	}
	switch cmd.Kind {
	case cmdSay:
		if c.current == "" {
			return false, errors.New("no current group; /join <group> first")
		}
		return false, c.session.Multicast(c.current, []byte(cmd.Text))
	case cmdJoin:
		return false, c.join(cmd.Group)
	case cmdLeave:
		return false, c.leave(cmd.Group)
	case cmdSend:
		return false, c.session.Multicast(cmd.Group, []byte(cmd.Text))
	case cmdGroups:
		names := lo.Map(c.session.Groups(), func(g *session.Group, _ int) string {
			if g.Name() == c.current {
				return "*" + g.Name()
			}
			return g.Name()
		})
		c.printf("groups: %s\n", strings.Join(names, " "))
		return false, nil
	case cmdHelp:
		c.printf("%s\n", helpText)
		return false, nil
	case cmdQuit:
		return true, nil
	}
	return false, nil
}

// join joins group unless already joined, then makes it current.
func (c *chat) join(group string) error {
	if !c.session.InGroup(group) {
		if _, err := c.session.JoinGroup(group); err != nil {
			return err
		}
		c.dispatcher.Subscribe(group, dispatch.SubscriberFunc(c.render))
	}
	c.current = group
	c.printf("current group: %s\n", group)
	return nil
}

func (c *chat) leave(group string) error {
	handle, ok := lo.Find(c.session.Groups(), func(g *session.Group) bool {
		return g.Name() == group
	})
	if !ok {
		return fmt.Errorf("not in group %s", group)
	}
	err := c.session.LeaveGroup(handle)
	c.dispatcher.Unsubscribe(group)
	if c.current == group {
		c.current = ""
	}
	return err
}

func (c *chat) render(msg transport.Message) {
	c.printf("%s\n", formatMessage(msg))
}

func (c *chat) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func formatMessage(msg transport.Message) string {
	if msg.Kind == transport.KindMembership {
		return fmt.Sprintf("[%s] * members (%s): %s", msg.Group, msg.Reason, strings.Join(msg.Members, ", "))
	}
	return fmt.Sprintf("[%s] %s: %s", msg.Group, msg.Sender, string(msg.Payload))
}
