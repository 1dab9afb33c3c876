// ABOUTME: Daemon orchestrator that wires storage, authorization, capabilities and the socket server
// ABOUTME: Owns component lifecycles from startup through graceful shutdown

package daemon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/2389/hearth/internal/authz"
	"github.com/2389/hearth/internal/config"
	"github.com/2389/hearth/internal/coordinator"
	"github.com/2389/hearth/internal/ipc"
	"github.com/2389/hearth/internal/mcp"
	"github.com/2389/hearth/internal/model"
	"github.com/2389/hearth/internal/session"
	"github.com/2389/hearth/internal/store"
)

// Daemon orchestrates the hearthd components.
type Daemon struct {
	config      *config.Config
	store       session.Store
	sqlStore    *store.SQLiteStore
	gate        *authz.Gate
	decider     authz.Decider
	host        *mcp.Host
	coordinator *coordinator.Coordinator
	server      *ipc.Server
	logger      *slog.Logger
}

type options struct {
	version   string
	model     model.Client
	decider   authz.Decider
	promptIn  io.Reader
	promptOut io.Writer
	hostOpts  []mcp.HostOption
}

// Option customizes how New builds the daemon.
type Option func(*options)

// WithVersion sets the version reported to capability servers.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithModelClient replaces the configured model provider.
func WithModelClient(c model.Client) Option {
	return func(o *options) { o.model = c }
}

// WithDecider replaces the decider chosen by authorization.mode.
func WithDecider(d authz.Decider) Option {
	return func(o *options) { o.decider = d }
}

// WithPrompter sets the terminal used by interactive authorization.
func WithPrompter(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.promptIn = in
		o.promptOut = out
	}
}

// WithHostOption passes an option through to the capability host.
func WithHostOption(opt mcp.HostOption) Option {
	return func(o *options) { o.hostOpts = append(o.hostOpts, opt) }
}

// New builds every component from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{version: "dev", promptIn: os.Stdin, promptOut: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	servers, err := mcp.LoadServers(cfg.Capabilities.ServersFile)
	if err != nil {
		return nil, fmt.Errorf("loading capability servers: %w", err)
	}

	d := &Daemon{config: cfg, logger: logger}

	if cfg.Sessions.Backend == "sqlite" || cfg.Authorization.Persist {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path, cfg.Sessions.TTL)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		sqlStore.SetLogger(logger)
		d.sqlStore = sqlStore
	}

	if cfg.Sessions.Backend == "sqlite" {
		d.store = d.sqlStore
	} else {
		d.store = session.NewMemoryStore(cfg.Sessions.TTL)
	}

	var allowList authz.AllowList = authz.NewMemoryAllowList()
	if cfg.Authorization.Persist {
		allowList = d.sqlStore
	}

	decider := o.decider
	if decider == nil {
		decider, err = newDecider(cfg.Authorization.Mode, o.promptIn, o.promptOut)
		if err != nil {
			d.closeStores()
			return nil, err
		}
	}
	d.decider = decider
	d.gate = authz.NewGate(allowList, decider, logger)

	hostOpts := append([]mcp.HostOption{mcp.WithVersion(o.version)}, o.hostOpts...)
	d.host = mcp.NewHost(servers, logger, hostOpts...)

	if err := d.seedAutoExecute(context.Background()); err != nil {
		d.closeStores()
		return nil, err
	}

	client := o.model
	if client == nil {
		client, err = newModelClient(cfg.Model)
		if err != nil {
			d.closeStores()
			return nil, err
		}
	}

	d.coordinator = coordinator.New(client, d.host, d.gate, coordinator.Options{
		SystemPrompt:    cfg.Model.SystemPrompt,
		MaxToolRounds:   cfg.Model.MaxToolRounds,
		LegacyTextCalls: cfg.Model.LegacyTextCalls,
	}, logger)

	d.server = ipc.NewServer(ipc.Options{
		SocketPath:    cfg.Socket.Path,
		MaxFrameBytes: cfg.Socket.MaxFrameBytes,
		ReadTimeout:   cfg.Socket.ReadTimeout,
		WriteTimeout:  cfg.Socket.WriteTimeout,
		QueryTimeout:  cfg.Model.QueryTimeout,
		SessionTTL:    cfg.Sessions.TTL,
		ReapInterval:  cfg.Sessions.ReapInterval,
		Serialize:     cfg.Sessions.SerializeQueries(),
	}, d.store, d.coordinator, logger)

	return d, nil
}

// newDecider maps authorization.mode to a Decider.
func newDecider(mode string, in io.Reader, out io.Writer) (authz.Decider, error) {
	switch mode {
	case "interactive":
		return authz.NewTerminalDecider(in, out), nil
	case "allow":
		return authz.StaticDecider{Decision: authz.AllowOnce}, nil
	case "deny":
		return authz.StaticDecider{Decision: authz.DenyOnce}, nil
	default:
		return nil, fmt.Errorf("unknown authorization mode %q", mode)
	}
}

func newModelClient(cfg config.ModelConfig) (model.Client, error) {
	switch cfg.Provider {
	case "gemini":
		client, err := model.NewGemini(context.Background(), cfg.APIKey, cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("initializing model client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// seedAutoExecute records every configured auto_execute tool as always allowed.
func (d *Daemon) seedAutoExecute(ctx context.Context) error {
	for server, tools := range d.host.AutoExecute() {
		for _, tool := range tools {
			if err := d.gate.AddAlways(ctx, server, tool); err != nil {
				return fmt.Errorf("seeding auto_execute for %s: %w", server, err)
			}
		}
	}
	return nil
}

// Ready is closed once the socket accepts connections.
func (d *Daemon) Ready() <-chan struct{} {
	return d.server.Ready()
}

// SocketPath returns where the daemon listens.
func (d *Daemon) SocketPath() string {
	return d.server.SocketPath()
}

// Run connects to capability servers and serves the socket until ctx is
// cancelled, then shuts everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.host.Connect(ctx); err != nil {
		_ = d.Shutdown()
		return fmt.Errorf("connecting capability servers: %w", err)
	}
	for name, status := range d.host.Status() {
		d.logger.Info("capability server", "server", name, "status", status)
	}

	serverErr := d.server.Run(ctx)
	shutdownErr := d.Shutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown releases capability sessions and storage. Run calls it on exit.
func (d *Daemon) Shutdown() error {
	d.logger.Info("shutting down daemon")

	var errs []error
	if c, ok := d.decider.(io.Closer); ok {
		errs = appendCloseError(errs, "decider close", c.Close())
	}
	errs = appendCloseError(errs, "capability host close", d.host.Close())
	errs = append(errs, d.closeStores()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (d *Daemon) closeStores() []error {
	var errs []error
	if d.store != nil && d.store != session.Store(d.sqlStore) {
		errs = appendCloseError(errs, "session store close", d.store.Close())
	}
	if d.sqlStore != nil {
		errs = appendCloseError(errs, "database close", d.sqlStore.Close())
		d.sqlStore = nil
	}
	d.store = nil
	return errs
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}
