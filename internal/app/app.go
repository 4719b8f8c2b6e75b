// Package app wires the bridge together: the UDP channel feeds the ingest
// loop, admitted frames are matched against the vocabulary, and recognized
// signs are published to the dispatcher's consumers.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/signbridge/internal/codec"
	"github.com/ayusman/signbridge/internal/config"
	"github.com/ayusman/signbridge/internal/dispatch"
	"github.com/ayusman/signbridge/internal/ingest"
	"github.com/ayusman/signbridge/internal/matcher"
	"github.com/ayusman/signbridge/internal/plugin"
	"github.com/ayusman/signbridge/internal/server"
	"github.com/ayusman/signbridge/internal/session"
	"github.com/ayusman/signbridge/internal/store"
	"github.com/ayusman/signbridge/internal/transport"
	"github.com/ayusman/signbridge/internal/vocabulary"
)

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("bridge already started")
	// ErrNotStarted is returned by Stop before Start.
	ErrNotStarted = errors.New("bridge not started")
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithSocketFactory replaces the UDP socket factory, for tests.
func WithSocketFactory(f transport.SocketFactory) Option {
	return func(b *Bridge) { b.factory = f }
}

// WithConsumer registers an extra dispatcher consumer.
func WithConsumer(c dispatch.Consumer) Option {
	return func(b *Bridge) { b.extra = append(b.extra, c) }
}

// WithSessionOptions passes options through to the session, e.g. a clock.
func WithSessionOptions(opts ...session.Option) Option {
	return func(b *Bridge) { b.sessionOpts = append(b.sessionOpts, opts...) }
}

// Bridge owns every long-lived component.
type Bridge struct {
	cfg config.Config
	log logrus.FieldLogger

	factory     transport.SocketFactory
	extra       []dispatch.Consumer
	sessionOpts []session.Option

	store      *store.Store
	session    *session.Session
	vocab      *vocabulary.Holder
	matcher    matcher.Chain
	dispatcher *dispatch.Dispatcher
	failures   *store.FailureRecorder
	history    *store.SessionRecorder
	feed       *server.Broadcaster
	plugins    *plugin.Manager
	server     *server.Server

	mu            sync.Mutex
	started       bool
	stopped       bool
	stopDone      chan struct{}
	channel       *transport.Channel
	loop          *ingest.Loop
	httpAddr      net.Addr
	stopIngest    context.CancelFunc
	stopSession   context.CancelFunc
	ingestDone    sync.WaitGroup
	backgroundRun sync.WaitGroup

	matched  atomic.Uint64
	gated    atomic.Uint64
	tagStale atomic.Uint64
}

// New builds a bridge from cfg. It opens the store and loads the vocabulary
// but binds no sockets; Start does that.
func New(cfg config.Config, log logrus.FieldLogger, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		cfg:     cfg,
		log:     log,
		factory: transport.NetFactory{},
	}
	for _, opt := range opts {
		opt(b)
	}

	if cfg.Store.Path != "" {
		s, err := store.New(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		b.store = s
	}

	v, err := b.loadVocabulary()
	if err != nil {
		b.closeStore()
		return nil, err
	}
	b.vocab = vocabulary.NewHolder(v)
	if b.store != nil {
		b.history = store.NewSessionRecorder(b.store, log, 0)
	}

	b.matcher = matcher.Chain{matcher.NearestSignature{Threshold: cfg.Matcher.Threshold}}
	if cfg.Matcher.Dynamic {
		b.matcher = append(b.matcher, &matcher.Trajectory{
			Threshold:  cfg.Matcher.DynamicThreshold,
			WindowSize: cfg.Matcher.WindowSize,
			MinPoints:  cfg.Matcher.MinPoints,
		})
	}

	b.session = session.New(append([]session.Option{
		session.WithTimeout(cfg.Session.Timeout),
		session.OnTransition(b.onTransition),
	}, b.sessionOpts...)...)

	var dispatchOpts []dispatch.Option
	if b.store != nil {
		b.failures = store.NewFailureRecorder(b.store, log, 0)
		dispatchOpts = append(dispatchOpts, dispatch.OnFailure(b.failures.Record))
	}
	dispatchOpts = append(dispatchOpts, dispatch.OnFailure(b.logFailure))
	b.dispatcher = dispatch.New(dispatch.Config{
		QueueSize:       cfg.Dispatch.QueueSize,
		RetryDelay:      cfg.Dispatch.RetryDelay,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
	}, log, dispatchOpts...)

	b.feed = server.NewBroadcaster(log, cfg.Dispatch.WebsocketBuffer)

	consumers := []dispatch.Consumer{dispatch.LogConsumer{Log: log}, b.feed}
	if b.store != nil {
		consumers = append(consumers, store.NewConversationLog(b.store))
	}
	if cfg.Plugins.Dir != "" {
		b.plugins = plugin.NewManager(cfg.Plugins.Dir, log)
		if err := b.plugins.Discover(); err != nil {
			log.WithError(err).Warn("plugin discovery failed")
		}
		var bindings plugin.BindingSource
		if b.store != nil {
			bindings = b.store.Bindings()
		}
		consumers = append(consumers, plugin.NewConsumer(
			b.plugins,
			plugin.NewExecutor(cfg.Plugins.Timeout),
			bindings,
			log,
			plugin.WithDefaultBinding(cfg.Plugins.DefaultPlugin, cfg.Plugins.DefaultAction, nil),
		))
	}
	consumers = append(consumers, b.extra...)
	for _, c := range consumers {
		if err := b.dispatcher.Register(c); err != nil {
			b.dispatcher.Close()
			b.closeRecorders()
			b.closeStore()
			return nil, fmt.Errorf("register consumer %s: %w", c.Name(), err)
		}
	}

	if cfg.HTTP.Address != "" {
		srvCfg := server.Config{
			StaticDir:  cfg.HTTP.StaticDir,
			Session:    b.session,
			Vocabulary: b,
			Stats:      func() any { return b.Stats() },
			Feed:       b.feed,
			Log:        log,
		}
		if b.store != nil {
			srvCfg.Store = b.store
		}
		if b.plugins != nil {
			srvCfg.Plugins = b.plugins
		}
		b.server = server.New(srvCfg)
	}

	return b, nil
}

// Start binds the UDP endpoint and the control surface and starts the
// ingest loop and the session timer. A bind failure is returned and nothing
// keeps running.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	ch, err := transport.Listen(transport.Config{
		Address:      b.cfg.UDP.Address,
		ReadBuffer:   b.cfg.UDP.ReadBuffer,
		MaxDatagram:  b.cfg.UDP.MaxDatagram,
		PollInterval: b.cfg.UDP.PollInterval,
	}, b.factory, b.log)
	if err != nil {
		return err
	}

	var ln net.Listener
	if b.server != nil {
		ln, err = net.Listen("tcp", b.cfg.HTTP.Address)
		if err != nil {
			ch.Close()
			return fmt.Errorf("listen %s: %w", b.cfg.HTTP.Address, err)
		}
		b.httpAddr = ln.Addr()
	}

	b.channel = ch
	b.loop = ingest.New(ingest.Config{
		CadenceFPS:           b.cfg.Ingest.CadenceFPS,
		MaxFrameAge:          b.cfg.Ingest.MaxFrameAge,
		MalformedLogInterval: b.cfg.Ingest.MalformedLogInterval,
	}, ch, codec.Codec{Scale: b.cfg.UDP.Scale}, b.step, b.log)

	ingestCtx, stopIngest := context.WithCancel(ctx)
	sessionCtx, stopSession := context.WithCancel(ctx)
	b.stopIngest = stopIngest
	b.stopSession = stopSession

	b.ingestDone.Add(1)
	go func() {
		defer b.ingestDone.Done()
		if err := b.loop.Run(ingestCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrClosed) {
			b.log.WithError(err).Error("ingest loop stopped")
		}
	}()

	b.backgroundRun.Add(1)
	go func() {
		defer b.backgroundRun.Done()
		b.session.Run(sessionCtx)
	}()

	if ln != nil {
		b.backgroundRun.Add(1)
		go func() {
			defer b.backgroundRun.Done()
			if err := b.server.Serve(ln); err != nil {
				b.log.WithError(err).Error("control surface stopped")
			}
		}()
	}

	b.started = true
	fields := logrus.Fields{"udp": ch.LocalAddr().String(), "vocabulary": b.vocab.Load().Version}
	if b.httpAddr != nil {
		fields["http"] = b.httpAddr.String()
	}
	b.log.WithFields(fields).Info("bridge started")
	return nil
}

// Stop shuts the bridge down: ingest first, then the dispatcher, the
// session timer and the control surface. No match is published after the
// dispatcher has closed.
//
// The lock is held only to claim the shutdown, so control surface handlers
// that read bridge state keep running while the server drains. A second
// call waits for the first to finish.
func (b *Bridge) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	if b.stopped {
		done := b.stopDone
		b.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.stopped = true
	b.stopDone = make(chan struct{})
	defer close(b.stopDone)
	b.mu.Unlock()

	b.stopIngest()
	b.channel.Close()
	b.ingestDone.Wait()

	b.dispatcher.Close()
	b.stopSession()

	var errs []error
	if b.server != nil {
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown control surface: %w", err))
		}
	} else {
		b.feed.Close()
	}
	b.backgroundRun.Wait()

	b.closeRecorders()
	if err := b.closeStore(); err != nil {
		errs = append(errs, err)
	}

	b.log.Info("bridge stopped")
	return errors.Join(errs...)
}

// Close releases what New acquired, for a bridge that was never started.
func (b *Bridge) Close() error {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if started {
		return b.Stop(context.Background())
	}

	b.dispatcher.Close()
	b.feed.Close()
	b.closeRecorders()
	return b.closeStore()
}

func (b *Bridge) closeRecorders() {
	if b.failures != nil {
		b.failures.Close()
	}
	if b.history != nil {
		b.history.Close()
	}
}

func (b *Bridge) closeStore() error {
	if b.store == nil {
		return nil
	}
	if err := b.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Session returns the recognition session.
func (b *Bridge) Session() *session.Session {
	return b.session
}

// Store returns the store, or nil when running without one.
func (b *Bridge) Store() *store.Store {
	return b.store
}

// Feed returns the websocket recognition feed.
func (b *Bridge) Feed() *server.Broadcaster {
	return b.feed
}

// Handler returns the control surface handler, or nil when it is disabled.
func (b *Bridge) Handler() *server.Server {
	return b.server
}

// UDPAddr returns the bound UDP address, or nil before Start.
func (b *Bridge) UDPAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == nil {
		return nil
	}
	return b.channel.LocalAddr()
}

// HTTPAddr returns the bound control surface address, or nil.
func (b *Bridge) HTTPAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.httpAddr
}

func (b *Bridge) logFailure(f dispatch.Failure) {
	b.log.WithFields(logrus.Fields{
		"consumer": f.Consumer,
		"event":    f.Event.ID,
		"sign":     f.Event.SignName,
	}).WithError(f.Err).Warn("delivery failed")
}

func (b *Bridge) onTransition(t session.Transition) {
	b.log.WithFields(logrus.Fields{
		"session": t.Snapshot.ID,
		"from":    t.From.String(),
		"to":      t.To.String(),
		"reason":  t.Reason,
	}).Info("session transition")

	switch {
	case t.To == session.Active:
		matcher.Reset(b.matcher)
		if b.history != nil {
			b.history.Begin(t.Snapshot.ID, t.Snapshot.CreatedAt)
		}
	case t.From == session.Active:
		if b.history != nil {
			b.history.End(t.Snapshot.ID, t.Reason, time.Now())
		}
	}
}
