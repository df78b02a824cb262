package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nodelog/slogd/client"
	"github.com/nodelog/slogd/conf"
	"github.com/nodelog/slogd/data"
	"github.com/nodelog/slogd/firmware"
	"github.com/nodelog/slogd/level"
	"github.com/nodelog/slogd/notify"
	"github.com/nodelog/slogd/shm"
	"github.com/oklog/run"
)

// ErrServerStopped is returned when the server is stopped
var ErrServerStopped = errors.New("Server stopped")

// Options used for starting the level daemon
type Options struct {
	// DevID is the device this instance serves. data.AllDevices makes it
	// the master that owns shared memory.
	DevID        int32
	ConfFile     string
	ConfDirs     []string
	Workspace    string
	ShmDir       string
	ShmKey       string
	Firmware     string
	FirmwareRoot string
	ModulesFile  string
	// InitLevel overrides the global level after the config file is loaded
	InitLevel         data.Severity
	NatsServer        string
	NatsPort          int
	NatsHTTPPort      int
	NatsDisableServer bool
	AuthToken         string
	MetricsAddr       string
	RetryInterval     time.Duration
	Debug             bool
	DebugLifecycle    bool
	AppVersion        string
	// optional ID (must be unique) for this instance, otherwise, a UUID will be used
	ID string

	// The following replace the platform implementations when set
	Registry    *data.Registry
	RegionStore shm.RegionStore
	Signal      notify.Signal
	Sink        firmware.Sink
	HAL         firmware.HAL
}

// Server is the level daemon process
type Server struct {
	nc                 *nats.Conn
	options            Options
	natsServer         *server.Server
	clients            *client.RunGroup
	svc                *Service
	pub                *shm.Publisher
	chNatsClientClosed chan struct{}
	chStop             chan struct{}
	stopOnce           sync.Once
	chWaitStart        chan struct{}
}

// NewServer creates a new server
func NewServer(o Options) (*Server, *nats.Conn, error) {
	chNatsClientClosed := make(chan struct{})

	if o.ShmKey == "" {
		o.ShmKey = shm.DefaultKey
	}

	if o.RetryInterval <= 0 {
		o.RetryInterval = time.Second
	}

	name := fmt.Sprintf("slogd %v dev %v", o.ID, o.DevID)

	nc, err := nats.Connect(o.NatsServer,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.PingInterval(60*time.Second),
		nats.MaxPingsOutstanding(5),
		nats.SetCustomDialer(&net.Dialer{
			KeepAlive: -1,
		}),
		nats.Token(o.AuthToken),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn,
			sub *nats.Subscription, err error) {
			var subject string
			if sub != nil {
				subject = sub.Subject
			}
			log.Printf("Server NATS client error, sub: %v, err: %s\n", subject, err)
		}),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			if o.Debug {
				log.Println("Server NATS client reconnect attempt #", attempts)
			}
			return o.RetryInterval
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("Server NATS client: reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Println("Server NATS client: closed")
			close(chNatsClientClosed)
		}),
		nats.ConnectHandler(func(_ *nats.Conn) {
			log.Println("Server NATS client: connected")
		}),
	)

	return &Server{
		nc:                 nc,
		options:            o,
		chNatsClientClosed: chNatsClientClosed,
		chStop:             make(chan struct{}),
		chWaitStart:        make(chan struct{}),
		clients:            client.NewRunGroup("Server clients"),
	}, nc, err
}

// AddClient adds an actor that is run and stopped with the server. Clients
// must be added before Run is called.
func (s *Server) AddClient(c client.RunStop) {
	s.clients.Add(c)
}

// Service returns the level service once Run has set it up
func (s *Server) Service() *Service {
	return s.svc
}

func (s *Server) registry() (*data.Registry, error) {
	o := s.options
	if o.Registry != nil {
		return o.Registry, nil
	}
	if o.ModulesFile != "" {
		return data.LoadRegistry(o.ModulesFile)
	}
	return data.DefaultRegistry(), nil
}

// setup builds the level plane. Errors here are fatal.
func (s *Server) setup() error {
	o := s.options
	master := o.DevID == data.AllDevices

	reg, err := s.registry()
	if err != nil {
		return fmt.Errorf("Error loading module catalog: %w", err)
	}

	store := level.NewStore(reg)

	// VF instances never read or write the config file
	var cf *conf.File
	if master && o.ConfFile != "" {
		cf = conf.NewFile(o.ConfFile, o.ConfDirs)
		if !cf.Exists() {
			log.Println("Using default levels, config file: ", o.ConfFile)
		}
	}

	rs := o.RegionStore
	if rs == nil {
		rs = shm.NewFileStore(o.ShmDir)
	}

	s.pub = shm.NewPublisher(rs, o.ShmKey, o.DevID, o.ID)
	if err := s.pub.Init(o.ConfFile); err != nil {
		return fmt.Errorf("Error initializing shared memory: %w", err)
	}

	if err := s.pub.PublishModuleCatalog(reg.Names()); err != nil {
		return fmt.Errorf("Error publishing module catalog: %w", err)
	}

	sig := o.Signal
	if sig == nil {
		sig = notify.NewFileSignal(o.Workspace, master, s.pub.Available)
	}

	sink := o.Sink
	if sink == nil {
		sink, err = firmware.NewSink(o.Firmware, o.FirmwareRoot, o.HAL)
		if err != nil {
			return err
		}
	}

	var lc *client.LevelClient
	if !master {
		lc = client.NewLevelClient(s.pub, store, sig)
		s.AddClient(lc)
	}

	s.svc = NewService(ServiceParams{
		Store:    store,
		Conf:     cf,
		Pub:      s.pub,
		Signal:   sig,
		Firmware: firmware.NewPropagator(sink, store),
		Client:   lc,
		Debug:    o.Debug,
	})

	// a bad config file is logged and defaults are used
	if err := s.svc.Init(o.InitLevel); err != nil {
		log.Println("Error loading initial levels: ", err)
	}

	return nil
}

// Run the server -- only returns if there is an error
func (s *Server) Run() error {
	var g run.Group

	logLS := func(m ...any) {}

	if s.options.DebugLifecycle {
		logLS = func(m ...any) {
			log.Println(m...)
		}
	}

	o := s.options
	master := o.DevID == data.AllDevices

	var err error

	// ====================================
	// Nats server
	// ====================================
	if !o.NatsDisableServer && master {
		s.natsServer, err = newNatsServer(natsServerOptions{
			Port:     o.NatsPort,
			HTTPPort: o.NatsHTTPPort,
			Auth:     o.AuthToken,
		})
		if err != nil {
			return fmt.Errorf("Error setting up nats server: %v", err)
		}

		g.Add(func() error {
			s.natsServer.Start()
			s.natsServer.WaitForShutdown()
			logLS("LS: Exited: nats server")
			return fmt.Errorf("NATS server stopped")
		}, func(err error) {
			s.natsServer.Shutdown()
			logLS("LS: Shutdown: nats server")
		})
	}

	// ====================================
	// Level plane
	// ====================================
	if err := s.setup(); err != nil {
		if s.natsServer != nil {
			s.natsServer.Shutdown()
		}
		s.nc.Close()
		return err
	}

	defer func() {
		if err := s.pub.Exit(); err != nil {
			log.Println("Error releasing shared memory: ", err)
		}
	}()

	rpc := NewRPC(s.nc, o.DevID, s.svc, o.RetryInterval)
	g.Add(func() error {
		err := rpc.Run()
		logLS("LS: Exited: level rpc")
		return err
	}, func(err error) {
		rpc.Stop(err)
		logLS("LS: Shutdown: level rpc")
	})

	// ====================================
	// Clients (level watcher on VF instances)
	// ====================================
	g.Add(func() error {
		err := s.clients.Run()
		logLS("LS: Exited: clients: ", err)
		return err
	}, func(err error) {
		s.clients.Stop(err)
		logLS("LS: Shutdown: clients")
	})

	// ====================================
	// Config reload on SIGHUP
	// ====================================
	chHup := make(chan os.Signal, 1)
	chHupStop := make(chan struct{})
	signal.Notify(chHup, syscall.SIGHUP)
	g.Add(func() error {
		for {
			select {
			case <-chHup:
				log.Println("Reloading levels")
				if err := s.svc.Reload(); err != nil {
					log.Println("Error reloading levels: ", err)
				}
			case <-chHupStop:
				logLS("LS: Exited: reload handler")
				return nil
			}
		}
	}, func(_ error) {
		signal.Stop(chHup)
		close(chHupStop)
		logLS("LS: Shutdown: reload handler")
	})

	// ====================================
	// Metrics
	// ====================================
	if o.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			metrics.WritePrometheus(w, true)
		})
		httpServer := &http.Server{Addr: o.MetricsAddr, Handler: mux}

		g.Add(func() error {
			err := httpServer.ListenAndServe()
			logLS("LS: Exited: metrics")
			return err
		}, func(_ error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = httpServer.Shutdown(ctx)
			logLS("LS: Shutdown: metrics")
		})
	}

	// Give us a way to stop the server
	chShutdown := make(chan struct{})
	g.Add(func() error {
		select {
		case <-s.chStop:
			logLS("LS: Exited: stop handler")
			return ErrServerStopped
		case <-chShutdown:
			logLS("LS: Exited: stop handler")
			return nil
		}
	}, func(_ error) {
		close(chShutdown)
		logLS("LS: Shutdown: stop handler")
	})

	chRunError := make(chan error)

	go func() {
		chRunError <- g.Run()
	}()

	var retErr error

done:
	for {
		select {
		// unblock any waits
		case <-s.chWaitStart:
			// No-op, reading channel is enough to unblock wait
		case retErr = <-chRunError:
			break done
		}
	}

	s.nc.Close()

	select {
	case <-s.chNatsClientClosed:
	case <-time.After(time.Second):
		log.Println("Timeout waiting for NATS client to close")
	}

	return retErr
}

// Stop server
func (s *Server) Stop(_ error) {
	s.stopOnce.Do(func() { close(s.chStop) })
}

// WaitStart waits for the server to finish setup and start its actors
func (s *Server) WaitStart(ctx context.Context) error {
	waitDone := make(chan struct{})

	go func() {
		// blocks until the main select loop in Run starts
		select {
		case s.chWaitStart <- struct{}{}:
		case <-ctx.Done():
		}
		close(waitDone)
	}()

	select {
	case <-ctx.Done():
		return errors.New("Server wait timeout or canceled")
	case <-waitDone:
		if ctx.Err() != nil {
			return errors.New("Server wait timeout or canceled")
		}
		return nil
	}
}
