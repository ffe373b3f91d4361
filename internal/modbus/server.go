package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tturner/farmreg/internal/logging"
)

// SimulatorConfig configures the Modbus/TCP register simulator.
type SimulatorConfig struct {
	ListenIP      string
	Port          int           // 0 picks a free port
	IdleTimeout   time.Duration // close connections idle this long; 0 = never
	ResponseDelay time.Duration // added before every response
}

// Simulator serves a DataStore over Modbus/TCP, one goroutine per client
// connection and one request in flight per connection.
type Simulator struct {
	config SimulatorConfig
	store  *DataStore
	logger *logging.Logger

	listener *net.TCPListener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	connsMu sync.Mutex
	conns   map[*net.TCPConn]struct{}

	requests   atomic.Uint64
	exceptions atomic.Uint64
}

// NewSimulator creates a simulator for store.
func NewSimulator(cfg SimulatorConfig, store *DataStore, logger *logging.Logger) *Simulator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Simulator{
		config: cfg,
		store:  store,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*net.TCPConn]struct{}),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Simulator) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(s.config.ListenIP, fmt.Sprintf("%d", s.config.Port)))
	if err != nil {
		return fmt.Errorf("resolve TCP address: %w", err)
	}

	s.listener, err = net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return fmt.Errorf("listen TCP: %w", err)
	}

	s.logger.Info("Register simulator listening on %s (%d registers)", s.listener.Addr(), s.store.Len())

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Addr returns the bound TCP address after Start.
func (s *Simulator) Addr() *net.TCPAddr {
	if s.listener == nil {
		return nil
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr
	}
	return nil
}

// Store returns the register bank being served.
func (s *Simulator) Store() *DataStore {
	return s.store
}

// Requests returns the number of requests served and how many of them
// were answered with an exception.
func (s *Simulator) Requests() (total, exceptions uint64) {
	return s.requests.Load(), s.exceptions.Load()
}

// Stop closes the listener and every client connection, then waits for the
// connection goroutines to exit.
func (s *Simulator) Stop() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()

	s.logger.Info("Register simulator stopped")
	return nil
}

func (s *Simulator) acceptLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.listener.SetDeadline(time.Now().Add(1 * time.Second))
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if s.ctx.Err() != nil {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.connsMu.Lock()
		if s.ctx.Err() != nil {
			s.connsMu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Simulator) handleConnection(conn *net.TCPConn) {
	defer s.wg.Done()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
	}()

	remoteAddr := conn.RemoteAddr().String()
	s.logger.Verbose("New connection from %s", remoteAddr)

	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), s.ctx.Err() != nil:
			case isTimeout(err):
				s.logger.Verbose("Closing idle connection from %s", remoteAddr)
			default:
				s.logger.Error("Read from %s: %v", remoteAddr, err)
			}
			return
		}

		req, err := DecodeRequestTCP(frame)
		if err != nil {
			s.logger.Error("Decode request from %s: %v", remoteAddr, err)
			return
		}

		resp := s.store.HandleRequest(req)
		s.requests.Add(1)
		if resp.IsException() {
			s.exceptions.Add(1)
			s.logger.Verbose("%s from %s: exception %s", req.Function, remoteAddr, resp.ExceptionCode())
		} else {
			s.logger.Debug("%s from %s: % X", req.Function, remoteAddr, req.Data)
		}

		if s.config.ResponseDelay > 0 {
			select {
			case <-time.After(s.config.ResponseDelay):
			case <-s.ctx.Done():
				return
			}
		}

		if _, err := conn.Write(EncodeResponseTCP(resp)); err != nil {
			if s.ctx.Err() == nil {
				s.logger.Error("Write to %s: %v", remoteAddr, err)
			}
			return
		}
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
