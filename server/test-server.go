package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nodelog/slogd/data"
	natsc "github.com/nodelog/slogd/nats"
)

// FreePort returns a TCP port on localhost that is currently unused
func FreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// TestServer starts a server with o and waits until it answers level
// requests. The returned function stops it.
func TestServer(o Options) (*nats.Conn, *Server, func(), error) {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = 100 * time.Millisecond
	}

	s, nc, err := NewServer(o)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("Error starting slogd server: %v", err)
	}

	stopped := make(chan struct{})

	go func() {
		err := s.Run()
		if err != nil && err != ErrServerStopped {
			log.Println("Test Server run returned: ", err)
		}
		close(stopped)
	}()

	stop := func() {
		s.Stop(nil)
		<-stopped
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	err = s.WaitStart(ctx)
	cancel()
	if err != nil {
		return nil, nil, stop, fmt.Errorf("Error waiting for test server to start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := natsc.GetLevels(nc, o.DevID, data.AllDevices, true, 200*time.Millisecond)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return nil, nil, stop, fmt.Errorf("Test server not answering: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	return nc, s, stop, nil
}
