package server

import (
	"fmt"
	"log"

	"github.com/nats-io/nats-server/v2/server"
)

type natsServerOptions struct {
	Port     int
	HTTPPort int
	Auth     string
}

// newNatsServer creates the node local broker used for level requests
func newNatsServer(o natsServerOptions) (*server.Server, error) {
	opts := server.Options{
		Host:          "127.0.0.1",
		Port:          o.Port,
		HTTPPort:      o.HTTPPort,
		Authorization: o.Auth,
		NoSigs:        true,
	}

	natsServer, err := server.NewServer(&opts)
	if err != nil {
		return nil, fmt.Errorf("Error create new Nats server: %v", err)
	}

	authEnabled := "no"
	if o.Auth != "" {
		authEnabled = "yes"
	}

	log.Printf("NATS server, port: %v, http port: %v, auth enabled: %v\n",
		o.Port, o.HTTPPort, authEnabled)

	return natsServer, nil
}
