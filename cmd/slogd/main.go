package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/nodelog/slogd/server"
	"github.com/nodelog/slogd/system"
	"github.com/oklog/run"
)

// version is set at build time:
//
//	go build -ldflags="-X main.version=1.2.3"
var version = "Development"

func main() {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagVersion := flags.Bool("version", false, "Print app version")

	options, err := server.Args(os.Args[1:], flags)
	if err != nil {
		log.Fatal("Error parsing args: ", err)
	}

	if *flagVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	options.AppVersion = version

	log.Printf("slogd %v, dev: %v, id: %v\n", version, options.DevID, options.ID)

	if v, err := system.ReadOSVersion(); err == nil {
		log.Println("OS version: ", v)
	}

	if err := runServer(options); err != nil {
		log.Println("slogd stopped, reason: ", err)
		os.Exit(1)
	}
}

func runServer(options server.Options) error {
	var g run.Group

	slogd, _, err := server.NewServer(options)
	if err != nil {
		slogd.Stop(nil)
		return fmt.Errorf("Error starting server: %v", err)
	}

	g.Add(slogd.Run, slogd.Stop)

	g.Add(run.SignalHandler(context.Background(),
		syscall.SIGINT, syscall.SIGTERM))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*9)

	// make sure the server started
	chStartCheck := make(chan struct{})
	g.Add(func() error {
		err := slogd.WaitStart(ctx)
		if err != nil {
			return errors.New("Timeout waiting for slogd to start")
		}
		log.Println("slogd started")
		<-chStartCheck
		return nil
	}, func(err error) {
		cancel()
		close(chStartCheck)
	})

	err = g.Run()

	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Println("slogd: ", sigErr)
		return nil
	}

	return err
}
