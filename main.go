/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/testbed"
)

func main() {
	configPath := flag.String("config", engine.DefaultConfigPath, "path to the TOML configuration file")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath)
	if err != nil {
		core.LogFatal("invalid configuration: %s", err)
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// the loop owns the window and device; only ask it to stop
	go func() {
		<-sigCh
		e.Stop()
	}()

	code := 0
	if err := e.Initialize(); err != nil {
		core.LogError("failed to initialize engine: %s", err)
		code = 1
	} else if err := e.Run(); err != nil {
		code = 1
	}
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
		code = 1
	}
	os.Exit(code)
}
