/*
This is an example of application that will use the
engine package to load content out of bundles
*/
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/anima-content/engine"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/testbed"
)

func main() {
	configPath := flag.String("config", "anima.toml", "path to the application config")
	flag.Parse()

	config, err := engine.LoadApplicationConfig(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		core.LogWarn("config '%s' not found, using defaults", *configPath)
		config, err = engine.DefaultApplicationConfig(), nil
	}
	if err != nil {
		panic(err)
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game, nil)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		panic(err)
	}

	// capture sigterm and other system calls
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	// run engine
	if err := e.Run(ctx); err != nil {
		core.LogError("%s", err.Error())
	}
	if err := e.Shutdown(); err != nil {
		panic(err)
	}
}
