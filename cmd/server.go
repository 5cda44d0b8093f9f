// Copyright © 2018 The ELPS authors

package cmd

import (
	"github.com/luthersystems/sniffer/mcfunction"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// errReported is returned by commands that already rendered their errors.
var errReported = errors.New("errors reported")

// loadLibrary loads the configured datapack. Load errors are rendered as
// diagnostics and reported as errReported.
func loadLibrary() (*mcfunction.Library, error) {
	lib := mcfunction.NewLibrary()
	root := viper.GetString("datapack")
	if root == "" {
		log.Warn("No datapack configured, starting with an empty library")
		return lib, nil
	}
	if err := lib.Load(root); err != nil {
		renderLoadError(root, err)
		return nil, errReported
	}
	log.WithFields(log.Fields{
		"datapack":  root,
		"functions": len(lib.IDs()),
	}).Info("Datapack loaded")
	return lib, nil
}

// newServer loads the configured datapack into a new server.
func newServer(opts ...mcfunction.Option) (*mcfunction.Server, error) {
	lib, err := loadLibrary()
	if err != nil {
		return nil, err
	}
	opts = append([]mcfunction.Option{
		mcfunction.WithMaxCommandChainLength(viper.GetInt("max-command-chain")),
	}, opts...)
	return mcfunction.NewServer(lib, opts...), nil
}
