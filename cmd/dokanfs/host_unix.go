//go:build linux || darwin || freebsd

package main

import (
	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/fusehost"
	"github.com/godokan/go-dokan/log"
)

// newHost serves the volume through FUSE.
func newHost(l log.Log) (dokan.Host, error) {
	return &fusehost.Host{Log: l}, nil
}
