//go:build windows && (amd64 || arm64)

package main

import (
	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/dokanhost"
	"github.com/godokan/go-dokan/log"
)

// newHost serves the volume through the dokan driver.
func newHost(l log.Log) (dokan.Host, error) {
	return &dokanhost.Host{Log: l}, nil
}
