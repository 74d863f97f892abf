//go:build !(linux || darwin || freebsd) && !(windows && (amd64 || arm64))

package main

import (
	"runtime"

	"github.com/pkg/errors"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/log"
)

func newHost(log.Log) (dokan.Host, error) {
	return nil, errors.Errorf("no volume host available on %s", runtime.GOOS)
}
