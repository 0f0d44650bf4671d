package main

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	httpServerShutdownTimeout = 5 * time.Second
	readHeaderTimeout         = 5 * time.Second
)

func listenOn(address string) (net.Listener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	if _, ok := listener.Addr().(*net.TCPAddr); !ok {
		_ = listener.Close()
		return nil, fmt.Errorf("unexpected listener address: %T", listener.Addr())
	}
	return listener, nil
}

func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          zap.NewStdLog(zap.L().Named("http_server")),
	}
}
