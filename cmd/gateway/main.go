package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"elpp-gateway/internal/gwconfig"
	"elpp-gateway/internal/gwhttp"
	"elpp-gateway/internal/reassembly"
	"elpp-gateway/internal/tapos"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) != 3 {
		return fmt.Errorf("usage: gateway <interface-name|ip-address> <port>")
	}
	bindAddr, err := resolveBindAddr(os.Args[1])
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(os.Args[2])
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %s", os.Args[2])
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := gwconfig.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	chains, err := gwconfig.LoadChains(cfg.TaposPoolFile)
	if err != nil {
		logger.WithError(err).Warn("no chain pool file loaded; starting with zero configured chains")
		chains = &gwconfig.ChainsFile{}
	}

	store := reassembly.NewStore(time.Duration(cfg.DeviceTTLSeconds) * time.Second)
	reasm := reassembly.New(store, logger)

	httpClient := &http.Client{Timeout: time.Duration(cfg.HTTPClientTimeoutSeconds) * time.Second}
	manager := tapos.NewManager(httpClient, nil, logger)
	for _, cs := range chains.ChainStates() {
		manager.Register(cs)
	}

	server := gwhttp.NewServer(gwhttp.Config{
		BindAddr:        fmt.Sprintf("%s:%d", bindAddr, port),
		Port:            cfg.Port,
		RequestDeadline: time.Duration(cfg.RequestDeadlineSeconds) * time.Second,
	}, store, reasm, manager, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	managerErr := make(chan error, 1)
	go func() { managerErr <- manager.Run(ctx) }()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	logger.WithFields(logrus.Fields{"addr": bindAddr, "port": port}).Info("gateway listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
	case err := <-managerErr:
		if err != nil {
			return fmt.Errorf("tapos manager: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.RequestDeadlineSeconds)*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown error")
	}
	manager.Close()
	cancel()
	return nil
}

// resolveBindAddr resolves the CLI's first positional argument: if it names
// a known network interface, bind to its first IPv4 address; otherwise
// treat it as a literal IP.
func resolveBindAddr(arg string) (string, error) {
	iface, err := net.InterfaceByName(arg)
	if err != nil {
		if net.ParseIP(arg) == nil {
			return "", fmt.Errorf("invalid interface name or ip address: %s", arg)
		}
		return arg, nil
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return "", fmt.Errorf("reading addresses for interface %s: %w", arg, err)
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", fmt.Errorf("interface %s has no IPv4 address", arg)
}
