// Package vpn provides VPN connection management functionality.
// This file contains the Service type which assembles a Driver with its
// event loop, credential store, journal and network monitor.
package vpn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yllada/openvpn-management/common"
	"github.com/yllada/openvpn-management/config"
	"github.com/yllada/openvpn-management/history"
	"github.com/yllada/openvpn-management/keyring"
	"github.com/yllada/openvpn-management/management"
	"github.com/yllada/openvpn-management/netmon"
	"github.com/yllada/openvpn-management/reactor"
)

// ServiceOptions customizes a Service.
type ServiceOptions struct {
	// Store overrides the keyring-backed credential store.
	Store common.CredentialStore
	// OnFailure and OnStatusChange are passed to the Driver.
	OnFailure      func(failure management.ConnectFailure, details string)
	OnStatusChange func(status ConnectionStatus)
}

// Service runs one profile's Driver on its own event loop.
type Service struct {
	cfg     *config.Config
	loop    *reactor.Dispatcher
	journal *history.Store
	monitor *netmon.Monitor
	driver  *Driver
	log     *common.ComponentLogger
}

// NewService builds a Service for profile from cfg. Call Run to start it.
func NewService(cfg *config.Config, profile *Profile, opts ServiceOptions) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := common.InitLogger(cfg.LogConfig()); err != nil {
		common.LogWarn("Unable to enable file logging: %v", err)
	}

	s := &Service{
		cfg:  cfg,
		loop: reactor.NewDispatcher(),
		log:  common.Component("Service"),
	}

	store := opts.Store
	if store == nil {
		ks, err := keyring.New(keyring.Options{})
		if err != nil {
			return nil, fmt.Errorf("failed to open credential store: %w", err)
		}
		store = ks
	}

	var journal Journal
	if cfg.HistoryPath != "" {
		j, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		s.journal = j
		journal = j
	}

	driverOpts := DriverOptions{
		Loop:           s.loop,
		Store:          store,
		Journal:        journal,
		Timeouts:       cfg.Timeouts,
		ListenAddress:  cfg.Management.ListenAddress,
		OnFailure:      opts.OnFailure,
		OnStatusChange: opts.OnStatusChange,
	}
	if cfg.WatchNetwork {
		s.monitor = netmon.New(func(online bool) {
			if s.driver != nil {
				s.driver.NotifyNetwork(online)
			}
		})
		driverOpts.Online = s.online
	}

	driver, err := NewDriver(profile, driverOpts)
	if err != nil {
		s.closeJournal()
		return nil, err
	}
	s.driver = driver
	return s, nil
}

// online is true unless a running monitor says otherwise.
func (s *Service) online() bool {
	return s.monitor == nil || s.monitor.Online()
}

// Driver returns the service's driver.
func (s *Service) Driver() *Driver {
	return s.driver
}

// Run executes the event loop until ctx is done or Stop is called, then
// disconnects and releases resources.
func (s *Service) Run(ctx context.Context) error {
	if s.monitor != nil {
		if err := s.monitor.Start(); err != nil {
			s.log.Warn("Network monitoring disabled: %v", err)
			s.monitor = nil
		}
	}

	if s.cfg.LogToFile {
		go s.rotateLogs(common.LogRotationCheckInterval, s.loop.Done())
	}

	err := s.loop.Run(ctx)

	// The loop has returned, so the driver can be used directly here.
	if s.driver.Server().IsStarted() {
		s.driver.Disconnect()
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
	s.closeJournal()

	if errors.Is(err, context.Canceled) || errors.Is(err, reactor.ErrStopped) {
		return nil
	}
	return err
}

// Stop makes Run return.
func (s *Service) Stop() {
	s.loop.Stop()
}

// Connect runs Driver.Connect on the loop. Run must be active.
func (s *Service) Connect(otp string) ([][]string, error) {
	var options [][]string
	var err error
	if postErr := s.do(func() { options, err = s.driver.Connect(otp) }); postErr != nil {
		return nil, postErr
	}
	return options, err
}

// Disconnect runs Driver.Disconnect on the loop. Run must be active.
func (s *Service) Disconnect() error {
	var err error
	if postErr := s.do(func() { err = s.driver.Disconnect() }); postErr != nil {
		return postErr
	}
	return err
}

// History returns the most recent journal entries for the profile.
func (s *Service) History(limit int) ([]history.Event, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(s.driver.ServiceIdentifier(), limit)
}

// do runs fn on the loop and waits for it to finish.
func (s *Service) do(fn func()) error {
	done := make(chan struct{})
	if !s.loop.Post(func() {
		defer close(done)
		fn()
	}) {
		return reactor.ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-s.loop.Done():
		return reactor.ErrStopped
	}
}

// rotateLogs periodically rotates the log file until stop is closed.
func (s *Service) rotateLogs(every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			common.GetLogger().CheckRotation()
		}
	}
}

func (s *Service) closeJournal() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		s.log.Warn("Unable to close history: %v", err)
	}
}
