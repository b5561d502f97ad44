package main

import (
	"context"
	"fmt"
	"net"

	"github.com/mdlayher/vsock"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/config"
	"github.com/cloudx-io/openbid/engine"
	"github.com/cloudx-io/openbid/notify"
	"github.com/cloudx-io/openbid/receipt"
	"github.com/cloudx-io/openbid/store"
	"github.com/cloudx-io/openbid/store/sqlstore"
)

// openAttester returns the Nitro Secure Module handle. Tests swap in a mock.
var openAttester = receipt.OpenNSM

// storage is what the engine needs from a backend, plus shutdown.
type storage interface {
	engine.AuctionStore
	engine.BidLedger
	Close() error
}

type memoryStorage struct{ *store.MemoryStore }

func (memoryStorage) Close() error { return nil }

// app is the fully wired process: store, engine, sweep, notifiers and server.
type app struct {
	cfg     *config.Config
	store   storage
	journal *notify.Journal
	hub     *notify.Hub
	engine  *engine.Engine
	sweep   *engine.Sweep
	server  *Server
	log     *logrus.Entry
}

func newApp(cfg *config.Config, log *logrus.Entry) (*app, error) {
	st, err := openStore(cfg.Store, log)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(log)
	notifiers := notify.Multi{hub, notify.NewLogNotifier(log)}

	var journal *notify.Journal
	if cfg.Events.JournalPath != "" {
		journal, err = notify.OpenJournal(cfg.Events.JournalPath, cfg.Events.JournalBuffer, log)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		notifiers = append(notifiers, journal)
	}

	issuer, keyResp, err := newReceiptIssuer(cfg.Receipts, log)
	if err != nil {
		_ = st.Close()
		if journal != nil {
			_ = journal.Close()
		}
		return nil, err
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMaxCASRetries(cfg.Engine.MaxCASRetries),
		engine.WithIdleTimeout(cfg.Engine.IdleTimeout),
		engine.WithInboxSize(cfg.Engine.InboxSize),
	}
	if issuer != nil {
		opts = append(opts, engine.WithReceiptIssuer(issuer))
	}
	eng := engine.New(st, st, notifiers, opts...)
	srv := NewServer(eng, hub, keyResp, cfg.Server.MaxWorkers, cfg.Server.ReadTimeout, log)
	srv.subBuffer = cfg.Events.HubBuffer
	srv.maxSubscribers = cfg.Server.MaxSubscribers
	srv.heartbeat = cfg.Server.Heartbeat

	return &app{
		cfg:     cfg,
		store:   st,
		journal: journal,
		hub:     hub,
		engine:  eng,
		sweep:   engine.NewSweep(eng, cfg.Sweep.Interval, cfg.Sweep.Batch),
		server:  srv,
		log:     log.WithField("component", "app"),
	}, nil
}

func openStore(cfg config.StoreConfig, log *logrus.Entry) (storage, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlstore.Open(cfg.DSN, log)
	case config.DriverMemory:
		return memoryStorage{store.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newReceiptIssuer builds the configured receipt signer and the key response
// served to verifiers. Both are nil when receipts are disabled.
func newReceiptIssuer(cfg config.ReceiptConfig, log *logrus.Entry) (*receipt.Issuer, *auctionapi.ReceiptKeyResponse, error) {
	switch cfg.Signer {
	case config.SignerNone:
		log.Warn("Settlement receipts disabled")
		return nil, nil, nil

	case config.SignerKey:
		key, err := receipt.LoadOrCreateKey(cfg.KeyPath)
		if err != nil {
			return nil, nil, err
		}
		signer, err := receipt.NewKeySigner(key)
		if err != nil {
			return nil, nil, err
		}
		publicKey, err := signer.PublicKeyPEM()
		if err != nil {
			return nil, nil, err
		}
		resp := &auctionapi.ReceiptKeyResponse{
			Signer:    auctionapi.SignerKey,
			KeyID:     signer.KeyID(),
			PublicKey: publicKey,
		}
		if cfg.AttestKey {
			attester, err := openAttester()
			if err != nil {
				return nil, nil, fmt.Errorf("failed to attest receipt key: %w", err)
			}
			doc, err := receipt.AttestKey(attester, signer)
			if err != nil {
				return nil, nil, err
			}
			resp.KeyAttestationCOSEBase64 = doc.EncodeBase64()
		}
		log.WithField("key_id", signer.KeyID()).Infof("Receipt key ready (attested=%v)", cfg.AttestKey)
		return receipt.NewIssuer(signer, log), resp, nil

	case config.SignerNitro:
		attester, err := openAttester()
		if err != nil {
			return nil, nil, err
		}
		log.Info("Receipts signed by Nitro attestation")
		return receipt.NewIssuer(receipt.NewNitroSigner(attester), log), &auctionapi.ReceiptKeyResponse{Signer: auctionapi.SignerNitro}, nil

	default:
		return nil, nil, fmt.Errorf("unknown receipt signer %q", cfg.Signer)
	}
}

func (a *app) listen() (net.Listener, error) {
	switch a.cfg.Server.Listen {
	case config.ListenVsock:
		ln, err := vsock.Listen(a.cfg.Server.Port, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		return ln, nil
	default:
		ln, err := net.Listen("tcp", a.cfg.Server.Addr)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		return ln, nil
	}
}

// Run serves and sweeps until ctx is done, then shuts everything down.
func (a *app) Run(ctx context.Context) error {
	ln, err := a.listen()
	if err != nil {
		a.shutdown()
		return err
	}
	return a.serve(ctx, ln)
}

func (a *app) serve(ctx context.Context, ln net.Listener) error {
	defer a.shutdown()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.sweep.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return a.server.Serve(ctx, ln)
	})
	return g.Wait()
}

func (a *app) shutdown() {
	a.engine.Close()
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Errorf("Failed to close event journal: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Errorf("Failed to close store: %v", err)
	}
}
