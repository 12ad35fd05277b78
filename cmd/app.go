package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"state-connector/attestor"
	"state-connector/chain"
	"state-connector/chain/pow"
	"state-connector/chain/xrpl"
	"state-connector/config"
	"state-connector/connector"
	"state-connector/contract"
	"state-connector/db"
	"state-connector/guard"
	"state-connector/logger"
	"state-connector/prover"
	"state-connector/repository"
)

// app is the wired node. close releases everything newApp opened.
type app struct {
	cfg     *config.Config
	conn    *connector.Connector
	closers []func()
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	log := logger.Logger

	ldb, err := db.NewLevelDB(a.cfg.LevelDB.Path)
	if err != nil {
		return fmt.Errorf("open leveldb: %w", err)
	}
	a.closers = append(a.closers, func() { ldb.Close() })
	journal := repository.NewJournal(ldb)

	c := a.cfg.Contract
	ledger, err := contract.Dial(ctx, contract.Config{
		RPCURL:      c.RPCURL,
		Address:     c.Address,
		PrivateKey:  c.PrivateKey,
		ChainID:     c.ChainID,
		GasPrice:    c.GasPrice,
		GasLimit:    c.GasLimit,
		ReceiptPoll: c.ReceiptPoll,
	}, log)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, ledger.Close)

	var runtimes []*connector.Runtime
	for _, name := range a.cfg.EnabledChains() {
		cc := a.cfg.Chains[name]
		spec, err := cc.Spec(name)
		if err != nil {
			return err
		}
		reader, err := a.reader(ctx, spec, cc)
		if err != nil {
			return err
		}
		runtimes = append(runtimes, &connector.Runtime{
			Spec: spec,
			Machine: attestor.New(spec, reader, ledger, journal, attestor.Config{
				MaxLeavesPerSubmission: a.cfg.Run.MaxLeavesPerSubmission,
				ContinueDelay:          a.cfg.Run.ContinueDelay,
				Backoff:                a.cfg.Run.Backoff,
			}, log),
			Prover: prover.New(spec, reader, ledger, journal, a.cfg.Run.Backoff, log),
		})
		log.Info("Chain enabled", zap.String("chain", name), zap.Uint32("chain_id", uint32(spec.ID)))
	}
	if len(runtimes) == 0 {
		return fmt.Errorf("no chains enabled")
	}

	var g guard.Guard = guard.NewMemory(nil)
	if r := a.cfg.Redis; r.Addr != "" {
		rg, err := guard.NewRedis(r.Addr, r.Password, r.DB, r.Prefix)
		if err != nil {
			return err
		}
		if err := rg.Ping(ctx); err != nil {
			rg.Close()
			return fmt.Errorf("redis %s: %w", r.Addr, err)
		}
		a.closers = append(a.closers, func() { rg.Close() })
		g = rg
	}

	a.conn = connector.New(runtimes, g, a.cfg.Run.Watchdog, log)
	a.closers = append(a.closers, a.conn.Close)
	return nil
}

func (a *app) reader(ctx context.Context, spec chain.Spec, cc config.ChainConfig) (chain.Reader, error) {
	switch spec.Variant.(type) {
	case chain.LedgerIndexed:
		return xrpl.New(cc.URL, cc.Account, spec.Native, 0), nil
	default:
		c, err := pow.Dial(ctx, cc.URL, cc.Username, cc.Password, spec.Native)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, c.Close)
		return c, nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	logger.Logger.Sync()
}
