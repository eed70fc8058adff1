package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"mintforge/internal/chain"
	"mintforge/internal/config"
	"mintforge/internal/contract"
	"mintforge/internal/journal"
	"mintforge/internal/metrics"
	"mintforge/internal/mint"
	"mintforge/internal/network"
)

func runMint(cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	net, err := network.Get(cfg.Network.Name)
	if err != nil {
		return &config.ValidationError{Issues: []string{err.Error()}}
	}
	rpcURL := cfg.Network.CustomRPC
	if rpcURL == "" {
		rpcURL = net.RPC
	}

	logger.Info("connecting", "network", net.DisplayName, "rpc", rpcURL)
	client, err := chain.Dial(ctx, rpcURL, net.ChainID, cfg.RPCTimeout())
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connected", "chain_id", net.ChainID)

	wallet, err := chain.NewWallet(cfg.Wallet.PrivateKey)
	if err != nil {
		return &config.ValidationError{Issues: []string{err.Error()}}
	}
	if !wallet.MatchesConfigured(cfg.Wallet.Address) {
		logger.Warn("configured address does not match derived address",
			"configured", cfg.Wallet.Address, "derived", wallet.Address().Hex())
	}
	logger.Info("wallet ready", "address", wallet.Address().Hex())

	contractAddr := common.HexToAddress(cfg.Contract.Address)
	contractABI, err := contract.ResolveABI(ctx, cfg.Contract.ABIPath, net.Explorer.APIURL, cfg.Contract.Address, cfg.Contract.ExplorerAPIKey)
	if err != nil {
		return err
	}
	iface, err := contract.Detect(contractABI)
	if err != nil {
		return &RunFailedError{Err: err}
	}
	logger.Info("mint function detected", "function", iface.Name)

	session := contract.NewSession(client, contractAddr, contractABI)
	logContractInfo(ctx, session)

	if !flagDryRun {
		balance, err := client.BalanceAt(ctx, wallet.Address())
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return &RunFailedError{Err: &mint.InsufficientFundsError{Err: fmt.Errorf("wallet %s has zero balance", wallet.Address().Hex())}}
		}
		logger.Info("wallet balance", "wei", balance)
	}

	recipient := wallet.Address()
	if to := cfg.Minting.ToAddress; to != "" && to != "DEFAULT" {
		recipient = common.HexToAddress(to)
	}

	reg := metrics.NewRegistry()
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go func() {
			if err := reg.Serve(ctx, addr); err != nil {
				logger.Warn("metrics listener stopped", "err", err)
			}
		}()
	}

	store, closeStore, err := openJournal(ctx, cfg)
	if err != nil {
		logger.Warn("journal unavailable, run will not be persisted", "err", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	orch := mint.New(mint.Deps{
		Client:   client,
		State:    session,
		Packer:   iface,
		Signer:   wallet,
		Logger:   logger,
		Observer: reg,
	}, mint.Options{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.InitialBackoff(),
		MaxBackoff:        cfg.MaxBackoff(),
		PollInterval:      cfg.PollInterval(),
		ConfirmTimeout:    cfg.ConfirmTimeout(),
		EstimateStaleness: cfg.EstimateStaleness(),
		DryRun:            flagDryRun,
	})

	if flagDryRun {
		logger.Info("dry run mode, no transactions will be sent")
	}

	result, runErr := orch.Run(ctx, mint.Request{
		Network:   net,
		Contract:  contractAddr,
		GroupID:   cfg.Minting.GroupID,
		Amount:    cfg.Minting.Amount,
		Recipient: recipient,
	})

	if store != nil {
		if rec, jerr := journal.FromResult(result); jerr == nil {
			if jerr := store.Save(context.Background(), rec); jerr != nil {
				logger.Warn("failed to persist run", "err", jerr)
			}
		}
	}

	if runErr != nil {
		reg.RunFinished("failed")
		return &RunFailedError{Err: runErr}
	}
	reg.RunFinished("succeeded")

	if result.TxHash != "" {
		fmt.Printf("Minted! tx: %s\n%s\n", result.TxHash, result.ExplorerURL)
	} else if result.DryRun {
		fmt.Printf("Dry run complete: %d mint(s) simulated, nothing sent\n", len(result.Attempts))
	}
	return nil
}

func logContractInfo(ctx context.Context, session *contract.Session) {
	if supply, err := session.TotalSupply(ctx); err == nil && supply != nil {
		logger.Info("contract total supply", "total_supply", supply)
	}
	if maxSupply, err := session.MaxSupply(ctx); err == nil && maxSupply != nil {
		logger.Info("contract max supply", "max_supply", maxSupply)
	}
	if active, err := session.MintActive(ctx); err == nil {
		logger.Info("mint status", "active", active)
	}
}

func openJournal(ctx context.Context, cfg *config.Config) (journal.Store, func(), error) {
	if dsn := cfg.Journal.PostgresDSN; dsn != "" {
		store, err := journal.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	store, err := journal.NewFileStore(cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}
