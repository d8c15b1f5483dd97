package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eventreg/eventreg/logging"
	"github.com/eventreg/eventreg/presenter"
	"github.com/eventreg/eventreg/rpc/client"
	"github.com/eventreg/eventreg/server"
	"github.com/eventreg/eventreg/session"
	"github.com/eventreg/eventreg/signing"
	"github.com/eventreg/eventreg/synchronizer"
	"github.com/eventreg/eventreg/types"
)

const chainPollInterval = 10 * time.Second

type clientOptions struct {
	Client client.Config `group:"Client"`
}

func (o *clientOptions) dial(logger *zap.Logger) (*client.Client, error) {
	return client.New(o.Client.NodeURL, client.WithConfig(o.Client), client.WithLogger(logger))
}

// contextWithLogger returns a context cancelled on interrupt.
func contextWithLogger(logger *zap.Logger) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(logging.NewContext(context.Background(), logger), os.Interrupt)
}

type watchCommand struct {
	clientOptions
	Key          string              `long:"key" env:"EVENTREG_KEY" description:"Key file or base64 ed25519 private key of the watching account (a throwaway key by default)"`
	Synchronizer synchronizer.Config `group:"Synchronizer"`
}

func newWatchCommand() *watchCommand {
	return &watchCommand{
		clientOptions: clientOptions{Client: client.DefaultConfig()},
		Synchronizer:  synchronizer.DefaultConfig(),
	}
}

func (c *watchCommand) Execute([]string) error {
	logger := global.logger()
	ctx, stop := contextWithLogger(logger)
	defer stop()

	key, err := c.watchKey()
	if err != nil {
		return err
	}
	node, err := c.dial(logger)
	if err != nil {
		return err
	}
	defer node.Close()

	fee, err := node.RegistrationFee(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	bridge := session.NewBridge(session.NewKeyWallet(key, node.ChainID))
	changes := bridge.Watch(ctx)
	if err := bridge.Connect(ctx); err != nil {
		return fmt.Errorf("failed to reach node: %w", err)
	}
	chainID := bridge.State().ChainID
	logger.Info("watching participants", zap.Object("client", c.Client), zap.Object("synchronizer", c.Synchronizer))

	s := synchronizer.New(
		node,
		presenter.New(logger.Named("participants"), presenter.WithFee(fee)),
		synchronizer.WithConfig(c.Synchronizer),
		synchronizer.WithChainID(chainID),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.Run(ctx) })
	eg.Go(func() error { return resetOnChainChange(ctx, changes, s) })
	eg.Go(func() error { return pollChain(ctx, node, bridge) })
	return eg.Wait()
}

func (c *watchCommand) watchKey() (ed25519.PrivateKey, error) {
	if c.Key != "" {
		return loadKey(c.Key)
	}
	_, key, err := ed25519.GenerateKey(nil)
	return key, err
}

type resetter interface {
	Reset(ctx context.Context, chainID uint64) error
}

// resetOnChainChange rebuilds the projection of s whenever the bridge moves
// to another chain.
func resetOnChainChange(ctx context.Context, changes <-chan session.Change, s resetter) error {
	logger := logging.FromContext(ctx)
	for {
		var change session.Change
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			change = ch
		}
		switch change.Kind {
		case session.ChainChanged:
			logger.Info("chain changed", zap.Uint64("chain_id", change.State.ChainID))
			if err := s.Reset(ctx, change.State.ChainID); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		case session.AccountChanged:
			logger.Info("account changed", zap.Stringer("account", change.State.Account))
		}
	}
}

// pollChain reports the chain the node is on to the bridge.
func pollChain(ctx context.Context, node *client.Client, bridge *session.Bridge) error {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(chainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		id, err := node.ChainID(ctx)
		if err != nil {
			logger.Debug("failed to poll chain id", zap.Error(err))
			continue
		}
		bridge.ChainChanged(id)
	}
}

type txOptions struct {
	clientOptions
	Key           string `long:"key"            env:"EVENTREG_KEY" description:"Key file or base64 ed25519 private key" required:"true"`
	ExpectedChain uint64 `long:"expected-chain"                    description:"Refuse to send when the node reports another chain"`
}

func newTxOptions() txOptions {
	return txOptions{clientOptions: clientOptions{Client: client.DefaultConfig()}}
}

func (o *txOptions) bridgeOptions() []session.BridgeOption {
	var opts []session.BridgeOption
	if o.ExpectedChain != 0 {
		opts = append(opts, session.WithExpectedChain(o.ExpectedChain))
	}
	return opts
}

// open connects a session for the configured key.
func (o *txOptions) open(ctx context.Context, logger *zap.Logger) (*session.Session, *presenter.Log, func(), error) {
	key, err := loadKey(o.Key)
	if err != nil {
		return nil, nil, nil, err
	}
	node, err := o.dial(logger)
	if err != nil {
		return nil, nil, nil, err
	}
	fee, err := node.RegistrationFee(ctx)
	if err != nil {
		node.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach node: %w", err)
	}
	view := presenter.New(logger, presenter.WithFee(fee))

	wallet := session.NewKeyWallet(key, node.ChainID)
	bridge := session.NewBridge(wallet, o.bridgeOptions()...)
	if err := bridge.Connect(ctx); err != nil {
		node.Close()
		return nil, nil, nil, errors.New(view.Message(err))
	}
	st := bridge.State()
	logger.Info("connected", zap.Stringer("account", st.Account), zap.Uint64("chain_id", st.ChainID))
	if st.WrongChain {
		node.Close()
		return nil, nil, nil, errors.New(view.Message(session.ErrWrongChain))
	}
	return session.New(bridge, wallet, node, view), view, func() { node.Close() }, nil
}

type registerCommand struct {
	txOptions
}

func newRegisterCommand() *registerCommand {
	return &registerCommand{txOptions: newTxOptions()}
}

func (c *registerCommand) Execute([]string) error {
	logger := global.logger()
	ctx, stop := contextWithLogger(logger)
	defer stop()

	s, view, closer, err := c.open(ctx, logger)
	if err != nil {
		return err
	}
	defer closer()
	if _, err := s.Register(ctx); err != nil {
		return errors.New(view.Message(err))
	}
	return nil
}

type withdrawCommand struct {
	txOptions
}

func newWithdrawCommand() *withdrawCommand {
	return &withdrawCommand{txOptions: newTxOptions()}
}

func (c *withdrawCommand) Execute([]string) error {
	logger := global.logger()
	ctx, stop := contextWithLogger(logger)
	defer stop()

	s, view, closer, err := c.open(ctx, logger)
	if err != nil {
		return err
	}
	defer closer()
	if _, err := s.Withdraw(ctx); err != nil {
		return errors.New(view.Message(err))
	}
	return nil
}

type infoCommand struct {
	clientOptions
	Participants bool `long:"participants" description:"List every registered address"`
}

func newInfoCommand() *infoCommand {
	return &infoCommand{clientOptions: clientOptions{Client: client.DefaultConfig()}}
}

func (c *infoCommand) Execute([]string) error {
	logger := global.logger()
	ctx, stop := contextWithLogger(logger)
	defer stop()

	node, err := c.dial(logger)
	if err != nil {
		return err
	}
	defer node.Close()

	info, err := node.Info(ctx)
	if err != nil {
		return errors.New(presenter.Message(err))
	}
	fmt.Printf("owner:             %s\n", info.Owner)
	fmt.Printf("chain id:          %d\n", info.ChainID)
	fmt.Printf("block:             %d\n", info.BlockNumber)
	fmt.Printf("fee:               %s ETH\n", types.FormatEther(info.Fee))
	fmt.Printf("participants:      %d\n", info.ParticipantCount)
	fmt.Printf("balance:           %s ETH\n", types.FormatEther(info.Balance))
	fmt.Printf("total collected:   %s ETH\n", types.FormatEther(info.TotalCollected))
	fmt.Printf("participants root: %s\n", hex.EncodeToString(info.ParticipantsRoot))

	if !c.Participants {
		return nil
	}
	participants, err := node.Participants(ctx)
	if err != nil {
		return errors.New(presenter.Message(err))
	}
	for _, p := range participants {
		fmt.Println(p)
	}
	return nil
}

type keygenCommand struct {
	Out string `long:"out" short:"o" description:"File to write the key to" required:"true"`
}

func (c *keygenCommand) Execute([]string) error {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	if err := atomic.WriteFile(c.Out, strings.NewReader(server.EncodeKey(key)+"\n")); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	if err := os.Chmod(c.Out, 0o600); err != nil {
		return err
	}
	fmt.Println(signing.Address(key.Public().(ed25519.PublicKey)))
	return nil
}

// loadKey reads a key from a file, or decodes value itself when no such file
// exists.
func loadKey(value string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(value) //#nosec G304
	switch {
	case errors.Is(err, os.ErrNotExist):
		return server.ParseKey(value)
	case err != nil:
		return nil, fmt.Errorf("reading key: %w", err)
	}
	return server.ParseKey(string(bytes.TrimSpace(data)))
}
