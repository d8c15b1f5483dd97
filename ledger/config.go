package ledger

import (
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/eventreg/eventreg/types"
)

// DefaultChainID matches the local development chain the ledger was first
// deployed on.
const DefaultChainID = 1337

func DefaultConfig() Config {
	fee, _ := types.ParseEther("0.01")
	return Config{
		Fee:     Wei{fee},
		ChainID: DefaultChainID,
	}
}

//nolint:lll
type Config struct {
	Fee           Wei           `long:"fee"            description:"Registration fee in wei, or in ether with an 'eth' suffix (e.g. 0.01eth)"`
	ChainID       uint64        `long:"chain-id"       description:"Chain identifier reported to clients"`
	BlockInterval time.Duration `long:"block-interval" description:"Interval between sealed blocks (0 seals a block per call)"`
}

// implement zap.ObjectMarshaler interface.
func (c Config) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("fee", types.FormatEther(c.Fee.Int)+" ETH")
	enc.AddUint64("chain-id", c.ChainID)
	enc.AddDuration("block-interval", c.BlockInterval)
	return nil
}

// Wei is an amount flag.
type Wei struct {
	*big.Int
}

func (w *Wei) UnmarshalFlag(value string) error {
	var (
		v   *big.Int
		err error
	)
	if trimmed, ok := strings.CutSuffix(value, "eth"); ok {
		v, err = types.ParseEther(trimmed)
	} else {
		v, err = types.ParseWei(value)
	}
	if err != nil {
		return err
	}
	w.Int = v
	return nil
}

func (w Wei) MarshalFlag() (string, error) {
	if w.Int == nil {
		return "0", nil
	}
	return w.Int.String(), nil
}
