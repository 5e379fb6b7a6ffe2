package execution

import (
	"context"
	"fmt"
	"log/slog"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/logx"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/txbuilder"
)

// StakeParams configures app stake messages.
type StakeParams struct {
	AmountUPOKT string
	Chains      []string
}

// Submitter is the part of the transaction builder used here.
type Submitter interface {
	Submit(ctx context.Context, s signer.Signer, msg txbuilder.Msg) (string, error)
}

// ChainActions turns items into signed staking messages.
type ChainActions struct {
	submitter Submitter
	stake     StakeParams
	logger    *slog.Logger
}

func NewChainActions(submitter Submitter, stake StakeParams, logger *slog.Logger) *ChainActions {
	if logger == nil {
		logger = logx.Discard()
	}
	return &ChainActions{submitter: submitter, stake: stake, logger: logger}
}

func (c *ChainActions) Prepare(kind ActionKind, item Item) (SubmitFunc, error) {
	if c.submitter == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing transaction submitter")
	}
	km, err := signer.FromPrivateKey(item.Key)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load app key", err)
	}

	var msg txbuilder.Msg
	switch kind {
	case ActionStake:
		if c.stake.AmountUPOKT == "" || len(c.stake.Chains) == 0 {
			return nil, clierr.New(clierr.CodeUsage, "stake amount and chains must be configured")
		}
		msg = txbuilder.AppStakeMsg{PubKey: km.PublicKey(), Chains: c.stake.Chains, Amount: c.stake.AmountUPOKT}
		c.logger.Info("attempting to stake app", "address", km.Address(), "chains", c.stake.Chains)
	case ActionUnstake:
		msg = txbuilder.AppUnstakeMsg{Address: km.Address()}
		c.logger.Info("attempting to unstake app", "address", km.Address())
	case ActionTransfer:
		newKM, err := signer.FromPrivateKey(item.NewKey)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeSigner, "load new app key", err)
		}
		msg = txbuilder.AppTransferMsg{NewPubKey: newKM.PublicKey()}
		c.logger.Info("attempting to transfer app", "address", km.Address(), "new_public_key", newKM.PublicKeyHex())
	default:
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported action %q", kind))
	}

	return func(ctx context.Context) (string, error) {
		return c.submitter.Submit(ctx, km, msg)
	}, nil
}
