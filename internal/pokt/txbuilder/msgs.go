package txbuilder

import (
	"encoding/hex"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Msg is one app staking message ready to be wrapped into a transaction.
type Msg interface {
	// TypeURL names the message inside the protobuf Any envelope.
	TypeURL() string
	// SignDocMsg is the message object embedded in the signed JSON document.
	SignDocMsg() map[string]any
	Marshal() ([]byte, error)
}

type AppStakeMsg struct {
	PubKey []byte
	Chains []string
	Amount string
}

func (m AppStakeMsg) TypeURL() string { return "/x.apps.MsgProtoAppStake" }

func (m AppStakeMsg) SignDocMsg() map[string]any {
	chains := m.Chains
	if chains == nil {
		chains = []string{}
	}
	return map[string]any{
		"type": "apps/MsgAppStake",
		"value": map[string]any{
			"chains": chains,
			"pubkey": hex.EncodeToString(m.PubKey),
			"value":  m.Amount,
		},
	}
}

func (m AppStakeMsg) Marshal() ([]byte, error) {
	if len(m.PubKey) == 0 {
		return nil, fmt.Errorf("app stake: missing public key")
	}
	if m.Amount == "" {
		return nil, fmt.Errorf("app stake: missing amount")
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.PubKey)
	for _, chain := range m.Chains {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, chain)
	}
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, m.Amount)
	return b, nil
}

type AppUnstakeMsg struct {
	Address string
}

func (m AppUnstakeMsg) TypeURL() string { return "/x.apps.MsgBeginAppUnstake" }

func (m AppUnstakeMsg) SignDocMsg() map[string]any {
	return map[string]any{
		"type": "apps/MsgAppBeginUnstake",
		"value": map[string]any{
			"application_address": m.Address,
		},
	}
}

func (m AppUnstakeMsg) Marshal() ([]byte, error) {
	addr, err := hex.DecodeString(m.Address)
	if err != nil || len(addr) == 0 {
		return nil, fmt.Errorf("app unstake: invalid address %q", m.Address)
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, addr)
	return b, nil
}

// AppTransferMsg moves the sender's app stake onto NewPubKey.
type AppTransferMsg struct {
	NewPubKey []byte
}

func (m AppTransferMsg) TypeURL() string { return "/x.apps.MsgProtoAppTransfer" }

func (m AppTransferMsg) SignDocMsg() map[string]any {
	return map[string]any{
		"type": "apps/MsgAppTransfer",
		"value": map[string]any{
			"pubkey": hex.EncodeToString(m.NewPubKey),
		},
	}
}

func (m AppTransferMsg) Marshal() ([]byte, error) {
	if len(m.NewPubKey) == 0 {
		return nil, fmt.Errorf("app transfer: missing new public key")
	}
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.NewPubKey)
	return b, nil
}
