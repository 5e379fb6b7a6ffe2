package txbuilder

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/pokt-rotate/internal/errors"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/provider"
	"github.com/ggonzalez94/pokt-rotate/internal/pokt/signer"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	DefaultChainID = "mainnet"
	DefaultFee     = int64(10_000)
	FeeDenom       = "upokt"
)

type Options struct {
	ChainID string
	Fee     int64
	Memo    string
}

// Builder signs, encodes and broadcasts staking messages through one
// shared provider.
type Builder struct {
	provider provider.Provider
	opts     Options
	entropy  func() (int64, error)
}

func New(p provider.Provider, opts Options) (*Builder, error) {
	if p == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing chain provider")
	}
	if strings.TrimSpace(opts.ChainID) == "" {
		opts.ChainID = DefaultChainID
	}
	if opts.Fee <= 0 {
		opts.Fee = DefaultFee
	}
	return &Builder{provider: p, opts: opts, entropy: randomEntropy}, nil
}

func (b *Builder) ChainID() string { return b.opts.ChainID }

// Submit signs msg with s and broadcasts it, returning the transaction hash.
// Every call draws fresh entropy, so repeated calls produce distinct
// transactions for the same message.
func (b *Builder) Submit(ctx context.Context, s signer.Signer, msg Msg) (string, error) {
	raw, err := b.Build(s, msg)
	if err != nil {
		return "", err
	}
	resp, err := b.provider.SendTransaction(ctx, s.Address(), raw)
	if err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

// Build returns the signed protobuf-encoded transaction bytes.
func (b *Builder) Build(s signer.Signer, msg Msg) ([]byte, error) {
	if s == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if msg == nil {
		return nil, clierr.New(clierr.CodeInternal, "missing message")
	}
	entropy, err := b.entropy()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "draw entropy", err)
	}
	doc, err := b.signDoc(msg, entropy)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode sign document", err)
	}
	sig, err := s.Sign(doc)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	body, err := msg.Marshal()
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "encode message", err)
	}
	return b.encodeTx(msg.TypeURL(), body, s.PublicKey(), sig, entropy), nil
}

// signDoc produces the canonical JSON that gets signed. encoding/json sorts
// map keys, which keeps the document deterministic.
func (b *Builder) signDoc(msg Msg, entropy int64) ([]byte, error) {
	doc := map[string]any{
		"chain_id": b.opts.ChainID,
		"entropy":  entropy,
		"fee": []map[string]string{{
			"amount": strconv.FormatInt(b.opts.Fee, 10),
			"denom":  FeeDenom,
		}},
		"memo": b.opts.Memo,
		"msg":  msg.SignDocMsg(),
	}
	return json.Marshal(doc)
}

func (b *Builder) encodeTx(typeURL string, body, pubKey, sig []byte, entropy int64) []byte {
	var anyMsg []byte
	anyMsg = protowire.AppendTag(anyMsg, 1, protowire.BytesType)
	anyMsg = protowire.AppendString(anyMsg, typeURL)
	anyMsg = protowire.AppendTag(anyMsg, 2, protowire.BytesType)
	anyMsg = protowire.AppendBytes(anyMsg, body)

	var coin []byte
	coin = protowire.AppendTag(coin, 1, protowire.BytesType)
	coin = protowire.AppendString(coin, FeeDenom)
	coin = protowire.AppendTag(coin, 2, protowire.BytesType)
	coin = protowire.AppendString(coin, strconv.FormatInt(b.opts.Fee, 10))

	var stdSig []byte
	stdSig = protowire.AppendTag(stdSig, 1, protowire.BytesType)
	stdSig = protowire.AppendBytes(stdSig, pubKey)
	stdSig = protowire.AppendTag(stdSig, 2, protowire.BytesType)
	stdSig = protowire.AppendBytes(stdSig, sig)

	var tx []byte
	tx = protowire.AppendTag(tx, 1, protowire.BytesType)
	tx = protowire.AppendBytes(tx, anyMsg)
	tx = protowire.AppendTag(tx, 2, protowire.BytesType)
	tx = protowire.AppendBytes(tx, coin)
	tx = protowire.AppendTag(tx, 3, protowire.BytesType)
	tx = protowire.AppendBytes(tx, stdSig)
	if b.opts.Memo != "" {
		tx = protowire.AppendTag(tx, 4, protowire.BytesType)
		tx = protowire.AppendString(tx, b.opts.Memo)
	}
	tx = protowire.AppendTag(tx, 5, protowire.VarintType)
	tx = protowire.AppendVarint(tx, uint64(entropy))
	return tx
}

func randomEntropy() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int64(binary.BigEndian.Uint64(buf[:]) >> 1), nil
}
