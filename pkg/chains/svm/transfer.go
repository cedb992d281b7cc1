package svm

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/sigweihq/walletbridge/pkg/chains"
)

// TxDraft is an unsigned transaction. A zero RecentBlockhash is replaced by the
// latest blockhash and a zero FeePayer by the active account before signing.
type TxDraft struct {
	Instructions    []solana.Instruction
	RecentBlockhash solana.Hash
	FeePayer        solana.PublicKey
}

// CreateTransferTransaction drafts a system transfer of lamports from from
// (the active account when empty) to to, with the latest blockhash attached.
func (w *Wallet) CreateTransferTransaction(ctx context.Context, to string, lamports *big.Int, from string) (*TxDraft, error) {
	fromKey, err := w.resolveOwner("from", from)
	if err != nil {
		return nil, err
	}
	toKey, err := ValidatePublicKey("to", to)
	if err != nil {
		return nil, err
	}
	if err := chains.RequirePositive("amount", lamports); err != nil {
		return nil, err
	}
	if !lamports.IsUint64() {
		return nil, &chains.InvalidParamsError{Field: "amount", Reason: "exceeds the lamport range"}
	}

	blockhash, err := w.chainRPC().GetLatestBlockhash(ctx)
	if err != nil {
		return nil, w.Record(err)
	}

	return &TxDraft{
		Instructions: []solana.Instruction{
			system.NewTransferInstruction(lamports.Uint64(), fromKey, toKey).Build(),
		},
		RecentBlockhash: blockhash,
		FeePayer:        fromKey,
	}, nil
}

// build compiles draft into a transaction, filling the blockhash and fee payer
func (w *Wallet) build(ctx context.Context, draft *TxDraft, signer solana.PublicKey) (*solana.Transaction, error) {
	if draft == nil || len(draft.Instructions) == 0 {
		return nil, &chains.InvalidParamsError{Field: "transaction", Reason: "at least one instruction is required"}
	}

	blockhash := draft.RecentBlockhash
	if blockhash.IsZero() {
		latest, err := w.chainRPC().GetLatestBlockhash(ctx)
		if err != nil {
			return nil, w.Record(err)
		}
		blockhash = latest
	}

	payer := draft.FeePayer
	if payer.IsZero() {
		payer = signer
	}

	tx, err := solana.NewTransaction(draft.Instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, &chains.InvalidParamsError{Field: "transaction", Reason: err.Error()}
	}
	return tx, nil
}

// fromRequest turns a chain-agnostic request into a transaction: a serialized
// transaction in Raw, or else a system transfer of Amount lamports to To
func (w *Wallet) fromRequest(ctx context.Context, req *chains.TxRequest, signer solana.PublicKey) (*solana.Transaction, error) {
	if len(req.Raw) > 0 {
		tx, err := DecodeTransaction(req.Raw)
		if err != nil {
			return nil, &chains.InvalidParamsError{Field: "raw", Reason: err.Error()}
		}
		if tx.Message.RecentBlockhash.IsZero() {
			latest, err := w.chainRPC().GetLatestBlockhash(ctx)
			if err != nil {
				return nil, w.Record(err)
			}
			tx.Message.RecentBlockhash = latest
		}
		return tx, nil
	}

	from := signer
	if req.From != "" {
		key, err := ValidatePublicKey("from", req.From)
		if err != nil {
			return nil, err
		}
		from = key
	}
	to, err := ValidatePublicKey("to", req.To)
	if err != nil {
		return nil, err
	}
	if err := chains.RequirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsUint64() {
		return nil, &chains.InvalidParamsError{Field: "amount", Reason: "exceeds the lamport range"}
	}

	return w.build(ctx, &TxDraft{
		Instructions: []solana.Instruction{
			system.NewTransferInstruction(req.Amount.Uint64(), from, to).Build(),
		},
		FeePayer: from,
	}, signer)
}
