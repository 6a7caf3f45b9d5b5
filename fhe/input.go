// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/luxfi/geth/common"
)

// inputProofDomain separates input proofs from any other ML-DSA usage of
// the coprocessor key.
var inputProofDomain = []byte("fheswap/input/v1")

// InputSigner attests that a ciphertext was encrypted for one
// (contract, user) pair. Proofs are ML-DSA-65 signatures over
// domain || handle || contract || user.
type InputSigner struct {
	pub  *mldsa65.PublicKey
	priv *mldsa65.PrivateKey
}

// NewInputSigner generates a fresh coprocessor signing key.
func NewInputSigner() (*InputSigner, error) {
	pub, priv, err := mldsa65.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate input signing key: %w", err)
	}
	return &InputSigner{pub: pub, priv: priv}, nil
}

// PublicKey returns the serialized verification key.
func (s *InputSigner) PublicKey() []byte {
	b, _ := s.pub.MarshalBinary()
	return b
}

func (s *InputSigner) sign(h Handle, contract, user common.Address) ([]byte, error) {
	sig := make([]byte, mldsa65.SignatureSize)
	if err := mldsa65.SignTo(s.priv, proofMessage(h, contract, user), nil, true, sig); err != nil {
		return nil, fmt.Errorf("sign input proof: %w", err)
	}
	return sig, nil
}

// VerifyInputProof checks proof against a serialized ML-DSA-65 public key.
func VerifyInputProof(publicKey []byte, in ExternalInput, contract, user common.Address) error {
	var pk mldsa65.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("%w: bad verification key: %v", ErrProofInvalid, err)
	}
	if len(in.Proof) != mldsa65.SignatureSize {
		return fmt.Errorf("%w: proof length %d", ErrProofInvalid, len(in.Proof))
	}
	if !mldsa65.Verify(&pk, proofMessage(in.Handle, contract, user), nil, in.Proof) {
		return ErrProofInvalid
	}
	return nil
}

func proofMessage(h Handle, contract, user common.Address) []byte {
	msg := make([]byte, 0, len(inputProofDomain)+common.HashLength+2*common.AddressLength)
	msg = append(msg, inputProofDomain...)
	msg = append(msg, h[:]...)
	msg = append(msg, contract.Bytes()...)
	msg = append(msg, user.Bytes()...)
	return msg
}
