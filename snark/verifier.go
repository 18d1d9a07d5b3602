// Package snark implements the zero-knowledge proof system the chain
// verifies transfers and succinct work against. It is the deployment
// implementation of the consensus.ProofVerifier seam: Groth16 over
// BLS12-377, with MiMC as the in-circuit hash. Consensus code never
// constructs proofs; provers (wallets, miners) use the same circuits
// through the proving keys in Params.
package snark

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr/mimc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"

	"github.com/umbranet/umbrad/consensus"
	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

const (
	// workCommitmentSize is the number of bytes the work commitment
	// occupies at the head of a block proof blob. It is one canonical
	// BLS12-377 scalar.
	workCommitmentSize = 32

	// Cache key domain tags, so a transfer entry can never alias a work
	// proof entry.
	transferProofTag = 0x01
	poswProofTag     = 0x02
)

// Verifier checks transfer and succinct work proofs against the network
// circuit parameters. It satisfies consensus.ProofVerifier and is safe for
// concurrent use: verification is read-only over the verifying keys, and
// the proof cache carries its own lock.
type Verifier struct {
	transferVerifyingKey groth16.VerifyingKey
	poswVerifyingKey     groth16.VerifyingKey
	cache                *ProofCache
}

// NewVerifier returns a Verifier backed by the given parameters. The cache
// remembers proofs that have already verified so revalidation of the same
// block or transaction skips the pairing checks.
func NewVerifier(params *Params, cache *ProofCache) *Verifier {
	return &Verifier{
		transferVerifyingKey: params.TransferVerifyingKey,
		poswVerifyingKey:     params.PoSWVerifyingKey,
		cache:                cache,
	}
}

// VerifyTransferProof checks a transaction's Groth16 proof against the
// public inputs declared by the transaction. This is part of the
// consensus.ProofVerifier interface.
func (v *Verifier) VerifyTransferProof(proof []byte, pub *consensus.TransferPublicInputs) error {
	if len(proof) == 0 {
		return errors.New("transfer proof is empty")
	}

	cacheKey := transferCacheKey(proof, pub)
	if v.cache.Exists(cacheKey) {
		return nil
	}

	groth16Proof := groth16.NewProof(ecc.BLS12_377)
	_, err := groth16Proof.ReadFrom(bytes.NewReader(proof))
	if err != nil {
		return errors.Wrap(err, "malformed transfer proof")
	}

	assignment := &transferCircuit{
		SerialsDigest:     foldDigest(pub.SerialNumbers, wire.MaxSerialNumbersPerTx),
		CommitmentsDigest: foldDigest(pub.Commitments, wire.MaxCommitmentsPerTx),
		ValueBalance:      big.NewInt(pub.ValueBalance),
		LedgerDigest:      reduceToScalar(pub.LedgerDigest[:]),
		Memo:              reduceToScalar(pub.Memo[:]),
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BLS12_377.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrap(err, "failed to build transfer public witness")
	}

	err = groth16.Verify(groth16Proof, v.transferVerifyingKey, publicWitness)
	if err != nil {
		return errors.Wrap(err, "transfer proof verification failed")
	}

	v.cache.Add(cacheKey)
	log.Tracef("Verified transfer proof over %d serial numbers and %d "+
		"commitments", len(pub.SerialNumbers), len(pub.Commitments))
	return nil
}

// VerifyPoSWProof checks a block's succinct work proof. The proof blob is
// the work commitment followed by the Groth16 proof; the difficulty
// comparison bites on the hash of the whole blob, so every new work
// attempt needs a fresh proof. This is part of the
// consensus.ProofVerifier interface.
func (v *Verifier) VerifyPoSWProof(proof []byte, bindingHash *chainhash.Hash, target *big.Int) error {
	if len(proof) <= workCommitmentSize {
		return errors.Errorf("work proof blob is %d bytes, shorter than "+
			"the %d byte work commitment", len(proof), workCommitmentSize)
	}

	// The hash-to-target comparison always runs, cached or not: the
	// cache only remembers that the pairing checks passed for this
	// binding hash, which says nothing about any particular target.
	proofHash := chainhash.DoubleHashH(proof)
	if util.HashToBig(&proofHash).Cmp(target) > 0 {
		return errors.Errorf("work proof hash %s is above the target %064x",
			proofHash, target)
	}

	cacheKey := poswCacheKey(proof, bindingHash)
	if v.cache.Exists(cacheKey) {
		return nil
	}

	groth16Proof := groth16.NewProof(ecc.BLS12_377)
	_, err := groth16Proof.ReadFrom(bytes.NewReader(proof[workCommitmentSize:]))
	if err != nil {
		return errors.Wrap(err, "malformed work proof")
	}

	bindingHashHigh, bindingHashLow := splitBindingHash(bindingHash)
	assignment := &poswCircuit{
		BindingHashHigh: bindingHashHigh,
		BindingHashLow:  bindingHashLow,
		WorkCommitment:  new(big.Int).SetBytes(proof[:workCommitmentSize]),
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BLS12_377.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.Wrap(err, "failed to build work proof public witness")
	}

	err = groth16.Verify(groth16Proof, v.poswVerifyingKey, publicWitness)
	if err != nil {
		return errors.Wrap(err, "work proof verification failed")
	}

	v.cache.Add(cacheKey)
	log.Tracef("Verified work proof bound to %s", bindingHash)
	return nil
}

// foldDigest folds a variable-length list of byte strings into one scalar
// by hashing every circuit slot, zero elements standing in for unused
// slots. Provers fold the in-circuit slot arrays the same way, so the
// digest computed here matches the one the circuit asserts.
func foldDigest(items [][]byte, slots int) *big.Int {
	hasher := mimc.NewMiMC()
	for i := 0; i < slots; i++ {
		var element fr.Element
		if i < len(items) {
			element.SetBigInt(new(big.Int).SetBytes(items[i]))
		}
		elementBytes := element.Bytes()
		hasher.Write(elementBytes[:])
	}
	return new(big.Int).SetBytes(hasher.Sum(nil))
}

// reduceToScalar maps arbitrary bytes into the scalar field. Hash-sized
// values can exceed the field modulus, so both provers and verifiers
// reduce before use.
func reduceToScalar(data []byte) *big.Int {
	var element fr.Element
	element.SetBigInt(new(big.Int).SetBytes(data))
	return element.BigInt(new(big.Int))
}

// splitBindingHash splits a 32-byte binding hash into two 16-byte halves,
// each of which fits a field element with room to spare.
func splitBindingHash(bindingHash *chainhash.Hash) (high, low *big.Int) {
	high = new(big.Int).SetBytes(bindingHash[:chainhash.HashSize/2])
	low = new(big.Int).SetBytes(bindingHash[chainhash.HashSize/2:])
	return high, low
}

// transferCacheKey derives the cache key remembering that a transfer proof
// verified against exactly these public inputs.
func transferCacheKey(proof []byte, pub *consensus.TransferPublicInputs) chainhash.Hash {
	hasher, _ := blake2b.New256(nil)
	hasher.Write([]byte{transferProofTag,
		byte(len(pub.SerialNumbers)), byte(len(pub.Commitments))})
	for _, serialNumber := range pub.SerialNumbers {
		hasher.Write(serialNumber)
	}
	for _, commitment := range pub.Commitments {
		hasher.Write(commitment)
	}
	var valueBalance [8]byte
	binary.LittleEndian.PutUint64(valueBalance[:], uint64(pub.ValueBalance))
	hasher.Write(valueBalance[:])
	hasher.Write(pub.LedgerDigest[:])
	hasher.Write(pub.Memo[:])
	hasher.Write(proof)

	var key chainhash.Hash
	copy(key[:], hasher.Sum(nil))
	return key
}

// poswCacheKey derives the cache key remembering that a work proof
// verified against a binding hash.
func poswCacheKey(proof []byte, bindingHash *chainhash.Hash) chainhash.Hash {
	hasher, _ := blake2b.New256(nil)
	hasher.Write([]byte{poswProofTag})
	hasher.Write(bindingHash[:])
	hasher.Write(proof)

	var key chainhash.Hash
	copy(key[:], hasher.Sum(nil))
	return key
}
