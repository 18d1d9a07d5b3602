package consensus

import (
	"fmt"
	"math/big"

	"github.com/umbranet/umbrad/util"
	"github.com/umbranet/umbrad/util/chainhash"
	"github.com/umbranet/umbrad/wire"
)

// TransferPublicInputs carries the public inputs a transfer proof is
// checked against. Every field is taken verbatim from the transaction
// being validated, so two honest verifiers always reconstruct the same
// statement.
type TransferPublicInputs struct {
	SerialNumbers [][]byte
	Commitments   [][]byte
	ValueBalance  int64
	LedgerDigest  *chainhash.Hash
	Memo          [32]byte
}

// ProofVerifier is the seam to the external proof system. The chain only
// ever verifies proofs, it never constructs them, so this is the entire
// capability surface consensus requires. Implementations must be safe for
// concurrent use and must be deterministic: the same proof and inputs
// always produce the same verdict.
type ProofVerifier interface {
	// VerifyTransferProof checks a transaction's zero-knowledge proof
	// against its public inputs. A nil return means the proof attests to
	// value conservation and spend authorization for exactly these
	// inputs.
	VerifyTransferProof(proof []byte, pub *TransferPublicInputs) error

	// VerifyPoSWProof checks a block's succinct work proof against the
	// binding hash of its header and the difficulty target encoded in
	// the header bits.
	VerifyPoSWProof(proof []byte, bindingHash *chainhash.Hash, target *big.Int) error
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the proof-of-succinct-work holds
// for the claimed amount of work. The difficulty comparison bites on the
// hash of the proof blob rather than on the block hash, so grinding work
// means regenerating proofs.
//
// The flags modify the behavior of this function as follows:
//   - BFNoPoWCheck: the proof checks are not performed.
func (chain *Chain) checkProofOfWork(header *wire.BlockHeader, flags BehaviorFlags) error {
	// The target difficulty must be larger than zero.
	target := util.CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		str := fmt.Sprintf("block target difficulty of %064x is too low",
			target)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The target difficulty must be less than the maximum allowed.
	if target.Cmp(chain.params.PowMax) > 0 {
		str := fmt.Sprintf("block target difficulty of %064x is "+
			"higher than max of %064x", target, chain.params.PowMax)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// The proof hash must be less than the claimed target and the proof
	// itself must verify, unless the flag to avoid proof of work checks
	// is set.
	if flags&BFNoPoWCheck != BFNoPoWCheck {
		if len(header.Proof) == 0 {
			return ruleError(ErrMalformedProof, "block proof is empty")
		}

		proofHash := chainhash.DoubleHashH(header.Proof)
		if util.HashToBig(&proofHash).Cmp(target) > 0 {
			str := fmt.Sprintf("block proof hash of %s is higher than "+
				"expected max of %064x", proofHash, target)
			return ruleError(ErrHighProofHash, str)
		}

		// The succinct proof must verify against the binding hash, which
		// commits to every header field except the proof itself.
		bindingHash := header.ProofBindingHash()
		err := chain.proofVerifier.VerifyPoSWProof(header.Proof, &bindingHash, target)
		if err != nil {
			str := fmt.Sprintf("block proof failed verification: %s", err)
			return ruleError(ErrBadProof, str)
		}
	}

	return nil
}
