package snark

import (
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"

	"github.com/umbranet/umbrad/wire"
)

// transferCircuit is the statement behind every transfer proof. The public
// half mirrors the transaction fields every verifier can read; the private
// half is the spending material only the prover knows. Serial numbers and
// commitments enter the statement through fixed-arity MiMC folds so the
// circuit shape is independent of how many of the wire slots a transaction
// actually uses.
type transferCircuit struct {
	// Public inputs. Order matters: verifiers rebuild this exact layout
	// from transaction data.
	SerialsDigest     frontend.Variable `gnark:",public"`
	CommitmentsDigest frontend.Variable `gnark:",public"`
	ValueBalance      frontend.Variable `gnark:",public"`
	LedgerDigest      frontend.Variable `gnark:",public"`
	Memo              frontend.Variable `gnark:",public"`

	// Private inputs.
	Serials     [wire.MaxSerialNumbersPerTx]frontend.Variable
	Commitments [wire.MaxCommitmentsPerTx]frontend.Variable
	SpendKey    frontend.Variable
	Seed        frontend.Variable
	ValueIn     frontend.Variable
	ValueOut    frontend.Variable
}

func (c *transferCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	// The lead serial is the spend tag: PRF(spendKey, seed, valueIn).
	// Knowing the preimage is what authorizes consuming the record.
	hasher.Write(c.SpendKey)
	hasher.Write(c.Seed)
	hasher.Write(c.ValueIn)
	api.AssertIsEqual(c.Serials[0], hasher.Sum())

	// The lead commitment opens to the output value, salted by the seed
	// and bound to the ledger digest and memo the transfer declares.
	hasher.Reset()
	hasher.Write(c.Seed)
	hasher.Write(c.ValueOut)
	hasher.Write(c.LedgerDigest)
	hasher.Write(c.Memo)
	api.AssertIsEqual(c.Commitments[0], hasher.Sum())

	// Value conservation: whatever is not re-committed leaves the
	// shielded pool as the public value balance.
	api.AssertIsEqual(c.ValueIn, api.Add(c.ValueOut, c.ValueBalance))

	// The public digests fold the full serial and commitment slot
	// arrays, unused slots included, so the digests pin the complete
	// declared sets.
	hasher.Reset()
	for i := range c.Serials {
		hasher.Write(c.Serials[i])
	}
	api.AssertIsEqual(c.SerialsDigest, hasher.Sum())

	hasher.Reset()
	for i := range c.Commitments {
		hasher.Write(c.Commitments[i])
	}
	api.AssertIsEqual(c.CommitmentsDigest, hasher.Sum())

	return nil
}

// poswCircuit is the statement behind the succinct work proof. The binding
// hash commits to every header field except the proof itself and is too
// wide for one field element, so it enters as two halves. The work
// commitment is the first segment of the proof blob; the nonce stays
// private, which forces miners to regenerate the proof for every attempt.
type poswCircuit struct {
	BindingHashHigh frontend.Variable `gnark:",public"`
	BindingHashLow  frontend.Variable `gnark:",public"`
	WorkCommitment  frontend.Variable `gnark:",public"`

	Nonce frontend.Variable
}

func (c *poswCircuit) Define(api frontend.API) error {
	hasher, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}

	hasher.Write(c.BindingHashHigh)
	hasher.Write(c.BindingHashLow)
	hasher.Write(c.Nonce)
	api.AssertIsEqual(c.WorkCommitment, hasher.Sum())

	return nil
}

// CompileTransferCircuit compiles the transfer statement over the
// BLS12-377 scalar field.
func CompileTransferCircuit() (constraint.ConstraintSystem, error) {
	return frontend.Compile(ecc.BLS12_377.ScalarField(), r1cs.NewBuilder, &transferCircuit{})
}

// CompilePoSWCircuit compiles the succinct work statement over the
// BLS12-377 scalar field.
func CompilePoSWCircuit() (constraint.ConstraintSystem, error) {
	return frontend.Compile(ecc.BLS12_377.ScalarField(), r1cs.NewBuilder, &poswCircuit{})
}
