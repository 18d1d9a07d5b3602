package snark

import (
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/pkg/errors"

	"github.com/umbranet/umbrad/util/chainhash"
)

const (
	transferProvingKeyFilename   = "transfer.pk"
	transferVerifyingKeyFilename = "transfer.vk"
	poswProvingKeyFilename       = "posw.pk"
	poswVerifyingKeyFilename     = "posw.vk"
)

// Params holds the Groth16 parameters for both network circuits. The
// verifying keys are all a validating node needs; the proving keys are
// kept alongside them so provers on the same host can build transfers and
// work proofs against the identical parameter set.
type Params struct {
	TransferProvingKey   groth16.ProvingKey
	TransferVerifyingKey groth16.VerifyingKey
	PoSWProvingKey       groth16.ProvingKey
	PoSWVerifyingKey     groth16.VerifyingKey
}

// SetupOrLoadParams loads the circuit parameters from paramsDir, running
// the Groth16 setup and persisting the result when no parameter files
// exist yet. The setup is randomized, so parameters generated on different
// hosts do not verify each other's proofs; a network deployment ships one
// parameter set and every node loads it.
func SetupOrLoadParams(paramsDir string) (*Params, error) {
	params, err := loadParams(paramsDir)
	if err == nil {
		log.Infof("Loaded proof system parameters with fingerprint %s",
			params.fingerprint())
		return params, nil
	}
	if !os.IsNotExist(errors.Cause(err)) {
		return nil, err
	}

	log.Infof("Generating proof system parameters in %s, this is a "+
		"one-time operation that can take a few minutes", paramsDir)
	params, err = GenerateParams()
	if err != nil {
		return nil, err
	}
	err = saveParams(paramsDir, params)
	if err != nil {
		return nil, err
	}
	log.Infof("Proof system parameters ready, fingerprint %s",
		params.fingerprint())
	return params, nil
}

// fingerprint hashes both verifying keys. Every node on a network must run
// the same parameter set, so a mismatch shows up as differing fingerprints
// in the logs.
func (params *Params) fingerprint() chainhash.Hash {
	writer := chainhash.NewHashWriter()
	_, _ = params.TransferVerifyingKey.WriteTo(writer)
	_, _ = params.PoSWVerifyingKey.WriteTo(writer)
	return writer.Finalize()
}

// GenerateParams compiles both circuits and runs the Groth16 setup over
// them, returning parameters that exist only in memory.
func GenerateParams() (*Params, error) {
	transferConstraints, err := CompileTransferCircuit()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile the transfer circuit")
	}
	transferProvingKey, transferVerifyingKey, err := groth16.Setup(transferConstraints)
	if err != nil {
		return nil, errors.Wrap(err, "groth16 setup failed for the transfer circuit")
	}

	poswConstraints, err := CompilePoSWCircuit()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile the work circuit")
	}
	poswProvingKey, poswVerifyingKey, err := groth16.Setup(poswConstraints)
	if err != nil {
		return nil, errors.Wrap(err, "groth16 setup failed for the work circuit")
	}

	return &Params{
		TransferProvingKey:   transferProvingKey,
		TransferVerifyingKey: transferVerifyingKey,
		PoSWProvingKey:       poswProvingKey,
		PoSWVerifyingKey:     poswVerifyingKey,
	}, nil
}

func loadParams(paramsDir string) (*Params, error) {
	transferProvingKey, err := readProvingKey(
		filepath.Join(paramsDir, transferProvingKeyFilename))
	if err != nil {
		return nil, err
	}
	transferVerifyingKey, err := readVerifyingKey(
		filepath.Join(paramsDir, transferVerifyingKeyFilename))
	if err != nil {
		return nil, err
	}
	poswProvingKey, err := readProvingKey(
		filepath.Join(paramsDir, poswProvingKeyFilename))
	if err != nil {
		return nil, err
	}
	poswVerifyingKey, err := readVerifyingKey(
		filepath.Join(paramsDir, poswVerifyingKeyFilename))
	if err != nil {
		return nil, err
	}

	return &Params{
		TransferProvingKey:   transferProvingKey,
		TransferVerifyingKey: transferVerifyingKey,
		PoSWProvingKey:       poswProvingKey,
		PoSWVerifyingKey:     poswVerifyingKey,
	}, nil
}

func saveParams(paramsDir string, params *Params) error {
	err := os.MkdirAll(paramsDir, 0700)
	if err != nil {
		return errors.WithStack(err)
	}

	err = writeKey(filepath.Join(paramsDir, transferProvingKeyFilename),
		params.TransferProvingKey)
	if err != nil {
		return err
	}
	err = writeKey(filepath.Join(paramsDir, transferVerifyingKeyFilename),
		params.TransferVerifyingKey)
	if err != nil {
		return err
	}
	err = writeKey(filepath.Join(paramsDir, poswProvingKeyFilename),
		params.PoSWProvingKey)
	if err != nil {
		return err
	}
	return writeKey(filepath.Join(paramsDir, poswVerifyingKeyFilename),
		params.PoSWVerifyingKey)
}

func readProvingKey(path string) (groth16.ProvingKey, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	provingKey := groth16.NewProvingKey(ecc.BLS12_377)
	_, err = provingKey.ReadFrom(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read proving key from %s", path)
	}
	return provingKey, nil
}

func readVerifyingKey(path string) (groth16.VerifyingKey, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()

	verifyingKey := groth16.NewVerifyingKey(ecc.BLS12_377)
	_, err = verifyingKey.ReadFrom(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read verifying key from %s", path)
	}
	return verifyingKey, nil
}

func writeKey(path string, key io.WriterTo) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer file.Close()

	_, err = key.WriteTo(file)
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
