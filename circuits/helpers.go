package circuits

import (
	"fmt"
	"math/big"
	"os"

	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/vocdoni/zk-exchange/log"
)

// FrontendError function is an in-circuit function to print an error message
// and an error trace, making the circuit fail.
func FrontendError(api frontend.API, msg string, trace error) {
	err := fmt.Errorf("%s", msg)
	if trace != nil {
		err = fmt.Errorf("%w: %v", err, trace)
	}
	api.Println(err.Error())
	api.AssertIsEqual(1, 0)
}

// StoreConstraintSystem stores the constraint system in a file.
func StoreConstraintSystem(cs constraint.ConstraintSystem, filepath string) error {
	// persist the constraint system
	csFd, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer csFd.Close()
	if _, err := cs.WriteTo(csFd); err != nil {
		return err
	}
	log.Infow("constraint system stored", "path", filepath, "constraints", cs.GetNbConstraints())
	return nil
}

// StoreWitness stores the witness in a file.
func StoreWitness(witness witness.Witness, filepath string) error {
	// persist the witness
	witnessFd, err := os.Create(filepath)
	if err != nil {
		return err
	}
	defer witnessFd.Close()
	bWitness, err := witness.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := witnessFd.Write(bWitness); err != nil {
		return err
	}
	log.Infow("witness stored", "path", filepath)
	return nil
}

// BoolToBigInt returns 1 when b is true or 0 otherwise
func BoolToBigInt(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}
