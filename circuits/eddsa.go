package circuits

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards"
	"github.com/consensys/gnark-crypto/ecc/bn254/twistededwards/eddsa"
)

// Signature is an EdDSA signature over the BN254 twisted Edwards curve,
// usable in the circuit (frontend.Variable) and natively (*big.Int).
type Signature[T any] struct {
	RX T
	RY T
	S  T
}

// NewEmptySignature returns the signature used where none is required.
func NewEmptySignature() Signature[*big.Int] {
	return Signature[*big.Int]{RX: big.NewInt(0), RY: big.NewInt(1), S: big.NewInt(0)}
}

// SignatureFromBytes parses a signature serialized by gnark-crypto (the
// compressed R point followed by S). An empty input returns the empty
// signature.
func SignatureFromBytes(data []byte) (Signature[*big.Int], error) {
	if len(data) == 0 {
		return NewEmptySignature(), nil
	}
	var sig eddsa.Signature
	if _, err := sig.SetBytes(data); err != nil {
		return Signature[*big.Int]{}, fmt.Errorf("invalid signature: %w", err)
	}
	return Signature[*big.Int]{
		RX: sig.R.X.BigInt(new(big.Int)),
		RY: sig.R.Y.BigInt(new(big.Int)),
		S:  new(big.Int).SetBytes(sig.S[:]),
	}, nil
}

// SignMessage signs a field element with MiMC as the challenge hash, which
// is what the circuits verify, and returns the serialized signature.
func SignMessage(key *eddsa.PrivateKey, msg *big.Int) ([]byte, error) {
	var e fr.Element
	e.SetBigInt(msg)
	b := e.Bytes()
	return key.Sign(b[:], mimc.NewMiMC())
}

// VerifyMessage checks a serialized signature of a field element.
func VerifyMessage(pubKeyX, pubKeyY *big.Int, msg *big.Int, sig []byte) (bool, error) {
	var pub eddsa.PublicKey
	pub.A.X.SetBigInt(pubKeyX)
	pub.A.Y.SetBigInt(pubKeyY)
	var e fr.Element
	e.SetBigInt(msg)
	b := e.Bytes()
	return pub.Verify(sig, b[:], mimc.NewMiMC())
}

// PublicKeyCoordinates returns the affine coordinates of the public key.
func PublicKeyCoordinates(key *eddsa.PrivateKey) (*big.Int, *big.Int) {
	return key.PublicKey.A.X.BigInt(new(big.Int)), key.PublicKey.A.Y.BigInt(new(big.Int))
}

// CompressPublicKey returns the 32 bytes compressed form of a point: y big
// endian with the sign of x in the most significant bit. gnark-crypto
// serializes the same bits little endian.
func CompressPublicKey(x, y *big.Int) []byte {
	var p twistededwards.PointAffine
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	b := p.Bytes()
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// IsOnCurve reports whether (x, y) is a point of the curve.
func IsOnCurve(x, y *big.Int) bool {
	var p twistededwards.PointAffine
	p.X.SetBigInt(x)
	p.Y.SetBigInt(y)
	return p.IsOnCurve()
}
