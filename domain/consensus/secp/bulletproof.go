package secp

import (
	"encoding/binary"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	rangeProofBits   = 64
	rangeProofRounds = 6
	numProofPoints   = 4 + 2*rangeProofRounds
	numProofScalars  = 5
	scalarSize       = 32
	parityBytes      = (numProofPoints + 7) / 8

	// RangeProofSize is the size of a serialized 64 bit range proof.
	RangeProofSize = numProofScalars*scalarSize + parityBytes + numProofPoints*scalarSize

	// MaxRangeProofSize is the largest range proof accepted on the wire.
	MaxRangeProofSize = 675
)

// ErrInvalidRangeProof is returned when a range proof doesn't verify.
var ErrInvalidRangeProof = errors.New("invalid range proof")

// RangeProof is a serialized bulletproof showing that a commitment commits
// to a value in [0, 2^64).
type RangeProof []byte

type bulletproofGenerators struct {
	g []*secp256k1.JacobianPoint
	h []*secp256k1.JacobianPoint
	u *secp256k1.JacobianPoint
}

var (
	generators     *bulletproofGenerators
	generatorsOnce sync.Once
)

func getGenerators() *bulletproofGenerators {
	generatorsOnce.Do(func() {
		gens := &bulletproofGenerators{
			g: make([]*secp256k1.JacobianPoint, rangeProofBits),
			h: make([]*secp256k1.JacobianPoint, rangeProofBits),
			u: hashToCurve("mwcd/bulletproof/U", 0),
		}
		for i := 0; i < rangeProofBits; i++ {
			gens.g[i] = hashToCurve("mwcd/bulletproof/G", uint32(i))
			gens.h[i] = hashToCurve("mwcd/bulletproof/H", uint32(i))
		}
		generators = gens
	})
	return generators
}

// transcript derives Fiat-Shamir challenges from everything the prover
// sent so far.
type transcript struct {
	state [32]byte
}

func newTranscript(commitment *Commitment) *transcript {
	data := append([]byte("mwcd/bulletproof"), commitment[:]...)
	return &transcript{state: blake2b.Sum256(data)}
}

func (t *transcript) appendPoints(points ...*secp256k1.JacobianPoint) error {
	data := append([]byte{}, t.state[:]...)
	for _, point := range points {
		serialized, err := serializePoint(point)
		if err != nil {
			return err
		}
		data = append(data, serialized[:]...)
	}
	t.state = blake2b.Sum256(data)
	return nil
}

func (t *transcript) appendScalars(scalars ...*secp256k1.ModNScalar) {
	data := append([]byte{}, t.state[:]...)
	for _, scalar := range scalars {
		b := scalar.Bytes()
		data = append(data, b[:]...)
	}
	t.state = blake2b.Sum256(data)
}

func (t *transcript) challenge() (*secp256k1.ModNScalar, error) {
	var challenge secp256k1.ModNScalar
	challenge.SetByteSlice(t.state[:])
	t.state = blake2b.Sum256(append(t.state[:], 0x01))
	if challenge.IsZero() {
		return nil, errors.Wrap(ErrInvalidRangeProof, "zero challenge")
	}
	return &challenge, nil
}

func nonceScalar(seed *[32]byte, label string, index int) *secp256k1.ModNScalar {
	data := make([]byte, 0, len(seed)+len(label)+4)
	data = append(data, seed[:]...)
	data = append(data, label...)
	var indexBytes [4]byte
	binary.BigEndian.PutUint32(indexBytes[:], uint32(index))
	data = append(data, indexBytes[:]...)
	for {
		hash := blake2b.Sum256(data)
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(hash[:]); !overflow && !s.IsZero() {
			return &s
		}
		data = hash[:]
	}
}

func msm(scalars []*secp256k1.ModNScalar, points []*secp256k1.JacobianPoint) *secp256k1.JacobianPoint {
	var result secp256k1.JacobianPoint
	for i := range scalars {
		result = *addPoints(&result, mulPoint(scalars[i], points[i]))
	}
	return &result
}

func innerProduct(a, b []*secp256k1.ModNScalar) *secp256k1.ModNScalar {
	var result secp256k1.ModNScalar
	for i := range a {
		result.Add(new(secp256k1.ModNScalar).Mul2(a[i], b[i]))
	}
	return &result
}

func scalarPowers(base *secp256k1.ModNScalar, n int) []*secp256k1.ModNScalar {
	powers := make([]*secp256k1.ModNScalar, n)
	current := new(secp256k1.ModNScalar).SetInt(1)
	for i := 0; i < n; i++ {
		powers[i] = new(secp256k1.ModNScalar).Set(current)
		current.Mul(base)
	}
	return powers
}

func sumScalars(scalars []*secp256k1.ModNScalar) *secp256k1.ModNScalar {
	var result secp256k1.ModNScalar
	for _, s := range scalars {
		result.Add(s)
	}
	return &result
}

// ProveRange creates a range proof for the commitment value*H + blind*G.
// The proof is deterministic in its inputs.
func ProveRange(value uint64, blind *BlindingFactor) (RangeProof, error) {
	gamma, err := blind.scalar()
	if err != nil {
		return nil, err
	}
	commitment, err := Commit(value, blind)
	if err != nil {
		return nil, err
	}
	gens := getGenerators()

	seedData := append([]byte("mwcd/bulletproof/nonce"), blind[:]...)
	seedData = append(seedData, commitment[:]...)
	seed := blake2b.Sum256(seedData)

	one := new(secp256k1.ModNScalar).SetInt(1)
	aL := make([]*secp256k1.ModNScalar, rangeProofBits)
	aR := make([]*secp256k1.ModNScalar, rangeProofBits)
	sL := make([]*secp256k1.ModNScalar, rangeProofBits)
	sR := make([]*secp256k1.ModNScalar, rangeProofBits)
	for i := 0; i < rangeProofBits; i++ {
		aL[i] = new(secp256k1.ModNScalar).SetInt(uint32(value >> uint(i) & 1))
		aR[i] = new(secp256k1.ModNScalar).Add2(aL[i], new(secp256k1.ModNScalar).NegateVal(one))
		sL[i] = nonceScalar(&seed, "sL", i)
		sR[i] = nonceScalar(&seed, "sR", i)
	}
	alpha := nonceScalar(&seed, "alpha", 0)
	rho := nonceScalar(&seed, "rho", 0)

	bigA := addPoints(mulBase(alpha), addPoints(msm(aL, gens.g), msm(aR, gens.h)))
	bigS := addPoints(mulBase(rho), addPoints(msm(sL, gens.g), msm(sR, gens.h)))

	tr := newTranscript(&commitment)
	err = tr.appendPoints(bigA, bigS)
	if err != nil {
		return nil, err
	}
	y, err := tr.challenge()
	if err != nil {
		return nil, err
	}
	z, err := tr.challenge()
	if err != nil {
		return nil, err
	}
	zSquared := new(secp256k1.ModNScalar).SquareVal(z)
	negZ := new(secp256k1.ModNScalar).NegateVal(z)

	yPowers := scalarPowers(y, rangeProofBits)
	twoPowers := scalarPowers(new(secp256k1.ModNScalar).SetInt(2), rangeProofBits)

	l0 := make([]*secp256k1.ModNScalar, rangeProofBits)
	r0 := make([]*secp256k1.ModNScalar, rangeProofBits)
	r1 := make([]*secp256k1.ModNScalar, rangeProofBits)
	for i := 0; i < rangeProofBits; i++ {
		l0[i] = new(secp256k1.ModNScalar).Add2(aL[i], negZ)
		r0[i] = new(secp256k1.ModNScalar).Add2(aR[i], z)
		r0[i].Mul(yPowers[i])
		r0[i].Add(new(secp256k1.ModNScalar).Mul2(zSquared, twoPowers[i]))
		r1[i] = new(secp256k1.ModNScalar).Mul2(yPowers[i], sR[i])
	}
	t1 := new(secp256k1.ModNScalar).Add2(innerProduct(l0, r1), innerProduct(sL, r0))
	t2 := innerProduct(sL, r1)

	tau1 := nonceScalar(&seed, "tau1", 0)
	tau2 := nonceScalar(&seed, "tau2", 0)
	bigT1 := addPoints(mulPoint(t1, valueGenerator), mulBase(tau1))
	bigT2 := addPoints(mulPoint(t2, valueGenerator), mulBase(tau2))
	err = tr.appendPoints(bigT1, bigT2)
	if err != nil {
		return nil, err
	}
	x, err := tr.challenge()
	if err != nil {
		return nil, err
	}
	xSquared := new(secp256k1.ModNScalar).SquareVal(x)

	taux := new(secp256k1.ModNScalar).Mul2(tau2, xSquared)
	taux.Add(new(secp256k1.ModNScalar).Mul2(tau1, x))
	taux.Add(new(secp256k1.ModNScalar).Mul2(zSquared, gamma))
	mu := new(secp256k1.ModNScalar).Add2(alpha, new(secp256k1.ModNScalar).Mul2(rho, x))

	l := make([]*secp256k1.ModNScalar, rangeProofBits)
	r := make([]*secp256k1.ModNScalar, rangeProofBits)
	for i := 0; i < rangeProofBits; i++ {
		l[i] = new(secp256k1.ModNScalar).Add2(l0[i], new(secp256k1.ModNScalar).Mul2(sL[i], x))
		r[i] = new(secp256k1.ModNScalar).Add2(r0[i], new(secp256k1.ModNScalar).Mul2(r1[i], x))
	}
	t := innerProduct(l, r)
	tr.appendScalars(taux, mu, t)
	w, err := tr.challenge()
	if err != nil {
		return nil, err
	}
	q := mulPoint(w, gens.u)

	yInvPowers := scalarPowers(new(secp256k1.ModNScalar).InverseValNonConst(y), rangeProofBits)
	gVector := append([]*secp256k1.JacobianPoint{}, gens.g...)
	hVector := make([]*secp256k1.JacobianPoint, rangeProofBits)
	for i := range hVector {
		hVector[i] = mulPoint(yInvPowers[i], gens.h[i])
	}

	points := []*secp256k1.JacobianPoint{bigA, bigS, bigT1, bigT2}
	a, b := l, r
	for n := rangeProofBits / 2; n >= 1; n /= 2 {
		cL := innerProduct(a[:n], b[n:])
		cR := innerProduct(a[n:], b[:n])
		bigL := addPoints(addPoints(msm(a[:n], gVector[n:]), msm(b[n:], hVector[:n])), mulPoint(cL, q))
		bigR := addPoints(addPoints(msm(a[n:], gVector[:n]), msm(b[:n], hVector[n:])), mulPoint(cR, q))
		err = tr.appendPoints(bigL, bigR)
		if err != nil {
			return nil, err
		}
		u, err := tr.challenge()
		if err != nil {
			return nil, err
		}
		uInv := new(secp256k1.ModNScalar).InverseValNonConst(u)

		nextA := make([]*secp256k1.ModNScalar, n)
		nextB := make([]*secp256k1.ModNScalar, n)
		nextG := make([]*secp256k1.JacobianPoint, n)
		nextH := make([]*secp256k1.JacobianPoint, n)
		for i := 0; i < n; i++ {
			nextA[i] = new(secp256k1.ModNScalar).Add2(
				new(secp256k1.ModNScalar).Mul2(a[i], u), new(secp256k1.ModNScalar).Mul2(a[n+i], uInv))
			nextB[i] = new(secp256k1.ModNScalar).Add2(
				new(secp256k1.ModNScalar).Mul2(b[i], uInv), new(secp256k1.ModNScalar).Mul2(b[n+i], u))
			nextG[i] = addPoints(mulPoint(uInv, gVector[i]), mulPoint(u, gVector[n+i]))
			nextH[i] = addPoints(mulPoint(u, hVector[i]), mulPoint(uInv, hVector[n+i]))
		}
		a, b, gVector, hVector = nextA, nextB, nextG, nextH
		points = append(points, bigL, bigR)
	}

	return serializeRangeProof([]*secp256k1.ModNScalar{taux, mu, t, a[0], b[0]}, points)
}

func serializeRangeProof(scalars []*secp256k1.ModNScalar, points []*secp256k1.JacobianPoint) (RangeProof, error) {
	proof := make([]byte, RangeProofSize)
	offset := 0
	for _, s := range scalars {
		s.PutBytesUnchecked(proof[offset : offset+scalarSize])
		offset += scalarSize
	}
	parity := proof[offset : offset+parityBytes]
	offset += parityBytes
	for i, point := range points {
		serialized, err := serializePoint(point)
		if err != nil {
			return nil, err
		}
		if serialized[0] == 0x03 {
			parity[i/8] |= 1 << uint(i%8)
		}
		copy(proof[offset:offset+scalarSize], serialized[1:])
		offset += scalarSize
	}
	return proof, nil
}

func parseRangeProof(proof RangeProof) ([]*secp256k1.ModNScalar, []*secp256k1.JacobianPoint, error) {
	if len(proof) != RangeProofSize {
		return nil, nil, errors.Wrapf(ErrInvalidRangeProof, "proof length %d, expected %d", len(proof), RangeProofSize)
	}
	scalars := make([]*secp256k1.ModNScalar, numProofScalars)
	offset := 0
	for i := range scalars {
		scalars[i] = new(secp256k1.ModNScalar)
		if overflow := scalars[i].SetByteSlice(proof[offset : offset+scalarSize]); overflow {
			return nil, nil, errors.Wrap(ErrInvalidRangeProof, "scalar overflow")
		}
		offset += scalarSize
	}
	parity := proof[offset : offset+parityBytes]
	offset += parityBytes
	points := make([]*secp256k1.JacobianPoint, numProofPoints)
	for i := range points {
		var x, y secp256k1.FieldVal
		if overflow := x.SetByteSlice(proof[offset : offset+scalarSize]); overflow {
			return nil, nil, errors.Wrap(ErrInvalidRangeProof, "point coordinate overflow")
		}
		odd := parity[i/8]>>uint(i%8)&1 == 1
		if !secp256k1.DecompressY(&x, odd, &y) {
			return nil, nil, errors.Wrap(ErrInvalidRangeProof, "point not on curve")
		}
		y.Normalize()
		points[i] = &secp256k1.JacobianPoint{}
		points[i].X.Set(&x)
		points[i].Y.Set(&y)
		points[i].Z.SetInt(1)
		offset += scalarSize
	}
	return scalars, points, nil
}

// VerifyRangeProof checks that proof shows the value committed to by
// commitment lies in [0, 2^64).
func VerifyRangeProof(commitment *Commitment, proof RangeProof) error {
	bigV, err := commitment.point()
	if err != nil {
		return errors.Wrap(ErrInvalidRangeProof, err.Error())
	}
	scalars, points, err := parseRangeProof(proof)
	if err != nil {
		return err
	}
	taux, mu, t, a, b := scalars[0], scalars[1], scalars[2], scalars[3], scalars[4]
	bigA, bigS, bigT1, bigT2 := points[0], points[1], points[2], points[3]
	gens := getGenerators()

	tr := newTranscript(commitment)
	err = tr.appendPoints(bigA, bigS)
	if err != nil {
		return err
	}
	y, err := tr.challenge()
	if err != nil {
		return err
	}
	z, err := tr.challenge()
	if err != nil {
		return err
	}
	err = tr.appendPoints(bigT1, bigT2)
	if err != nil {
		return err
	}
	x, err := tr.challenge()
	if err != nil {
		return err
	}
	tr.appendScalars(taux, mu, t)
	w, err := tr.challenge()
	if err != nil {
		return err
	}

	zSquared := new(secp256k1.ModNScalar).SquareVal(z)
	zCubed := new(secp256k1.ModNScalar).Mul2(zSquared, z)
	xSquared := new(secp256k1.ModNScalar).SquareVal(x)
	yPowers := scalarPowers(y, rangeProofBits)
	twoPowers := scalarPowers(new(secp256k1.ModNScalar).SetInt(2), rangeProofBits)

	// delta(y, z) = (z - z^2) * <1, y^n> - z^3 * <1, 2^n>
	delta := new(secp256k1.ModNScalar).Add2(z, new(secp256k1.ModNScalar).NegateVal(zSquared))
	delta.Mul(sumScalars(yPowers))
	delta.Add(new(secp256k1.ModNScalar).NegateVal(new(secp256k1.ModNScalar).Mul2(zCubed, sumScalars(twoPowers))))

	left := addPoints(mulPoint(t, valueGenerator), mulBase(taux))
	right := addPoints(mulPoint(zSquared, bigV), mulPoint(delta, valueGenerator))
	right = addPoints(right, addPoints(mulPoint(x, bigT1), mulPoint(xSquared, bigT2)))
	if !pointsEqual(left, right) {
		return errors.Wrap(ErrInvalidRangeProof, "polynomial commitment mismatch")
	}

	q := mulPoint(w, gens.u)
	yInvPowers := scalarPowers(new(secp256k1.ModNScalar).InverseValNonConst(y), rangeProofBits)
	negZ := new(secp256k1.ModNScalar).NegateVal(z)

	// P = A + x*S - z*<1, G> + <z + z^2 * 2^i * y^-i, H> - mu*G + t*Q
	gScalars := make([]*secp256k1.ModNScalar, rangeProofBits)
	hScalars := make([]*secp256k1.ModNScalar, rangeProofBits)
	for i := 0; i < rangeProofBits; i++ {
		gScalars[i] = negZ
		hScalars[i] = new(secp256k1.ModNScalar).Mul2(zSquared, twoPowers[i])
		hScalars[i].Mul(yInvPowers[i])
		hScalars[i].Add(z)
	}
	p := addPoints(bigA, mulPoint(x, bigS))
	p = addPoints(p, addPoints(msm(gScalars, gens.g), msm(hScalars, gens.h)))
	p = addPoints(p, negatePoint(mulBase(mu)))
	p = addPoints(p, mulPoint(t, q))

	challenges := make([]*secp256k1.ModNScalar, rangeProofRounds)
	challengeInverses := make([]*secp256k1.ModNScalar, rangeProofRounds)
	for j := 0; j < rangeProofRounds; j++ {
		bigL, bigR := points[4+2*j], points[5+2*j]
		err = tr.appendPoints(bigL, bigR)
		if err != nil {
			return err
		}
		u, err := tr.challenge()
		if err != nil {
			return err
		}
		uInv := new(secp256k1.ModNScalar).InverseValNonConst(u)
		challenges[j], challengeInverses[j] = u, uInv
		p = addPoints(p, mulPoint(new(secp256k1.ModNScalar).SquareVal(u), bigL))
		p = addPoints(p, mulPoint(new(secp256k1.ModNScalar).SquareVal(uInv), bigR))
	}

	// The folded generators are G_final = sum(s_i * G_i) and
	// H_final = sum(s_i^-1 * y^-i * H_i), where s_i multiplies u_j for each
	// round j whose bit of i is set and u_j^-1 otherwise.
	finalGScalars := make([]*secp256k1.ModNScalar, rangeProofBits)
	finalHScalars := make([]*secp256k1.ModNScalar, rangeProofBits)
	for i := 0; i < rangeProofBits; i++ {
		s := new(secp256k1.ModNScalar).SetInt(1)
		sInv := new(secp256k1.ModNScalar).SetInt(1)
		for j := 0; j < rangeProofRounds; j++ {
			if i>>uint(rangeProofRounds-1-j)&1 == 1 {
				s.Mul(challenges[j])
				sInv.Mul(challengeInverses[j])
			} else {
				s.Mul(challengeInverses[j])
				sInv.Mul(challenges[j])
			}
		}
		finalGScalars[i] = s.Mul(a)
		finalHScalars[i] = sInv.Mul(b).Mul(yInvPowers[i])
	}
	expected := addPoints(msm(finalGScalars, gens.g), msm(finalHScalars, gens.h))
	expected = addPoints(expected, mulPoint(new(secp256k1.ModNScalar).Mul2(a, b), q))
	if !pointsEqual(p, expected) {
		return errors.Wrap(ErrInvalidRangeProof, "inner product argument mismatch")
	}
	return nil
}
