package lending

import (
	"math/big"

	nativecommon "nexum/native/common"
)

// SecondsPerYear is the Julian year used for simple interest.
const SecondsPerYear uint64 = 31_557_600

const basisPointsDenominator uint64 = nativecommon.BasisPoints

var interestDenominator = new(big.Int).Mul(
	new(big.Int).SetUint64(SecondsPerYear),
	new(big.Int).SetUint64(basisPointsDenominator),
)

// simpleInterest returns floor(principal*rate*elapsed/(SecondsPerYear*10000)).
func simpleInterest(principal *big.Int, rateBps, elapsed uint64) (*big.Int, error) {
	if elapsed == 0 || rateBps == 0 || nativecommon.Amount(principal).Sign() == 0 {
		return big.NewInt(0), nil
	}
	factor := new(big.Int).Mul(new(big.Int).SetUint64(rateBps), new(big.Int).SetUint64(elapsed))
	return nativecommon.MulDiv(principal, factor, interestDenominator)
}

// pendingInterest projects the interest accrued since the last update. A
// clock that moved backwards accrues nothing.
func pendingInterest(loan *Loan, now uint64) (*big.Int, error) {
	if loan == nil || now <= loan.LastInterestUpdate {
		return big.NewInt(0), nil
	}
	return simpleInterest(loan.Principal, loan.InterestRate, now-loan.LastInterestUpdate)
}

// accrue folds pending interest into the loan and advances its timestamp.
func accrue(loan *Loan, now uint64) (*big.Int, error) {
	if loan == nil || now <= loan.LastInterestUpdate {
		return big.NewInt(0), nil
	}
	interest, err := pendingInterest(loan, now)
	if err != nil {
		return nil, err
	}
	accrued, err := nativecommon.CheckedAdd(loan.AccruedInterest, interest)
	if err != nil {
		return nil, err
	}
	loan.AccruedInterest = accrued
	loan.LastInterestUpdate = now
	return interest, nil
}

// collateralValue discounts a receivable's face value by its risk score.
func collateralValue(faceValue *big.Int, riskScore, riskDiscountFactor uint64) (*big.Int, error) {
	riskDiscount, err := nativecommon.MulDivBps(new(big.Int).SetUint64(riskScore), riskDiscountFactor)
	if err != nil {
		return nil, err
	}
	effective := nativecommon.SaturatingSub(new(big.Int).SetUint64(basisPointsDenominator), riskDiscount)
	return nativecommon.MulDiv(faceValue, effective, big.NewInt(nativecommon.BasisPoints))
}
