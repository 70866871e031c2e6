package state

import (
	"fmt"
	"math/big"

	"github.com/vocdoni/zk-exchange/circuits"
	"github.com/vocdoni/zk-exchange/types"
)

type (
	accountLeaf      = circuits.Account[*big.Int]
	balanceLeaf      = circuits.Balance[*big.Int]
	tradeHistoryLeaf = circuits.TradeHistory[*big.Int]
)

// TxWitness is the result of applying a transaction: every leaf the
// circuit updates, in the order it updates them, and the values the
// transaction publishes.
type TxWitness struct {
	Type types.TxType
	Tx   types.Transaction

	TradeHistoryA *LeafUpdate[tradeHistoryLeaf]
	BalanceAS     *LeafUpdate[balanceLeaf]
	BalanceAB     *LeafUpdate[balanceLeaf]
	AccountA      *LeafUpdate[accountLeaf]
	TradeHistoryB *LeafUpdate[tradeHistoryLeaf]
	BalanceBS     *LeafUpdate[balanceLeaf]
	BalanceBB     *LeafUpdate[balanceLeaf]
	AccountB      *LeafUpdate[accountLeaf]
	BalancePA     *LeafUpdate[balanceLeaf]
	BalancePB     *LeafUpdate[balanceLeaf]
	BalanceOA     *LeafUpdate[balanceLeaf]
	BalanceOB     *LeafUpdate[balanceLeaf]

	SignatureA circuits.Signature[*big.Int]
	SignatureB circuits.Signature[*big.Int]

	// float encoded values: the amount of a withdrawal or a transfer, the
	// fee of every type paying one and the fills of a spot trade
	AmountFloat uint64
	FeeFloat    uint64
	FillSA      uint64
	FillSB      uint64

	// Conditional is 1 when the transaction is authorized on-chain.
	Conditional uint32
	// PublicData is the type byte followed by the data of the transaction,
	// TxDataAvailabilitySize bytes.
	PublicData []byte
}

// side is what a transaction changes on one of its two accounts. A zero
// side leaves account 0 untouched.
type side struct {
	account      uint32
	tokenS       uint32
	tokenB       uint32
	slot         uint32
	tradeHistory func(tradeHistoryLeaf) tradeHistoryLeaf
	deltasS      []*big.Int
	deltasB      []*big.Int
	update       func(accountLeaf) accountLeaf
}

// txPlan is a transaction resolved against the state before it.
type txPlan struct {
	a, b                                side
	poolA, poolB, operatorA, operatorB  []*big.Int
	sigA, sigB                          circuits.Signature[*big.Int]
	amountFloat, feeFloat, fillA, fillB uint64
	conditional                         uint32
	data                                bitWriter
}

// blockContext are the block parameters transactions depend on.
type blockContext struct {
	exchangeID        uint32
	timestamp         uint32
	takerFeeBips      uint8
	makerFeeBips      uint8
	operatorAccountID uint32
}

// applyTransaction applies a transaction and returns its witness.
func (s *State) applyTransaction(ctx *blockContext, tx *types.Transaction) (*TxWitness, error) {
	typ, err := tx.Type()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	var plan *txPlan
	switch typ {
	case types.TxTypeNoop:
		plan = &txPlan{}
	case types.TxTypeDeposit:
		plan, err = s.planDeposit(ctx, tx.Deposit)
	case types.TxTypeWithdraw:
		plan, err = s.planWithdraw(ctx, tx.Withdraw)
	case types.TxTypeTransfer:
		plan, err = s.planTransfer(ctx, tx.Transfer)
	case types.TxTypeSpotTrade:
		plan, err = s.planSpotTrade(ctx, tx.SpotTrade)
	case types.TxTypeNewAccount:
		plan, err = s.planNewAccount(ctx, tx.NewAccount)
	case types.TxTypePublicKeyUpdate:
		plan, err = s.planPublicKeyUpdate(ctx, tx.PublicKeyUpdate)
	case types.TxTypeOwnerChange:
		plan, err = s.planOwnerChange(ctx, tx.OwnerChange)
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrInvalidTransaction, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	w, err := s.apply(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	w.Type, w.Tx = typ, *tx
	data := bitWriter{}
	data.addUint(uint64(typ), circuits.NumBitsTxType)
	data.addBytes(plan.data.padded(circuits.TxDataSize))
	w.PublicData = data.data
	return w, nil
}

// apply writes the plan in the order of the circuit: trading history,
// balances and account of A, the same for B, then the protocol pool and the
// operator balances.
func (s *State) apply(ctx *blockContext, p *txPlan) (*TxWitness, error) {
	w := &TxWitness{
		SignatureA:  p.sigA,
		SignatureB:  p.sigB,
		AmountFloat: p.amountFloat,
		FeeFloat:    p.feeFloat,
		FillSA:      p.fillA,
		FillSB:      p.fillB,
		Conditional: p.conditional,
	}
	if w.SignatureA.S == nil {
		w.SignatureA = circuits.NewEmptySignature()
	}
	if w.SignatureB.S == nil {
		w.SignatureB = circuits.NewEmptySignature()
	}
	var err error
	if w.TradeHistoryA, w.BalanceAS, w.BalanceAB, w.AccountA, err = s.applySide(&p.a); err != nil {
		return nil, fmt.Errorf("account %d: %w", p.a.account, err)
	}
	if w.TradeHistoryB, w.BalanceBS, w.BalanceBB, w.AccountB, err = s.applySide(&p.b); err != nil {
		return nil, fmt.Errorf("account %d: %w", p.b.account, err)
	}
	if w.BalancePA, err = s.applyVirtual(circuits.ProtocolPoolAccountID, p.a.tokenB, p.poolA); err != nil {
		return nil, fmt.Errorf("protocol pool: %w", err)
	}
	if w.BalancePB, err = s.applyVirtual(circuits.ProtocolPoolAccountID, p.b.tokenB, p.poolB); err != nil {
		return nil, fmt.Errorf("protocol pool: %w", err)
	}
	if w.BalanceOA, err = s.applyVirtual(ctx.operatorAccountID, p.a.tokenB, p.operatorA); err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	if w.BalanceOB, err = s.applyVirtual(ctx.operatorAccountID, p.b.tokenB, p.operatorB); err != nil {
		return nil, fmt.Errorf("operator: %w", err)
	}
	return w, nil
}

func (s *State) applySide(sd *side) (
	*LeafUpdate[tradeHistoryLeaf], *LeafUpdate[balanceLeaf], *LeafUpdate[balanceLeaf], *LeafUpdate[accountLeaf], error,
) {
	thTree := s.tradeHistoryTree(sd.account, sd.tokenS)
	th, err := updateLeaf(thTree, uint64(sd.slot), circuits.NewTradeHistory(),
		func(l tradeHistoryLeaf) (tradeHistoryLeaf, error) {
			if sd.tradeHistory != nil {
				return sd.tradeHistory(l), nil
			}
			return l, nil
		})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	balances := s.balancesTree(sd.account)
	balS, err := updateLeaf(balances, uint64(sd.tokenS), circuits.NewBalance(),
		func(l balanceLeaf) (balanceLeaf, error) {
			v, err := applyDeltas(l.Balance, sd.deltasS)
			if err != nil {
				return l, fmt.Errorf("token %d: %w", sd.tokenS, err)
			}
			l.Balance, l.TradingHistoryRoot = v, th.RootAfter
			return l, nil
		})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	balB, err := updateLeaf(balances, uint64(sd.tokenB), circuits.NewBalance(),
		func(l balanceLeaf) (balanceLeaf, error) {
			v, err := applyDeltas(l.Balance, sd.deltasB)
			if err != nil {
				return l, fmt.Errorf("token %d: %w", sd.tokenB, err)
			}
			l.Balance = v
			return l, nil
		})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	acc, err := updateLeaf(s.accountsTree(), uint64(sd.account), circuits.NewAccount(),
		func(l accountLeaf) (accountLeaf, error) {
			if sd.update != nil {
				l = sd.update(l)
			}
			l.BalancesRoot = balB.RootAfter
			return l, nil
		})
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return th, balS, balB, acc, nil
}

func (s *State) applyVirtual(accountID, tokenID uint32, deltas []*big.Int) (*LeafUpdate[balanceLeaf], error) {
	tree, err := s.virtualBalancesTree(accountID)
	if err != nil {
		return nil, err
	}
	return updateLeaf(tree, uint64(tokenID), circuits.NewBalance(),
		func(l balanceLeaf) (balanceLeaf, error) {
			v, err := applyDeltas(l.Balance, deltas)
			if err != nil {
				return l, fmt.Errorf("token %d: %w", tokenID, err)
			}
			l.Balance = v
			return l, nil
		})
}

// applyDeltas adds the deltas in order, every intermediate value must be a
// valid amount.
func applyDeltas(balance *big.Int, deltas []*big.Int) (*big.Int, error) {
	v := new(big.Int).Set(balance)
	for _, d := range deltas {
		v.Add(v, d)
		if v.Sign() < 0 {
			return nil, fmt.Errorf("%w: insufficient balance", ErrInvalidTransaction)
		}
		if v.Cmp(circuits.MaxAmount) > 0 {
			return nil, fmt.Errorf("%w: balance overflow", ErrInvalidTransaction)
		}
	}
	return v, nil
}

func neg(v *big.Int) *big.Int {
	return new(big.Int).Neg(v)
}

func incNonce(nonce *big.Int, by uint32) *big.Int {
	return new(big.Int).Add(nonce, u64(by))
}

// userAccount checks that a transaction can touch an account directly: the
// protocol pool and the operator balances are only changed through fees.
func userAccount(ctx *blockContext, id uint32) error {
	if err := checkRange("account", id, circuits.NumBitsAccount); err != nil {
		return err
	}
	if id == circuits.ProtocolPoolAccountID {
		return fmt.Errorf("%w: the protocol pool account can't be used", ErrInvalidTransaction)
	}
	if id == ctx.operatorAccountID {
		return fmt.Errorf("%w: the operator account can't be used", ErrInvalidTransaction)
	}
	return nil
}

func checkTokens(tokens ...uint32) error {
	for _, t := range tokens {
		if err := checkRange("token", t, circuits.NumBitsToken); err != nil {
			return err
		}
	}
	return nil
}

func checkAmount(name string, v *big.Int) error {
	if v.Sign() < 0 || v.Cmp(circuits.MaxAmount) > 0 {
		return fmt.Errorf("%w: %s %s out of range", ErrInvalidTransaction, name, v)
	}
	return nil
}

func checkSubtype(t uint8) (uint32, error) {
	switch t {
	case types.AuthSignature, types.AuthConditional:
		return uint32(t), nil
	}
	return 0, fmt.Errorf("%w: unknown subtype %d", ErrInvalidTransaction, t)
}

// encodeFloat float encodes an amount and checks the decoded value is
// accurate enough.
func encodeFloat(name string, v *big.Int, enc circuits.FloatEncoding, acc circuits.Accuracy) (uint64, *big.Int, error) {
	encoded, err := enc.Encode(v)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s: %v", ErrInvalidTransaction, name, err)
	}
	decoded := enc.Decode(encoded)
	if !acc.Check(decoded, v) {
		return 0, nil, fmt.Errorf("%w: %s %s can't be encoded accurately", ErrInvalidTransaction, name, v)
	}
	return encoded, decoded, nil
}

// verifySignature checks the signature of msg by the key of an account and
// returns it parsed.
func verifySignature(acc accountLeaf, msg *big.Int, sig []byte) (circuits.Signature[*big.Int], error) {
	if len(sig) == 0 {
		return circuits.Signature[*big.Int]{}, fmt.Errorf("%w: missing signature", ErrInvalidTransaction)
	}
	if !circuits.IsOnCurve(acc.PublicKeyX, acc.PublicKeyY) || acc.PublicKeyX.Sign() == 0 {
		return circuits.Signature[*big.Int]{}, fmt.Errorf("%w: account has no public key", ErrInvalidTransaction)
	}
	ok, err := circuits.VerifyMessage(acc.PublicKeyX, acc.PublicKeyY, msg, sig)
	if err != nil || !ok {
		return circuits.Signature[*big.Int]{}, fmt.Errorf("%w: bad signature", ErrInvalidTransaction)
	}
	return circuits.SignatureFromBytes(sig)
}

func checkPublicKey(pk types.PublicKey) (*big.Int, *big.Int, error) {
	x, y := pk.X.MathBigInt(), pk.Y.MathBigInt()
	if !circuits.IsOnCurve(x, y) {
		return nil, nil, fmt.Errorf("%w: public key not on curve", ErrInvalidTransaction)
	}
	return x, y, nil
}

func (s *State) planDeposit(ctx *blockContext, d *types.Deposit) (*txPlan, error) {
	if err := userAccount(ctx, d.AccountID); err != nil {
		return nil, err
	}
	if err := checkTokens(d.TokenID); err != nil {
		return nil, err
	}
	amount := d.Amount.MathBigInt()
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	acc, err := s.Account(d.AccountID)
	if err != nil {
		return nil, err
	}
	owner := AddressToBigInt(d.Owner)
	if acc.Owner.Sign() != 0 && acc.Owner.Cmp(owner) != 0 {
		return nil, fmt.Errorf("%w: owner mismatch", ErrInvalidTransaction)
	}
	p := &txPlan{conditional: 1}
	p.a = side{
		account: d.AccountID,
		tokenS:  d.TokenID,
		deltasS: []*big.Int{amount},
		update: func(l accountLeaf) accountLeaf {
			l.Owner = owner
			return l
		},
	}
	p.data.add(owner, circuits.NumBitsAddress)
	p.data.addUint(uint64(d.AccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(d.TokenID), circuits.NumBitsToken)
	p.data.add(amount, circuits.NumBitsAmount)
	return p, nil
}

func (s *State) planWithdraw(ctx *blockContext, wd *types.Withdraw) (*txPlan, error) {
	conditional, err := checkSubtype(wd.Type)
	if err != nil {
		return nil, err
	}
	if err := userAccount(ctx, wd.AccountID); err != nil {
		return nil, err
	}
	if err := checkTokens(wd.TokenID, wd.FeeTokenID); err != nil {
		return nil, err
	}
	amount, fee := wd.Amount.MathBigInt(), wd.Fee.MathBigInt()
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	if err := checkAmount("fee", fee); err != nil {
		return nil, err
	}
	if conditional == 1 && fee.Sign() != 0 {
		return nil, fmt.Errorf("%w: conditional withdrawals can't pay a fee", ErrInvalidTransaction)
	}
	acc, err := s.Account(wd.AccountID)
	if err != nil {
		return nil, err
	}
	bal, err := s.Balance(wd.AccountID, wd.TokenID)
	if err != nil {
		return nil, err
	}
	p := &txPlan{conditional: conditional}
	var withdrawn, feeValue *big.Int
	if p.amountFloat, withdrawn, err = encodeFloat("amount", minBig(amount, bal.Balance),
		circuits.Float28Encoding, circuits.Float28Accuracy); err != nil {
		return nil, err
	}
	if p.feeFloat, feeValue, err = encodeFloat("fee", fee, circuits.Float16Encoding, circuits.Float16Accuracy); err != nil {
		return nil, err
	}
	if conditional == 0 {
		msg, err := WithdrawHash(ctx.exchangeID, wd, acc.Nonce)
		if err != nil {
			return nil, err
		}
		if p.sigA, err = verifySignature(acc, msg, wd.Signature); err != nil {
			return nil, err
		}
	}
	p.a = side{
		account: wd.AccountID,
		tokenS:  wd.TokenID,
		tokenB:  wd.FeeTokenID,
		deltasS: []*big.Int{neg(withdrawn)},
		deltasB: []*big.Int{neg(feeValue)},
		update: func(l accountLeaf) accountLeaf {
			l.Nonce = incNonce(l.Nonce, 1-conditional)
			return l
		},
	}
	p.operatorA = []*big.Int{feeValue}
	p.data.add(acc.Owner, circuits.NumBitsAddress)
	p.data.addUint(uint64(wd.AccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(wd.TokenID), circuits.NumBitsToken)
	p.data.addUint(p.amountFloat, circuits.Float28Encoding.NumBits())
	p.data.addUint(uint64(wd.FeeTokenID), circuits.NumBitsToken)
	p.data.addUint(p.feeFloat, circuits.Float16Encoding.NumBits())
	p.data.add(acc.Nonce, circuits.NumBitsNonce)
	p.data.addUint(uint64(wd.Type), circuits.NumBitsType)
	return p, nil
}

func (s *State) planTransfer(ctx *blockContext, t *types.Transfer) (*txPlan, error) {
	conditional, err := checkSubtype(t.Type)
	if err != nil {
		return nil, err
	}
	if err := userAccount(ctx, t.AccountFromID); err != nil {
		return nil, err
	}
	if err := userAccount(ctx, t.AccountToID); err != nil {
		return nil, err
	}
	if err := checkTokens(t.TokenID, t.FeeTokenID); err != nil {
		return nil, err
	}
	amount, fee := t.Amount.MathBigInt(), t.Fee.MathBigInt()
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	if err := checkAmount("fee", fee); err != nil {
		return nil, err
	}
	to := AddressToBigInt(t.To)
	if to.Sign() == 0 {
		return nil, fmt.Errorf("%w: empty recipient owner", ErrInvalidTransaction)
	}
	from, err := s.Account(t.AccountFromID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.Account(t.AccountToID)
	if err != nil {
		return nil, err
	}
	if recipient.Owner.Sign() != 0 && recipient.Owner.Cmp(to) != 0 {
		return nil, fmt.Errorf("%w: recipient owner mismatch", ErrInvalidTransaction)
	}
	p := &txPlan{conditional: conditional}
	var amountValue, feeValue *big.Int
	if p.amountFloat, amountValue, err = encodeFloat("amount", amount,
		circuits.Float24Encoding, circuits.Float24Accuracy); err != nil {
		return nil, err
	}
	if p.feeFloat, feeValue, err = encodeFloat("fee", fee, circuits.Float16Encoding, circuits.Float16Accuracy); err != nil {
		return nil, err
	}
	if conditional == 0 {
		msg, err := TransferHash(ctx.exchangeID, t, from.Nonce)
		if err != nil {
			return nil, err
		}
		if p.sigA, err = verifySignature(from, msg, t.Signature); err != nil {
			return nil, err
		}
	}
	p.a = side{
		account: t.AccountFromID,
		tokenS:  t.TokenID,
		tokenB:  t.FeeTokenID,
		deltasS: []*big.Int{neg(amountValue)},
		deltasB: []*big.Int{neg(feeValue)},
		update: func(l accountLeaf) accountLeaf {
			l.Nonce = incNonce(l.Nonce, 1-conditional)
			return l
		},
	}
	p.b = side{
		account: t.AccountToID,
		tokenB:  t.TokenID,
		deltasB: []*big.Int{amountValue},
		update: func(l accountLeaf) accountLeaf {
			l.Owner = to
			return l
		},
	}
	p.operatorA = []*big.Int{feeValue}
	p.data.addUint(uint64(t.Type), circuits.NumBitsType)
	p.data.addUint(uint64(t.AccountFromID), circuits.NumBitsAccount)
	p.data.addUint(uint64(t.AccountToID), circuits.NumBitsAccount)
	p.data.addUint(uint64(t.TokenID), circuits.NumBitsToken)
	p.data.addUint(uint64(t.FeeTokenID), circuits.NumBitsToken)
	p.data.addUint(p.amountFloat, circuits.Float24Encoding.NumBits())
	p.data.addUint(p.feeFloat, circuits.Float16Encoding.NumBits())
	p.data.add(from.Nonce, circuits.NumBitsNonce)
	p.data.add(from.Owner, circuits.NumBitsAddress)
	p.data.add(to, circuits.NumBitsAddress)
	return p, nil
}

func checkOrder(ctx *blockContext, o *types.Order) error {
	if err := userAccount(ctx, o.AccountID); err != nil {
		return err
	}
	if err := checkTokens(o.TokenS, o.TokenB); err != nil {
		return err
	}
	for _, amount := range []*big.Int{o.AmountS.MathBigInt(), o.AmountB.MathBigInt()} {
		if amount.Sign() == 0 {
			return fmt.Errorf("%w: order %d has an empty amount", ErrInvalidTransaction, o.OrderID)
		}
		if err := checkAmount("order amount", amount); err != nil {
			return err
		}
	}
	for _, bips := range []uint8{o.MaxFeeBips, o.FeeBips, o.RebateBips} {
		if bips >= 1<<circuits.NumBitsBips {
			return fmt.Errorf("%w: order %d bips %d out of range", ErrInvalidTransaction, o.OrderID, bips)
		}
	}
	switch {
	case o.TokenS == o.TokenB:
		return fmt.Errorf("%w: order %d sells the token it buys", ErrInvalidTransaction, o.OrderID)
	case o.FeeBips > o.MaxFeeBips:
		return fmt.Errorf("%w: order %d fee above its maximum", ErrInvalidTransaction, o.OrderID)
	case o.FeeBips != 0 && o.RebateBips != 0:
		return fmt.Errorf("%w: order %d has both a fee and a rebate", ErrInvalidTransaction, o.OrderID)
	}
	return nil
}

func (s *State) planSpotTrade(ctx *blockContext, st *types.SpotTrade) (*txPlan, error) {
	orderA, orderB := &st.OrderA, &st.OrderB
	if err := checkOrder(ctx, orderA); err != nil {
		return nil, err
	}
	if err := checkOrder(ctx, orderB); err != nil {
		return nil, err
	}
	if orderA.AccountID == orderB.AccountID {
		return nil, fmt.Errorf("%w: self trade", ErrInvalidTransaction)
	}
	if orderA.TokenS != orderB.TokenB || orderA.TokenB != orderB.TokenS {
		return nil, fmt.Errorf("%w: orders don't trade the same pair", ErrInvalidTransaction)
	}

	resolve := func(o *types.Order) (*trimmedOrder, accountLeaf, *big.Int, error) {
		th, err := s.TradeHistory(o.AccountID, o.TokenS, storageSlot(o.OrderID))
		if err != nil {
			return nil, accountLeaf{}, nil, err
		}
		acc, err := s.Account(o.AccountID)
		if err != nil {
			return nil, accountLeaf{}, nil, err
		}
		bal, err := s.Balance(o.AccountID, o.TokenS)
		if err != nil {
			return nil, accountLeaf{}, nil, err
		}
		return trimOrder(o, th), acc, bal.Balance, nil
	}
	taker, accA, balanceA, err := resolve(orderA)
	if err != nil {
		return nil, err
	}
	maker, accB, balanceB, err := resolve(orderB)
	if err != nil {
		return nil, err
	}

	takerFill, makerFill, ok := matchOrders(taker, maker, taker.maxFill(balanceA), maker.maxFill(balanceB))
	if !ok {
		return nil, fmt.Errorf("%w: orders don't match", ErrInvalidTransaction)
	}
	p := &txPlan{}
	var fillSA, fillSB *big.Int
	if p.fillA, fillSA, err = encodeFloat("fill A", takerFill.S, circuits.Float24Encoding, circuits.Float24Accuracy); err != nil {
		return nil, err
	}
	if p.fillB, fillSB, err = encodeFloat("fill B", makerFill.S, circuits.Float24Encoding, circuits.Float24Accuracy); err != nil {
		return nil, err
	}
	filledAfter := func(o *trimmedOrder, sold, bought *big.Int) *big.Int {
		if o.Buy {
			return new(big.Int).Add(o.filled, bought)
		}
		return new(big.Int).Add(o.filled, sold)
	}
	filledA := filledAfter(taker, fillSA, fillSB)
	filledB := filledAfter(maker, fillSB, fillSA)
	if err := taker.checkValid(fill{S: fillSA, B: fillSB}, filledA, ctx.timestamp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := maker.checkValid(fill{S: fillSB, B: fillSA}, filledB, ctx.timestamp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	for _, o := range []struct {
		order *types.Order
		acc   accountLeaf
		sig   *circuits.Signature[*big.Int]
	}{{orderA, accA, &p.sigA}, {orderB, accB, &p.sigB}} {
		msg, err := OrderHash(ctx.exchangeID, o.order)
		if err != nil {
			return nil, err
		}
		if *o.sig, err = verifySignature(o.acc, msg, o.order.Signature); err != nil {
			return nil, fmt.Errorf("order %d: %w", o.order.OrderID, err)
		}
	}

	feesA := computeFees(fillSB, ctx.takerFeeBips, orderA.FeeBips, orderA.RebateBips)
	feesB := computeFees(fillSA, ctx.makerFeeBips, orderB.FeeBips, orderB.RebateBips)
	storeHistory := func(o *trimmedOrder, filled *big.Int) func(tradeHistoryLeaf) tradeHistoryLeaf {
		return func(tradeHistoryLeaf) tradeHistoryLeaf {
			return tradeHistoryLeaf{
				Filled:    filled,
				Cancelled: circuits.BoolToBigInt(o.cancelled),
				OrderID:   new(big.Int).SetUint64(o.orderIDToStore),
			}
		}
	}
	p.a = side{
		account:      orderA.AccountID,
		tokenS:       orderA.TokenS,
		tokenB:       orderA.TokenB,
		slot:         taker.slot,
		tradeHistory: storeHistory(taker, filledA),
		deltasS:      []*big.Int{neg(fillSA)},
		deltasB:      []*big.Int{fillSB, neg(feesA.fee), feesA.rebate, neg(feesA.protocolFee)},
	}
	p.b = side{
		account:      orderB.AccountID,
		tokenS:       orderB.TokenS,
		tokenB:       orderB.TokenB,
		slot:         maker.slot,
		tradeHistory: storeHistory(maker, filledB),
		deltasS:      []*big.Int{neg(fillSB)},
		deltasB:      []*big.Int{fillSA, neg(feesB.fee), feesB.rebate, neg(feesB.protocolFee)},
	}
	p.operatorA = []*big.Int{feesA.fee, neg(feesA.rebate)}
	p.operatorB = []*big.Int{feesB.fee, neg(feesB.rebate)}
	p.poolA = []*big.Int{feesA.protocolFee}
	p.poolB = []*big.Int{feesB.protocolFee}

	p.data.addUint(uint64(orderA.OrderID), circuits.NumBitsOrderID)
	p.data.addUint(uint64(orderB.OrderID), circuits.NumBitsOrderID)
	p.data.addUint(uint64(orderA.AccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(orderB.AccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(orderA.TokenS), circuits.NumBitsToken)
	p.data.addUint(uint64(orderB.TokenS), circuits.NumBitsToken)
	p.data.addUint(p.fillA, circuits.Float24Encoding.NumBits())
	p.data.addUint(p.fillB, circuits.Float24Encoding.NumBits())
	p.data.addUint(uint64(orderA.FeeBips), circuits.NumBitsPublishedBips)
	p.data.addUint(uint64(orderA.RebateBips), circuits.NumBitsPublishedBips)
	p.data.addUint(uint64(orderB.FeeBips), circuits.NumBitsPublishedBips)
	p.data.addUint(uint64(orderB.RebateBips), circuits.NumBitsPublishedBips)
	return p, nil
}

func (s *State) planNewAccount(ctx *blockContext, n *types.NewAccount) (*txPlan, error) {
	if err := userAccount(ctx, n.PayerAccountID); err != nil {
		return nil, err
	}
	if err := userAccount(ctx, n.NewAccountID); err != nil {
		return nil, err
	}
	if n.NewAccountID < circuits.NumReservedAccounts {
		return nil, fmt.Errorf("%w: account %d is reserved", ErrInvalidTransaction, n.NewAccountID)
	}
	if err := checkTokens(n.FeeTokenID); err != nil {
		return nil, err
	}
	fee := n.Fee.MathBigInt()
	if err := checkAmount("fee", fee); err != nil {
		return nil, err
	}
	owner := AddressToBigInt(n.NewOwner)
	if owner.Sign() == 0 {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidTransaction)
	}
	walletHash := n.WalletHash.MathBigInt()
	if walletHash.BitLen() > circuits.NumBitsHash {
		return nil, fmt.Errorf("%w: wallet hash out of range", ErrInvalidTransaction)
	}
	pkX, pkY, err := checkPublicKey(n.NewPublicKey)
	if err != nil {
		return nil, err
	}
	payer, err := s.Account(n.PayerAccountID)
	if err != nil {
		return nil, err
	}
	account, err := s.Account(n.NewAccountID)
	if err != nil {
		return nil, err
	}
	if account.Owner.Sign() != 0 || account.BalancesRoot.Cmp(circuits.EmptyTrees().BalancesRoot) != 0 {
		return nil, fmt.Errorf("%w: account %d already exists", ErrInvalidTransaction, n.NewAccountID)
	}
	p := &txPlan{}
	var feeValue *big.Int
	if p.feeFloat, feeValue, err = encodeFloat("fee", fee, circuits.Float16Encoding, circuits.Float16Accuracy); err != nil {
		return nil, err
	}
	msg, err := NewAccountHash(ctx.exchangeID, n, payer.Nonce)
	if err != nil {
		return nil, err
	}
	if p.sigA, err = verifySignature(payer, msg, n.Signature); err != nil {
		return nil, err
	}
	p.a = side{
		account: n.PayerAccountID,
		tokenB:  n.FeeTokenID,
		deltasB: []*big.Int{neg(feeValue)},
		update: func(l accountLeaf) accountLeaf {
			l.Nonce = incNonce(l.Nonce, 1)
			return l
		},
	}
	p.b = side{
		account: n.NewAccountID,
		update: func(l accountLeaf) accountLeaf {
			l.Owner, l.PublicKeyX, l.PublicKeyY, l.WalletHash = owner, pkX, pkY, walletHash
			return l
		},
	}
	p.operatorA = []*big.Int{feeValue}
	p.data.addUint(uint64(n.PayerAccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(n.FeeTokenID), circuits.NumBitsToken)
	p.data.addUint(p.feeFloat, circuits.Float16Encoding.NumBits())
	p.data.addUint(uint64(n.NewAccountID), circuits.NumBitsAccount)
	p.data.add(owner, circuits.NumBitsAddress)
	p.data.addBytes(circuits.CompressPublicKey(pkX, pkY))
	p.data.add(walletHash, circuits.NumBitsHash)
	return p, nil
}

func (s *State) planPublicKeyUpdate(ctx *blockContext, u *types.PublicKeyUpdate) (*txPlan, error) {
	conditional, err := checkSubtype(u.Type)
	if err != nil {
		return nil, err
	}
	if err := userAccount(ctx, u.AccountID); err != nil {
		return nil, err
	}
	if err := checkTokens(u.FeeTokenID); err != nil {
		return nil, err
	}
	fee := u.Fee.MathBigInt()
	if err := checkAmount("fee", fee); err != nil {
		return nil, err
	}
	pkX, pkY, err := checkPublicKey(u.PublicKey)
	if err != nil {
		return nil, err
	}
	acc, err := s.Account(u.AccountID)
	if err != nil {
		return nil, err
	}
	p := &txPlan{conditional: conditional}
	var feeValue *big.Int
	if p.feeFloat, feeValue, err = encodeFloat("fee", fee, circuits.Float16Encoding, circuits.Float16Accuracy); err != nil {
		return nil, err
	}
	if conditional == 0 {
		msg, err := PublicKeyUpdateHash(ctx.exchangeID, u, acc.Nonce)
		if err != nil {
			return nil, err
		}
		if p.sigA, err = verifySignature(acc, msg, u.Signature); err != nil {
			return nil, err
		}
	}
	p.a = side{
		account: u.AccountID,
		tokenB:  u.FeeTokenID,
		deltasB: []*big.Int{neg(feeValue)},
		update: func(l accountLeaf) accountLeaf {
			l.PublicKeyX, l.PublicKeyY = pkX, pkY
			l.Nonce = incNonce(l.Nonce, 1-conditional)
			return l
		},
	}
	p.operatorA = []*big.Int{feeValue}
	p.data.add(acc.Owner, circuits.NumBitsAddress)
	p.data.addUint(uint64(u.AccountID), circuits.NumBitsAccount)
	p.data.add(acc.Nonce, circuits.NumBitsNonce)
	p.data.addBytes(circuits.CompressPublicKey(pkX, pkY))
	p.data.addUint(uint64(u.FeeTokenID), circuits.NumBitsToken)
	p.data.addUint(p.feeFloat, circuits.Float16Encoding.NumBits())
	p.data.addUint(uint64(u.Type), circuits.NumBitsType)
	return p, nil
}

func (s *State) planOwnerChange(ctx *blockContext, o *types.OwnerChange) (*txPlan, error) {
	if err := userAccount(ctx, o.AccountID); err != nil {
		return nil, err
	}
	if err := checkTokens(o.FeeTokenID); err != nil {
		return nil, err
	}
	fee := o.Fee.MathBigInt()
	if err := checkAmount("fee", fee); err != nil {
		return nil, err
	}
	owner := AddressToBigInt(o.NewOwner)
	if owner.Sign() == 0 {
		return nil, fmt.Errorf("%w: empty owner", ErrInvalidTransaction)
	}
	pkX, pkY, err := checkPublicKey(o.NewPublicKey)
	if err != nil {
		return nil, err
	}
	acc, err := s.Account(o.AccountID)
	if err != nil {
		return nil, err
	}
	p := &txPlan{}
	var feeValue *big.Int
	if p.feeFloat, feeValue, err = encodeFloat("fee", fee, circuits.Float16Encoding, circuits.Float16Accuracy); err != nil {
		return nil, err
	}
	msg, err := OwnerChangeHash(ctx.exchangeID, o, acc.Nonce)
	if err != nil {
		return nil, err
	}
	if p.sigA, err = verifySignature(acc, msg, o.Signature); err != nil {
		return nil, err
	}
	p.a = side{
		account: o.AccountID,
		tokenB:  o.FeeTokenID,
		deltasB: []*big.Int{neg(feeValue)},
		update: func(l accountLeaf) accountLeaf {
			l.Owner, l.PublicKeyX, l.PublicKeyY = owner, pkX, pkY
			l.Nonce = incNonce(l.Nonce, 1)
			return l
		},
	}
	p.operatorA = []*big.Int{feeValue}
	p.data.add(acc.Owner, circuits.NumBitsAddress)
	p.data.addUint(uint64(o.AccountID), circuits.NumBitsAccount)
	p.data.addUint(uint64(o.FeeTokenID), circuits.NumBitsToken)
	p.data.addUint(p.feeFloat, circuits.Float16Encoding.NumBits())
	p.data.add(owner, circuits.NumBitsAddress)
	p.data.add(acc.Nonce, circuits.NumBitsNonce)
	p.data.addBytes(circuits.CompressPublicKey(pkX, pkY))
	return p, nil
}
