package transactionhelper

import (
	"testing"

	"github.com/mwcnet/mwcd/domain/consensus/model"
)

func TestNewTransactionValidates(t *testing.T) {
	_, _, coin, err := NewCoinbase(1000, []byte("funding"))
	if err != nil {
		t.Fatalf("TestNewTransactionValidates: NewCoinbase: %s", err)
	}
	coin.Features = model.OutputFeaturesPlain

	tx, coins, err := NewTransaction([]*Coin{coin}, []uint64{600, 390}, model.PlainFeatures(10), []byte("tx"))
	if err != nil {
		t.Fatalf("TestNewTransactionValidates: NewTransaction: %s", err)
	}
	if len(coins) != 2 {
		t.Fatalf("TestNewTransactionValidates: expected 2 coins, got %d", len(coins))
	}
	err = tx.Validate(1000)
	if err != nil {
		t.Fatalf("TestNewTransactionValidates: Validate: %s", err)
	}

	_, _, err = NewTransaction([]*Coin{coin}, []uint64{600, 400}, model.PlainFeatures(10), []byte("tx"))
	if err == nil {
		t.Fatalf("TestNewTransactionValidates: expected an error for unbalanced values")
	}
}

func TestAggregate(t *testing.T) {
	var transactions []*model.Transaction
	for _, seed := range []string{"a", "b"} {
		_, _, coin, err := NewCoinbase(500, []byte(seed))
		if err != nil {
			t.Fatalf("TestAggregate: NewCoinbase: %s", err)
		}
		tx, _, err := NewTransaction([]*Coin{coin}, []uint64{495}, model.PlainFeatures(5), []byte(seed))
		if err != nil {
			t.Fatalf("TestAggregate: NewTransaction: %s", err)
		}
		transactions = append(transactions, tx)
	}
	aggregate, err := Aggregate(transactions)
	if err != nil {
		t.Fatalf("TestAggregate: Aggregate: %s", err)
	}
	if len(aggregate.Body.Kernels) != 2 || aggregate.Body.Fee() != 10 {
		t.Fatalf("TestAggregate: unexpected aggregate body %d kernels, fee %d",
			len(aggregate.Body.Kernels), aggregate.Body.Fee())
	}
	err = aggregate.Validate(1000)
	if err != nil {
		t.Fatalf("TestAggregate: Validate: %s", err)
	}
}
