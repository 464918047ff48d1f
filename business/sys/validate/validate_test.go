package validate_test

import (
	"testing"

	"github.com/adamwoolhether/utxochain/business/sys/validate"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

type transfer struct {
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"gt=0"`
}

func TestCheck(t *testing.T) {
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := signature.DeriveAddress(&pk.PublicKey).String()

	tt := []struct {
		name   string
		val    transfer
		fields []string
	}{
		{"valid", transfer{To: addr, Amount: 1}, nil},
		{"bad-address", transfer{To: "nope", Amount: 1}, []string{"to"}},
		{"missing", transfer{}, []string{"to", "amount"}},
	}

	for i, tc := range tt {
		err := validate.Check(tc.val)
		if tc.fields == nil {
			if err != nil {
				t.Errorf("[case:%d] %s: unexpected error: %v", i, tc.name, err)
			}
			continue
		}

		if !validate.IsFieldErrors(err) {
			t.Errorf("[case:%d] %s: expected field errors, got %v", i, tc.name, err)
			continue
		}

		fields := validate.GetFieldErrors(err).Fields()
		for _, f := range tc.fields {
			if _, exists := fields[f]; !exists {
				t.Errorf("[case:%d] %s: expected an error on %q, got %v", i, tc.name, f, fields)
			}
		}
	}
}
