package private

import (
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var errFromAfterTo = errors.New("from greater than to")

func parseHash(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, err
	}

	return *h, nil
}
