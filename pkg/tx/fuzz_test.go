package tx

import (
	"encoding/json"
	"testing"
)

// FuzzTxUnmarshal tests that arbitrary JSON input does not panic when
// unmarshaled into a Transaction struct.
func FuzzTxUnmarshal(f *testing.F) {
	f.Add([]byte(`{"sender":"0","recipient":"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA","amount":"50","fee":"0","timestamp":1700000000}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"sender":"","recipient":"","amount":"0","fee":"0"}`))
	f.Add([]byte(`{"sender":"0","signature":"","sender_pubkey":"","payload":""}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var transaction Transaction
		if err := json.Unmarshal(data, &transaction); err != nil {
			return
		}
		// If unmarshal succeeded, these must not panic.
		transaction.TxHash()
		transaction.SigningBytes()
		transaction.EncodedSize()
		transaction.FeePerByte()
		transaction.Validate()
		VerifyTx(&transaction) // May fail but must not panic.
	})
}
