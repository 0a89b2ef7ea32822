package block

import (
	"encoding/json"
	"testing"
)

// FuzzBlockUnmarshal tests that arbitrary JSON input does not panic when
// unmarshaled into a Block struct.
func FuzzBlockUnmarshal(f *testing.F) {
	f.Add([]byte(`{"header":{"index":0,"previous_hash":"0000000000000000000000000000000000000000000000000000000000000000","merkle_root":"0000000000000000000000000000000000000000000000000000000000000000","timestamp":1000},"transactions":[]}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`null`))
	f.Add([]byte(`{"header":null}`))
	f.Add([]byte(`{"header":{"difficulty_bits":99999},"transactions":[{"sender":"0"}]}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var blk Block
		if err := json.Unmarshal(data, &blk); err != nil {
			return
		}
		blk.Validate()
		blk.Hash()
	})
}

// FuzzBlockHeaderUnmarshal tests that arbitrary JSON input does not panic
// when unmarshaled into a Header struct.
func FuzzBlockHeaderUnmarshal(f *testing.F) {
	f.Add([]byte(`{"index":1,"timestamp":1000}`))
	f.Add([]byte(`{}`))
	f.Add([]byte(`{"difficulty_bits":4294967295}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var h Header
		if err := json.Unmarshal(data, &h); err != nil {
			return
		}
		h.Hash()
		h.SigningBytes()
	})
}
