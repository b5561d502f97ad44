package parsing

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func nitroDoc(t *testing.T, userData []byte) []byte {
	t.Helper()
	doc := map[string]any{
		"module_id":   "test-enclave-12345",
		"digest":      "SHA384",
		"timestamp":   uint64(1773489600000),
		"pcrs":        map[uint64][]byte{0: {0xab, 0xcd}, 1: {0x01}, 2: {0x02}},
		"certificate": []byte("cert"),
		"cabundle":    [][]byte{[]byte("ca-1"), []byte("ca-2")},
		"user_data":   userData,
		"nonce":       []byte("nonce-1"),
	}
	nested, err := cbor.Marshal(doc)
	assert.Nil(t, err)

	out, err := cbor.Marshal([]any{[]byte{0xa1, 0x01, 0x38, 0x22}, map[string]any{}, nested, []byte{0x04, 0x05}})
	assert.Nil(t, err)
	return out
}

func TestParseAttestationDoc(t *testing.T) {
	doc, userData, err := ParseAttestationDoc(nitroDoc(t, []byte("receipt")))
	assert.Nil(t, err)

	check.Equal(t, "test-enclave-12345", doc.ModuleID)
	check.Equal(t, "abcd", doc.PCRs.ImageFileHash)
	check.Equal(t, "", doc.PCRs.SigningCertHash)
	check.Equal(t, 2, len(doc.CABundle))
	check.Equal(t, "Y2VydA==", doc.Certificate)
	check.Equal(t, "nonce-1", doc.Nonce)
	check.True(t, doc.Timestamp.Equal(time.UnixMilli(1773489600000)))
	check.Equal(t, []byte("receipt"), userData)
}

func TestSplitSign1_Tagged(t *testing.T) {
	msg := cbor.Tag{Number: 18, Content: []any{[]byte{0xa0}, map[string]any{}, []byte("payload"), []byte("sig")}}
	data, err := cbor.Marshal(msg)
	assert.Nil(t, err)

	parts, err := SplitSign1(data)
	assert.Nil(t, err)
	check.Equal(t, []byte("payload"), parts.Payload)
	check.Equal(t, []byte("sig"), parts.Signature)
}

func TestSplitSign1_Invalid(t *testing.T) {
	threeElems, err := cbor.Marshal([]any{[]byte{}, map[string]any{}, []byte{}})
	assert.Nil(t, err)
	_, err = SplitSign1(threeElems)
	check.NotNil(t, err)

	wrongTag, err := cbor.Marshal(cbor.Tag{Number: 98, Content: []any{}})
	assert.Nil(t, err)
	_, err = SplitSign1(wrongTag)
	check.NotNil(t, err)

	_, err = ExtractCOSEPayload([]byte{0xff})
	check.NotNil(t, err)
}
